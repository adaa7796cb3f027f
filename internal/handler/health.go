package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/comfybridge/api/internal/model"
	"github.com/comfybridge/api/internal/service"
	"github.com/comfybridge/api/pkg/response"
)

type HealthHandler struct {
	service *service.GenerateService
}

func NewHealthHandler(svc *service.GenerateService) *HealthHandler {
	return &HealthHandler{service: svc}
}

// Root handles GET /
// @Summary      Service banner
// @Description  Service identity, the configured upstream URL and the endpoint listing
// @Tags         Health
// @Produce      json
// @Success      200 {object} model.BannerResponse
// @Router       / [get]
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return response.OK(c, model.BannerResponse{
		Message:  "ComfyUI Bridge API is running",
		ComfyURL: h.service.ComfyURL(),
		Endpoints: map[string]string{
			"generate_image": "/generate-image (POST)",
			"health":         "/health (GET)",
			"download":       "/download/{prompt_id} (GET)",
			"jobs":           "/jobs (GET)",
		},
	})
}

// Health handles GET /health
// @Summary      Liveness probe
// @Description  Probe the upstream ComfyUI server and report reachability; always answers 200
// @Tags         Health
// @Produce      json
// @Success      200 {object} model.HealthResponse
// @Router       /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return response.OK(c, h.service.Health(c.Context()))
}
