package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/comfybridge/api/internal/model"
	"github.com/comfybridge/api/internal/service"
	"github.com/comfybridge/api/pkg/response"
)

type JobsHandler struct {
	registry *service.JobRegistry
}

func NewJobsHandler(registry *service.JobRegistry) *JobsHandler {
	return &JobsHandler{registry: registry}
}

// List handles GET /jobs
// @Summary      List recent jobs
// @Description  Snapshot of generation jobs tracked in memory, newest first; history does not survive a restart
// @Tags         Jobs
// @Produce      json
// @Success      200 {object} model.JobListResponse
// @Router       /jobs [get]
func (h *JobsHandler) List(c *fiber.Ctx) error {
	return response.OK(c, model.JobListResponse{Jobs: h.registry.List()})
}

// Get handles GET /jobs/:promptId
// @Summary      Get one job
// @Description  Current status of a tracked generation job
// @Tags         Jobs
// @Produce      json
// @Param        promptId path string true "Prompt ID"
// @Success      200 {object} model.Job
// @Failure      404 {object} response.ErrorResponse
// @Router       /jobs/{promptId} [get]
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	promptID := c.Params("promptId")
	if promptID == "" {
		return response.ValidationError(c, "Prompt ID is required", nil)
	}

	job, ok := h.registry.Get(promptID)
	if !ok {
		return response.NotFound(c, "Job not found")
	}
	return response.OK(c, job)
}
