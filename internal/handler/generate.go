package handler

import (
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/comfybridge/api/internal/model"
	"github.com/comfybridge/api/internal/service"
	"github.com/comfybridge/api/pkg/response"
)

type GenerateHandler struct {
	service   *service.GenerateService
	validator *validator.Validate
}

func NewGenerateHandler(svc *service.GenerateService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /generate-image
// @Summary      Generate an image
// @Description  Inject prompts and a fresh seed into the workflow template, submit it to ComfyUI, wait for completion and store the resulting image
// @Tags         Generate
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateRequest true "Generation request"
// @Success      200 {object} model.GenerateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Failure      504 {object} response.ErrorResponse
// @Router       /generate-image [post]
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Generate(c.Context(), &req)
	if err != nil {
		return response.BridgeError(c, err)
	}

	return response.OK(c, result)
}

// Download handles GET /download/:promptId
// @Summary      Download a generated image
// @Description  Retrieve a previously generated image by its prompt id
// @Tags         Generate
// @Produce      png
// @Param        promptId path string true "Prompt ID"
// @Success      200 {file} binary
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /download/{promptId} [get]
func (h *GenerateHandler) Download(c *fiber.Ctx) error {
	promptID := c.Params("promptId")
	if promptID == "" {
		return response.ValidationError(c, "Prompt ID is required", nil)
	}

	path, err := h.service.DownloadPath(promptID)
	if err != nil {
		return response.BridgeError(c, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return response.ServiceError(c, "Failed to read stored image")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filepath.Base(path)+`"`)
	return c.Send(data)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
