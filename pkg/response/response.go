package response

import (
	"github.com/gofiber/fiber/v2"

	"github.com/comfybridge/api/internal/model"
)

// Error codes
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeConfigurationError = "CONFIGURATION_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeExecutionError     = "EXECUTION_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceError       = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func ConfigurationError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeConfigurationError, message, nil)
}

func ServiceUnavailable(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusServiceUnavailable, CodeServiceUnavailable, message, nil)
}

func ExecutionError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusInternalServerError, CodeExecutionError, message, details)
}

func Timeout(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusGatewayTimeout, CodeTimeout, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// CodeFor maps a pipeline error kind to its wire code.
func CodeFor(kind model.ErrorKind) string {
	switch kind {
	case model.ErrKindConfiguration:
		return CodeConfigurationError
	case model.ErrKindServiceUnavailable:
		return CodeServiceUnavailable
	case model.ErrKindExecution:
		return CodeExecutionError
	case model.ErrKindTimeout:
		return CodeTimeout
	case model.ErrKindNotFound:
		return CodeNotFound
	default:
		return CodeServiceError
	}
}

// StatusFor maps a pipeline error kind to its HTTP status.
func StatusFor(kind model.ErrorKind) int {
	switch kind {
	case model.ErrKindServiceUnavailable:
		return fiber.StatusServiceUnavailable
	case model.ErrKindTimeout:
		return fiber.StatusGatewayTimeout
	case model.ErrKindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// BridgeError writes a classified pipeline error with its mapped status and
// code; unclassified errors fall back to a generic service error.
func BridgeError(c *fiber.Ctx, err error) error {
	if be, ok := model.AsBridgeError(err); ok {
		var details interface{}
		if len(be.Details) > 0 {
			details = be.Details
		}
		return Error(c, StatusFor(be.Kind), CodeFor(be.Kind), be.Error(), details)
	}
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, "Unexpected error: "+err.Error(), nil)
}
