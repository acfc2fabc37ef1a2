// Package errxfiber renders errx errors from Fiber handlers.
package errxfiber

import (
	"errors"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler converts a handler error into a JSON error response. A
// *fiber.Error keeps its status, an *errx.Error is rendered with its code and
// details, and anything else becomes an opaque internal error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	requestID := c.GetRespHeader(fiber.HeaderXRequestID)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"code":       "HTTP_ERROR",
			"message":    fe.Message,
			"status":     fe.Code,
			"request_id": requestID,
		})
	}

	e := errx.FromError(err)

	entry := logx.WithContext(c.UserContext()).WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"request_id": requestID,
		"code":       e.Code,
	})
	if e.HTTPStatus >= fiber.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	resp := fiber.Map{
		"code":       e.Code,
		"type":       string(e.Type),
		"message":    e.Message,
		"status":     e.HTTPStatus,
		"request_id": requestID,
	}
	if len(e.Details) > 0 {
		resp["details"] = e.Details
	}
	if e.Retryable() {
		resp["retryable"] = true
	}
	return c.Status(e.HTTPStatus).JSON(resp)
}
