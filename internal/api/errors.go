package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/otcerr"
)

// StatusFor maps a service error onto an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, otcerr.ErrInsufficientBalance) {
		return fiber.StatusPaymentRequired
	}
	switch otcerr.KindOf(err) {
	case otcerr.KindValidation:
		return fiber.StatusBadRequest
	case otcerr.KindAuthorization:
		return fiber.StatusForbidden
	case otcerr.KindSignature:
		return fiber.StatusUnauthorized
	case otcerr.KindNotFound:
		return fiber.StatusNotFound
	case otcerr.KindConflict:
		return fiber.StatusConflict
	case otcerr.KindExternal:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders err. Internal errors are logged with detail and
// returned with a generic message.
func writeError(c *fiber.Ctx, logger *zap.Logger, op string, err error) error {
	status := StatusFor(err)
	body := ErrorBody{Code: otcerr.ErrInternal.Code, Message: otcerr.ErrInternal.Message}

	if e, ok := otcerr.As(err); ok && status != fiber.StatusInternalServerError {
		body = ErrorBody{Code: e.Code, Message: e.Message, Field: e.Field}
		if body.Message == "" {
			body.Message = e.Code
		}
		logger.Info("api.request_rejected",
			zap.String("operation", op),
			zap.String("code", e.Code),
			zap.Int("status", status))
	} else {
		logger.Error("api.request_failed", zap.String("operation", op), zap.Error(err))
	}
	return c.Status(status).JSON(ErrorResponse{Error: body})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: ErrorBody{
		Code:    otcerr.ErrValidation.Code,
		Message: "malformed JSON body: " + err.Error(),
	}})
}
