package handlers

import (
	"errors"
	"strconv"

	"github.com/anassewp/telegram-backend/internal/distribution"
	"github.com/anassewp/telegram-backend/internal/http/dto"
	"github.com/anassewp/telegram-backend/internal/middleware"
	"github.com/anassewp/telegram-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errorStatus maps service errors onto HTTP statuses and stable codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, distribution.ErrUnknownStrategy):
		return fiber.StatusBadRequest, "validation_error"
	case errors.Is(err, services.ErrCampaignNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrInvalidStateTransition):
		return fiber.StatusConflict, "invalid_state_transition"
	case errors.Is(err, services.ErrSessionAvailability):
		return fiber.StatusUnprocessableEntity, "session_unavailable"
	case errors.Is(err, services.ErrTimeout):
		return fiber.StatusGatewayTimeout, "backend_timeout"
	case errors.Is(err, services.ErrBackendUnavailable):
		return fiber.StatusBadGateway, "backend_unavailable"
	case errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusBadGateway, "session_unauthorized"
	case errors.Is(err, services.ErrTargetNotFound):
		return fiber.StatusBadGateway, "target_not_found"
	case errors.Is(err, services.ErrRemoteRejected):
		return fiber.StatusBadGateway, "backend_rejected"
	}
	return fiber.StatusInternalServerError, "internal_error"
}

func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "internal error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, Code: code, RequestID: middleware.GetRequestID(c)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      "validation_error",
		RequestID: middleware.GetRequestID(c),
	})
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// pagination reads limit/offset with a default of 20 and a ceiling of 100.
func pagination(c *fiber.Ctx) (int, int) {
	limit, offset := 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 100)
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
