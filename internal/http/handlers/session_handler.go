package handlers

import (
	"github.com/anassewp/telegram-backend/internal/http/dto"
	"github.com/anassewp/telegram-backend/internal/middleware"
	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/anassewp/telegram-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SessionHandler struct {
	registry *services.SessionRegistry
	log      *zap.Logger
}

func NewSessionHandler(registry *services.SessionRegistry, log *zap.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, log: log}
}

// ListSessions returns the caller's sessions. Credentials are never serialized.
func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.registry.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: sessions})
}
