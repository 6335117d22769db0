package handlers

import (
	"github.com/anassewp/telegram-backend/internal/http/dto"
	"github.com/anassewp/telegram-backend/internal/middleware"
	"github.com/anassewp/telegram-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type GroupHandler struct {
	groupService *services.GroupService
	log          *zap.Logger
}

func NewGroupHandler(groupService *services.GroupService, log *zap.Logger) *GroupHandler {
	return &GroupHandler{groupService: groupService, log: log}
}

func (h *GroupHandler) JoinGroup(c *fiber.Ctx) error {
	var req dto.JoinGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return badRequest(c, "invalid session_id")
	}

	info, err := h.groupService.JoinGroup(c.Context(), middleware.GetUserID(c), sessionID, req.Group)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: info})
}

// SearchGroups: GET /groups/search?session_id=...&q=...&limit=...
func (h *GroupHandler) SearchGroups(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		return badRequest(c, "invalid session_id")
	}

	groups, err := h.groupService.SearchGroups(c.Context(), middleware.GetUserID(c), sessionID, c.Query("q"), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: groups})
}
