package handlers

import (
	"time"

	"github.com/anassewp/telegram-backend/internal/http/dto"
	"github.com/anassewp/telegram-backend/internal/middleware"
	"github.com/anassewp/telegram-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TransferHandler struct {
	transferService *services.TransferService
	log             *zap.Logger
}

func NewTransferHandler(transferService *services.TransferService, log *zap.Logger) *TransferHandler {
	return &TransferHandler{transferService: transferService, log: log}
}

func (h *TransferHandler) TransferMembers(c *fiber.Ctx) error {
	var req dto.TransferMembersRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return badRequest(c, "invalid session_id")
	}

	res, err := h.transferService.TransferMembers(c.Context(), middleware.GetUserID(c), services.TransferInput{
		SessionID:     sessionID,
		SourceGroupID: req.SourceGroupID,
		TargetGroupID: req.TargetGroupID,
		MemberIDs:     req.MemberIDs,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *TransferHandler) TransferMembersBatch(c *fiber.Ctx) error {
	var req dto.TransferBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	sessionIDs, err := parseIDs(req.SessionIDs)
	if err != nil {
		return badRequest(c, "invalid session_ids")
	}
	var weights map[uuid.UUID]float64
	if len(req.Weights) > 0 {
		weights = make(map[uuid.UUID]float64, len(req.Weights))
		for k, w := range req.Weights {
			id, err := uuid.Parse(k)
			if err != nil {
				return badRequest(c, "invalid session id in weights")
			}
			weights[id] = w
		}
	}

	res, err := h.transferService.TransferMembersBatch(c.Context(), middleware.GetUserID(c), services.BatchTransferInput{
		SessionIDs:          sessionIDs,
		SourceGroupID:       req.SourceGroupID,
		TargetGroupID:       req.TargetGroupID,
		MemberIDs:           req.MemberIDs,
		Strategy:            req.Strategy,
		DelayMin:            seconds(req.DelayMinSeconds),
		DelayMax:            seconds(req.DelayMaxSeconds),
		MaxPerDayPerSession: req.MaxPerDayPerSession,
		Weights:             weights,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
