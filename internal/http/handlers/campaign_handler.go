package handlers

import (
	"github.com/anassewp/telegram-backend/internal/http/dto"
	"github.com/anassewp/telegram-backend/internal/middleware"
	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/anassewp/telegram-backend/internal/repositories"
	"github.com/anassewp/telegram-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	campaignService *services.CampaignService
	log             *zap.Logger
}

func NewCampaignHandler(campaignService *services.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService, log: log}
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	sessionIDs, err := parseIDs(req.SessionIDs)
	if err != nil {
		return badRequest(c, "invalid session_ids")
	}

	userID := middleware.GetUserID(c)
	campaign, err := h.campaignService.Create(c.Context(), userID, services.CreateCampaignInput{
		Name:         req.Name,
		SessionIDs:   sessionIDs,
		Message:      req.Message,
		TotalTargets: req.TotalTargets,
		ScheduleAt:   req.ScheduleAt,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}

	campaign, err := h.campaignService.Get(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	filter := repositories.CampaignFilter{Limit: limit, Offset: offset}
	if v := c.Query("status"); v != "" {
		if _, ok := models.ValidCampaignTransitions[v]; !ok {
			return badRequest(c, "invalid status")
		}
		filter.Status = &v
	}

	campaigns, err := h.campaignService.List(c.Context(), middleware.GetUserID(c), filter)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	return c.JSON(dto.ListResponse{OK: true, Data: campaigns, Limit: limit, Offset: offset})
}

func (h *CampaignHandler) ListRecords(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}

	limit, offset := pagination(c)
	records, err := h.campaignService.Records(c.Context(), id, middleware.GetUserID(c), limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if records == nil {
		records = []models.MessageRecord{}
	}
	return c.JSON(dto.ListResponse{OK: true, Data: records, Limit: limit, Offset: offset})
}

func (h *CampaignHandler) ListHistory(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}

	limit, offset := pagination(c)
	history, err := h.campaignService.History(c.Context(), id, middleware.GetUserID(c), limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if history == nil {
		history = []models.AuditLog{}
	}
	return c.JSON(dto.ListResponse{OK: true, Data: history, Limit: limit, Offset: offset})
}

func (h *CampaignHandler) ScheduleCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	var req dto.ScheduleCampaignRequest
	if err := c.BodyParser(&req); err != nil || req.ScheduleAt.IsZero() {
		return badRequest(c, "schedule_at is required")
	}

	campaign, err := h.campaignService.Schedule(c.Context(), id, middleware.GetUserID(c), req.ScheduleAt)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) StartCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}

	res, err := h.campaignService.Start(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *CampaignHandler) PauseCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}

	res, err := h.campaignService.Pause(c.Context(), id, middleware.GetUserID(c), reason(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *CampaignHandler) ResumeCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}

	res, err := h.campaignService.Resume(c.Context(), id, middleware.GetUserID(c), reason(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *CampaignHandler) CancelCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}

	campaign, err := h.campaignService.Cancel(c.Context(), id, middleware.GetUserID(c), reason(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) FinishCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	var req dto.FinishCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	campaign, err := h.campaignService.Finish(c.Context(), id, middleware.GetUserID(c), req.Outcome, req.Reason)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) SendBatch(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	var req dto.SendBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return badRequest(c, "invalid session_id")
	}

	res, err := h.campaignService.SendBatch(c.Context(), id, middleware.GetUserID(c), services.SendBatchInput{
		SessionID:  sessionID,
		GroupIDs:   req.GroupIDs,
		Message:    req.Message,
		ScheduleAt: req.ScheduleAt,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

// reason reads the optional reason; a missing or empty body is fine.
func reason(c *fiber.Ctx) string {
	if len(c.Body()) == 0 {
		return ""
	}
	var req dto.ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return ""
	}
	return req.Reason
}
