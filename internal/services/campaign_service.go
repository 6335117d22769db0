package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anassewp/telegram-backend/internal/distribution"
	"github.com/anassewp/telegram-backend/internal/events"
	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/anassewp/telegram-backend/internal/quota"
	"github.com/anassewp/telegram-backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification actions understood by the execution backend.
const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionCancel = "cancel"
)

type CampaignStore interface {
	Create(ctx context.Context, c *models.Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	UpdateStatus(ctx context.Context, ch models.StatusChange) error
	ReserveTargets(ctx context.Context, id uuid.UUID, n int) error
	RefreshCounters(ctx context.Context, id uuid.UUID, release int) (models.OutcomeCounts, error)
	List(ctx context.Context, f repositories.CampaignFilter) ([]models.Campaign, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error)
}

type Backend interface {
	NotifyCampaign(ctx context.Context, action string, n CampaignNotification) error
	SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error)
	TransferMember(ctx context.Context, req TransferMemberRequest) error
	TransferBatch(ctx context.Context, req TransferBatchRequest) (*TransferBatchResult, error)
	JoinGroup(ctx context.Context, session SessionCredentials, groupRef string) (*GroupInfo, error)
	SearchGroups(ctx context.Context, session SessionCredentials, query string, limit int) ([]GroupInfo, error)
}

// QuotaTracker reserves a session's daily dispatch budget up front and takes
// back what was not used.
type QuotaTracker interface {
	Reserve(ctx context.Context, sessionID uuid.UUID, n, dailyCap int) (int, quota.ReleaseFunc)
}

// Pacing is the default throttle for sends and single-session transfers.
type Pacing struct {
	DelayMin            time.Duration
	DelayMax            time.Duration
	MaxPerDayPerSession int
}

type CampaignService struct {
	campaigns CampaignStore
	sessions  *SessionRegistry
	ledger    *Ledger
	backend   Backend
	rollback  *RollbackController
	planner   *distribution.Planner
	quota     QuotaTracker
	audit     AuditStore
	publisher events.Publisher
	pacing    Pacing
	now       func() time.Time
	log       *zap.Logger
}

func NewCampaignService(
	campaigns CampaignStore,
	sessions *SessionRegistry,
	ledger *Ledger,
	backend Backend,
	rollback *RollbackController,
	planner *distribution.Planner,
	quota QuotaTracker,
	audit AuditStore,
	publisher events.Publisher,
	pacing Pacing,
	log *zap.Logger,
) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		sessions:  sessions,
		ledger:    ledger,
		backend:   backend,
		rollback:  rollback,
		planner:   planner,
		quota:     quota,
		audit:     audit,
		publisher: publisher,
		pacing:    pacing,
		now:       time.Now,
		log:       log,
	}
}

type CreateCampaignInput struct {
	Name         string
	SessionIDs   []uuid.UUID
	Message      string
	TotalTargets int
	ScheduleAt   *time.Time
}

func (s *CampaignService) Create(ctx context.Context, userID uuid.UUID, in CreateCampaignInput) (*models.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, validationError("message is required")
	}
	if in.TotalTargets <= 0 {
		return nil, validationError("total_targets must be positive")
	}
	sessionIDs := uniqueIDs(in.SessionIDs)
	if len(sessionIDs) == 0 {
		return nil, validationError("at least one session id is required")
	}
	if _, err := s.sessions.ResolveActive(ctx, userID, sessionIDs); err != nil {
		return nil, err
	}

	c := &models.Campaign{
		UserID:       userID,
		Name:         name,
		SessionIDs:   sessionIDs,
		Message:      in.Message,
		TotalTargets: in.TotalTargets,
		Status:       models.CampaignStatusDraft,
	}
	if in.ScheduleAt != nil {
		if !in.ScheduleAt.After(s.now()) {
			return nil, validationError("schedule_at must be in the future")
		}
		at := in.ScheduleAt.UTC()
		c.ScheduleAt = &at
		c.Status = models.CampaignStatusScheduled
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   models.ActorUser,
		Action:      models.AuditCampaignCreated,
		EntityType:  models.EntityCampaign,
		EntityID:    &c.ID,
		Meta:        map[string]any{"sessions": len(sessionIDs), "total_targets": c.TotalTargets, "status": c.Status},
	})
	return c, nil
}

func (s *CampaignService) Get(ctx context.Context, id, userID uuid.UUID) (*models.Campaign, error) {
	return s.owned(ctx, id, userID)
}

func (s *CampaignService) List(ctx context.Context, userID uuid.UUID, f repositories.CampaignFilter) ([]models.Campaign, error) {
	f.UserID = &userID
	return s.campaigns.List(ctx, f)
}

func (s *CampaignService) Records(ctx context.Context, id, userID uuid.UUID, limit, offset int) ([]models.MessageRecord, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.ledger.Messages(ctx, id, limit, offset)
}

// History returns the campaign's audit trail, newest first.
func (s *CampaignService) History(ctx context.Context, id, userID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.audit.ListByEntity(ctx, models.EntityCampaign, id, limit, offset)
}

func (s *CampaignService) Schedule(ctx context.Context, id, userID uuid.UUID, at time.Time) (*models.Campaign, error) {
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignStatusDraft {
		return nil, fmt.Errorf("%w: only a draft campaign can be scheduled (status %s)", ErrInvalidStateTransition, c.Status)
	}
	if !at.After(s.now()) {
		return nil, validationError("schedule_at must be in the future")
	}

	at = at.UTC()
	apply := changeFrom(c, models.CampaignStatusScheduled)
	apply.ScheduleAt = &at
	if err := s.transition(ctx, c, apply, models.StatusChange{}, "", &userID, ""); err != nil {
		return nil, err
	}
	return c, nil
}

type StartResult struct {
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	TotalSessions int       `json:"total_sessions"`
	TotalTargets  int       `json:"total_targets"`
}

// Start moves a draft, or a scheduled campaign whose time has come, to active.
// Every session of the campaign must be active.
func (s *CampaignService) Start(ctx context.Context, id, userID uuid.UUID) (*StartResult, error) {
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case models.CampaignStatusDraft:
	case models.CampaignStatusScheduled:
		if c.ScheduleAt != nil && c.ScheduleAt.After(s.now()) {
			return nil, ErrScheduleNotReached
		}
	case models.CampaignStatusActive:
		return nil, ErrAlreadyActive
	case models.CampaignStatusCompleted:
		return nil, ErrAlreadyCompleted
	case models.CampaignStatusFailed, models.CampaignStatusCancelled:
		return nil, ErrTerminalState
	case models.CampaignStatusPaused:
		return nil, fmt.Errorf("%w: campaign is paused, resume it instead", ErrInvalidStateTransition)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, c.Status)
	}

	sessions, err := s.sessions.ResolveActive(ctx, userID, c.SessionIDs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	apply := changeFrom(c, models.CampaignStatusActive)
	apply.StartedAt = &now
	apply.PausedAt = nil
	revert := changeFrom(c, c.Status)
	revert.From = models.CampaignStatusActive

	if err := s.transition(ctx, c, apply, revert, ActionStart, &userID, ""); err != nil {
		return nil, err
	}

	return &StartResult{
		Status:        c.Status,
		StartedAt:     now,
		TotalSessions: len(sessions),
		TotalTargets:  c.TotalTargets,
	}, nil
}

type PauseResult struct {
	Status      string    `json:"status"`
	PausedAt    time.Time `json:"paused_at"`
	SentCount   int       `json:"sent_count"`
	FailedCount int       `json:"failed_count"`
}

// Pause stops future dispatch; calls already in flight are not aborted.
func (s *CampaignService) Pause(ctx context.Context, id, userID uuid.UUID, reason string) (*PauseResult, error) {
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignStatusActive {
		return nil, ErrInvalidStateForPause
	}

	now := s.now().UTC()
	apply := changeFrom(c, models.CampaignStatusPaused)
	apply.PausedAt = &now
	revert := changeFrom(c, models.CampaignStatusActive)
	revert.From = models.CampaignStatusPaused

	if err := s.transition(ctx, c, apply, revert, ActionPause, &userID, reason); err != nil {
		return nil, err
	}

	counts := s.refreshCounters(ctx, c, 0)
	return &PauseResult{
		Status:      c.Status,
		PausedAt:    now,
		SentCount:   counts.Succeeded,
		FailedCount: counts.Failed,
	}, nil
}

type ResumeResult struct {
	Status       string `json:"status"`
	SentCount    int    `json:"sent_count"`
	FailedCount  int    `json:"failed_count"`
	TotalTargets int    `json:"total_targets"`
}

// Resume re-validates the session set, since sessions may have been revoked
// while the campaign was paused.
func (s *CampaignService) Resume(ctx context.Context, id, userID uuid.UUID, reason string) (*ResumeResult, error) {
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignStatusPaused {
		return nil, fmt.Errorf("%w: only a paused campaign can be resumed (status %s)", ErrInvalidStateTransition, c.Status)
	}
	if _, err := s.sessions.ResolveActive(ctx, userID, c.SessionIDs); err != nil {
		return nil, err
	}

	apply := changeFrom(c, models.CampaignStatusActive)
	apply.PausedAt = nil
	revert := changeFrom(c, models.CampaignStatusPaused)
	revert.From = models.CampaignStatusActive

	if err := s.transition(ctx, c, apply, revert, ActionResume, &userID, reason); err != nil {
		return nil, err
	}

	counts := s.refreshCounters(ctx, c, 0)
	return &ResumeResult{
		Status:       c.Status,
		SentCount:    counts.Succeeded,
		FailedCount:  counts.Failed,
		TotalTargets: c.TotalTargets,
	}, nil
}

// Cancel ends a campaign for good. The backend is only told when the
// campaign was running.
func (s *CampaignService) Cancel(ctx context.Context, id, userID uuid.UUID, reason string) (*models.Campaign, error) {
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalCampaignStatus(c.Status) {
		return nil, ErrTerminalState
	}

	running := c.Status == models.CampaignStatusActive || c.Status == models.CampaignStatusPaused
	apply := changeFrom(c, models.CampaignStatusCancelled)
	revert := changeFrom(c, c.Status)
	revert.From = models.CampaignStatusCancelled

	action := ""
	if running {
		action = ActionCancel
	}
	if err := s.transition(ctx, c, apply, revert, action, &userID, reason); err != nil {
		return nil, err
	}
	return c, nil
}

// Finish records the aggregate outcome of an execution reported by the
// caller: completed or failed.
func (s *CampaignService) Finish(ctx context.Context, id, userID uuid.UUID, outcome, reason string) (*models.Campaign, error) {
	if outcome != models.CampaignStatusCompleted && outcome != models.CampaignStatusFailed {
		return nil, validationError("outcome must be %q or %q", models.CampaignStatusCompleted, models.CampaignStatusFailed)
	}
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignStatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if models.IsTerminalCampaignStatus(c.Status) {
		return nil, ErrTerminalState
	}

	now := s.now().UTC()
	apply := changeFrom(c, outcome)
	apply.CompletedAt = &now
	if err := s.transition(ctx, c, apply, models.StatusChange{}, "", &userID, reason); err != nil {
		return nil, err
	}
	s.refreshCounters(ctx, c, 0)
	return c, nil
}

// DueScheduled lists scheduled campaigns whose start time has passed. The
// worker starts them through Start, under the same guards as a user.
func (s *CampaignService) DueScheduled(ctx context.Context, limit int) ([]models.Campaign, error) {
	return s.campaigns.ListDueScheduled(ctx, s.now(), limit)
}

// transition persists apply with a conditional update and, when action is not
// empty, notifies the backend, reverting with revert if that fails.
func (s *CampaignService) transition(ctx context.Context, c *models.Campaign, apply, revert models.StatusChange, action string, actorID *uuid.UUID, reason string) error {
	if !models.IsValidCampaignTransition(apply.From, apply.To) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidStateTransition, apply.From, apply.To)
	}

	comp := Compensation{
		Operation:  "campaign " + apply.To,
		EntityType: models.EntityCampaign,
		EntityID:   c.ID,
		Apply:      func(ctx context.Context) error { return s.applyChange(ctx, apply) },
		Revert:     func(ctx context.Context) error { return s.applyChange(ctx, revert) },
	}
	if action != "" {
		comp.Operation = "campaign " + action
		notification := CampaignNotification{
			CampaignID:   c.ID,
			UserID:       c.UserID,
			SessionIDs:   c.SessionIDs,
			TotalTargets: c.TotalTargets,
			Reason:       reason,
		}
		comp.Notify = func(ctx context.Context) error {
			return s.backend.NotifyCampaign(ctx, action, notification)
		}
	}

	if err := s.rollback.Run(ctx, comp); err != nil {
		s.log.Warn("campaign transition failed",
			zap.String("campaign_id", c.ID.String()),
			zap.String("from", apply.From),
			zap.String("to", apply.To),
			zap.Error(err),
		)
		return err
	}

	oldStatus := c.Status
	c.Status = apply.To
	c.ScheduleAt = apply.ScheduleAt
	c.StartedAt = apply.StartedAt
	c.PausedAt = apply.PausedAt
	c.CompletedAt = apply.CompletedAt

	meta := map[string]any{"old_status": oldStatus, "new_status": c.Status}
	if reason != "" {
		meta["reason"] = reason
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   models.ActorUser,
		Action:      fmt.Sprintf("campaign_status_%s_to_%s", oldStatus, c.Status),
		EntityType:  models.EntityCampaign,
		EntityID:    &c.ID,
		Meta:        meta,
	})
	_ = s.publisher.Publish(ctx, events.StreamCampaign, events.Event{
		Type: events.EventCampaignStatusChanged,
		Payload: map[string]any{
			"campaign_id": c.ID.String(),
			"user_id":     c.UserID.String(),
			"old_status":  oldStatus,
			"new_status":  c.Status,
		},
	})

	s.log.Info("campaign status changed",
		zap.String("campaign_id", c.ID.String()),
		zap.String("from", oldStatus),
		zap.String("to", c.Status),
	)
	return nil
}

func (s *CampaignService) applyChange(ctx context.Context, ch models.StatusChange) error {
	err := s.campaigns.UpdateStatus(ctx, ch)
	if errors.Is(err, repositories.ErrStaleStatus) {
		return ErrConcurrentTransition
	}
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	return nil
}

// refreshCounters recomputes sent/failed from the ledger, stores them and
// hands back release reserved targets in the same write. On failure the
// stored counters are reported unchanged.
func (s *CampaignService) refreshCounters(ctx context.Context, c *models.Campaign, release int) models.OutcomeCounts {
	counts, err := s.campaigns.RefreshCounters(context.WithoutCancel(ctx), c.ID, release)
	if err != nil {
		s.log.Error("failed to refresh campaign counters",
			zap.String("campaign_id", c.ID.String()),
			zap.Int("release", release),
			zap.Error(err),
		)
		return models.OutcomeCounts{Succeeded: c.SentCount, Failed: c.FailedCount}
	}
	c.SentCount = counts.Succeeded
	c.FailedCount = counts.Failed
	c.ReservedTargets = max(c.ReservedTargets-release, 0)
	return counts
}

func (s *CampaignService) owned(ctx context.Context, id, userID uuid.UUID) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if c.UserID != userID {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

// changeFrom starts a status change that keeps every timestamp as stored.
func changeFrom(c *models.Campaign, to string) models.StatusChange {
	return models.StatusChange{
		CampaignID:  c.ID,
		From:        c.Status,
		To:          to,
		ScheduleAt:  c.ScheduleAt,
		StartedAt:   c.StartedAt,
		PausedAt:    c.PausedAt,
		CompletedAt: c.CompletedAt,
	}
}
