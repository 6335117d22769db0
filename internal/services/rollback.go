package services

import (
	"context"
	"time"

	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type AuditStore interface {
	AuditLogger
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// Compensation describes an optimistic write followed by a remote call.
// Revert must undo Apply; it runs at most once, and only when Notify fails.
type Compensation struct {
	Operation  string
	EntityType string
	EntityID   uuid.UUID
	Apply      func(ctx context.Context) error
	Notify     func(ctx context.Context) error
	Revert     func(ctx context.Context) error
}

type RollbackController struct {
	audit         AuditLogger
	revertTimeout time.Duration
	log           *zap.Logger
}

func NewRollbackController(audit AuditLogger, log *zap.Logger) *RollbackController {
	return &RollbackController{audit: audit, revertTimeout: 10 * time.Second, log: log}
}

// Run applies, notifies and, if the notification failed, reverts. The
// returned error is always the first failure: a failed revert is logged as an
// inconsistency needing manual reconciliation and is not returned.
func (r *RollbackController) Run(ctx context.Context, c Compensation) error {
	if err := c.Apply(ctx); err != nil {
		return err
	}
	if c.Notify == nil {
		return nil
	}

	notifyErr := c.Notify(ctx)
	if notifyErr == nil {
		return nil
	}

	r.log.Warn("remote notification failed, reverting",
		zap.String("operation", c.Operation),
		zap.String("entity_id", c.EntityID.String()),
		zap.Error(notifyErr),
	)

	// The request context may already be cancelled; the revert still has to land.
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.revertTimeout)
	defer cancel()

	if err := c.Revert(revertCtx); err != nil {
		r.log.Error("rollback inconsistency: manual reconciliation required",
			zap.String("operation", c.Operation),
			zap.String("entity_id", c.EntityID.String()),
			zap.NamedError("original_error", notifyErr),
			zap.NamedError("revert_error", err),
		)
		entityID := c.EntityID
		_ = r.audit.Log(revertCtx, models.AuditLog{
			ActorType:  models.ActorSystem,
			Action:     models.AuditRollbackInconsistency,
			EntityType: c.EntityType,
			EntityID:   &entityID,
			Meta: map[string]any{
				"operation":      c.Operation,
				"original_error": notifyErr.Error(),
				"revert_error":   err.Error(),
			},
		})
	}
	return notifyErr
}
