package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RecordStore interface {
	InsertMessage(ctx context.Context, m *models.MessageRecord) error
	InsertTransfer(ctx context.Context, t *models.TransferRecord) error
	AttemptedGroups(ctx context.Context, campaignID uuid.UUID, groupIDs []string) ([]string, error)
	ListMessages(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]models.MessageRecord, error)
}

// ItemResult is the outcome of one work item: Err is nil on success.
type ItemResult struct {
	Target    string
	SessionID uuid.UUID
	RemoteID  string
	Err       error
	At        time.Time
}

func (r ItemResult) OK() bool { return r.Err == nil }

// ItemError is the caller-facing form of a failed item.
type ItemError struct {
	Target    string    `json:"target"`
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason"`
	Kind      string    `json:"kind"`
	Retryable bool      `json:"retryable"`
}

func itemError(r ItemResult) ItemError {
	return ItemError{
		Target:    r.Target,
		SessionID: r.SessionID,
		Reason:    r.Err.Error(),
		Kind:      errorKind(r.Err),
		Retryable: Retryable(r.Err),
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTargetNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrRemoteRejected):
		return "rejected"
	}
	return "internal"
}

// TransferRef identifies the batch a transfer record belongs to.
type TransferRef struct {
	BatchID       uuid.UUID
	UserID        uuid.UUID
	SourceGroupID string
	TargetGroupID string
}

// Ledger appends one outcome record per attempted item and never rewrites
// earlier ones.
type Ledger struct {
	store RecordStore
	log   *zap.Logger
}

func NewLedger(store RecordStore, log *zap.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

func (l *Ledger) RecordMessage(ctx context.Context, campaignID uuid.UUID, r ItemResult) error {
	rec := &models.MessageRecord{
		CampaignID: campaignID,
		SessionID:  r.SessionID,
		GroupID:    r.Target,
	}
	if r.OK() {
		at := r.At
		rec.Status = models.RecordStatusSent
		rec.SentAt = &at
		if r.RemoteID != "" {
			id := r.RemoteID
			rec.RemoteID = &id
		}
	} else {
		msg := r.Err.Error()
		rec.Status = models.RecordStatusFailed
		rec.ErrorMessage = &msg
	}
	if err := l.store.InsertMessage(ctx, rec); err != nil {
		l.log.Error("failed to record message outcome",
			zap.String("campaign_id", campaignID.String()),
			zap.String("group_id", r.Target),
			zap.String("status", rec.Status),
			zap.Error(err),
		)
		return fmt.Errorf("record message outcome: %w", err)
	}
	return nil
}

func (l *Ledger) RecordTransfer(ctx context.Context, ref TransferRef, r ItemResult) error {
	rec := &models.TransferRecord{
		BatchID:       ref.BatchID,
		UserID:        ref.UserID,
		SessionID:     r.SessionID,
		SourceGroupID: ref.SourceGroupID,
		TargetGroupID: ref.TargetGroupID,
		MemberID:      r.Target,
	}
	if r.OK() {
		at := r.At
		rec.Status = models.RecordStatusTransferred
		rec.TransferredAt = &at
	} else {
		msg := r.Err.Error()
		rec.Status = models.RecordStatusFailed
		rec.ErrorMessage = &msg
	}
	if err := l.store.InsertTransfer(ctx, rec); err != nil {
		l.log.Error("failed to record transfer outcome",
			zap.String("batch_id", ref.BatchID.String()),
			zap.String("member_id", r.Target),
			zap.String("status", rec.Status),
			zap.Error(err),
		)
		return fmt.Errorf("record transfer outcome: %w", err)
	}
	return nil
}

// Attempted returns the subset of groupIDs already recorded for the campaign.
func (l *Ledger) Attempted(ctx context.Context, campaignID uuid.UUID, groupIDs []string) (map[string]bool, error) {
	groups, err := l.store.AttemptedGroups(ctx, campaignID, groupIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(groups))
	for _, g := range groups {
		out[g] = true
	}
	return out, nil
}

func (l *Ledger) Messages(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]models.MessageRecord, error) {
	return l.store.ListMessages(ctx, campaignID, limit, offset)
}
