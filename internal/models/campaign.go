package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
	CampaignStatusCancelled = "cancelled"
)

// Valid state transitions: from -> []to
var ValidCampaignTransitions = map[string][]string{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusActive, CampaignStatusCancelled},
	CampaignStatusScheduled: {CampaignStatusActive, CampaignStatusCancelled},
	CampaignStatusActive:    {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusCancelled},
	CampaignStatusPaused:    {CampaignStatusActive, CampaignStatusFailed, CampaignStatusCancelled},
	CampaignStatusCompleted: {},
	CampaignStatusFailed:    {},
	CampaignStatusCancelled: {},
}

func IsValidCampaignTransition(from, to string) bool {
	allowed, ok := ValidCampaignTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalCampaignStatus reports whether no transition leaves the status.
func IsTerminalCampaignStatus(status string) bool {
	allowed, ok := ValidCampaignTransitions[status]
	return ok && len(allowed) == 0
}

type Campaign struct {
	ID              uuid.UUID   `json:"id"`
	UserID          uuid.UUID   `json:"user_id"`
	Name            string      `json:"name"`
	SessionIDs      []uuid.UUID `json:"session_ids"`
	Message         string      `json:"message"`
	TotalTargets    int         `json:"total_targets"`
	Status          string      `json:"status"`
	ScheduleAt      *time.Time  `json:"schedule_at,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	PausedAt        *time.Time  `json:"paused_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	SentCount       int         `json:"sent_count"`
	FailedCount     int         `json:"failed_count"`
	// ReservedTargets are claimed by send batches still running.
	ReservedTargets int         `json:"reserved_targets"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// StatusChange is a conditional status update: it applies only while the
// stored status still equals From. The timestamps are the values to store.
type StatusChange struct {
	CampaignID  uuid.UUID
	From        string
	To          string
	ScheduleAt  *time.Time
	StartedAt   *time.Time
	PausedAt    *time.Time
	CompletedAt *time.Time
}
