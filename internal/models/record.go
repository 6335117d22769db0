package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome statuses
const (
	RecordStatusSent        = "sent"
	RecordStatusTransferred = "transferred"
	RecordStatusFailed      = "failed"
)

// MessageRecord is the ledger entry for one attempted group send.
type MessageRecord struct {
	ID           uuid.UUID  `json:"id"`
	CampaignID   uuid.UUID  `json:"campaign_id"`
	SessionID    uuid.UUID  `json:"session_id"`
	GroupID      string     `json:"group_id"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	RemoteID     *string    `json:"remote_id,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TransferRecord is the ledger entry for one attempted member transfer.
type TransferRecord struct {
	ID            uuid.UUID  `json:"id"`
	BatchID       uuid.UUID  `json:"batch_id"`
	UserID        uuid.UUID  `json:"user_id"`
	SessionID     uuid.UUID  `json:"session_id"`
	SourceGroupID string     `json:"source_group_id"`
	TargetGroupID string     `json:"target_group_id"`
	MemberID      string     `json:"member_id"`
	Status        string     `json:"status"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	TransferredAt *time.Time `json:"transferred_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// OutcomeCounts aggregates the latest record per target.
type OutcomeCounts struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
