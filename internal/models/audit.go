package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actors and entities
const (
	ActorUser   = "user"
	ActorSystem = "system"

	EntityCampaign      = "campaign"
	EntityTransferBatch = "transfer_batch"
)

// Audit actions
const (
	AuditCampaignCreated       = "campaign_created"
	AuditRollbackInconsistency = "rollback_inconsistency"
	AuditTransferBatch         = "transfer_batch_executed"
)

type AuditLog struct {
	ID          uuid.UUID  `json:"id"`
	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorType   string     `json:"actor_type"` // user/system
	Action      string     `json:"action"`
	EntityType  string     `json:"entity_type"`
	EntityID    *uuid.UUID `json:"entity_id,omitempty"`
	Meta        any        `json:"meta,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
