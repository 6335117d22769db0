package events

import "context"

// Streams
const (
	StreamCampaign = "events:campaign"
	StreamTransfer = "events:transfer"
)

// Event types
const (
	EventCampaignStatusChanged  = "campaign_status_changed"
	EventCampaignBatchSent      = "campaign_batch_sent"
	EventTransferBatchCompleted = "transfer_batch_completed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}
