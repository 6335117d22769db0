package dto

import "time"

type CreateCampaignRequest struct {
	Name         string     `json:"name"`
	SessionIDs   []string   `json:"session_ids"`
	Message      string     `json:"message"`
	TotalTargets int        `json:"total_targets"`
	ScheduleAt   *time.Time `json:"schedule_at,omitempty"`
}

type ScheduleCampaignRequest struct {
	ScheduleAt time.Time `json:"schedule_at"`
}

// ReasonRequest is the optional body of pause, resume and cancel.
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type FinishCampaignRequest struct {
	Outcome string `json:"outcome"` // completed / failed
	Reason  string `json:"reason,omitempty"`
}

type SendBatchRequest struct {
	SessionID  string     `json:"session_id"`
	GroupIDs   []string   `json:"group_ids"`
	Message    string     `json:"message,omitempty"` // empty: campaign message
	ScheduleAt *time.Time `json:"schedule_at,omitempty"`
}

type TransferMembersRequest struct {
	SessionID     string   `json:"session_id"`
	SourceGroupID string   `json:"source_group_id"`
	TargetGroupID string   `json:"target_group_id"`
	MemberIDs     []string `json:"member_ids"`
}

type TransferBatchRequest struct {
	SessionIDs          []string           `json:"session_ids"`
	SourceGroupID       string             `json:"source_group_id"`
	TargetGroupID       string             `json:"target_group_id"`
	MemberIDs           []string           `json:"member_ids"`
	Strategy            string             `json:"strategy,omitempty"` // equal / round_robin / random / weighted
	DelayMinSeconds     float64            `json:"delay_min,omitempty"`
	DelayMaxSeconds     float64            `json:"delay_max,omitempty"`
	MaxPerDayPerSession int                `json:"max_per_day_per_session,omitempty"`
	Weights             map[string]float64 `json:"weights,omitempty"` // session id -> weight
}

type JoinGroupRequest struct {
	SessionID string `json:"session_id"`
	Group     string `json:"group"` // id, @username or invite link
}
