package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/anassewp/telegram-backend/internal/distribution"
	"github.com/anassewp/telegram-backend/internal/events"
	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/anassewp/telegram-backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SendBatchInput struct {
	SessionID uuid.UUID
	GroupIDs  []string
	// Message overrides the campaign message when not empty.
	Message    string
	ScheduleAt *time.Time
}

type SendItem struct {
	GroupID   string    `json:"group_id"`
	SessionID uuid.UUID `json:"session_id"`
	Status    string    `json:"status"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type SendBatchResult struct {
	TotalGroups int         `json:"total_groups"`
	Successful  int         `json:"successful"`
	Failed      int         `json:"failed"`
	Results     []SendItem  `json:"results"`
	Errors      []ItemError `json:"errors"`
	Deferred    []string    `json:"deferred,omitempty"`
}

// SendBatch sends the campaign message to groupIDs through one of the
// campaign's sessions, one group at a time. Failed groups are itemized in the
// result; they never fail the call.
func (s *CampaignService) SendBatch(ctx context.Context, id, userID uuid.UUID, in SendBatchInput) (*SendBatchResult, error) {
	groups := uniqueStrings(in.GroupIDs)
	if len(groups) == 0 {
		return nil, validationError("group_ids is required")
	}
	if in.SessionID == uuid.Nil {
		return nil, validationError("session_id is required")
	}

	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignStatusActive {
		return nil, fmt.Errorf("%w: campaign must be active to send (status %s)", ErrInvalidStateTransition, c.Status)
	}
	if !slices.Contains(c.SessionIDs, in.SessionID) {
		return nil, validationError("session %s is not part of this campaign", in.SessionID)
	}

	message := in.Message
	if strings.TrimSpace(message) == "" {
		message = c.Message
	}

	sessions, err := s.sessions.ResolveActive(ctx, userID, []uuid.UUID{in.SessionID})
	if err != nil {
		return nil, err
	}
	session := sessions[0]

	reserved, err := s.reserveTargets(ctx, c, groups)
	if err != nil {
		return nil, err
	}

	plan, err := s.planner.Plan(groups, []uuid.UUID{session.ID}, distribution.Params{
		Strategy: distribution.StrategyEqual,
		Limits: distribution.Limits{
			DelayMin:      s.pacing.DelayMin,
			DelayMax:      s.pacing.DelayMax,
			MaxPerSession: s.pacing.MaxPerDayPerSession,
		},
	})
	if err != nil {
		s.refreshCounters(ctx, c, reserved)
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	hold := holdQuota(ctx, s.quota, plan, s.pacing.MaxPerDayPerSession)

	creds := CredentialsOf(session)
	stillActive := func(ctx context.Context) bool {
		cur, err := s.campaigns.GetByID(ctx, c.ID)
		return err == nil && cur.Status == models.CampaignStatusActive
	}
	send := func(ctx context.Context, item distribution.WorkItem) ItemResult {
		r := ItemResult{Target: item.Target, SessionID: item.SessionID}
		res, err := s.backend.SendMessage(ctx, SendMessageRequest{
			Session:    creds,
			CampaignID: c.ID,
			GroupID:    item.Target,
			Message:    message,
			ScheduleAt: in.ScheduleAt,
		})
		r.At = s.now().UTC()
		if err != nil {
			r.Err = err
		} else if res != nil {
			r.RemoteID = res.MessageID
		}
		_ = s.ledger.RecordMessage(context.WithoutCancel(ctx), c.ID, r)
		return r
	}

	results, interrupted := runSequential(ctx, plan.Assignments[0], stillActive, send)
	hold.settle(ctx, map[uuid.UUID]int{session.ID: len(results)})

	out := &SendBatchResult{
		TotalGroups: len(groups),
		Results:     make([]SendItem, 0, len(results)),
		Errors:      []ItemError{},
		Deferred:    append(plan.Deferred, interrupted...),
	}
	for _, r := range results {
		item := SendItem{GroupID: r.Target, SessionID: r.SessionID, MessageID: r.RemoteID}
		if r.OK() {
			out.Successful++
			item.Status = models.RecordStatusSent
		} else {
			out.Failed++
			item.Status = models.RecordStatusFailed
			item.Error = r.Err.Error()
			out.Errors = append(out.Errors, itemError(r))
		}
		out.Results = append(out.Results, item)
	}

	s.refreshCounters(ctx, c, reserved)

	_ = s.publisher.Publish(ctx, events.StreamCampaign, events.Event{
		Type: events.EventCampaignBatchSent,
		Payload: map[string]any{
			"campaign_id":  c.ID.String(),
			"session_id":   session.ID.String(),
			"successful":   out.Successful,
			"failed":       out.Failed,
			"deferred":     len(out.Deferred),
			"sent_count":   c.SentCount,
			"failed_count": c.FailedCount,
		},
	})

	s.log.Info("campaign batch sent",
		zap.String("campaign_id", c.ID.String()),
		zap.String("session_id", session.ID.String()),
		zap.Int("groups", len(groups)),
		zap.Int("successful", out.Successful),
		zap.Int("failed", out.Failed),
		zap.Int("deferred", len(out.Deferred)),
	)
	return out, nil
}

// reserveTargets claims campaign budget for the groups never attempted
// before; retries of attempted groups are free. The claim is one conditional
// write, so concurrent batches cannot spend the same remaining targets. It
// returns how many targets were reserved.
func (s *CampaignService) reserveTargets(ctx context.Context, c *models.Campaign, groups []string) (int, error) {
	attempted, err := s.ledger.Attempted(ctx, c.ID, groups)
	if err != nil {
		return 0, fmt.Errorf("load attempted groups: %w", err)
	}
	fresh := 0
	for _, g := range groups {
		if !attempted[g] {
			fresh++
		}
	}
	if fresh == 0 {
		return 0, nil
	}

	err = s.campaigns.ReserveTargets(ctx, c.ID, fresh)
	if errors.Is(err, repositories.ErrBudgetExhausted) {
		cur, gerr := s.campaigns.GetByID(ctx, c.ID)
		if gerr != nil {
			return 0, fmt.Errorf("load campaign: %w", gerr)
		}
		if cur.Status != models.CampaignStatusActive {
			return 0, fmt.Errorf("%w: campaign must be active to send (status %s)", ErrInvalidStateTransition, cur.Status)
		}
		left := max(cur.TotalTargets-cur.SentCount-cur.FailedCount-cur.ReservedTargets, 0)
		return 0, validationError("batch has %d new groups but only %d targets remain", fresh, left)
	}
	if err != nil {
		return 0, fmt.Errorf("reserve campaign targets: %w", err)
	}
	return fresh, nil
}
