package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anassewp/telegram-backend/internal/distribution"
	"github.com/anassewp/telegram-backend/internal/events"
	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TransferService struct {
	sessions  *SessionRegistry
	ledger    *Ledger
	backend   Backend
	planner   *distribution.Planner
	quota     QuotaTracker
	audit     AuditLogger
	publisher events.Publisher
	pacing    Pacing
	now       func() time.Time
	log       *zap.Logger
}

func NewTransferService(
	sessions *SessionRegistry,
	ledger *Ledger,
	backend Backend,
	planner *distribution.Planner,
	quota QuotaTracker,
	audit AuditLogger,
	publisher events.Publisher,
	pacing Pacing,
	log *zap.Logger,
) *TransferService {
	return &TransferService{
		sessions:  sessions,
		ledger:    ledger,
		backend:   backend,
		planner:   planner,
		quota:     quota,
		audit:     audit,
		publisher: publisher,
		pacing:    pacing,
		now:       time.Now,
		log:       log,
	}
}

type TransferInput struct {
	SessionID     uuid.UUID
	SourceGroupID string
	TargetGroupID string
	MemberIDs     []string
}

type TransferResult struct {
	BatchID          uuid.UUID   `json:"batch_id"`
	TotalRequested   int         `json:"total_requested"`
	TotalTransferred int         `json:"total_transferred"`
	TotalFailed      int         `json:"total_failed"`
	Transferred      []string    `json:"transferred"`
	Failed           []ItemError `json:"failed"`
	Deferred         []string    `json:"deferred,omitempty"`
}

// TransferMembers moves members from one group to another through a single
// session, one member at a time.
func (s *TransferService) TransferMembers(ctx context.Context, userID uuid.UUID, in TransferInput) (*TransferResult, error) {
	if in.SessionID == uuid.Nil {
		return nil, validationError("session_id is required")
	}
	source, target, members, err := validateTransfer(in.SourceGroupID, in.TargetGroupID, in.MemberIDs)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessions.ResolveActive(ctx, userID, []uuid.UUID{in.SessionID})
	if err != nil {
		return nil, err
	}
	session := sessions[0]

	plan, err := s.planner.Plan(members, []uuid.UUID{session.ID}, distribution.Params{
		Strategy: distribution.StrategyEqual,
		Limits: distribution.Limits{
			DelayMin:      s.pacing.DelayMin,
			DelayMax:      s.pacing.DelayMax,
			MaxPerSession: s.pacing.MaxPerDayPerSession,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	hold := holdQuota(ctx, s.quota, plan, s.pacing.MaxPerDayPerSession)

	ref := TransferRef{
		BatchID:       uuid.New(),
		UserID:        userID,
		SourceGroupID: source,
		TargetGroupID: target,
	}
	creds := CredentialsOf(session)
	transfer := func(ctx context.Context, item distribution.WorkItem) ItemResult {
		r := ItemResult{Target: item.Target, SessionID: item.SessionID}
		r.Err = s.backend.TransferMember(ctx, TransferMemberRequest{
			Session:       creds,
			SourceGroupID: ref.SourceGroupID,
			TargetGroupID: ref.TargetGroupID,
			MemberID:      item.Target,
		})
		r.At = s.now().UTC()
		_ = s.ledger.RecordTransfer(context.WithoutCancel(ctx), ref, r)
		return r
	}

	results, interrupted := runSequential(ctx, plan.Assignments[0], nil, transfer)
	hold.settle(ctx, map[uuid.UUID]int{session.ID: len(results)})

	out := &TransferResult{
		BatchID:        ref.BatchID,
		TotalRequested: len(members),
		Transferred:    []string{},
		Failed:         []ItemError{},
		Deferred:       append(plan.Deferred, interrupted...),
	}
	for _, r := range results {
		if r.OK() {
			out.Transferred = append(out.Transferred, r.Target)
		} else {
			out.Failed = append(out.Failed, itemError(r))
		}
	}
	out.TotalTransferred = len(out.Transferred)
	out.TotalFailed = len(out.Failed)

	s.finish(ctx, ref, string(distribution.StrategyEqual), 1, out.TotalRequested, out.TotalTransferred, out.TotalFailed, len(out.Deferred))
	return out, nil
}

type BatchTransferInput struct {
	SessionIDs    []uuid.UUID
	SourceGroupID string
	TargetGroupID string
	MemberIDs     []string
	Strategy      string
	// Zero delays and cap fall back to the configured pacing.
	DelayMin            time.Duration
	DelayMax            time.Duration
	MaxPerDayPerSession int
	Weights             map[uuid.UUID]float64
}

type SessionTransferResult struct {
	Assigned    int `json:"assigned"`
	Transferred int `json:"transferred"`
	Failed      int `json:"failed"`
	Deferred    int `json:"deferred"`
}

type BatchTransferResult struct {
	BatchID          uuid.UUID                            `json:"batch_id"`
	Strategy         string                               `json:"strategy"`
	TotalRequested   int                                  `json:"total_requested"`
	TotalTransferred int                                  `json:"total_transferred"`
	TotalFailed      int                                  `json:"total_failed"`
	SessionResults   map[uuid.UUID]*SessionTransferResult `json:"session_results"`
	Failed           []ItemError                          `json:"failed"`
	Deferred         []string                             `json:"deferred,omitempty"`
}

// TransferMembersBatch plans members over several sessions and hands the
// whole plan to the backend in one call. If that call fails outright every
// scheduled item is recorded as failed with its error.
func (s *TransferService) TransferMembersBatch(ctx context.Context, userID uuid.UUID, in BatchTransferInput) (*BatchTransferResult, error) {
	strategy, err := distribution.ParseStrategy(in.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	source, target, members, err := validateTransfer(in.SourceGroupID, in.TargetGroupID, in.MemberIDs)
	if err != nil {
		return nil, err
	}

	delayMin, delayMax := in.DelayMin, in.DelayMax
	if delayMin == 0 && delayMax == 0 {
		delayMin, delayMax = s.pacing.DelayMin, s.pacing.DelayMax
	}
	if delayMin < 0 || delayMax < delayMin {
		return nil, validationError("delay range must satisfy 0 <= delay_min <= delay_max")
	}
	perDay := in.MaxPerDayPerSession
	if perDay < 0 {
		return nil, validationError("max_per_day_per_session must not be negative")
	}
	if perDay == 0 {
		perDay = s.pacing.MaxPerDayPerSession
	}

	sessions, err := s.sessions.ResolveActive(ctx, userID, in.SessionIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(sessions))
	creds := make(map[uuid.UUID]SessionCredentials, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
		creds[sess.ID] = CredentialsOf(sess)
	}

	plan, err := s.planner.Plan(members, ids, distribution.Params{
		Strategy: strategy,
		Limits: distribution.Limits{
			DelayMin:      delayMin,
			DelayMax:      delayMax,
			MaxPerSession: perDay,
		},
		Weights: in.Weights,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	hold := holdQuota(ctx, s.quota, plan, perDay)

	ref := TransferRef{
		BatchID:       uuid.New(),
		UserID:        userID,
		SourceGroupID: source,
		TargetGroupID: target,
	}
	out := &BatchTransferResult{
		BatchID:        ref.BatchID,
		Strategy:       string(strategy),
		TotalRequested: len(members),
		SessionResults: make(map[uuid.UUID]*SessionTransferResult, len(ids)),
		Failed:         []ItemError{},
		Deferred:       plan.Deferred,
	}
	for _, a := range plan.Assignments {
		out.SessionResults[a.SessionID] = &SessionTransferResult{Assigned: len(a.Items), Deferred: len(a.Deferred)}
	}

	used := make(map[uuid.UUID]int, len(ids))
	defer func() { hold.settle(ctx, used) }()

	if plan.Scheduled() == 0 {
		s.log.Info("transfer batch fully deferred", zap.String("batch_id", ref.BatchID.String()), zap.Int("deferred", len(plan.Deferred)))
		return out, nil
	}

	req := TransferBatchRequest{
		BatchID:       ref.BatchID,
		SourceGroupID: ref.SourceGroupID,
		TargetGroupID: ref.TargetGroupID,
		Strategy:      string(strategy),
	}
	for _, a := range plan.Assignments {
		if len(a.Items) == 0 {
			continue
		}
		ba := BatchAssignment{Session: creds[a.SessionID], Items: make([]BatchItem, len(a.Items))}
		for i, it := range a.Items {
			ba.Items[i] = BatchItem{MemberID: it.Target, DelaySeconds: it.Delay.Seconds()}
		}
		req.Assignments = append(req.Assignments, ba)
	}

	res, callErr := s.backend.TransferBatch(ctx, req)
	if callErr != nil {
		s.log.Warn("transfer batch call failed",
			zap.String("batch_id", ref.BatchID.String()),
			zap.Int("scheduled", plan.Scheduled()),
			zap.Error(callErr),
		)
	}
	reported := indexBatchResults(res)

	at := s.now().UTC()
	recordCtx := context.WithoutCancel(ctx)
	for _, a := range plan.Assignments {
		sr := out.SessionResults[a.SessionID]
		for _, it := range a.Items {
			r := ItemResult{Target: it.Target, SessionID: a.SessionID, At: at}
			switch {
			case callErr != nil:
				r.Err = callErr
			default:
				r.Err = batchItemErr(reported, a.SessionID, it.Target)
			}
			_ = s.ledger.RecordTransfer(recordCtx, ref, r)

			if r.OK() {
				sr.Transferred++
				out.TotalTransferred++
			} else {
				sr.Failed++
				out.TotalFailed++
				out.Failed = append(out.Failed, itemError(r))
			}
		}
		if callErr == nil {
			used[a.SessionID] = len(a.Items)
		}
	}

	if res != nil && (res.TotalTransferred != out.TotalTransferred || res.TotalFailed != out.TotalFailed) {
		s.log.Warn("transfer batch aggregate disagrees with item results",
			zap.String("batch_id", ref.BatchID.String()),
			zap.Int("reported_transferred", res.TotalTransferred),
			zap.Int("reported_failed", res.TotalFailed),
			zap.Int("items_transferred", out.TotalTransferred),
			zap.Int("items_failed", out.TotalFailed),
		)
	}

	s.finish(ctx, ref, out.Strategy, len(ids), out.TotalRequested, out.TotalTransferred, out.TotalFailed, len(out.Deferred))
	return out, nil
}

type batchKey struct {
	session uuid.UUID
	member  string
}

func indexBatchResults(res *TransferBatchResult) map[batchKey]BatchItemResult {
	if res == nil {
		return nil
	}
	out := make(map[batchKey]BatchItemResult, len(res.Results))
	for _, r := range res.Results {
		out[batchKey{r.SessionID, r.MemberID}] = r
	}
	return out
}

func batchItemErr(reported map[batchKey]BatchItemResult, sessionID uuid.UUID, member string) error {
	r, ok := reported[batchKey{sessionID, member}]
	if !ok {
		return &BackendError{Op: "transfer batch", Kind: ErrRemoteRejected, Message: "no result reported for member"}
	}
	if r.Success {
		return nil
	}
	return &BackendError{Op: "transfer batch", Kind: classifyCode(r.Code), Message: r.Error}
}

func (s *TransferService) finish(ctx context.Context, ref TransferRef, strategy string, sessions, requested, transferred, failed, deferred int) {
	userID := ref.UserID
	batchID := ref.BatchID
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   models.ActorUser,
		Action:      models.AuditTransferBatch,
		EntityType:  models.EntityTransferBatch,
		EntityID:    &batchID,
		Meta: map[string]any{
			"source_group_id": ref.SourceGroupID,
			"target_group_id": ref.TargetGroupID,
			"strategy":        strategy,
			"sessions":        sessions,
			"requested":       requested,
			"transferred":     transferred,
			"failed":          failed,
			"deferred":        deferred,
		},
	})
	_ = s.publisher.Publish(ctx, events.StreamTransfer, events.Event{
		Type: events.EventTransferBatchCompleted,
		Payload: map[string]any{
			"batch_id":    batchID.String(),
			"user_id":     userID.String(),
			"transferred": transferred,
			"failed":      failed,
			"deferred":    deferred,
		},
	})
	s.log.Info("transfer batch finished",
		zap.String("batch_id", batchID.String()),
		zap.String("strategy", strategy),
		zap.Int("requested", requested),
		zap.Int("transferred", transferred),
		zap.Int("failed", failed),
		zap.Int("deferred", deferred),
	)
}

// validateTransfer returns the trimmed group ids and the deduplicated members.
func validateTransfer(source, target string, memberIDs []string) (string, string, []string, error) {
	source, target = strings.TrimSpace(source), strings.TrimSpace(target)
	if source == "" || target == "" {
		return "", "", nil, validationError("source_group_id and target_group_id are required")
	}
	if source == target {
		return "", "", nil, validationError("source and target group must differ")
	}
	members := uniqueStrings(memberIDs)
	if len(members) == 0 {
		return "", "", nil, validationError("member_ids is required")
	}
	return source, target, members, nil
}
