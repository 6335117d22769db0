package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/anassewp/telegram-backend/internal/distribution"
	"github.com/anassewp/telegram-backend/internal/events"
	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/anassewp/telegram-backend/internal/quota"
	"github.com/anassewp/telegram-backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeCampaigns struct {
	mu         sync.Mutex
	items      map[uuid.UUID]models.Campaign
	records    *fakeRecords
	failTo     map[string]error
	beforeCAS  func(ch models.StatusChange)
	refreshErr error
}

func newFakeCampaigns(records *fakeRecords) *fakeCampaigns {
	return &fakeCampaigns{items: map[uuid.UUID]models.Campaign{}, records: records, failTo: map[string]error{}}
}

func (f *fakeCampaigns) Create(_ context.Context, c *models.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.items[c.ID] = *c
	return nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c.SessionIDs = slices.Clone(c.SessionIDs)
	return &c, nil
}

func (f *fakeCampaigns) UpdateStatus(_ context.Context, ch models.StatusChange) error {
	if f.beforeCAS != nil {
		f.beforeCAS(ch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failTo[ch.To]; err != nil {
		return err
	}
	c, ok := f.items[ch.CampaignID]
	if !ok || c.Status != ch.From {
		return repositories.ErrStaleStatus
	}
	c.Status = ch.To
	c.ScheduleAt = ch.ScheduleAt
	c.StartedAt = ch.StartedAt
	c.PausedAt = ch.PausedAt
	c.CompletedAt = ch.CompletedAt
	f.items[c.ID] = c
	return nil
}

func (f *fakeCampaigns) ReserveTargets(_ context.Context, id uuid.UUID, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok || c.Status != models.CampaignStatusActive || c.SentCount+c.FailedCount+c.ReservedTargets+n > c.TotalTargets {
		return repositories.ErrBudgetExhausted
	}
	c.ReservedTargets += n
	f.items[id] = c
	return nil
}

// RefreshCounters holds the campaign lock while counting, like the row lock
// taken by the repository.
func (f *fakeCampaigns) RefreshCounters(_ context.Context, id uuid.UUID, release int) (models.OutcomeCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return models.OutcomeCounts{}, f.refreshErr
	}
	c, ok := f.items[id]
	if !ok {
		return models.OutcomeCounts{}, repositories.ErrNotFound
	}
	counts := f.records.counts(id)
	c.SentCount, c.FailedCount = counts.Succeeded, counts.Failed
	c.ReservedTargets = max(c.ReservedTargets-release, 0)
	f.items[id] = c
	return counts, nil
}

func (f *fakeCampaigns) List(_ context.Context, flt repositories.CampaignFilter) ([]models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Campaign
	for _, c := range f.items {
		if flt.UserID != nil && c.UserID != *flt.UserID {
			continue
		}
		if flt.Status != nil && c.Status != *flt.Status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCampaigns) ListDueScheduled(_ context.Context, now time.Time, _ int) ([]models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Campaign
	for _, c := range f.items {
		if c.Status == models.CampaignStatusScheduled && c.ScheduleAt != nil && !c.ScheduleAt.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) status(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].Status
}

func (f *fakeCampaigns) update(id uuid.UUID, fn func(c *models.Campaign)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.items[id]
	fn(&c)
	f.items[id] = c
}

func (f *fakeCampaigns) setStatus(id uuid.UUID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.items[id]
	c.Status = status
	f.items[id] = c
}

type fakeSessions struct {
	mu    sync.Mutex
	items []models.Session
}

func (f *fakeSessions) add(userID uuid.UUID) models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := models.Session{
		ID:            uuid.New(),
		UserID:        userID,
		Phone:         "+10000000000",
		SessionString: "session-string",
		APIID:         12345,
		APIHash:       "hash",
		Status:        models.SessionStatusActive,
	}
	f.items = append(f.items, s)
	return s
}

func (f *fakeSessions) revoke(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Status = models.SessionStatusRevoked
		}
	}
}

func (f *fakeSessions) ListByIDs(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.items {
		if s.UserID == userID && slices.Contains(ids, s.ID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.items {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeRecords struct {
	mu        sync.Mutex
	messages  []models.MessageRecord
	transfers []models.TransferRecord
}

func (f *fakeRecords) InsertMessage(_ context.Context, m *models.MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeRecords) InsertTransfer(_ context.Context, t *models.TransferRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	f.transfers = append(f.transfers, *t)
	return nil
}

func (f *fakeRecords) counts(campaignID uuid.UUID) models.OutcomeCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := map[string]string{}
	for _, m := range f.messages {
		if m.CampaignID == campaignID {
			latest[m.GroupID] = m.Status
		}
	}
	var c models.OutcomeCounts
	for _, st := range latest {
		if st == models.RecordStatusSent {
			c.Succeeded++
		} else {
			c.Failed++
		}
	}
	return c
}

func (f *fakeRecords) AttemptedGroups(_ context.Context, campaignID uuid.UUID, groupIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if m.CampaignID == campaignID && slices.Contains(groupIDs, m.GroupID) && !slices.Contains(out, m.GroupID) {
			out = append(out, m.GroupID)
		}
	}
	return out, nil
}

func (f *fakeRecords) ListMessages(_ context.Context, campaignID uuid.UUID, _, _ int) ([]models.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MessageRecord
	for _, m := range f.messages {
		if m.CampaignID == campaignID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeBackend struct {
	mu          sync.Mutex
	notified    []string
	notifyErr   map[string]error
	sendErr     map[string]error
	sent        []string
	transferErr map[string]error
	transferred []string
	batchCalls  []TransferBatchRequest
	batchFn     func(req TransferBatchRequest) (*TransferBatchResult, error)
	joinErr     error
	searchLimit int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		notifyErr:   map[string]error{},
		sendErr:     map[string]error{},
		transferErr: map[string]error{},
	}
}

func (f *fakeBackend) NotifyCampaign(_ context.Context, action string, _ CampaignNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, action)
	return f.notifyErr[action]
}

func (f *fakeBackend) SendMessage(_ context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req.GroupID)
	if err := f.sendErr[req.GroupID]; err != nil {
		return nil, err
	}
	return &SendMessageResult{MessageID: "msg-" + req.GroupID}, nil
}

func (f *fakeBackend) TransferMember(_ context.Context, req TransferMemberRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferred = append(f.transferred, req.MemberID)
	return f.transferErr[req.MemberID]
}

func (f *fakeBackend) TransferBatch(_ context.Context, req TransferBatchRequest) (*TransferBatchResult, error) {
	f.mu.Lock()
	f.batchCalls = append(f.batchCalls, req)
	fn := f.batchFn
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	res := &TransferBatchResult{}
	for _, a := range req.Assignments {
		for _, it := range a.Items {
			res.Results = append(res.Results, BatchItemResult{SessionID: a.Session.SessionID, MemberID: it.MemberID, Success: true})
			res.TotalTransferred++
		}
	}
	return res, nil
}

func (f *fakeBackend) JoinGroup(_ context.Context, _ SessionCredentials, groupRef string) (*GroupInfo, error) {
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return &GroupInfo{GroupID: "-100" + groupRef, Title: groupRef, MembersCount: 10}, nil
}

func (f *fakeBackend) SearchGroups(_ context.Context, _ SessionCredentials, query string, limit int) ([]GroupInfo, error) {
	f.mu.Lock()
	f.searchLimit = limit
	f.mu.Unlock()
	return []GroupInfo{{GroupID: "1", Title: query}}, nil
}

func (f *fakeBackend) notifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.notified)
}

type fakeQuota struct {
	mu        sync.Mutex
	remaining map[uuid.UUID]int
	consumed  map[uuid.UUID]int
}

func newFakeQuota() *fakeQuota {
	return &fakeQuota{remaining: map[uuid.UUID]int{}, consumed: map[uuid.UUID]int{}}
}

// Reserve caps only sessions with an explicit budget in remaining. consumed
// holds what was reserved and not released.
func (f *fakeQuota) Reserve(_ context.Context, id uuid.UUID, n, _ int) (int, quota.ReleaseFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	granted := n
	if left, ok := f.remaining[id]; ok {
		granted = max(min(n, left), 0)
		f.remaining[id] = left - granted
	}
	f.consumed[id] += granted
	return granted, func(_ context.Context, unused int) {
		f.mu.Lock()
		defer f.mu.Unlock()
		unused = min(unused, granted)
		f.consumed[id] -= unused
		if _, ok := f.remaining[id]; ok {
			f.remaining[id] += unused
		}
	}
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAudit) Log(_ context.Context, e models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID, _, _ int) ([]models.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditLog
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Action
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, _ string, e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

var errBoom = errors.New("boom")

type testEnv struct {
	userID    uuid.UUID
	campaigns *fakeCampaigns
	sessions  *fakeSessions
	records   *fakeRecords
	backend   *fakeBackend
	quota     *fakeQuota
	audit     *fakeAudit
	publisher *fakePublisher
	campaign  *CampaignService
	transfer  *TransferService
	groups    *GroupService
}

func newTestEnv() *testEnv {
	log := zap.NewNop()
	env := &testEnv{
		userID:    uuid.New(),
		sessions:  &fakeSessions{},
		records:   &fakeRecords{},
		backend:   newFakeBackend(),
		quota:     newFakeQuota(),
		audit:     &fakeAudit{},
		publisher: &fakePublisher{},
	}
	env.campaigns = newFakeCampaigns(env.records)
	registry := NewSessionRegistry(env.sessions, log)
	ledger := NewLedger(env.records, log)
	rollback := NewRollbackController(env.audit, log)
	planner := distribution.NewPlanner(1)
	pacing := Pacing{}

	env.campaign = NewCampaignService(env.campaigns, registry, ledger, env.backend, rollback, planner, env.quota, env.audit, env.publisher, pacing, log)
	env.transfer = NewTransferService(registry, ledger, env.backend, planner, env.quota, env.audit, env.publisher, pacing, log)
	env.groups = NewGroupService(registry, env.backend, log)
	return env
}

// seedCampaign stores a campaign over n fresh active sessions.
func (e *testEnv) seedCampaign(status string, totalTargets, n int) (*models.Campaign, []models.Session) {
	sessions := make([]models.Session, n)
	ids := make([]uuid.UUID, n)
	for i := range sessions {
		sessions[i] = e.sessions.add(e.userID)
		ids[i] = sessions[i].ID
	}
	c := &models.Campaign{
		UserID:       e.userID,
		Name:         "launch",
		SessionIDs:   ids,
		Message:      "hello",
		TotalTargets: totalTargets,
		Status:       status,
	}
	_ = e.campaigns.Create(context.Background(), c)
	return c, sessions
}
