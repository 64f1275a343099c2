package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/scribe/internal/config"
	"github.com/BradenHooton/scribe/internal/models"
	"github.com/BradenHooton/scribe/internal/phi"
	"github.com/google/uuid"
)

// memState is the data held by the in-memory store. It is cloned before each
// transaction and restored when the transaction fails.
type memState struct {
	users     map[string]*models.UserAccount
	trials    []*models.TrialGrant
	campaigns map[string]*models.Campaign
	audit     []*models.AuditLogEntry
}

func (s *memState) clone() *memState {
	c := &memState{
		users:     make(map[string]*models.UserAccount, len(s.users)),
		trials:    make([]*models.TrialGrant, len(s.trials)),
		campaigns: make(map[string]*models.Campaign, len(s.campaigns)),
		audit:     make([]*models.AuditLogEntry, len(s.audit)),
	}
	for id, u := range s.users {
		cp := *u
		c.users[id] = &cp
	}
	for i, g := range s.trials {
		cp := *g
		c.trials[i] = &cp
	}
	for id, camp := range s.campaigns {
		cp := *camp
		c.campaigns[id] = &cp
	}
	for i, e := range s.audit {
		cp := *e
		c.audit[i] = &cp
	}
	return c
}

// MemStore is an in-memory Transactor for service tests. Failure hooks let
// tests inject errors at specific points inside a transaction.
type MemStore struct {
	mu    sync.Mutex
	state *memState

	AuditCreateErr  error
	BeforeUserWrite func(state *memState, userID string)
	UserWriteErr    func(userID string) error
	Transactions    int
}

func NewMemStore() *MemStore {
	return &MemStore{state: &memState{
		users:     map[string]*models.UserAccount{},
		campaigns: map[string]*models.Campaign{},
	}}
}

func (m *MemStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Transactions++
	snapshot := m.state.clone()
	err := fn(ctx, Repos{
		Users:     &memUsers{m},
		Trials:    &memTrials{m},
		Campaigns: &memCampaigns{m},
		Audit:     &memAudit{m},
	})
	if err != nil {
		m.state = snapshot
	}
	return err
}

// AddUser seeds an account and returns its id.
func (m *MemStore) AddUser(u models.UserAccount) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.Tier == "" {
		u.Tier = models.TierFree
	}
	if u.Version == 0 {
		u.Version = 1
	}
	m.state.users[u.ID] = &u
	return u.ID
}

func (m *MemStore) User(id string) *models.UserAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// AddCampaign seeds a campaign and returns its id.
func (m *MemStore) AddCampaign(c models.Campaign) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Version == 0 {
		c.Version = 1
	}
	m.state.campaigns[c.ID] = &c
	return c.ID
}

func (m *MemStore) Campaign(id string) *models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.campaigns[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// AddTrial seeds a trial grant.
func (m *MemStore) AddTrial(g models.TrialGrant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	m.state.trials = append(m.state.trials, &g)
}

func (m *MemStore) Trials(userID string) []*models.TrialGrant {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TrialGrant
	for _, g := range m.state.trials {
		if g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemStore) AuditEntries() []*models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditLogEntry, len(m.state.audit))
	for i, e := range m.state.audit {
		cp := *e
		out[i] = &cp
	}
	return out
}

type memUsers struct{ m *MemStore }

func (r *memUsers) GetByID(_ context.Context, id string) (*models.UserAccount, error) {
	u, ok := r.m.state.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) UpdateLifecycle(_ context.Context, user *models.UserAccount) (*models.UserAccount, error) {
	if r.m.BeforeUserWrite != nil {
		r.m.BeforeUserWrite(r.m.state, user.ID)
	}
	if r.m.UserWriteErr != nil {
		if err := r.m.UserWriteErr(user.ID); err != nil {
			return nil, err
		}
	}
	stored, ok := r.m.state.users[user.ID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if stored.Version != user.Version {
		return nil, models.ErrConflict
	}
	next := *user
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	r.m.state.users[user.ID] = &next
	cp := next
	return &cp, nil
}

func (r *memUsers) ListDueForPurge(_ context.Context, now time.Time, after *models.PurgeCursor, limit int) ([]*models.UserAccount, error) {
	less := func(at time.Time, id string, than models.PurgeCursor) bool {
		return at.Before(than.ScheduledAt) || (at.Equal(than.ScheduledAt) && id < than.ID)
	}

	var out []*models.UserAccount
	for _, u := range r.m.state.users {
		if u.DeletedAt != nil || u.DeletionScheduledAt == nil || u.DeletionScheduledAt.After(now) {
			continue
		}
		if after != nil && !less(after.ScheduledAt, after.ID, models.PurgeCursor{ScheduledAt: *u.DeletionScheduledAt, ID: u.ID}) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return less(*out[i].DeletionScheduledAt, out[i].ID,
			models.PurgeCursor{ScheduledAt: *out[j].DeletionScheduledAt, ID: out[j].ID})
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTrials struct{ m *MemStore }

func (r *memTrials) ListByUser(_ context.Context, userID string) ([]*models.TrialGrant, error) {
	out := make([]*models.TrialGrant, 0)
	for i := len(r.m.state.trials) - 1; i >= 0; i-- {
		if g := r.m.state.trials[i]; g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTrials) Create(_ context.Context, grant *models.TrialGrant) (*models.TrialGrant, error) {
	g := *grant
	g.ID = uuid.NewString()
	g.CreatedAt = time.Now().UTC()
	r.m.state.trials = append(r.m.state.trials, &g)
	cp := g
	return &cp, nil
}

type memCampaigns struct{ m *MemStore }

func (r *memCampaigns) GetByID(_ context.Context, id string) (*models.Campaign, error) {
	c, ok := r.m.state.campaigns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCampaigns) sorted(keep func(*models.Campaign) bool) []*models.Campaign {
	out := make([]*models.Campaign, 0)
	for _, c := range r.m.state.campaigns {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.After(out[j].StartsAt) })
	return out
}

func (r *memCampaigns) List(context.Context) ([]*models.Campaign, error) {
	return r.sorted(func(*models.Campaign) bool { return true }), nil
}

func (r *memCampaigns) ListRunning(_ context.Context, now time.Time) ([]*models.Campaign, error) {
	return r.sorted(func(c *models.Campaign) bool { return c.IsRunning(now) }), nil
}

func (r *memCampaigns) NameExists(_ context.Context, name, excludeID string) (bool, error) {
	for id, c := range r.m.state.campaigns {
		if id != excludeID && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCampaigns) Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	if exists, _ := r.NameExists(ctx, c.Name, ""); exists {
		return nil, models.ErrDuplicateName
	}
	created := *c
	created.ID = uuid.NewString()
	created.Version = 1
	created.CreatedAt = time.Now().UTC()
	r.m.state.campaigns[created.ID] = &created
	cp := created
	return &cp, nil
}

func (r *memCampaigns) Update(_ context.Context, c *models.Campaign) (*models.Campaign, error) {
	stored, ok := r.m.state.campaigns[c.ID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if stored.Version != c.Version {
		return nil, models.ErrConflict
	}
	next := *stored
	next.Name, next.TrialTier, next.TrialDays = c.Name, c.TrialTier, c.TrialDays
	next.StartsAt, next.EndsAt, next.IsActive = c.StartsAt, c.EndsAt, c.IsActive
	next.Version++
	r.m.state.campaigns[c.ID] = &next
	cp := next
	return &cp, nil
}

func (r *memCampaigns) bump(id string, f func(c *models.Campaign)) (*models.Campaign, error) {
	c, ok := r.m.state.campaigns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	f(c)
	c.Version++
	cp := *c
	return &cp, nil
}

func (r *memCampaigns) IncrementSignups(_ context.Context, id string) (*models.Campaign, error) {
	return r.bump(id, func(c *models.Campaign) { c.SignupsCount++ })
}

func (r *memCampaigns) IncrementConversions(_ context.Context, id string) (*models.Campaign, error) {
	return r.bump(id, func(c *models.Campaign) { c.ConversionsCount++ })
}

func (r *memCampaigns) Delete(_ context.Context, id string, version int64) error {
	c, ok := r.m.state.campaigns[id]
	if !ok {
		return models.ErrNotFound
	}
	if c.SignupsCount > 0 {
		return models.ErrHasSignups
	}
	if c.Version != version {
		return models.ErrConflict
	}
	delete(r.m.state.campaigns, id)
	return nil
}

type memAudit struct{ m *MemStore }

func (r *memAudit) Create(_ context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error) {
	if r.m.AuditCreateErr != nil {
		return nil, r.m.AuditCreateErr
	}
	e := *entry
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	r.m.state.audit = append(r.m.state.audit, &e)
	cp := e
	return &cp, nil
}

// MockPHIScorer implements PHIScorer for testing
type MockPHIScorer struct {
	ScoreFunc func(ctx context.Context, text string) (phi.Result, error)
}

func (m *MockPHIScorer) Score(ctx context.Context, text string) (phi.Result, error) {
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, text)
	}
	return phi.Result{}, nil
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	SendDeletionNoticeFunc func(ctx context.Context, email string, scheduledAt time.Time) error
	Sent                   []string
}

func (m *MockNotifier) SendDeletionNotice(ctx context.Context, email string, scheduledAt time.Time) error {
	m.Sent = append(m.Sent, email)
	if m.SendDeletionNoticeFunc != nil {
		return m.SendDeletionNoticeFunc(ctx, email, scheduledAt)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLifecycleConfig() config.LifecycleConfig {
	return config.DefaultLifecycleConfig()
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
