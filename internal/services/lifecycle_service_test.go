package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/scribe/internal/models"
	"github.com/BradenHooton/scribe/internal/phi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	store    *MemStore
	notifier *MockNotifier
	svc      *LifecycleService
	admin    models.Actor
	super    models.Actor
	userID   string
	now      time.Time
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	store := NewMemStore()
	notifier := &MockNotifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc := NewLifecycleService(store, NewAuditLogger(&MockPHIScorer{}, testLogger()), notifier, testLifecycleConfig(), testLogger())
	svc.now = fixedClock(now)

	adminID := store.AddUser(models.UserAccount{Email: "admin@example.com", Role: models.RoleAdmin})
	superID := store.AddUser(models.UserAccount{Email: "root@example.com", Role: models.RoleSuperAdmin})
	userID := store.AddUser(models.UserAccount{Email: "jane@example.com", Tier: models.TierPro})

	return &lifecycleFixture{
		store:    store,
		notifier: notifier,
		svc:      svc,
		admin:    models.Actor{ID: adminID, IPAddress: "10.0.0.1", UserAgent: "test"},
		super:    models.Actor{ID: superID},
		userID:   userID,
		now:      now,
	}
}

func TestLifecycleService_SuspendThenUnsuspend(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	suspended, err := f.svc.Suspend(ctx, f.admin, f.userID, "chargeback fraud")
	require.NoError(t, err)
	assert.True(t, suspended.Suspended)
	assert.Equal(t, models.AccountStatusSuspended, suspended.Status())

	restored, err := f.svc.Unsuspend(ctx, f.admin, f.userID, "dispute resolved")
	require.NoError(t, err)
	assert.False(t, restored.Suspended)
	assert.Equal(t, models.RoleUser, restored.Role)
	assert.Equal(t, models.TierPro, restored.Tier)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditActionSuspend, entries[0].Action)
	assert.Equal(t, "chargeback fraud", entries[0].Justification)
	assert.Equal(t, f.admin.ID, *entries[0].ActorID)
	assert.Equal(t, f.userID, *entries[0].TargetUserID)
	assert.Equal(t, "10.0.0.1", *entries[0].IPAddress)
	assert.Equal(t, models.AuditActionUnsuspend, entries[1].Action)
}

func TestLifecycleService_ScheduleThenCancelDeletion(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	scheduled, err := f.svc.ScheduleDeletion(ctx, f.admin, f.userID, "user requested closure", 14)
	require.NoError(t, err)
	require.NotNil(t, scheduled.DeletionScheduledAt)
	assert.Equal(t, f.now.Add(14*24*time.Hour), *scheduled.DeletionScheduledAt)
	assert.False(t, scheduled.Suspended, "scheduling deletion must not suspend")
	assert.Equal(t, []string{"jane@example.com"}, f.notifier.Sent)

	cancelled, err := f.svc.CancelDeletion(ctx, f.admin, f.userID, "user changed mind")
	require.NoError(t, err)
	assert.Nil(t, cancelled.DeletionScheduledAt)
	assert.Equal(t, models.AccountStatusActive, cancelled.Status())

	// lifecycle continues as if never scheduled
	_, err = f.svc.Suspend(ctx, f.admin, f.userID, "abuse report")
	require.NoError(t, err)
	assert.Len(t, f.store.AuditEntries(), 3)
}

func TestLifecycleService_SuspendedAndScheduledAreIndependent(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Suspend(ctx, f.admin, f.userID, "abuse report")
	require.NoError(t, err)
	both, err := f.svc.ScheduleDeletion(ctx, f.admin, f.userID, "abuse confirmed", 30)
	require.NoError(t, err)

	assert.True(t, both.Suspended)
	assert.NotNil(t, both.DeletionScheduledAt)
	assert.Equal(t, models.AccountStatusScheduledForDeletion, both.Status())

	cancelled, err := f.svc.CancelDeletion(ctx, f.admin, f.userID, "appeal accepted")
	require.NoError(t, err)
	assert.True(t, cancelled.Suspended, "cancelling deletion leaves suspension alone")
}

func TestLifecycleService_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(f *lifecycleFixture)
		call    func(f *lifecycleFixture) error
		wantErr error
	}{
		{
			name: "short reason",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.Suspend(ctx, f.admin, f.userID, "  bad ")
				return err
			},
			wantErr: models.ErrInvalidReason,
		},
		{
			name: "already suspended",
			setup: func(f *lifecycleFixture) {
				u := f.store.User(f.userID)
				u.Suspended = true
				f.store.state.users[f.userID] = u
			},
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.Suspend(ctx, f.admin, f.userID, "abuse report")
				return err
			},
			wantErr: models.ErrAlreadySuspended,
		},
		{
			name: "not suspended",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.Unsuspend(ctx, f.admin, f.userID, "restore access")
				return err
			},
			wantErr: models.ErrNotSuspended,
		},
		{
			name: "not scheduled",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.CancelDeletion(ctx, f.admin, f.userID, "never mind")
				return err
			},
			wantErr: models.ErrNotScheduled,
		},
		{
			name: "grace days out of range",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.ScheduleDeletion(ctx, f.admin, f.userID, "closure request", 91)
				return err
			},
			wantErr: models.ErrInvalidDuration,
		},
		{
			name: "same role",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.ChangeRole(ctx, f.admin, f.userID, models.RoleUser, "no change")
				return err
			},
			wantErr: models.ErrSameRole,
		},
		{
			name: "same role reported before short reason",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.ChangeRole(ctx, f.admin, f.userID, models.RoleUser, "no")
				return err
			},
			wantErr: models.ErrSameRole,
		},
		{
			name: "unknown role",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.ChangeRole(ctx, f.admin, f.userID, "owner", "promotion")
				return err
			},
			wantErr: models.ErrInvalidRole,
		},
		{
			name: "admin cannot grant super admin",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.ChangeRole(ctx, f.admin, f.userID, models.RoleSuperAdmin, "needs full access")
				return err
			},
			wantErr: models.ErrForbidden,
		},
		{
			name: "self modification",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.Suspend(ctx, f.admin, f.admin.ID, "taking a break")
				return err
			},
			wantErr: models.ErrForbidden,
		},
		{
			name: "tombstoned account",
			setup: func(f *lifecycleFixture) {
				u := f.store.User(f.userID)
				deleted := f.now.Add(-time.Hour)
				u.DeletedAt = &deleted
				f.store.state.users[f.userID] = u
			},
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.Suspend(ctx, f.admin, f.userID, "abuse report")
				return err
			},
			wantErr: models.ErrAlreadyDeleted,
		},
		{
			name: "unknown user",
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.Suspend(ctx, f.admin, "missing", "abuse report")
				return err
			},
			wantErr: models.ErrNotFound,
		},
		{
			name: "non admin actor",
			call: func(f *lifecycleFixture) error {
				other := f.store.AddUser(models.UserAccount{Email: "support@example.com", Role: models.RoleSupport})
				_, err := f.svc.Suspend(ctx, models.Actor{ID: other}, f.userID, "abuse report")
				return err
			},
			wantErr: models.ErrForbidden,
		},
		{
			name: "concurrent modification",
			setup: func(f *lifecycleFixture) {
				f.store.BeforeUserWrite = func(state *memState, userID string) {
					state.users[userID].Version++
				}
			},
			call: func(f *lifecycleFixture) error {
				_, err := f.svc.Suspend(ctx, f.admin, f.userID, "abuse report")
				return err
			},
			wantErr: models.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLifecycleFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			before := f.store.User(f.userID)

			err := tt.call(f)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.store.AuditEntries(), "rejected mutations write no audit entry")

			after := f.store.User(f.userID)
			assert.Equal(t, before.Suspended, after.Suspended)
			assert.Equal(t, before.Role, after.Role)
			assert.Equal(t, before.DeletionScheduledAt, after.DeletionScheduledAt)
		})
	}
}

func TestLifecycleService_ChangeRole(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	updated, err := f.svc.ChangeRole(ctx, f.admin, f.userID, models.RoleSupport, "joined support team")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupport, updated.Role)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionRoleChange, entries[0].Action)
	assert.Equal(t, models.RoleUser, entries[0].Metadata["old_role"])
	assert.Equal(t, models.RoleSupport, entries[0].Metadata["new_role"])

	promoted, err := f.svc.ChangeRole(ctx, f.super, f.userID, models.RoleSuperAdmin, "on-call rotation owner")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, promoted.Role)

	_, err = f.svc.ChangeRole(ctx, f.admin, f.userID, models.RoleUser, "rotation ended")
	assert.ErrorIs(t, err, models.ErrForbidden, "only a super admin can revoke super_admin")
}

func TestLifecycleService_AuditFailureRollsBackState(t *testing.T) {
	f := newLifecycleFixture(t)
	f.store.AuditCreateErr = errors.New("disk full")

	_, err := f.svc.Suspend(context.Background(), f.admin, f.userID, "abuse report")
	require.Error(t, err)

	assert.False(t, f.store.User(f.userID).Suspended)
	assert.Equal(t, int64(1), f.store.User(f.userID).Version)
	assert.Empty(t, f.store.AuditEntries())
}

func TestLifecycleService_ScorerFailureRollsBackState(t *testing.T) {
	f := newLifecycleFixture(t)
	f.svc.audit = NewAuditLogger(&MockPHIScorer{
		ScoreFunc: func(context.Context, string) (phi.Result, error) {
			return phi.Result{}, errors.New("scorer timeout")
		},
	}, testLogger())

	_, err := f.svc.ScheduleDeletion(context.Background(), f.admin, f.userID, "closure request", 7)
	require.Error(t, err)

	assert.Nil(t, f.store.User(f.userID).DeletionScheduledAt)
	assert.Empty(t, f.notifier.Sent, "no notice for a change that did not commit")
}

func TestLifecycleService_NotifierFailureKeepsCommittedChange(t *testing.T) {
	f := newLifecycleFixture(t)
	f.notifier.SendDeletionNoticeFunc = func(context.Context, string, time.Time) error {
		return errors.New("ses throttled")
	}

	updated, err := f.svc.ScheduleDeletion(context.Background(), f.admin, f.userID, "closure request", 7)
	require.NoError(t, err)
	assert.NotNil(t, updated.DeletionScheduledAt)
	assert.Len(t, f.store.AuditEntries(), 1)
}

func TestLifecycleService_RecordsPHIRisk(t *testing.T) {
	f := newLifecycleFixture(t)
	f.svc.audit = NewAuditLogger(&MockPHIScorer{
		ScoreFunc: func(_ context.Context, text string) (phi.Result, error) {
			if strings.Contains(text, "diagnosis") {
				return phi.Result{ContainsPHI: true, Score: 16}, nil
			}
			return phi.Result{}, nil
		},
	}, testLogger())

	_, err := f.svc.Suspend(context.Background(), f.admin, f.userID, "uploaded diagnosis records publicly")
	require.NoError(t, err)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].ContainsPHI)
	assert.Equal(t, 16, entries[0].PHIScore)
	assert.Equal(t, models.RiskLevelHigh, entries[0].RiskLevel)
}
