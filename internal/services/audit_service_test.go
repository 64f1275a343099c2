package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/scribe/internal/models"
	"github.com/BradenHooton/scribe/internal/phi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_ScoreAndAppend(t *testing.T) {
	tests := []struct {
		name  string
		score int
		phi   bool
		want  models.RiskLevel
	}{
		{"no phi", 0, false, models.RiskLevelNone},
		{"low", 5, true, models.RiskLevelLow},
		{"medium", 6, true, models.RiskLevelMedium},
		{"high", 16, true, models.RiskLevelHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemStore()
			logger := NewAuditLogger(&MockPHIScorer{
				ScoreFunc: func(context.Context, string) (phi.Result, error) {
					return phi.Result{ContainsPHI: tt.phi, Score: tt.score}, nil
				},
			}, testLogger())

			scored, err := logger.Score(context.Background(), models.AuditActionSuspend, " abuse report ")
			require.NoError(t, err)
			assert.Equal(t, "abuse report", scored.Text)

			var created *models.AuditLogEntry
			err = store.WithinTransaction(context.Background(), func(ctx context.Context, repos Repos) error {
				var err error
				created, err = logger.Append(ctx, repos.Audit, newAuditEntry(models.Actor{ID: "a1"}, models.AuditActionSuspend), scored)
				return err
			})
			require.NoError(t, err)

			assert.Equal(t, "abuse report", created.Justification)
			assert.Equal(t, tt.want, created.RiskLevel)
			assert.Equal(t, tt.score, created.PHIScore)
			assert.Equal(t, tt.phi, created.ContainsPHI)
			assert.True(t, created.Success)
		})
	}
}

func TestAuditLogger_Score_RequiresJustification(t *testing.T) {
	called := false
	logger := NewAuditLogger(&MockPHIScorer{
		ScoreFunc: func(context.Context, string) (phi.Result, error) {
			called = true
			return phi.Result{}, nil
		},
	}, testLogger())

	_, err := logger.Score(context.Background(), models.AuditActionSuspend, "   ")
	assert.ErrorIs(t, err, models.ErrInvalidReason)
	assert.False(t, called)
}

func TestAuditLogger_Score_ScorerError(t *testing.T) {
	logger := NewAuditLogger(&MockPHIScorer{
		ScoreFunc: func(context.Context, string) (phi.Result, error) {
			return phi.Result{}, errors.New("scorer timeout")
		},
	}, testLogger())

	scored, err := logger.Score(context.Background(), models.AuditActionSuspend, "abuse report")
	assert.Error(t, err)
	assert.Nil(t, scored)
}

func TestAuditLogger_Append_RequiresScoredJustification(t *testing.T) {
	store := NewMemStore()
	logger := NewAuditLogger(nil, testLogger())

	err := store.WithinTransaction(context.Background(), func(ctx context.Context, repos Repos) error {
		_, err := logger.Append(ctx, repos.Audit, newAuditEntry(models.Actor{}, models.AuditActionSuspend), nil)
		return err
	})
	assert.ErrorIs(t, err, models.ErrInvalidReason)
	assert.Empty(t, store.AuditEntries())
}

func TestAuditLogger_Append_PropagatesStoreErrors(t *testing.T) {
	store := NewMemStore()
	store.AuditCreateErr = errors.New("insert failed")
	logger := NewAuditLogger(nil, testLogger())
	scored := &ScoredJustification{Text: "abuse report"}

	err := store.WithinTransaction(context.Background(), func(ctx context.Context, repos Repos) error {
		_, err := logger.Append(ctx, repos.Audit, newAuditEntry(models.Actor{}, models.AuditActionSuspend), scored)
		return err
	})
	assert.EqualError(t, err, "insert failed")
}

func TestNewAuditEntry_SystemActor(t *testing.T) {
	entry := newAuditEntry(models.Actor{}, models.AuditActionAccountPurged)
	assert.Nil(t, entry.ActorID)
	assert.Nil(t, entry.IPAddress)
	assert.Nil(t, entry.UserAgent)
}

// The PHI scorer is an external call; no mutation may wait on it while the
// store is held by a transaction.
func TestMutations_ScoreOutsideTransaction(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		run  func(t *testing.T, store *MemStore, audit *AuditLogger, admin models.Actor, userID string) error
	}{
		{
			name: "suspend",
			run: func(t *testing.T, store *MemStore, audit *AuditLogger, admin models.Actor, userID string) error {
				svc := NewLifecycleService(store, audit, &MockNotifier{}, testLifecycleConfig(), testLogger())
				_, err := svc.Suspend(context.Background(), admin, userID, "abuse report")
				return err
			},
		},
		{
			name: "change role",
			run: func(t *testing.T, store *MemStore, audit *AuditLogger, admin models.Actor, userID string) error {
				svc := NewLifecycleService(store, audit, &MockNotifier{}, testLifecycleConfig(), testLogger())
				_, err := svc.ChangeRole(context.Background(), admin, userID, models.RoleSupport, "joined support")
				return err
			},
		},
		{
			name: "grant trial",
			run: func(t *testing.T, store *MemStore, audit *AuditLogger, admin models.Actor, userID string) error {
				svc := NewTrialService(store, audit, testLifecycleConfig(), testLogger())
				_, err := svc.GrantTrial(context.Background(), admin, userID, models.TierPro, 14, "sales request", false)
				return err
			},
		},
		{
			name: "toggle campaign without reason",
			run: func(t *testing.T, store *MemStore, audit *AuditLogger, admin models.Actor, _ string) error {
				id := store.AddCampaign(models.Campaign{Name: "Launch", TrialTier: models.TierPro, TrialDays: 7, StartsAt: now, IsActive: true})
				svc := NewCampaignService(store, audit, testLogger())
				_, err := svc.Toggle(context.Background(), admin, id, false, "")
				return err
			},
		},
		{
			name: "delete campaign",
			run: func(t *testing.T, store *MemStore, audit *AuditLogger, admin models.Actor, _ string) error {
				id := store.AddCampaign(models.Campaign{Name: "Quiet", TrialTier: models.TierPro, TrialDays: 7, StartsAt: now})
				svc := NewCampaignService(store, audit, testLogger())
				return svc.Delete(context.Background(), admin, id, "")
			},
		},
		{
			name: "signup campaign",
			run: func(t *testing.T, store *MemStore, audit *AuditLogger, _ models.Actor, userID string) error {
				store.AddCampaign(models.Campaign{Name: "Launch", TrialTier: models.TierPro, TrialDays: 7, StartsAt: now.Add(-time.Hour), IsActive: true})
				svc := NewCampaignService(store, audit, testLogger())
				svc.now = fixedClock(now)
				grant, err := svc.ApplySignupCampaign(context.Background(), userID)
				require.NotNil(t, grant)
				return err
			},
		},
		{
			name: "purge",
			run: func(t *testing.T, store *MemStore, audit *AuditLogger, _ models.Actor, _ string) error {
				due := now.Add(-time.Hour)
				store.AddUser(models.UserAccount{Email: "due@example.com", DeletionScheduledAt: &due})
				svc := NewPurgeService(store, audit, testLogger())
				svc.now = fixedClock(now)
				result, err := svc.PurgeDue(context.Background(), 10)
				require.NotNil(t, result)
				assert.Equal(t, 1, result.Purged)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemStore()
			calls, insideTx := 0, 0
			audit := NewAuditLogger(&MockPHIScorer{
				ScoreFunc: func(context.Context, string) (phi.Result, error) {
					calls++
					if store.mu.TryLock() {
						store.mu.Unlock()
					} else {
						insideTx++
					}
					return phi.Result{}, nil
				},
			}, testLogger())

			adminID := store.AddUser(models.UserAccount{Email: "admin@example.com", Role: models.RoleAdmin})
			userID := store.AddUser(models.UserAccount{Email: "member@example.com"})

			require.NoError(t, tt.run(t, store, audit, models.Actor{ID: adminID}, userID))
			assert.Positive(t, calls)
			assert.Zero(t, insideTx, "scorer called while a transaction held the store")
			assert.NotEmpty(t, store.AuditEntries())
		})
	}
}
