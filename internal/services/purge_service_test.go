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

func TestPurgeService_PurgeDue(t *testing.T) {
	store := NewMemStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := NewPurgeService(store, NewAuditLogger(&MockPHIScorer{}, testLogger()), testLogger())
	svc.now = fixedClock(now)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	dueID := store.AddUser(models.UserAccount{Email: "due@example.com", DeletionScheduledAt: &past, Suspended: true})
	laterID := store.AddUser(models.UserAccount{Email: "later@example.com", DeletionScheduledAt: &future})
	keptID := store.AddUser(models.UserAccount{Email: "kept@example.com"})

	result, err := svc.PurgeDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)

	purged := store.User(dueID)
	require.NotNil(t, purged.DeletedAt)
	assert.Equal(t, models.AccountStatusDeleted, purged.Status())
	assert.Nil(t, store.User(laterID).DeletedAt)
	assert.Nil(t, store.User(keptID).DeletedAt)

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionAccountPurged, entries[0].Action)
	assert.Nil(t, entries[0].ActorID)
	assert.Equal(t, dueID, *entries[0].TargetUserID)

	again, err := svc.PurgeDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, again.Purged, "tombstones are not purged twice")
}

func TestPurgeService_SkipsCancelledDeletion(t *testing.T) {
	store := NewMemStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := NewPurgeService(store, NewAuditLogger(&MockPHIScorer{}, testLogger()), testLogger())
	svc.now = fixedClock(now)

	past := now.Add(-time.Hour)
	userID := store.AddUser(models.UserAccount{Email: "due@example.com", DeletionScheduledAt: &past})

	// an admin cancels between listing and tombstoning
	store.BeforeUserWrite = func(state *memState, id string) {
		state.users[id].DeletionScheduledAt = nil
		state.users[id].Version++
	}

	result, err := svc.PurgeDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, result.Purged)
	assert.Equal(t, 1, result.Skipped)
	assert.Nil(t, store.User(userID).DeletedAt)
	assert.Empty(t, store.AuditEntries())
}

func TestPurgeService_FailureDoesNotStopBatch(t *testing.T) {
	store := NewMemStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := NewPurgeService(store, NewAuditLogger(&MockPHIScorer{}, testLogger()), testLogger())
	svc.now = fixedClock(now)

	first := now.Add(-2 * time.Hour)
	second := now.Add(-time.Hour)
	store.AddUser(models.UserAccount{Email: "a@example.com", DeletionScheduledAt: &first})
	store.AddUser(models.UserAccount{Email: "b@example.com", DeletionScheduledAt: &second})
	store.AuditCreateErr = errors.New("audit store down")

	result, err := svc.PurgeDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Purged)
}

func TestPurgeService_FailingAccountsDoNotStarveLaterOnes(t *testing.T) {
	store := NewMemStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := NewPurgeService(store, NewAuditLogger(&MockPHIScorer{}, testLogger()), testLogger())
	svc.now = fixedClock(now)

	oldest := now.Add(-3 * time.Hour)
	older := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Hour)
	stuckA := store.AddUser(models.UserAccount{Email: "a@example.com", DeletionScheduledAt: &oldest})
	stuckB := store.AddUser(models.UserAccount{Email: "b@example.com", DeletionScheduledAt: &older})
	dueID := store.AddUser(models.UserAccount{Email: "c@example.com", DeletionScheduledAt: &recent})

	store.UserWriteErr = func(userID string) error {
		if userID == stuckA || userID == stuckB {
			return errors.New("row locked by legal hold trigger")
		}
		return nil
	}

	for run := 0; run < 2; run++ {
		result, err := svc.PurgeDue(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Failed, "run %d", run)
	}

	assert.NotNil(t, store.User(dueID).DeletedAt, "account behind a full page of failures is purged")
	assert.Nil(t, store.User(stuckA).DeletedAt)
	assert.Nil(t, store.User(stuckB).DeletedAt)
	require.Len(t, store.AuditEntries(), 1)
	assert.Equal(t, dueID, *store.AuditEntries()[0].TargetUserID)
}

func TestPurgeService_PagesThroughAllDueAccounts(t *testing.T) {
	store := NewMemStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := NewPurgeService(store, NewAuditLogger(&MockPHIScorer{}, testLogger()), testLogger())
	svc.now = fixedClock(now)

	same := now.Add(-time.Hour)
	for i := 0; i < 5; i++ {
		store.AddUser(models.UserAccount{Email: "due@example.com", DeletionScheduledAt: &same})
	}

	result, err := svc.PurgeDue(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Purged)
	assert.Len(t, store.AuditEntries(), 5)
}

func TestPurgeService_ScorerFailureStopsRun(t *testing.T) {
	store := NewMemStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := NewPurgeService(store, NewAuditLogger(&MockPHIScorer{
		ScoreFunc: func(context.Context, string) (phi.Result, error) {
			return phi.Result{}, errors.New("scorer unavailable")
		},
	}, testLogger()), testLogger())
	svc.now = fixedClock(now)

	past := now.Add(-time.Hour)
	id := store.AddUser(models.UserAccount{Email: "due@example.com", DeletionScheduledAt: &past})

	_, err := svc.PurgeDue(context.Background(), 10)
	require.Error(t, err)
	assert.Nil(t, store.User(id).DeletedAt)
	assert.Empty(t, store.AuditEntries())
}
