package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/scribe/internal/metrics"
	"github.com/BradenHooton/scribe/internal/models"
)

// PurgeService tombstones accounts whose deletion grace period has elapsed.
// Each account is handled in its own transaction, so one failure does not
// hold back the rest of the batch.
type PurgeService struct {
	tx     Transactor
	audit  *AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewPurgeService creates a new PurgeService
func NewPurgeService(tx Transactor, audit *AuditLogger, logger *slog.Logger) *PurgeService {
	return &PurgeService{
		tx:     tx,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const purgeJustification = "deletion grace period elapsed"

// PurgeResult summarises one run.
type PurgeResult struct {
	Purged  int
	Skipped int
	Failed  int
}

// PurgeDue tombstones every account that is due, listing batchSize at a time.
// Each page starts after the last account of the previous one, so accounts
// that fail are retried on the next run without starving the rest.
func (s *PurgeService) PurgeDue(ctx context.Context, batchSize int) (*PurgeResult, error) {
	now := s.now()
	result := &PurgeResult{}

	var justification *ScoredJustification
	var cursor *models.PurgeCursor
	for {
		var due []*models.UserAccount
		err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
			var err error
			due, err = repos.Users.ListDueForPurge(ctx, now, cursor, batchSize)
			return err
		})
		if err != nil {
			return result, fmt.Errorf("failed to list accounts due for purge: %w", err)
		}
		if len(due) == 0 {
			return result, nil
		}

		if justification == nil {
			justification, err = s.audit.Score(ctx, models.AuditActionAccountPurged, purgeJustification)
			if err != nil {
				return result, err
			}
		}

		for _, candidate := range due {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.purgeCandidate(ctx, candidate.ID, now, justification, result)
		}

		last := due[len(due)-1]
		cursor = &models.PurgeCursor{ScheduledAt: *last.DeletionScheduledAt, ID: last.ID}
		if len(due) < batchSize {
			return result, nil
		}
	}
}

func (s *PurgeService) purgeCandidate(ctx context.Context, userID string, now time.Time, justification *ScoredJustification, result *PurgeResult) {
	err := s.purgeOne(ctx, userID, now, justification)
	metrics.RecordPurge(err)
	switch {
	case err == nil:
		result.Purged++
	case errors.Is(err, models.ErrNotScheduled), errors.Is(err, models.ErrAlreadyDeleted),
		errors.Is(err, models.ErrConflict):
		result.Skipped++
		s.logger.InfoContext(ctx, "purge skipped account",
			slog.String("user_id", userID),
			slog.String("reason", models.CodeOf(err)))
	default:
		result.Failed++
		s.logger.ErrorContext(ctx, "failed to purge account",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}

// purgeOne re-reads the account so a deletion cancelled after listing wins.
func (s *PurgeService) purgeOne(ctx context.Context, userID string, now time.Time, justification *ScoredJustification) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsTombstoned() {
			return models.ErrAlreadyDeleted
		}
		if user.DeletionScheduledAt == nil || user.DeletionScheduledAt.After(now) {
			return models.ErrNotScheduled
		}

		next := *user
		next.DeletedAt = &now
		if _, err := repos.Users.UpdateLifecycle(ctx, &next); err != nil {
			return err
		}

		entry := newAuditEntry(models.Actor{}, models.AuditActionAccountPurged)
		entry.TargetUserID = stringPtr(userID)
		entry.ResourceType = stringPtr(models.AuditResourceTypeUser)
		entry.ResourceID = stringPtr(userID)
		entry.Metadata = models.AuditMetadata{
			"deletion_scheduled_at": user.DeletionScheduledAt.Format(time.RFC3339),
		}
		_, err = s.audit.Append(ctx, repos.Audit, entry, justification)
		return err
	})
}
