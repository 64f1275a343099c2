package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/scribe/internal/config"
	"github.com/BradenHooton/scribe/internal/metrics"
	"github.com/BradenHooton/scribe/internal/models"
)

// TrialService decides whether an admin trial grant may proceed.
//
// A user gets one organic trial. A second one needs force plus a longer
// justification; without force the service answers with a
// NeedsForceConfirmation decision instead of an error so the operator can
// review the history and retry. Campaign grants never count against the rule.
type TrialService struct {
	tx     Transactor
	audit  *AuditLogger
	cfg    config.LifecycleConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewTrialService creates a new TrialService
func NewTrialService(tx Transactor, audit *AuditLogger, cfg config.LifecycleConfig, logger *slog.Logger) *TrialService {
	return &TrialService{
		tx:     tx,
		audit:  audit,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GrantTrial issues a trial of tier for durationDays, or reports that force is required.
func (s *TrialService) GrantTrial(ctx context.Context, actor models.Actor, userID, tier string, durationDays int, reason string, force bool) (*models.TrialDecision, error) {
	if err := s.validate(tier, durationDays, reason, force); err != nil {
		metrics.RecordMutation(models.AuditActionTrialGrant, err)
		logRejection(ctx, s.logger, models.AuditActionTrialGrant, userID, err)
		return nil, err
	}
	if actor.ID == userID {
		err := fmt.Errorf("%w: admins cannot grant themselves a trial", models.ErrForbidden)
		metrics.RecordMutation(models.AuditActionTrialGrant, err)
		return nil, err
	}

	source := models.TrialSourceAdminGranted
	if force {
		source = models.TrialSourceAdminForced
	}

	justification, err := s.audit.Score(ctx, models.AuditActionTrialGrant, reason)
	if err != nil {
		metrics.RecordMutation(models.AuditActionTrialGrant, err)
		logRejection(ctx, s.logger, models.AuditActionTrialGrant, userID, err)
		return nil, err
	}

	var decision *models.TrialDecision
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		if _, err := loadActingAdmin(ctx, repos.Users, actor); err != nil {
			return err
		}

		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsTombstoned() {
			return models.ErrAlreadyDeleted
		}

		history, err := repos.Trials.ListByUser(ctx, userID)
		if err != nil {
			return err
		}

		if models.HasOrganicTrial(history) && !force {
			decision = &models.TrialDecision{
				Outcome: models.TrialOutcomeNeedsForceConfirmation,
				Ineligibility: &models.TrialIneligibility{
					HasUsedTrial: true,
					CanForce:     true,
					History:      history,
				},
			}
			return nil
		}

		now := s.now()
		grant, err := repos.Trials.Create(ctx, &models.TrialGrant{
			UserID:        userID,
			Tier:          tier,
			StartedAt:     now,
			EndsAt:        now.Add(time.Duration(durationDays) * 24 * time.Hour),
			Source:        source,
			Justification: justification.Text,
			GrantedBy:     stringPtr(actor.ID),
		})
		if err != nil {
			return err
		}

		next := *user
		next.Tier = tier
		next.TrialEndsAt = &grant.EndsAt
		if _, err := repos.Users.UpdateLifecycle(ctx, &next); err != nil {
			return err
		}

		entry := newAuditEntry(actor, models.AuditActionTrialGrant)
		entry.TargetUserID = stringPtr(userID)
		entry.ResourceType = stringPtr(models.AuditResourceTypeTrialGrant)
		entry.ResourceID = stringPtr(grant.ID)
		entry.Metadata = models.AuditMetadata{
			"forced":        force,
			"tier":          tier,
			"previous_tier": user.Tier,
			"duration_days": durationDays,
			"source":        string(source),
		}
		if _, err := s.audit.Append(ctx, repos.Audit, entry, justification); err != nil {
			return err
		}

		decision = &models.TrialDecision{Outcome: models.TrialOutcomeGranted, Grant: grant}
		return nil
	})
	if err != nil {
		metrics.RecordMutation(models.AuditActionTrialGrant, err)
		logRejection(ctx, s.logger, models.AuditActionTrialGrant, userID, err)
		return nil, err
	}

	metrics.RecordTrialDecision(decision.Outcome, source)
	if decision.Granted() {
		metrics.RecordMutation(models.AuditActionTrialGrant, nil)
		s.logger.InfoContext(ctx, "trial granted",
			slog.String("user_id", userID),
			slog.String("tier", tier),
			slog.Bool("forced", force),
			slog.String("actor_id", actor.ID))
	} else {
		s.logger.InfoContext(ctx, "trial needs force confirmation",
			slog.String("user_id", userID),
			slog.Int("prior_grants", len(decision.Ineligibility.History)))
	}

	return decision, nil
}

// History returns a user's trial grants, newest first.
func (s *TrialService) History(ctx context.Context, userID string) ([]*models.TrialGrant, error) {
	var history []*models.TrialGrant
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		if _, err := repos.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		var err error
		history, err = repos.Trials.ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *TrialService) validate(tier string, durationDays int, reason string, force bool) error {
	if !models.IsTrialTier(tier) {
		return fmt.Errorf("%w: trial tier must be pro or team", models.ErrInvalidTier)
	}
	if err := models.ValidateDays(durationDays, s.cfg.MinTrialDays, s.cfg.MaxTrialDays); err != nil {
		return err
	}
	minLength := s.cfg.MinReasonLength
	if force {
		minLength = s.cfg.ForceReasonLength
	}
	return models.ValidateReason(reason, minLength)
}
