package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/scribe/internal/config"
	"github.com/BradenHooton/scribe/internal/metrics"
	"github.com/BradenHooton/scribe/internal/models"
)

// LifecycleService owns account status transitions and role changes.
type LifecycleService struct {
	tx       Transactor
	audit    *AuditLogger
	notifier Notifier
	cfg      config.LifecycleConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(tx Transactor, audit *AuditLogger, notifier Notifier, cfg config.LifecycleConfig, logger *slog.Logger) *LifecycleService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &LifecycleService{
		tx:       tx,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// userChange mutates a copy of the loaded account and returns the audit
// metadata for the change. Returning an error aborts before any write.
type userChange func(actorRole string, user *models.UserAccount) (models.AuditMetadata, error)

// GetUser returns an account; callers derive status from it.
func (s *LifecycleService) GetUser(ctx context.Context, userID string) (*models.UserAccount, error) {
	var user *models.UserAccount
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		var err error
		user, err = repos.Users.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ChangeRole sets a new role. Only super admins may grant or revoke super_admin.
// A request for the role the account already holds fails with ErrSameRole
// before the reason is checked.
func (s *LifecycleService) ChangeRole(ctx context.Context, actor models.Actor, userID, newRole, reason string) (*models.UserAccount, error) {
	if !models.IsValidRole(newRole) {
		return nil, s.reject(ctx, models.AuditActionRoleChange, userID,
			fmt.Errorf("%w: %q", models.ErrInvalidRole, newRole))
	}
	current, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionRoleChange, userID, err)
	}
	if !current.IsTombstoned() && current.Role == newRole {
		return nil, s.reject(ctx, models.AuditActionRoleChange, userID, models.ErrSameRole)
	}
	if err := models.ValidateReason(reason, s.cfg.MinReasonLength); err != nil {
		return nil, s.reject(ctx, models.AuditActionRoleChange, userID, err)
	}

	return s.mutate(ctx, actor, userID, models.AuditActionRoleChange, reason,
		func(actorRole string, user *models.UserAccount) (models.AuditMetadata, error) {
			if user.Role == newRole {
				return nil, models.ErrSameRole
			}
			touchesSuper := newRole == models.RoleSuperAdmin || user.Role == models.RoleSuperAdmin
			if touchesSuper && actorRole != models.RoleSuperAdmin {
				return nil, fmt.Errorf("%w: only a super admin can grant or revoke super_admin", models.ErrForbidden)
			}

			meta := models.AuditMetadata{"old_role": user.Role, "new_role": newRole}
			user.Role = newRole
			return meta, nil
		})
}

// Suspend blocks access without touching data or a pending deletion.
func (s *LifecycleService) Suspend(ctx context.Context, actor models.Actor, userID, reason string) (*models.UserAccount, error) {
	if err := models.ValidateReason(reason, s.cfg.MinReasonLength); err != nil {
		return nil, s.reject(ctx, models.AuditActionSuspend, userID, err)
	}

	return s.mutate(ctx, actor, userID, models.AuditActionSuspend, reason,
		func(_ string, user *models.UserAccount) (models.AuditMetadata, error) {
			if user.Suspended {
				return nil, models.ErrAlreadySuspended
			}
			user.Suspended = true
			return models.AuditMetadata{"deletion_scheduled": user.DeletionScheduledAt != nil}, nil
		})
}

// Unsuspend restores access.
func (s *LifecycleService) Unsuspend(ctx context.Context, actor models.Actor, userID, reason string) (*models.UserAccount, error) {
	if err := models.ValidateReason(reason, s.cfg.MinReasonLength); err != nil {
		return nil, s.reject(ctx, models.AuditActionUnsuspend, userID, err)
	}

	return s.mutate(ctx, actor, userID, models.AuditActionUnsuspend, reason,
		func(_ string, user *models.UserAccount) (models.AuditMetadata, error) {
			if !user.Suspended {
				return nil, models.ErrNotSuspended
			}
			user.Suspended = false
			return models.AuditMetadata{}, nil
		})
}

// ScheduleDeletion marks the account for purge after graceDays. The account
// holder is notified once the change has committed.
func (s *LifecycleService) ScheduleDeletion(ctx context.Context, actor models.Actor, userID, reason string, graceDays int) (*models.UserAccount, error) {
	if err := models.ValidateReason(reason, s.cfg.MinReasonLength); err != nil {
		return nil, s.reject(ctx, models.AuditActionDeletionScheduled, userID, err)
	}
	if err := models.ValidateDays(graceDays, s.cfg.MinGraceDays, s.cfg.MaxGraceDays); err != nil {
		return nil, s.reject(ctx, models.AuditActionDeletionScheduled, userID, err)
	}

	updated, err := s.mutate(ctx, actor, userID, models.AuditActionDeletionScheduled, reason,
		func(_ string, user *models.UserAccount) (models.AuditMetadata, error) {
			at := s.now().Add(time.Duration(graceDays) * 24 * time.Hour)
			meta := models.AuditMetadata{
				"grace_days":            graceDays,
				"deletion_scheduled_at": at.Format(time.RFC3339),
				"rescheduled":           user.DeletionScheduledAt != nil,
			}
			user.DeletionScheduledAt = &at
			return meta, nil
		})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendDeletionNotice(ctx, updated.Email, *updated.DeletionScheduledAt); err != nil {
		s.logger.WarnContext(ctx, "deletion notice not delivered",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	return updated, nil
}

// CancelDeletion clears a pending deletion. It stays callable until the
// purge job has tombstoned the account.
func (s *LifecycleService) CancelDeletion(ctx context.Context, actor models.Actor, userID, reason string) (*models.UserAccount, error) {
	if err := models.ValidateReason(reason, s.cfg.MinReasonLength); err != nil {
		return nil, s.reject(ctx, models.AuditActionDeletionCancelled, userID, err)
	}

	return s.mutate(ctx, actor, userID, models.AuditActionDeletionCancelled, reason,
		func(_ string, user *models.UserAccount) (models.AuditMetadata, error) {
			if user.DeletionScheduledAt == nil {
				return nil, models.ErrNotScheduled
			}
			meta := models.AuditMetadata{"was_scheduled_for": user.DeletionScheduledAt.Format(time.RFC3339)}
			user.DeletionScheduledAt = nil
			return meta, nil
		})
}

// mutate scores the reason, then loads the target, applies change, writes the
// account conditioned on its version and appends one audit entry in one
// transaction.
func (s *LifecycleService) mutate(ctx context.Context, actor models.Actor, userID, action, reason string, change userChange) (*models.UserAccount, error) {
	if actor.ID == userID {
		return nil, s.reject(ctx, action, userID,
			fmt.Errorf("%w: admins cannot modify their own account", models.ErrForbidden))
	}

	justification, err := s.audit.Score(ctx, action, reason)
	if err != nil {
		return nil, s.reject(ctx, action, userID, err)
	}

	var updated *models.UserAccount
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		actorAccount, err := loadActingAdmin(ctx, repos.Users, actor)
		if err != nil {
			return err
		}

		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsTombstoned() {
			return models.ErrAlreadyDeleted
		}

		next := *user
		meta, err := change(actorAccount.Role, &next)
		if err != nil {
			return err
		}

		updated, err = repos.Users.UpdateLifecycle(ctx, &next)
		if err != nil {
			return err
		}

		entry := newAuditEntry(actor, action)
		entry.TargetUserID = stringPtr(userID)
		entry.ResourceType = stringPtr(models.AuditResourceTypeUser)
		entry.ResourceID = stringPtr(userID)
		entry.Metadata = meta
		_, err = s.audit.Append(ctx, repos.Audit, entry, justification)
		return err
	})
	if err != nil {
		return nil, s.reject(ctx, action, userID, err)
	}

	metrics.RecordMutation(action, nil)
	s.logger.InfoContext(ctx, "account updated",
		slog.String("action", action),
		slog.String("user_id", userID),
		slog.String("actor_id", actor.ID),
		slog.String("status", string(updated.Status())))

	return updated, nil
}

// loadActingAdmin re-reads the actor inside the transaction so a role change
// or suspension that raced the request is honoured.
func loadActingAdmin(ctx context.Context, users UserRepository, actor models.Actor) (*models.UserAccount, error) {
	account, err := users.GetByID(ctx, actor.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: acting admin not found", models.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if !models.IsAdminRole(account.Role) || account.IsTombstoned() || account.Suspended {
		return nil, fmt.Errorf("%w: acting account is not an active admin", models.ErrForbidden)
	}
	return account, nil
}

// reject records a refused mutation and passes err through.
func (s *LifecycleService) reject(ctx context.Context, action, userID string, err error) error {
	metrics.RecordMutation(action, err)
	logRejection(ctx, s.logger, action, userID, err)
	return err
}

func logRejection(ctx context.Context, logger *slog.Logger, action, targetID string, err error) {
	if models.KindOf(err) != "" {
		logger.InfoContext(ctx, "admin mutation rejected",
			slog.String("action", action),
			slog.String("target_id", targetID),
			slog.String("reason", models.CodeOf(err)))
		return
	}
	logger.ErrorContext(ctx, "admin mutation failed",
		slog.String("action", action),
		slog.String("target_id", targetID),
		slog.Any("error", err))
}
