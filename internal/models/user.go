package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Roles
const (
	RoleUser       = "user"
	RoleSupport    = "support"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Tiers
const (
	TierFree       = "free"
	TierStarter    = "starter"
	TierPro        = "pro"
	TierTeam       = "team"
	TierEnterprise = "enterprise"
)

// AccountStatus is derived from the lifecycle flags and never stored.
type AccountStatus string

const (
	AccountStatusActive               AccountStatus = "active"
	AccountStatusSuspended            AccountStatus = "suspended"
	AccountStatusScheduledForDeletion AccountStatus = "scheduled_for_deletion"
	AccountStatusDeleted              AccountStatus = "deleted"
)

// UserAccount is the admin view of a customer account.
type UserAccount struct {
	ID                  string
	Email               string
	Name                string
	Role                string
	Tier                string
	Suspended           bool
	DeletionScheduledAt *time.Time // Purge job fires once this elapses
	DeletedAt           *time.Time // Tombstone marker
	TrialEndsAt         *time.Time
	Version             int64 // Optimistic concurrency token
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PurgeCursor is the last account a purge run visited. Listing resumes after
// it so accounts that keep failing do not block the ones behind them.
type PurgeCursor struct {
	ScheduledAt time.Time
	ID          string
}

// IsTombstoned reports whether the account has been purged and is read-only.
func (u *UserAccount) IsTombstoned() bool {
	return u.DeletedAt != nil
}

// Status derives the display status from the stored flags.
func (u *UserAccount) Status() AccountStatus {
	return DeriveAccountStatus(u.Suspended, u.DeletionScheduledAt, u.DeletedAt)
}

// DeriveAccountStatus collapses the independent lifecycle flags into one status.
// A pending deletion outranks suspension; both flags stay visible on the record.
func DeriveAccountStatus(suspended bool, deletionScheduledAt, deletedAt *time.Time) AccountStatus {
	switch {
	case deletedAt != nil:
		return AccountStatusDeleted
	case deletionScheduledAt != nil:
		return AccountStatusScheduledForDeletion
	case suspended:
		return AccountStatusSuspended
	default:
		return AccountStatusActive
	}
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleSupport, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdminRole reports whether role may use the admin surface.
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// IsValidTier reports whether tier is one of the known billing tiers.
func IsValidTier(tier string) bool {
	switch tier {
	case TierFree, TierStarter, TierPro, TierTeam, TierEnterprise:
		return true
	}
	return false
}

// IsTrialTier reports whether tier can be granted as a trial.
func IsTrialTier(tier string) bool {
	return tier == TierPro || tier == TierTeam
}

// ValidateReason checks an operator justification against a minimum length,
// counted in characters after trimming surrounding whitespace.
func ValidateReason(reason string, minLength int) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidReason, minLength)
	}
	return nil
}

// ValidateDays checks a day count against an inclusive range.
func ValidateDays(days, minDays, maxDays int) error {
	if days < minDays || days > maxDays {
		return fmt.Errorf("%w: must be between %d and %d days", ErrInvalidDuration, minDays, maxDays)
	}
	return nil
}
