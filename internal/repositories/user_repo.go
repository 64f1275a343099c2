package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/scribe/internal/database"
	"github.com/BradenHooton/scribe/internal/models"
	"github.com/jackc/pgx/v5"
)

// UserRepository reads and conditionally updates user accounts.
type UserRepository struct {
	db database.Querier
}

// NewUserRepository creates a UserRepository bound to a pool or a transaction.
func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, name, role, tier, suspended, deletion_scheduled_at, deleted_at,
	trial_ends_at, version, created_at, updated_at`

// scanUserRow populates a UserAccount from a database row
func scanUserRow(scanner rowScanner) (*models.UserAccount, error) {
	var user models.UserAccount

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.Tier, &user.Suspended,
		&user.DeletionScheduledAt, &user.DeletedAt, &user.TrialEndsAt,
		&user.Version, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// scanUserRows iterates through rows and scans each into UserAccount models
func scanUserRows(rows pgx.Rows) ([]*models.UserAccount, error) {
	defer rows.Close()

	users := make([]*models.UserAccount, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	return scanUserRow(r.db.QueryRow(ctx, query, email))
}

// Create inserts an account. Signup lives outside this service; this is used
// for the bootstrap admin and tests.
func (r *UserRepository) Create(ctx context.Context, user *models.UserAccount) (*models.UserAccount, error) {
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.Tier == "" {
		user.Tier = models.TierFree
	}

	query := `
		INSERT INTO users (email, name, role, tier)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	return scanUserRow(r.db.QueryRow(ctx, query, user.Email, user.Name, user.Role, user.Tier))
}

// UpdateLifecycle writes the mutable admin fields if the stored version still
// matches user.Version. A mismatch returns models.ErrConflict; a missing row
// returns models.ErrNotFound.
func (r *UserRepository) UpdateLifecycle(ctx context.Context, user *models.UserAccount) (*models.UserAccount, error) {
	query := `
		UPDATE users
		SET role = $1, tier = $2, suspended = $3, deletion_scheduled_at = $4, deleted_at = $5,
		    trial_ends_at = $6, version = version + 1, updated_at = now()
		WHERE id = $7 AND version = $8
		RETURNING ` + userColumns

	updated, err := scanUserRow(r.db.QueryRow(ctx, query,
		user.Role, user.Tier, user.Suspended, user.DeletionScheduledAt, user.DeletedAt,
		user.TrialEndsAt, user.ID, user.Version,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	// Distinguish a stale version from a missing row
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, user.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		return nil, models.ErrConflict
	}
	return nil, models.ErrNotFound
}

// ListDueForPurge returns accounts whose deletion grace period has elapsed,
// ordered by (deletion_scheduled_at, id) and starting after the cursor.
func (r *UserRepository) ListDueForPurge(ctx context.Context, now time.Time, after *models.PurgeCursor, limit int) ([]*models.UserAccount, error) {
	cursor := models.PurgeCursor{ID: "00000000-0000-0000-0000-000000000000"}
	if after != nil {
		cursor = *after
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE deletion_scheduled_at IS NOT NULL AND deletion_scheduled_at <= $1 AND deleted_at IS NULL
		  AND (deletion_scheduled_at, id) > ($2, $3::uuid)
		ORDER BY deletion_scheduled_at, id
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, now, cursor.ScheduledAt, cursor.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query users due for purge: %w", err)
	}

	return scanUserRows(rows)
}
