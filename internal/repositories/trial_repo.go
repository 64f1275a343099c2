package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/scribe/internal/database"
	"github.com/BradenHooton/scribe/internal/models"
)

// TrialRepository stores the append-only trial history.
type TrialRepository struct {
	db database.Querier
}

// NewTrialRepository creates a TrialRepository bound to a pool or a transaction.
func NewTrialRepository(db database.Querier) *TrialRepository {
	return &TrialRepository{db: db}
}

const trialColumns = `id, user_id, tier, started_at, ends_at, source, justification, granted_by, created_at`

func scanTrialRow(row rowScanner) (*models.TrialGrant, error) {
	var g models.TrialGrant
	var source string

	err := row.Scan(
		&g.ID, &g.UserID, &g.Tier, &g.StartedAt, &g.EndsAt,
		&source, &g.Justification, &g.GrantedBy, &g.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	g.Source = models.TrialSource(source)

	return &g, nil
}

// ListByUser returns a user's trial history, newest first.
func (r *TrialRepository) ListByUser(ctx context.Context, userID string) ([]*models.TrialGrant, error) {
	query := `SELECT ` + trialColumns + ` FROM trial_grants WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trial grants: %w", err)
	}
	defer rows.Close()

	grants := make([]*models.TrialGrant, 0)
	for rows.Next() {
		g, err := scanTrialRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trial grant rows: %w", err)
	}

	return grants, nil
}

// Create inserts a new grant. Grants are never updated or deleted.
func (r *TrialRepository) Create(ctx context.Context, grant *models.TrialGrant) (*models.TrialGrant, error) {
	query := `
		INSERT INTO trial_grants (user_id, tier, started_at, ends_at, source, justification, granted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + trialColumns

	created, err := scanTrialRow(r.db.QueryRow(ctx, query,
		grant.UserID, grant.Tier, grant.StartedAt, grant.EndsAt,
		string(grant.Source), grant.Justification, grant.GrantedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create trial grant: %w", err)
	}

	return created, nil
}
