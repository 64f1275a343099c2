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

const campaignNameConstraint = "campaigns_name_lower_key"

// CampaignRepository handles campaign data access. Display status is never
// stored; callers derive it from the returned fields.
type CampaignRepository struct {
	db database.Querier
}

// NewCampaignRepository creates a CampaignRepository bound to a pool or a transaction.
func NewCampaignRepository(db database.Querier) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, name, trial_tier, trial_days, starts_at, ends_at, is_active,
	signups_count, conversions_count, version, created_at, updated_at`

func scanCampaignRow(row rowScanner) (*models.Campaign, error) {
	var c models.Campaign

	err := row.Scan(
		&c.ID, &c.Name, &c.TrialTier, &c.TrialDays, &c.StartsAt, &c.EndsAt, &c.IsActive,
		&c.SignupsCount, &c.ConversionsCount, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &c, nil
}

func scanCampaignRows(rows pgx.Rows) ([]*models.Campaign, error) {
	defer rows.Close()

	campaigns := make([]*models.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaignRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign rows: %w", err)
	}

	return campaigns, nil
}

// mapCampaignWriteError turns the case-insensitive name index violation into
// models.ErrDuplicateName.
func mapCampaignWriteError(err error) error {
	if database.IsUniqueViolation(err, campaignNameConstraint) {
		return models.ErrDuplicateName
	}
	return database.MapPostgresError(err)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	return scanCampaignRow(r.db.QueryRow(ctx, query, id))
}

// List returns all campaigns, most recent start first.
func (r *CampaignRepository) List(ctx context.Context) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY starts_at DESC, created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}

	return scanCampaignRows(rows)
}

// ListRunning returns campaigns that are flagged active and inside their window at now.
func (r *CampaignRepository) ListRunning(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE is_active AND starts_at <= $1 AND (ends_at IS NULL OR ends_at >= $1)
		ORDER BY starts_at DESC, created_at DESC
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query running campaigns: %w", err)
	}

	return scanCampaignRows(rows)
}

// NameExists reports whether another campaign uses name, ignoring case.
// excludeID skips the campaign being edited; pass "" on create.
func (r *CampaignRepository) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM campaigns WHERE lower(name) = lower($1) AND ($2 = '' OR id::text <> $2))`

	var exists bool
	if err := r.db.QueryRow(ctx, query, name, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check campaign name: %w", err)
	}

	return exists, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	query := `
		INSERT INTO campaigns (name, trial_tier, trial_days, starts_at, ends_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + campaignColumns

	created, err := scanCampaignRow(r.db.QueryRow(ctx, query,
		c.Name, c.TrialTier, c.TrialDays, c.StartsAt, c.EndsAt, c.IsActive,
	))
	if err != nil {
		return nil, mapCampaignWriteError(err)
	}

	return created, nil
}

// Update writes the editable fields if c.Version is still current.
func (r *CampaignRepository) Update(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	query := `
		UPDATE campaigns
		SET name = $1, trial_tier = $2, trial_days = $3, starts_at = $4, ends_at = $5, is_active = $6,
		    version = version + 1, updated_at = now()
		WHERE id = $7 AND version = $8
		RETURNING ` + campaignColumns

	updated, err := scanCampaignRow(r.db.QueryRow(ctx, query,
		c.Name, c.TrialTier, c.TrialDays, c.StartsAt, c.EndsAt, c.IsActive, c.ID, c.Version,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, mapCampaignWriteError(err)
	}

	return nil, r.staleOrMissing(ctx, c.ID)
}

// IncrementSignups bumps the signup counter and version.
func (r *CampaignRepository) IncrementSignups(ctx context.Context, id string) (*models.Campaign, error) {
	query := `
		UPDATE campaigns SET signups_count = signups_count + 1, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING ` + campaignColumns

	return scanCampaignRow(r.db.QueryRow(ctx, query, id))
}

// IncrementConversions bumps the conversion counter and version.
func (r *CampaignRepository) IncrementConversions(ctx context.Context, id string) (*models.Campaign, error) {
	query := `
		UPDATE campaigns SET conversions_count = conversions_count + 1, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING ` + campaignColumns

	return scanCampaignRow(r.db.QueryRow(ctx, query, id))
}

// Delete removes a campaign that has no signups and whose version is current.
func (r *CampaignRepository) Delete(ctx context.Context, id string, version int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND version = $2 AND signups_count = 0`, id, version)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.SignupsCount > 0 {
		return models.ErrHasSignups
	}
	return models.ErrConflict
}

func (r *CampaignRepository) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check campaign existence: %w", err)
	}
	if exists {
		return models.ErrConflict
	}
	return models.ErrNotFound
}
