package services

import (
	"context"
	"time"

	"github.com/BradenHooton/scribe/internal/database"
	"github.com/BradenHooton/scribe/internal/models"
	"github.com/BradenHooton/scribe/internal/repositories"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.UserAccount, error)
	UpdateLifecycle(ctx context.Context, user *models.UserAccount) (*models.UserAccount, error)
	ListDueForPurge(ctx context.Context, now time.Time, after *models.PurgeCursor, limit int) ([]*models.UserAccount, error)
}

// TrialRepository defines the interface for trial history access
type TrialRepository interface {
	ListByUser(ctx context.Context, userID string) ([]*models.TrialGrant, error)
	Create(ctx context.Context, grant *models.TrialGrant) (*models.TrialGrant, error)
}

// CampaignRepository defines the interface for campaign data access
type CampaignRepository interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	List(ctx context.Context) ([]*models.Campaign, error)
	ListRunning(ctx context.Context, now time.Time) ([]*models.Campaign, error)
	NameExists(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error)
	Update(ctx context.Context, c *models.Campaign) (*models.Campaign, error)
	IncrementSignups(ctx context.Context, id string) (*models.Campaign, error)
	IncrementConversions(ctx context.Context, id string) (*models.Campaign, error)
	Delete(ctx context.Context, id string, version int64) error
}

// AuditLogRepository is the append-only write side of the audit store.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error)
}

// Repos groups repositories that share one transaction.
type Repos struct {
	Users     UserRepository
	Trials    TrialRepository
	Campaigns CampaignRepository
	Audit     AuditLogRepository
}

// Transactor runs fn as one unit of work. If fn returns an error nothing it
// wrote is kept, including audit entries.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}

// PgTransactor implements Transactor over a pgx pool.
type PgTransactor struct {
	db *database.DB
}

// NewPgTransactor creates a new PgTransactor
func NewPgTransactor(db *database.DB) *PgTransactor {
	return &PgTransactor{db: db}
}

func (t *PgTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	return t.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(ctx, Repos{
			Users:     repositories.NewUserRepository(tx),
			Trials:    repositories.NewTrialRepository(tx),
			Campaigns: repositories.NewCampaignRepository(tx),
			Audit:     repositories.NewAuditLogRepository(tx),
		})
	})
}
