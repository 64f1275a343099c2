package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/BradenHooton/scribe/internal/database"
	"github.com/BradenHooton/scribe/internal/models"
	"github.com/jackc/pgx/v5"
)

// AuditLogRepository handles audit log data access. The table is append-only:
// there is deliberately no update or delete method, and a trigger rejects both.
type AuditLogRepository struct {
	db database.Querier
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db database.Querier) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

const auditSelect = `
	SELECT a.id, a.actor_id, COALESCE(u.email, ''), a.action, a.target_user_id,
	       a.resource_type, a.resource_id, a.justification, a.contains_phi, a.phi_score,
	       a.risk_level, a.success, a.ip_address, a.user_agent, a.metadata, a.created_at
	FROM audit_logs a
	LEFT JOIN users u ON u.id = a.actor_id`

// scanAuditLogRow handles nullable fields and populates an AuditLogEntry from a database row
func scanAuditLogRow(row rowScanner) (*models.AuditLogEntry, error) {
	var entry models.AuditLogEntry
	var risk string

	err := row.Scan(
		&entry.ID, &entry.ActorID, &entry.ActorEmail, &entry.Action, &entry.TargetUserID,
		&entry.ResourceType, &entry.ResourceID, &entry.Justification, &entry.ContainsPHI, &entry.PHIScore,
		&risk, &entry.Success, &entry.IPAddress, &entry.UserAgent, &entry.Metadata, &entry.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	entry.RiskLevel = models.RiskLevel(risk)

	return &entry, nil
}

// Create appends an audit entry. Pass a transaction-bound repository so the
// entry commits or rolls back with the mutation it records.
func (r *AuditLogRepository) Create(ctx context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error) {
	query := `
		INSERT INTO audit_logs (
			actor_id, action, target_user_id, resource_type, resource_id, justification,
			contains_phi, phi_score, risk_level, success, ip_address, user_agent, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`

	created := *entry
	err := r.db.QueryRow(ctx, query,
		entry.ActorID, entry.Action, entry.TargetUserID, entry.ResourceType, entry.ResourceID,
		entry.Justification, entry.ContainsPHI, entry.PHIScore, string(entry.RiskLevel),
		entry.Success, entry.IPAddress, entry.UserAgent, entry.Metadata,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}

	return &created, nil
}

// buildComplianceWhere renders the filter as a WHERE clause over the aliased
// audit_logs (a) and users (u) tables.
func buildComplianceWhere(filter models.ComplianceFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.StartDate.IsZero() {
		add("a.created_at >= $%d", filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		add("a.created_at <= $%d", filter.EndDate)
	}
	if filter.Action != "" {
		add("a.action = $%d", filter.Action)
	}
	if filter.ContainsPHI != nil {
		add("a.contains_phi = $%d", *filter.ContainsPHI)
	}
	if filter.RiskLevel != "" {
		add("a.risk_level = $%d", filter.RiskLevel)
	}
	if filter.ActorEmail != "" {
		add(`u.email ILIKE '%%' || $%d || '%%' ESCAPE '\'`, escapeLike(filter.ActorEmail))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Query returns one page of matching entries, newest first.
func (r *AuditLogRepository) Query(ctx context.Context, filter models.ComplianceFilter, limit, offset int) ([]*models.AuditLogEntry, error) {
	where, args := buildComplianceWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf("%s%s ORDER BY a.created_at DESC, a.id LIMIT $%d OFFSET $%d",
		auditSelect, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditLogEntry, 0)
	for rows.Next() {
		entry, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return entries, nil
}

// Stats aggregates over every entry matching filter in a single query.
func (r *AuditLogRepository) Stats(ctx context.Context, filter models.ComplianceFilter) (*models.ComplianceStats, error) {
	where, args := buildComplianceWhere(filter)
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE a.contains_phi),
		       COUNT(*) FILTER (WHERE a.success),
		       COUNT(DISTINCT a.actor_id)
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id` + where

	var stats models.ComplianceStats
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.PHIDetections, &stats.SuccessCount, &stats.UniqueUsers,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit logs: %w", err)
	}

	return &stats, nil
}

// Stream calls fn for every matching entry, oldest first, without buffering
// the result set. An error from fn stops iteration and is returned.
func (r *AuditLogRepository) Stream(ctx context.Context, filter models.ComplianceFilter, fn func(*models.AuditLogEntry) error) error {
	where, args := buildComplianceWhere(filter)

	rows, err := r.db.Query(ctx, auditSelect+where+" ORDER BY a.created_at, a.id", args...)
	if err != nil {
		return fmt.Errorf("failed to query audit logs: %w", err)
	}

	return streamAuditRows(rows, fn)
}

func streamAuditRows(rows pgx.Rows, fn func(*models.AuditLogEntry) error) error {
	defer rows.Close()

	for rows.Next() {
		entry, err := scanAuditLogRow(rows)
		if err != nil {
			return fmt.Errorf("failed to scan audit log: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}

	return rows.Err()
}

// CountByTarget counts entries recorded against a user.
func (r *AuditLogRepository) CountByTarget(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE target_user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}
