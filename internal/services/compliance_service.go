package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/scribe/internal/models"
)

const (
	defaultComplianceWindow = 30 * 24 * time.Hour
	defaultComplianceLimit  = 50
	maxComplianceLimit      = 100
	exportFlushEvery        = 500
)

// ComplianceRepository is the read side of the audit store.
type ComplianceRepository interface {
	Query(ctx context.Context, filter models.ComplianceFilter, limit, offset int) ([]*models.AuditLogEntry, error)
	Stats(ctx context.Context, filter models.ComplianceFilter) (*models.ComplianceStats, error)
	Stream(ctx context.Context, filter models.ComplianceFilter, fn func(*models.AuditLogEntry) error) error
}

// ComplianceResult is one page of entries plus stats over the whole filtered set.
type ComplianceResult struct {
	Entries []*models.AuditLogEntry
	Total   int64
	Page    int
	Limit   int
	Filter  models.ComplianceFilter
	Stats   models.ComplianceStats
}

// ComplianceService answers audit log reporting queries.
type ComplianceService struct {
	repo   ComplianceRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewComplianceService creates a new ComplianceService
func NewComplianceService(repo ComplianceRepository, logger *slog.Logger) *ComplianceService {
	return &ComplianceService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Query returns page (1-based) of the filtered log. Total and Stats always
// describe the full filtered set.
func (s *ComplianceService) Query(ctx context.Context, filter models.ComplianceFilter, page, limit int) (*ComplianceResult, error) {
	filter, err := s.normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultComplianceLimit
	}
	if limit > maxComplianceLimit {
		limit = maxComplianceLimit
	}

	stats, err := s.repo.Stats(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to aggregate audit logs", slog.Any("error", err))
		return nil, err
	}

	entries, err := s.repo.Query(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to query audit logs", slog.Any("error", err))
		return nil, err
	}

	return &ComplianceResult{
		Entries: entries,
		Total:   stats.Total,
		Page:    page,
		Limit:   limit,
		Filter:  filter,
		Stats:   *stats,
	}, nil
}

var exportHeader = []string{
	"timestamp", "actor_email", "actor_id", "action", "target_user_id", "resource_type",
	"resource_id", "justification", "contains_phi", "phi_score", "risk_level", "success", "ip_address",
}

// Export writes every matching entry to w as CSV and returns the number of
// data rows written.
func (s *ComplianceService) Export(ctx context.Context, filter models.ComplianceFilter, w io.Writer) (int, error) {
	filter, err := s.normalizeFilter(filter)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}

	rows := 0
	err = s.repo.Stream(ctx, filter, func(e *models.AuditLogEntry) error {
		if err := cw.Write(exportRecord(e)); err != nil {
			return err
		}
		rows++
		if rows%exportFlushEvery == 0 {
			cw.Flush()
			if f, ok := w.(interface{ Flush() }); ok {
				f.Flush()
			}
		}
		return cw.Error()
	})
	cw.Flush()
	if err == nil {
		err = cw.Error()
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "audit log export aborted",
			slog.Int("rows_written", rows),
			slog.Any("error", err))
		return rows, fmt.Errorf("failed to export audit logs: %w", err)
	}

	s.logger.InfoContext(ctx, "audit log exported", slog.Int("rows", rows))
	return rows, nil
}

// normalizeFilter applies the default 30 day window and rejects inconsistent filters.
func (s *ComplianceService) normalizeFilter(f models.ComplianceFilter) (models.ComplianceFilter, error) {
	switch {
	case f.StartDate.IsZero() && f.EndDate.IsZero():
		f.EndDate = s.now()
		f.StartDate = f.EndDate.Add(-defaultComplianceWindow)
	case f.StartDate.IsZero():
		f.StartDate = f.EndDate.Add(-defaultComplianceWindow)
	case f.EndDate.IsZero():
		f.EndDate = s.now()
	}

	if f.EndDate.Before(f.StartDate) {
		return f, fmt.Errorf("%w: end date is before start date", models.ErrInvalidFilter)
	}
	if f.RiskLevel != "" && !models.IsValidRiskLevel(f.RiskLevel) {
		return f, fmt.Errorf("%w: unknown risk level %q", models.ErrInvalidFilter, f.RiskLevel)
	}
	f.Action = strings.TrimSpace(f.Action)
	f.ActorEmail = strings.TrimSpace(f.ActorEmail)

	return f, nil
}

func exportRecord(e *models.AuditLogEntry) []string {
	return []string{
		e.CreatedAt.UTC().Format(time.RFC3339),
		csvSafe(e.ActorEmail),
		deref(e.ActorID),
		e.Action,
		deref(e.TargetUserID),
		deref(e.ResourceType),
		csvSafe(deref(e.ResourceID)),
		csvSafe(e.Justification),
		strconv.FormatBool(e.ContainsPHI),
		strconv.Itoa(e.PHIScore),
		string(e.RiskLevel),
		strconv.FormatBool(e.Success),
		deref(e.IPAddress),
	}
}

// csvSafe neutralises cells a spreadsheet would evaluate as a formula.
func csvSafe(v string) string {
	if v != "" && strings.ContainsAny(v[:1], "=+-@\t\r") {
		return "'" + v
	}
	return v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
