package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BradenHooton/scribe/internal/models"
	"github.com/BradenHooton/scribe/internal/services"
	pkghttp "github.com/BradenHooton/scribe/pkg/http"
	"github.com/go-chi/chi/v5"
)

// ComplianceService defines the audit log reporting operations
type ComplianceService interface {
	Query(ctx context.Context, filter models.ComplianceFilter, page, limit int) (*services.ComplianceResult, error)
	Export(ctx context.Context, filter models.ComplianceFilter, w io.Writer) (int, error)
}

// AuditHandler handles compliance queries over the audit log
type AuditHandler struct {
	service ComplianceService
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service ComplianceService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes registers the audit log routes under /audit-logs
func (h *AuditHandler) RegisterRoutes(router chi.Router) {
	router.Get("/audit-logs", h.Query)
	router.Get("/audit-logs/export", h.Export)
}

// Query handles GET /admin/audit-logs
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter, err := parseComplianceFilter(q)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	page, err := optionalInt(q, "page")
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := optionalInt(q, "limit")
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Query(r.Context(), filter, page, limit)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	logs := make([]*AuditLogResponse, len(result.Entries))
	for i, e := range result.Entries {
		logs[i] = auditLogToResponse(e)
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	pkghttp.WriteJSON(w, http.StatusOK, ComplianceResponse{
		Logs:  logs,
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
		Stats: ComplianceStatsResponse{
			Total:         result.Stats.Total,
			PHIDetections: result.Stats.PHIDetections,
			SuccessCount:  result.Stats.SuccessCount,
			UniqueUsers:   result.Stats.UniqueUsers,
		},
		Filters: ComplianceFiltersResponse{
			StartDate:   result.Filter.StartDate,
			EndDate:     result.Filter.EndDate,
			Action:      result.Filter.Action,
			ContainsPHI: result.Filter.ContainsPHI,
			RiskLevel:   result.Filter.RiskLevel,
			UserEmail:   result.Filter.ActorEmail,
		},
	})
}

// Export handles GET /admin/audit-logs/export. Every matching row is streamed;
// paging parameters are ignored.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseComplianceFilter(r.URL.Query())
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	cw := &csvResponseWriter{
		ResponseWriter: w,
		filename:       fmt.Sprintf("audit-logs-%s.csv", h.now().Format("20060102-150405")),
	}

	rows, err := h.service.Export(r.Context(), filter, cw)
	if err != nil {
		if !cw.started {
			pkghttp.WriteDomainError(w, h.logger, err)
			return
		}
		// Headers are gone; the client sees a truncated file
		h.logger.Error("audit export interrupted", slog.Int("rows", rows), slog.Any("error", err))
		return
	}
}

// csvResponseWriter sets the CSV headers on first write, so an error raised
// before any output can still be reported as JSON.
type csvResponseWriter struct {
	http.ResponseWriter
	filename string
	started  bool
}

func (cw *csvResponseWriter) Write(p []byte) (int, error) {
	if !cw.started {
		cw.started = true
		h := cw.Header()
		h.Set("Content-Type", "text/csv; charset=utf-8")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cw.filename))
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(p)
}

func (cw *csvResponseWriter) Flush() {
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func parseComplianceFilter(q url.Values) (models.ComplianceFilter, error) {
	filter := models.ComplianceFilter{
		Action:     q.Get("action"),
		RiskLevel:  q.Get("riskLevel"),
		ActorEmail: q.Get("userEmail"),
	}

	var err error
	if filter.StartDate, err = parseDateParam(q.Get("startDate"), false); err != nil {
		return filter, fmt.Errorf("invalid startDate: %w", err)
	}
	if filter.EndDate, err = parseDateParam(q.Get("endDate"), true); err != nil {
		return filter, fmt.Errorf("invalid endDate: %w", err)
	}

	if raw := q.Get("containsPhi"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid containsPhi: %q", raw)
		}
		filter.ContainsPHI = &v
	}

	return filter, nil
}

// parseDateParam accepts RFC 3339 timestamps or bare dates. A bare end date
// covers the whole day.
func parseDateParam(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}

func optionalInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}
