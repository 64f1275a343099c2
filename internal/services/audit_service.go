package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/scribe/internal/metrics"
	"github.com/BradenHooton/scribe/internal/models"
	"github.com/BradenHooton/scribe/internal/phi"
)

// PHIScorer annotates text with a PHI verdict. The scoring model is external.
type PHIScorer interface {
	Score(ctx context.Context, text string) (phi.Result, error)
}

// AuditLogger handles audit logging with dual-write pattern (slog + database).
// The database write is not best-effort: its error is returned so the
// surrounding transaction rolls back with the mutation it describes.
type AuditLogger struct {
	scorer PHIScorer
	logger *slog.Logger
}

// NewAuditLogger creates a new AuditLogger
func NewAuditLogger(scorer PHIScorer, logger *slog.Logger) *AuditLogger {
	if scorer == nil {
		scorer = phi.NoopScorer{}
	}
	return &AuditLogger{
		scorer: scorer,
		logger: logger,
	}
}

// ScoredJustification is a trimmed justification with its PHI verdict. It is
// produced before a transaction opens so no row lock is held while the
// external scorer answers.
type ScoredJustification struct {
	Text   string
	Result phi.Result
}

// Score validates and scores a justification. A scorer failure rejects the
// mutation it belongs to.
func (a *AuditLogger) Score(ctx context.Context, action, justification string) (*ScoredJustification, error) {
	text := strings.TrimSpace(justification)
	if text == "" {
		return nil, fmt.Errorf("%w: audit entries require a justification", models.ErrInvalidReason)
	}

	result, err := a.scorer.Score(ctx, text)
	if err != nil {
		metrics.RecordPHIScorerError()
		a.logger.ErrorContext(ctx, "phi scoring failed",
			slog.String("action", action),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to score audit justification: %w", err)
	}

	return &ScoredJustification{Text: text, Result: result}, nil
}

// Append bands and writes entry through repo, which must be bound to the
// caller's transaction. It performs no I/O besides the insert.
func (a *AuditLogger) Append(ctx context.Context, repo AuditLogRepository, entry *models.AuditLogEntry, scored *ScoredJustification) (*models.AuditLogEntry, error) {
	if scored == nil || scored.Text == "" {
		return nil, fmt.Errorf("%w: audit entries require a justification", models.ErrInvalidReason)
	}
	entry.Justification = scored.Text
	entry.ContainsPHI = scored.Result.ContainsPHI
	entry.PHIScore = scored.Result.Score
	entry.RiskLevel = models.RiskLevelForScore(scored.Result.Score)
	if entry.Metadata == nil {
		entry.Metadata = models.AuditMetadata{}
	}

	// Dual-write: immediate slog output
	a.logger.InfoContext(ctx, "audit event",
		slog.String("action", entry.Action),
		slog.Any("actor_id", entry.ActorID),
		slog.Any("target_user_id", entry.TargetUserID),
		slog.Any("resource_id", entry.ResourceID),
		slog.Bool("contains_phi", entry.ContainsPHI),
		slog.String("risk_level", string(entry.RiskLevel)),
		slog.Bool("success", entry.Success),
	)

	created, err := repo.Create(ctx, entry)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("action", entry.Action),
			slog.Any("error", err))
		return nil, err
	}

	return created, nil
}

// newAuditEntry fills the actor fields from an admin actor. A zero actor
// (system job) produces nil references.
func newAuditEntry(actor models.Actor, action string) *models.AuditLogEntry {
	return &models.AuditLogEntry{
		ActorID:   optionalString(actor.ID),
		Action:    action,
		Success:   true,
		IPAddress: optionalString(actor.IPAddress),
		UserAgent: optionalString(actor.UserAgent),
		Metadata:  models.AuditMetadata{},
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringPtr(s string) *string {
	return &s
}
