package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Audit actions written by the admin services
const (
	AuditActionRoleChange         = "role_change"
	AuditActionSuspend            = "account_suspend"
	AuditActionUnsuspend          = "account_unsuspend"
	AuditActionDeletionScheduled  = "account_deletion_scheduled"
	AuditActionDeletionCancelled  = "account_deletion_cancelled"
	AuditActionAccountPurged      = "account_purged"
	AuditActionTrialGrant         = "trial_grant"
	AuditActionCampaignCreate     = "campaign_create"
	AuditActionCampaignUpdate     = "campaign_update"
	AuditActionCampaignToggle     = "campaign_toggle"
	AuditActionCampaignDelete     = "campaign_delete"
	AuditActionCampaignTrialGrant = "campaign_trial_grant"
)

// Resource types
const (
	AuditResourceTypeUser       = "user"
	AuditResourceTypeCampaign   = "campaign"
	AuditResourceTypeTrialGrant = "trial_grant"
)

// RiskLevel bands an entry's PHI exposure score.
type RiskLevel string

const (
	RiskLevelNone   RiskLevel = "none"
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// Score thresholds shared with the compliance reports
const (
	RiskScoreHigh   = 16
	RiskScoreMedium = 6
)

// RiskLevelForScore bands a PHI score: high >= 16, medium >= 6, low > 0.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= RiskScoreHigh:
		return RiskLevelHigh
	case score >= RiskScoreMedium:
		return RiskLevelMedium
	case score > 0:
		return RiskLevelLow
	default:
		return RiskLevelNone
	}
}

// IsValidRiskLevel reports whether level is a known band.
func IsValidRiskLevel(level string) bool {
	switch RiskLevel(level) {
	case RiskLevelNone, RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	}
	return false
}

// AuditLogEntry is an append-only record of one admin mutation.
type AuditLogEntry struct {
	ID            string
	ActorID       *string // nil for system actors such as the purge job
	ActorEmail    string  // populated by read queries only
	Action        string
	TargetUserID  *string
	ResourceType  *string
	ResourceID    *string
	Justification string
	ContainsPHI   bool
	PHIScore      int
	RiskLevel     RiskLevel
	Success       bool
	IPAddress     *string
	UserAgent     *string
	Metadata      AuditMetadata
	CreatedAt     time.Time
}

// Actor identifies who is performing an admin mutation.
type Actor struct {
	ID        string
	IPAddress string
	UserAgent string
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(am))
}

// ComplianceFilter narrows the audit log for compliance reporting.
type ComplianceFilter struct {
	StartDate   time.Time
	EndDate     time.Time
	Action      string
	ContainsPHI *bool
	RiskLevel   string
	ActorEmail  string
}

// ComplianceStats aggregates over the full filtered set, not a single page.
type ComplianceStats struct {
	Total         int64
	PHIDetections int64
	SuccessCount  int64
	UniqueUsers   int64
}
