package handlers

import (
	"time"

	"github.com/BradenHooton/scribe/internal/models"
)

// Requests

// ReasonRequest is the body of suspend, unsuspend and cancel-deletion
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type ChangeRoleRequest struct {
	Role   string `json:"role" validate:"required,oneof=user support admin super_admin"`
	Reason string `json:"reason" validate:"max=2000"`
}

type ScheduleDeletionRequest struct {
	Reason    string `json:"reason" validate:"max=2000"`
	GraceDays int    `json:"graceDays" validate:"required"`
}

type GrantTrialRequest struct {
	Tier         string `json:"tier" validate:"required"`
	DurationDays int    `json:"durationDays" validate:"required"`
	Reason       string `json:"reason" validate:"max=2000"`
	Force        bool   `json:"force"`
}

// CampaignRequest is the body of campaign create and update
type CampaignRequest struct {
	Name      string     `json:"name" validate:"required,max=100"`
	TrialTier string     `json:"trialTier" validate:"required,oneof=pro team"`
	TrialDays int        `json:"trialDays" validate:"gte=1,lte=90"`
	StartsAt  time.Time  `json:"startsAt"`
	EndsAt    *time.Time `json:"endsAt"`
	IsActive  bool       `json:"isActive"`
}

func (req *CampaignRequest) toInput() models.CampaignInput {
	return models.CampaignInput{
		Name:      req.Name,
		TrialTier: req.TrialTier,
		TrialDays: req.TrialDays,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		IsActive:  req.IsActive,
	}
}

type ToggleCampaignRequest struct {
	IsActive *bool  `json:"isActive" validate:"required"`
	Reason   string `json:"reason" validate:"max=2000"`
}

// Responses

// UserResponse exposes the derived status alongside the raw lifecycle flags,
// so a suspended account that is also scheduled for deletion shows both.
type UserResponse struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Role                string     `json:"role"`
	Tier                string     `json:"tier"`
	Status              string     `json:"status"`
	Suspended           bool       `json:"suspended"`
	DeletionScheduledAt *time.Time `json:"deletionScheduledAt,omitempty"`
	DeletedAt           *time.Time `json:"deletedAt,omitempty"`
	TrialEndsAt         *time.Time `json:"trialEndsAt,omitempty"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func userToResponse(u *models.UserAccount) *UserResponse {
	return &UserResponse{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		Role:                u.Role,
		Tier:                u.Tier,
		Status:              string(u.Status()),
		Suspended:           u.Suspended,
		DeletionScheduledAt: u.DeletionScheduledAt,
		DeletedAt:           u.DeletedAt,
		TrialEndsAt:         u.TrialEndsAt,
		Version:             u.Version,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

type TrialGrantResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Tier          string    `json:"tier"`
	StartedAt     time.Time `json:"startedAt"`
	EndsAt        time.Time `json:"endsAt"`
	Source        string    `json:"source"`
	Justification string    `json:"justification"`
	GrantedBy     *string   `json:"grantedBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func trialToResponse(g *models.TrialGrant) *TrialGrantResponse {
	return &TrialGrantResponse{
		ID:            g.ID,
		UserID:        g.UserID,
		Tier:          g.Tier,
		StartedAt:     g.StartedAt,
		EndsAt:        g.EndsAt,
		Source:        string(g.Source),
		Justification: g.Justification,
		GrantedBy:     g.GrantedBy,
		CreatedAt:     g.CreatedAt,
	}
}

func trialsToResponse(history []*models.TrialGrant) []*TrialGrantResponse {
	out := make([]*TrialGrantResponse, len(history))
	for i, g := range history {
		out[i] = trialToResponse(g)
	}
	return out
}

// TrialGrantedResponse is returned with 201 when a grant was created
type TrialGrantedResponse struct {
	Decision string              `json:"decision"`
	Grant    *TrialGrantResponse `json:"grant"`
}

// TrialNeedsForceResponse is returned with 200 when the account already used
// its organic trial; the caller may retry with force and a longer reason.
type TrialNeedsForceResponse struct {
	Decision     string                `json:"decision"`
	HasUsedTrial bool                  `json:"hasUsedTrial"`
	CanForce     bool                  `json:"canForce"`
	History      []*TrialGrantResponse `json:"history"`
}

type CampaignResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	TrialTier        string     `json:"trialTier"`
	TrialDays        int        `json:"trialDays"`
	StartsAt         time.Time  `json:"startsAt"`
	EndsAt           *time.Time `json:"endsAt,omitempty"`
	IsActive         bool       `json:"isActive"`
	Status           string     `json:"status"`
	SignupsCount     int64      `json:"signupsCount"`
	ConversionsCount int64      `json:"conversionsCount"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func campaignToResponse(c *models.Campaign, now time.Time) *CampaignResponse {
	return &CampaignResponse{
		ID:               c.ID,
		Name:             c.Name,
		TrialTier:        c.TrialTier,
		TrialDays:        c.TrialDays,
		StartsAt:         c.StartsAt,
		EndsAt:           c.EndsAt,
		IsActive:         c.IsActive,
		Status:           string(c.Status(now)),
		SignupsCount:     c.SignupsCount,
		ConversionsCount: c.ConversionsCount,
		Version:          c.Version,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

type ListCampaignsResponse struct {
	Campaigns []*CampaignResponse `json:"campaigns"`
	Total     int                 `json:"total"`
}

// AuditLogResponse represents an audit log entry in HTTP response
type AuditLogResponse struct {
	ID            string                 `json:"id"`
	ActorID       *string                `json:"actorId,omitempty"`
	ActorEmail    string                 `json:"actorEmail,omitempty"`
	Action        string                 `json:"action"`
	TargetUserID  *string                `json:"targetUserId,omitempty"`
	ResourceType  *string                `json:"resourceType,omitempty"`
	ResourceID    *string                `json:"resourceId,omitempty"`
	Justification string                 `json:"justification"`
	ContainsPHI   bool                   `json:"containsPhi"`
	PHIScore      int                    `json:"phiScore"`
	RiskLevel     string                 `json:"riskLevel"`
	Success       bool                   `json:"success"`
	IPAddress     *string                `json:"ipAddress,omitempty"`
	UserAgent     *string                `json:"userAgent,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func auditLogToResponse(e *models.AuditLogEntry) *AuditLogResponse {
	return &AuditLogResponse{
		ID:            e.ID,
		ActorID:       e.ActorID,
		ActorEmail:    e.ActorEmail,
		Action:        e.Action,
		TargetUserID:  e.TargetUserID,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Justification: e.Justification,
		ContainsPHI:   e.ContainsPHI,
		PHIScore:      e.PHIScore,
		RiskLevel:     string(e.RiskLevel),
		Success:       e.Success,
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		Metadata:      e.Metadata,
		CreatedAt:     e.CreatedAt,
	}
}

type ComplianceStatsResponse struct {
	Total         int64 `json:"total"`
	PHIDetections int64 `json:"phiDetections"`
	SuccessCount  int64 `json:"successCount"`
	UniqueUsers   int64 `json:"uniqueUsers"`
}

type ComplianceFiltersResponse struct {
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Action      string    `json:"action,omitempty"`
	ContainsPHI *bool     `json:"containsPhi,omitempty"`
	RiskLevel   string    `json:"riskLevel,omitempty"`
	UserEmail   string    `json:"userEmail,omitempty"`
}

// ComplianceResponse is one page of the filtered audit log plus aggregate
// stats over the whole filtered set.
type ComplianceResponse struct {
	Logs    []*AuditLogResponse       `json:"logs"`
	Total   int64                     `json:"total"`
	Page    int                       `json:"page"`
	Limit   int                       `json:"limit"`
	Stats   ComplianceStatsResponse   `json:"stats"`
	Filters ComplianceFiltersResponse `json:"filters"`
}
