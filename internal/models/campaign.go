package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// CampaignStatus is the display status of a campaign, recomputed on every read.
type CampaignStatus string

const (
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusEnded     CampaignStatus = "ended"
	CampaignStatusInactive  CampaignStatus = "inactive"
)

const (
	CampaignMinTrialDays = 1
	CampaignMaxTrialDays = 90
	CampaignMaxNameLen   = 100
)

// Campaign is a promotional trial campaign.
type Campaign struct {
	ID               string
	Name             string
	TrialTier        string
	TrialDays        int
	StartsAt         time.Time
	EndsAt           *time.Time
	IsActive         bool
	SignupsCount     int64
	ConversionsCount int64
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Status derives the display status at now.
func (c *Campaign) Status(now time.Time) CampaignStatus {
	return DeriveCampaignStatus(now, c.IsActive, c.StartsAt, c.EndsAt)
}

// IsRunning reports whether the campaign should grant trials at now.
// Unlike Status, an active flag left on past the end date does not count.
func (c *Campaign) IsRunning(now time.Time) bool {
	if !c.IsActive || now.Before(c.StartsAt) {
		return false
	}
	return c.EndsAt == nil || !now.After(*c.EndsAt)
}

// DeriveCampaignStatus maps the stored campaign fields to a display status.
// An active flag wins over an elapsed end date.
func DeriveCampaignStatus(now time.Time, isActive bool, startsAt time.Time, endsAt *time.Time) CampaignStatus {
	switch {
	case now.Before(startsAt):
		return CampaignStatusScheduled
	case !isActive && endsAt != nil && now.After(*endsAt):
		return CampaignStatusEnded
	case isActive:
		return CampaignStatusActive
	default:
		return CampaignStatusInactive
	}
}

// CampaignInput holds the editable campaign fields.
type CampaignInput struct {
	Name      string
	TrialTier string
	TrialDays int
	StartsAt  time.Time
	EndsAt    *time.Time
	IsActive  bool
}

// Normalize trims the name in place.
func (in *CampaignInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
}

// Validate checks the campaign fields.
func (in *CampaignInput) Validate() error {
	n := utf8.RuneCountInString(in.Name)
	if n == 0 || n > CampaignMaxNameLen {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidCampaign, CampaignMaxNameLen)
	}
	if !IsTrialTier(in.TrialTier) {
		return fmt.Errorf("%w: trial tier must be pro or team", ErrInvalidTier)
	}
	if err := ValidateDays(in.TrialDays, CampaignMinTrialDays, CampaignMaxTrialDays); err != nil {
		return err
	}
	if in.StartsAt.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidCampaign)
	}
	if in.EndsAt != nil && !in.EndsAt.After(in.StartsAt) {
		return fmt.Errorf("%w: end date must be after start date", ErrInvalidCampaign)
	}
	return nil
}
