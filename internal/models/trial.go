package models

import (
	"strings"
	"time"
)

// TrialSource records how a trial was issued.
type TrialSource string

const (
	TrialSourceSelfServe     TrialSource = "self_serve"
	TrialSourceAdminGranted  TrialSource = "admin_granted"
	TrialSourceAdminForced   TrialSource = "admin_forced"
	trialSourceCampaignPrefix            = "campaign:"
)

// CampaignTrialSource builds the source tag for a campaign-issued trial.
func CampaignTrialSource(campaignID string) TrialSource {
	return TrialSource(trialSourceCampaignPrefix + campaignID)
}

// IsCampaign reports whether the trial came from a promotional campaign.
func (s TrialSource) IsCampaign() bool {
	return strings.HasPrefix(string(s), trialSourceCampaignPrefix)
}

// CampaignID returns the campaign id embedded in a campaign source.
func (s TrialSource) CampaignID() (string, bool) {
	if !s.IsCampaign() {
		return "", false
	}
	return strings.TrimPrefix(string(s), trialSourceCampaignPrefix), true
}

// TrialGrant is an immutable record of one trial issuance.
type TrialGrant struct {
	ID            string
	UserID        string
	Tier          string
	StartedAt     time.Time
	EndsAt        time.Time
	Source        TrialSource
	Justification string
	GrantedBy     *string
	CreatedAt     time.Time
}

// HasOrganicTrial reports whether history already holds a grant that did not
// come from a campaign.
func HasOrganicTrial(history []*TrialGrant) bool {
	for _, g := range history {
		if !g.Source.IsCampaign() {
			return true
		}
	}
	return false
}

// TrialOutcome tags the result of a trial grant request.
type TrialOutcome string

const (
	TrialOutcomeGranted                TrialOutcome = "granted"
	TrialOutcomeNeedsForceConfirmation TrialOutcome = "needs_force_confirmation"
)

// TrialIneligibility explains why a non-forced grant was refused.
type TrialIneligibility struct {
	HasUsedTrial bool
	CanForce     bool
	History      []*TrialGrant
}

// TrialDecision is either a new grant or a request to confirm with force.
// Exactly one of Grant and Ineligibility is set, matching Outcome.
type TrialDecision struct {
	Outcome       TrialOutcome
	Grant         *TrialGrant
	Ineligibility *TrialIneligibility
}

// Granted reports whether a grant was created.
func (d *TrialDecision) Granted() bool {
	return d.Outcome == TrialOutcomeGranted
}
