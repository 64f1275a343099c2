package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/scribe/internal/metrics"
	"github.com/BradenHooton/scribe/internal/models"
)

// CampaignService manages promotional trial campaigns.
type CampaignService struct {
	tx     Transactor
	audit  *AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewCampaignService creates a new CampaignService
func NewCampaignService(tx Transactor, audit *AuditLogger, logger *slog.Logger) *CampaignService {
	return &CampaignService{
		tx:     tx,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Now is the clock used for status derivation.
func (s *CampaignService) Now() time.Time {
	return s.now()
}

func (s *CampaignService) Get(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign *models.Campaign
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		var err error
		campaign, err = repos.Campaigns.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *CampaignService) List(ctx context.Context) ([]*models.Campaign, error) {
	var campaigns []*models.Campaign
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		var err error
		campaigns, err = repos.Campaigns.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

// Create validates input and stores a new campaign. Names are unique ignoring case.
func (s *CampaignService) Create(ctx context.Context, actor models.Actor, input models.CampaignInput) (*models.Campaign, error) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignCreate, "", err)
	}

	justification, err := s.audit.Score(ctx, models.AuditActionCampaignCreate, fmt.Sprintf("campaign %q created", input.Name))
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignCreate, input.Name, err)
	}

	var created *models.Campaign
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		if _, err := loadActingAdmin(ctx, repos.Users, actor); err != nil {
			return err
		}

		exists, err := repos.Campaigns.NameExists(ctx, input.Name, "")
		if err != nil {
			return err
		}
		if exists {
			return models.ErrDuplicateName
		}

		created, err = repos.Campaigns.Create(ctx, campaignFromInput(input))
		if err != nil {
			return err
		}

		entry := newAuditEntry(actor, models.AuditActionCampaignCreate)
		entry.ResourceType = stringPtr(models.AuditResourceTypeCampaign)
		entry.ResourceID = stringPtr(created.ID)
		entry.Metadata = campaignMetadata(created)
		_, err = s.audit.Append(ctx, repos.Audit, entry, justification)
		return err
	})
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignCreate, input.Name, err)
	}

	metrics.RecordMutation(models.AuditActionCampaignCreate, nil)
	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", created.ID),
		slog.String("name", created.Name))

	return created, nil
}

// Update replaces the editable fields of a campaign.
func (s *CampaignService) Update(ctx context.Context, actor models.Actor, id string, input models.CampaignInput) (*models.Campaign, error) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignUpdate, id, err)
	}

	justification, err := s.audit.Score(ctx, models.AuditActionCampaignUpdate, fmt.Sprintf("campaign %q updated", input.Name))
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignUpdate, id, err)
	}

	var updated *models.Campaign
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		if _, err := loadActingAdmin(ctx, repos.Users, actor); err != nil {
			return err
		}

		current, err := repos.Campaigns.GetByID(ctx, id)
		if err != nil {
			return err
		}

		exists, err := repos.Campaigns.NameExists(ctx, input.Name, id)
		if err != nil {
			return err
		}
		if exists {
			return models.ErrDuplicateName
		}

		next := campaignFromInput(input)
		next.ID = current.ID
		next.Version = current.Version
		updated, err = repos.Campaigns.Update(ctx, next)
		if err != nil {
			return err
		}

		entry := newAuditEntry(actor, models.AuditActionCampaignUpdate)
		entry.ResourceType = stringPtr(models.AuditResourceTypeCampaign)
		entry.ResourceID = stringPtr(updated.ID)
		entry.Metadata = campaignMetadata(updated)
		entry.Metadata["previous_name"] = current.Name
		_, err = s.audit.Append(ctx, repos.Audit, entry, justification)
		return err
	})
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignUpdate, id, err)
	}

	metrics.RecordMutation(models.AuditActionCampaignUpdate, nil)
	return updated, nil
}

// Toggle sets the active flag. Other campaigns are left untouched.
func (s *CampaignService) Toggle(ctx context.Context, actor models.Actor, id string, isActive bool, reason string) (*models.Campaign, error) {
	verb := "deactivated"
	if isActive {
		verb = "activated"
	}
	justification, describedName, err := s.scoreJustification(ctx, models.AuditActionCampaignToggle, id, reason,
		func(name string) string { return fmt.Sprintf("campaign %q %s", name, verb) })
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignToggle, id, err)
	}

	var updated *models.Campaign
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		if _, err := loadActingAdmin(ctx, repos.Users, actor); err != nil {
			return err
		}

		current, err := repos.Campaigns.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := checkDescribedName(current, describedName); err != nil {
			return err
		}
		if current.IsActive == isActive {
			return models.ErrCampaignAlreadyInState
		}

		next := *current
		next.IsActive = isActive
		updated, err = repos.Campaigns.Update(ctx, &next)
		if err != nil {
			return err
		}

		entry := newAuditEntry(actor, models.AuditActionCampaignToggle)
		entry.ResourceType = stringPtr(models.AuditResourceTypeCampaign)
		entry.ResourceID = stringPtr(id)
		entry.Metadata = models.AuditMetadata{"is_active": isActive, "name": current.Name}
		_, err = s.audit.Append(ctx, repos.Audit, entry, justification)
		return err
	})
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignToggle, id, err)
	}

	metrics.RecordMutation(models.AuditActionCampaignToggle, nil)
	s.logger.InfoContext(ctx, "campaign toggled",
		slog.String("campaign_id", id),
		slog.Bool("is_active", isActive))

	return updated, nil
}

// Delete removes a campaign that has never recorded a signup.
func (s *CampaignService) Delete(ctx context.Context, actor models.Actor, id, reason string) error {
	justification, describedName, err := s.scoreJustification(ctx, models.AuditActionCampaignDelete, id, reason,
		func(name string) string { return fmt.Sprintf("campaign %q deleted", name) })
	if err != nil {
		return s.reject(ctx, models.AuditActionCampaignDelete, id, err)
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		if _, err := loadActingAdmin(ctx, repos.Users, actor); err != nil {
			return err
		}

		current, err := repos.Campaigns.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := checkDescribedName(current, describedName); err != nil {
			return err
		}
		if current.SignupsCount > 0 {
			return models.ErrHasSignups
		}

		if err := repos.Campaigns.Delete(ctx, id, current.Version); err != nil {
			return err
		}

		entry := newAuditEntry(actor, models.AuditActionCampaignDelete)
		entry.ResourceType = stringPtr(models.AuditResourceTypeCampaign)
		entry.ResourceID = stringPtr(id)
		entry.Metadata = campaignMetadata(current)
		_, err = s.audit.Append(ctx, repos.Audit, entry, justification)
		return err
	})
	if err != nil {
		return s.reject(ctx, models.AuditActionCampaignDelete, id, err)
	}

	metrics.RecordMutation(models.AuditActionCampaignDelete, nil)
	return nil
}

// ApplySignupCampaign grants the running campaign's trial to a new signup.
// It returns a nil grant when no campaign is running or the user already
// holds a grant from it. When several campaigns run at once the most
// recently started one wins.
func (s *CampaignService) ApplySignupCampaign(ctx context.Context, userID string) (*models.TrialGrant, error) {
	now := s.now()

	var selected *models.Campaign
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsTombstoned() {
			return models.ErrAlreadyDeleted
		}
		selected, err = runningCampaign(ctx, repos.Campaigns, now)
		return err
	})
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignTrialGrant, userID, err)
	}
	if selected == nil {
		return nil, nil
	}

	justification, err := s.audit.Score(ctx, models.AuditActionCampaignTrialGrant,
		fmt.Sprintf("signup during campaign %q", selected.Name))
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignTrialGrant, userID, err)
	}

	var grant *models.TrialGrant
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsTombstoned() {
			return models.ErrAlreadyDeleted
		}

		campaign, err := runningCampaign(ctx, repos.Campaigns, now)
		if err != nil {
			return err
		}
		if campaign == nil {
			return nil
		}
		if campaign.ID != selected.ID || campaign.Name != selected.Name {
			return fmt.Errorf("%w: running campaign changed during signup", models.ErrConflict)
		}

		source := models.CampaignTrialSource(campaign.ID)
		history, err := repos.Trials.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, g := range history {
			if g.Source == source {
				return nil
			}
		}

		grant, err = repos.Trials.Create(ctx, &models.TrialGrant{
			UserID:        userID,
			Tier:          campaign.TrialTier,
			StartedAt:     now,
			EndsAt:        now.Add(time.Duration(campaign.TrialDays) * 24 * time.Hour),
			Source:        source,
			Justification: justification.Text,
		})
		if err != nil {
			return err
		}

		next := *user
		next.Tier = campaign.TrialTier
		next.TrialEndsAt = &grant.EndsAt
		if _, err := repos.Users.UpdateLifecycle(ctx, &next); err != nil {
			return err
		}

		if _, err := repos.Campaigns.IncrementSignups(ctx, campaign.ID); err != nil {
			return err
		}

		entry := newAuditEntry(models.Actor{}, models.AuditActionCampaignTrialGrant)
		entry.TargetUserID = stringPtr(userID)
		entry.ResourceType = stringPtr(models.AuditResourceTypeCampaign)
		entry.ResourceID = stringPtr(campaign.ID)
		entry.Metadata = models.AuditMetadata{
			"tier":          campaign.TrialTier,
			"duration_days": campaign.TrialDays,
			"grant_id":      grant.ID,
		}
		_, err = s.audit.Append(ctx, repos.Audit, entry, justification)
		return err
	})
	if err != nil {
		return nil, s.reject(ctx, models.AuditActionCampaignTrialGrant, userID, err)
	}

	if grant != nil {
		metrics.RecordMutation(models.AuditActionCampaignTrialGrant, nil)
		metrics.RecordTrialDecision(models.TrialOutcomeGranted, grant.Source)
		s.logger.InfoContext(ctx, "campaign trial granted",
			slog.String("user_id", userID),
			slog.String("campaign_id", selected.ID))
	}

	return grant, nil
}

// RecordConversion counts a paid conversion against a campaign. It is fed by
// billing, not by an admin, so no audit entry is written.
func (s *CampaignService) RecordConversion(ctx context.Context, campaignID string) (*models.Campaign, error) {
	var updated *models.Campaign
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos Repos) error {
		var err error
		updated, err = repos.Campaigns.IncrementConversions(ctx, campaignID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *CampaignService) reject(ctx context.Context, action, target string, err error) error {
	metrics.RecordMutation(action, err)
	logRejection(ctx, s.logger, action, target, err)
	return err
}

func campaignFromInput(input models.CampaignInput) *models.Campaign {
	return &models.Campaign{
		Name:      input.Name,
		TrialTier: input.TrialTier,
		TrialDays: input.TrialDays,
		StartsAt:  input.StartsAt,
		EndsAt:    input.EndsAt,
		IsActive:  input.IsActive,
	}
}

func campaignMetadata(c *models.Campaign) models.AuditMetadata {
	meta := models.AuditMetadata{
		"name":       c.Name,
		"trial_tier": c.TrialTier,
		"trial_days": c.TrialDays,
		"starts_at":  c.StartsAt.Format(time.RFC3339),
		"is_active":  c.IsActive,
	}
	if c.EndsAt != nil {
		meta["ends_at"] = c.EndsAt.Format(time.RFC3339)
	}
	return meta
}

// scoreJustification scores reason, or a description of the campaign when no
// reason was given. The description needs the campaign's name, which is read
// in its own short transaction; the returned name is re-checked by the
// mutation so a concurrent rename cannot leave a stale justification.
func (s *CampaignService) scoreJustification(ctx context.Context, action, id, reason string, describe func(name string) string) (*ScoredJustification, string, error) {
	if strings.TrimSpace(reason) != "" {
		scored, err := s.audit.Score(ctx, action, reason)
		return scored, "", err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	scored, err := s.audit.Score(ctx, action, describe(current.Name))
	if err != nil {
		return nil, "", err
	}
	return scored, current.Name, nil
}

func checkDescribedName(current *models.Campaign, describedName string) error {
	if describedName != "" && current.Name != describedName {
		return fmt.Errorf("%w: campaign renamed during request", models.ErrConflict)
	}
	return nil
}

func runningCampaign(ctx context.Context, campaigns CampaignRepository, now time.Time) (*models.Campaign, error) {
	running, err := campaigns.ListRunning(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, c := range running {
		if c.IsRunning(now) {
			return c, nil
		}
	}
	return nil, nil
}
