package service

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/calleopard-backend/internal/errors"
	"github.com/unclebandit/calleopard-backend/internal/model"
	"github.com/unclebandit/calleopard-backend/internal/repository"
	"github.com/unclebandit/calleopard-backend/internal/statestore"
)

type CampaignServiceInterface interface {
	CreateCampaign(ctx context.Context, campaign *model.Campaign) error
	ImportContacts(ctx context.Context, campaignID int, inputs []ContactInput) (*ImportResult, error)
	StartCampaign(ctx context.Context, campaignID int) (model.CampaignStatus, error)
	PauseCampaign(ctx context.Context, campaignID int) error
	ResumeCampaign(ctx context.Context, campaignID int) error
	StopCampaign(ctx context.Context, campaignID int) error
	GetCampaignState(ctx context.Context, campaignID int) (model.CampaignStatus, error)
	GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error)
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	States       *statestore.Store
	Logger       *zap.SugaredLogger

	// Now is the control-plane clock; tests pin it. Nil means time.Now.
	Now func() time.Time
}

var _ CampaignServiceInterface = (*CampaignService)(nil)

type ContactInput struct {
	Phone         string `json:"phone"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	ConsentStatus string `json:"consent_status"`
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Rejected []string `json:"rejected,omitempty"`
}

type CampaignDetails struct {
	ID                 int                  `json:"id"`
	Name               string               `json:"name"`
	AgentID            string               `json:"agent_id"`
	Status             model.CampaignStatus `json:"status"`
	BatchSize          int                  `json:"batch_size"`
	MaxConcurrentCalls int                  `json:"max_concurrent_calls"`
	MaxAttempts        int                  `json:"max_attempts"`
	ScheduledAt        *time.Time           `json:"scheduled_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	LastTickAt         *time.Time           `json:"last_tick_at,omitempty"`
	Stats              map[string]int       `json:"stats"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, campaign *model.Campaign) error {
	if strings.TrimSpace(campaign.Name) == "" {
		return appErrors.NewValidation("campaign name is required")
	}
	if strings.TrimSpace(campaign.AgentID) == "" {
		return appErrors.NewValidation("agent_id is required")
	}
	w := campaign.CallingWindow
	if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
		return appErrors.NewValidation("calling window hours are invalid")
	}
	if campaign.ScheduledAt != nil && campaign.ScheduledAt.Before(s.now()) {
		return appErrors.NewValidation("scheduled_at must be in the future")
	}

	campaign.Status = model.CampaignDraft
	if err := s.CampaignRepo.Create(ctx, campaign); err != nil {
		return err
	}
	s.States.Hydrate(campaign.ID, model.CampaignDraft)
	s.Logger.Infow("campaign created", "campaign_id", campaign.ID, "name", campaign.Name)
	return nil
}

func (s *CampaignService) ImportContacts(ctx context.Context, campaignID int, inputs []ContactInput) (*ImportResult, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status.IsTerminal() {
		return nil, appErrors.NewValidation("cannot import contacts into a finished campaign")
	}

	result := &ImportResult{}
	contacts := make([]*model.Contact, 0, len(inputs))
	for _, in := range inputs {
		phone, ok := NormalizePhone(in.Phone)
		if !ok {
			result.Rejected = append(result.Rejected, in.Phone)
			continue
		}
		consent := model.ConsentStatus(in.ConsentStatus)
		if consent != model.ConsentGranted && consent != model.ConsentRevoked {
			consent = model.ConsentUnknown
		}
		contacts = append(contacts, &model.Contact{
			CampaignID:    campaignID,
			Phone:         phone,
			FirstName:     in.FirstName,
			LastName:      in.LastName,
			ConsentStatus: consent,
			Status:        model.ContactPending,
		})
	}

	if len(contacts) > 0 {
		if err := s.ContactRepo.BulkCreate(ctx, contacts); err != nil {
			return nil, err
		}
	}
	result.Imported = len(contacts)
	s.Logger.Infow("contacts imported",
		"campaign_id", campaignID, "imported", result.Imported, "rejected", len(result.Rejected))
	return result, nil
}

// StartCampaign moves a draft campaign into the execution pipeline. A future
// scheduled_at parks it in scheduled for the scheduler to promote; otherwise
// it goes straight to running and the next tick picks it up.
func (s *CampaignService) StartCampaign(ctx context.Context, campaignID int) (model.CampaignStatus, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return "", err
	}

	target := model.CampaignRunning
	if campaign.ScheduledAt != nil && campaign.ScheduledAt.After(s.now()) {
		target = model.CampaignScheduled
	}

	if err := s.transition(ctx, campaign, target); err != nil {
		return "", err
	}
	return target, nil
}

func (s *CampaignService) PauseCampaign(ctx context.Context, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.transition(ctx, campaign, model.CampaignPaused)
}

func (s *CampaignService) ResumeCampaign(ctx context.Context, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.transition(ctx, campaign, model.CampaignRunning)
}

func (s *CampaignService) StopCampaign(ctx context.Context, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.transition(ctx, campaign, model.CampaignStopped)
}

// transition applies the state change to the in-memory store first, which
// enforces the legal transition graph atomically, then persists it. Setting
// the same state twice is a no-op, so concurrent identical requests all
// succeed.
func (s *CampaignService) transition(ctx context.Context, campaign *model.Campaign, target model.CampaignStatus) error {
	s.States.Hydrate(campaign.ID, campaign.Status)
	if err := s.States.SetState(campaign.ID, target); err != nil {
		return err
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, campaign.ID, target); err != nil {
		return err
	}
	s.Logger.Infow("campaign state changed",
		"campaign_id", campaign.ID, "from", campaign.Status, "to", target)
	return nil
}

func (s *CampaignService) GetCampaignState(ctx context.Context, campaignID int) (model.CampaignStatus, error) {
	if state, ok := s.States.GetState(campaignID); ok {
		return state, nil
	}
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return "", err
	}
	s.States.Hydrate(campaignID, campaign.Status)
	return campaign.Status, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.ContactRepo.StatusCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	status := campaign.Status
	if state, ok := s.States.GetState(campaignID); ok {
		status = state
	}
	var lastTick *time.Time
	if ts, ok := s.States.LastTickAt(campaignID); ok {
		lastTick = &ts
	}

	return &CampaignDetails{
		ID:                 campaign.ID,
		Name:               campaign.Name,
		AgentID:            campaign.AgentID,
		Status:             status,
		BatchSize:          campaign.BatchSize,
		MaxConcurrentCalls: campaign.MaxConcurrentCalls,
		MaxAttempts:        campaign.MaxAttempts,
		ScheduledAt:        campaign.ScheduledAt,
		CreatedAt:          campaign.CreatedAt,
		LastTickAt:         lastTick,
		Stats:              stats,
	}, nil
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// NormalizePhone reduces free-form input to E.164 for US numbers. Ten digits
// get the country code prepended; eleven digits must already start with 1.
func NormalizePhone(raw string) (string, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d, true
	case len(d) == 11 && d[0] == '1':
		return "+" + d, true
	default:
		return "", false
	}
}
