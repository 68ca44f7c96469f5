package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/pkg/logger"
)

const MaxLeadsPerRequest = 1000

type leadStore interface {
	CreateMany(ctx context.Context, campaignID int64, inputs []domain.LeadInput) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Lead, error)
	List(ctx context.Context, campaignID int64, status *domain.LeadStatus, page, pageSize int) ([]domain.Lead, int64, error)
	SetStatus(ctx context.Context, id int64, status domain.LeadStatus) error
	RequeueFailed(ctx context.Context, campaignID int64) (int64, error)
}

type activityRecorder interface {
	RecordActivity(ctx context.Context, id int64, delta domain.ActivityDelta) error
}

type LeadService struct {
	leads     leadStore
	campaigns campaignGetter
	counters  activityRecorder
	activity  activityRecorder
	now       func() time.Time
}

// NewLeadService wires lead intake. counters applies raw increments;
// activity is lifecycle aware, so a reply on a SCHEDULED campaign starts it.
func NewLeadService(
	leads leadStore,
	campaigns campaignGetter,
	counters activityRecorder,
	activity activityRecorder,
) *LeadService {
	return &LeadService{
		leads:     leads,
		campaigns: campaigns,
		counters:  counters,
		activity:  activity,
		now:       time.Now,
	}
}

func (s *LeadService) ownedCampaign(ctx context.Context, agentID, campaignID int64) (*domain.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.AgentID != agentID {
		return nil, domain.NotFoundf("campaign %d", campaignID)
	}
	return campaign, nil
}

// AddLeads queues new leads on a campaign and returns how many were created.
func (s *LeadService) AddLeads(
	ctx context.Context,
	agentID, campaignID int64,
	inputs []domain.LeadInput,
) (int64, error) {
	if len(inputs) == 0 {
		return 0, domain.Validationf("at least one lead is required")
	}
	if len(inputs) > MaxLeadsPerRequest {
		return 0, domain.Validationf("at most %d leads per request", MaxLeadsPerRequest)
	}

	campaign, err := s.ownedCampaign(ctx, agentID, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.Status.IsTerminal() {
		return 0, domain.Validationf("campaign %d is %s and accepts no new leads", campaignID, campaign.Status)
	}

	seen := make(map[string]struct{}, len(inputs))
	for i := range inputs {
		inputs[i].Name = strings.TrimSpace(inputs[i].Name)
		inputs[i].Phone = strings.TrimSpace(inputs[i].Phone)
		if inputs[i].Phone == "" {
			return 0, domain.Validationf("lead %d has no phone", i)
		}
		if _, dup := seen[inputs[i].Phone]; dup {
			return 0, domain.Validationf("phone %s appears more than once", inputs[i].Phone)
		}
		seen[inputs[i].Phone] = struct{}{}
	}

	created, err := s.leads.CreateMany(ctx, campaignID, inputs)
	if err != nil {
		return 0, err
	}

	if created > 0 {
		if err := s.counters.RecordActivity(ctx, campaignID, domain.ActivityDelta{LeadsCount: created}); err != nil {
			return created, err
		}
	}

	logger.Infof("[Campaign %d] Queued %d leads", campaignID, created)

	return created, nil
}

func (s *LeadService) ListLeads(
	ctx context.Context,
	agentID, campaignID int64,
	status *domain.LeadStatus,
	page, pageSize int,
) ([]domain.Lead, int64, error) {
	if status != nil && !status.Valid() {
		return nil, 0, domain.Validationf("unknown lead status %q", *status)
	}

	if _, err := s.ownedCampaign(ctx, agentID, campaignID); err != nil {
		return nil, 0, err
	}

	return s.leads.List(ctx, campaignID, status, page, pageSize)
}

// MarkAnswered records a reply from a lead. Answering twice is a no-op.
func (s *LeadService) MarkAnswered(ctx context.Context, agentID, leadID int64) (*domain.Lead, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if _, err := s.ownedCampaign(ctx, agentID, lead.CampaignID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("lead %d", leadID)
		}
		return nil, err
	}

	if lead.Status == domain.LeadAnswered {
		return lead, nil
	}

	if err := s.leads.SetStatus(ctx, leadID, domain.LeadAnswered); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.activity.RecordActivity(ctx, lead.CampaignID, domain.ActivityDelta{
		AnsweredLeadsCount: 1,
		LastActivityAt:     &now,
	}); err != nil {
		return nil, err
	}

	return s.leads.GetByID(ctx, leadID)
}

// RequeueFailed moves the campaign's FAILED leads back to NEED_RETRY.
func (s *LeadService) RequeueFailed(ctx context.Context, agentID, campaignID int64) (int64, error) {
	campaign, err := s.ownedCampaign(ctx, agentID, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.Status.IsTerminal() {
		return 0, domain.Validationf("campaign %d is %s", campaignID, campaign.Status)
	}

	requeued, err := s.leads.RequeueFailed(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	logger.Infof("[Campaign %d] Requeued %d failed leads", campaignID, requeued)

	return requeued, nil
}
