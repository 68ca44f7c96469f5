package service

import (
	"context"
	"strings"
	"time"

	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/internal/pacing"
	"github.com/onurcolak/outreach-campaign-service/pkg/logger"
)

const (
	MaxBatchSize       = 500
	MaxBatchIntervalMs = 60_000
	MinPacingWindow    = time.Minute
	MaxPacingWindow    = 30 * 24 * time.Hour
)

type campaignStore interface {
	Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error)
	GetByID(ctx context.Context, id int64) (*domain.Campaign, error)
	List(ctx context.Context, agentID int64, status *domain.CampaignStatus, page, pageSize int) ([]domain.Campaign, int64, error)
	Update(ctx context.Context, c *domain.Campaign) error
	SetStatus(ctx context.Context, id int64, from, to domain.CampaignStatus, at time.Time) error
	SaveSchedule(ctx context.Context, id int64, cfg *domain.BroadcastConfig, scheduledAt time.Time, status domain.CampaignStatus) error
	RecordActivity(ctx context.Context, id int64, delta domain.ActivityDelta) error
	Delete(ctx context.Context, id int64) error
}

type leadStatusCounter interface {
	CountByStatus(ctx context.Context, campaignID int64) (map[domain.LeadStatus]int64, error)
}

type templateGetter interface {
	GetByID(ctx context.Context, id int64) (*domain.Template, error)
}

type CampaignInput struct {
	Name               string
	Type               domain.CampaignType
	AgentEnabled       bool
	AssignedTemplateID *int64
}

// BroadcastSettings are the caller-supplied broadcast options. Nil fields
// take the configured defaults.
type BroadcastSettings struct {
	TemplateID      *int64
	FilterStatus    []domain.LeadStatus
	Limit           *int
	BatchSize       *int
	BatchIntervalMs *int64
	Duration        *time.Duration
}

// ScheduleInput sets the broadcast start either absolutely or relative to now.
type ScheduleInput struct {
	StartAt  *time.Time
	StartIn  *time.Duration
	Settings BroadcastSettings
}

type CampaignService struct {
	campaigns campaignStore
	leads     leadStatusCounter
	templates templateGetter
	config    environments.SchedulerConfig
	now       func() time.Time
}

func NewCampaignService(
	campaigns campaignStore,
	leads leadStatusCounter,
	templates templateGetter,
	config environments.SchedulerConfig,
) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		leads:     leads,
		templates: templates,
		config:    config,
		now:       time.Now,
	}
}

func (s *CampaignService) CreateCampaign(ctx context.Context, agentID int64, in CampaignInput) (*domain.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Validationf("name is required")
	}

	campaignType := in.Type
	if campaignType == "" {
		campaignType = domain.CampaignOutbound
	}
	if campaignType != domain.CampaignOutbound && campaignType != domain.CampaignInbound {
		return nil, domain.Validationf("unknown campaign type %q", in.Type)
	}

	if in.AssignedTemplateID != nil {
		return nil, domain.Validationf("templates can be assigned once the campaign exists")
	}

	return s.campaigns.Create(ctx, &domain.Campaign{
		AgentID:      agentID,
		Name:         name,
		Type:         campaignType,
		Status:       domain.CampaignDraft,
		AgentEnabled: in.AgentEnabled,
		Stats:        domain.JSONMap{},
	})
}

// GetCampaign returns the campaign if it exists and belongs to agentID.
func (s *CampaignService) GetCampaign(ctx context.Context, agentID, id int64) (*domain.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if campaign.AgentID != agentID {
		return nil, domain.NotFoundf("campaign %d", id)
	}

	return campaign, nil
}

func (s *CampaignService) ListCampaigns(
	ctx context.Context,
	agentID int64,
	status *domain.CampaignStatus,
	page, pageSize int,
) ([]domain.Campaign, int64, error) {
	if status != nil && !status.Valid() {
		return nil, 0, domain.Validationf("unknown campaign status %q", *status)
	}
	return s.campaigns.List(ctx, agentID, status, page, pageSize)
}

func (s *CampaignService) UpdateCampaign(
	ctx context.Context,
	agentID, id int64,
	patch domain.CampaignPatch,
) (*domain.Campaign, error) {
	campaign, err := s.GetCampaign(ctx, agentID, id)
	if err != nil {
		return nil, err
	}

	if campaign.Status.IsTerminal() && (patch.Type != nil || patch.AgentEnabled != nil) {
		return nil, domain.Validationf("campaign %d is %s and can no longer change type or enablement",
			id, campaign.Status)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, domain.Validationf("name must not be empty")
		}
		campaign.Name = name
	}

	if patch.Type != nil {
		if *patch.Type != domain.CampaignOutbound && *patch.Type != domain.CampaignInbound {
			return nil, domain.Validationf("unknown campaign type %q", *patch.Type)
		}
		campaign.Type = *patch.Type
	}

	if patch.AgentEnabled != nil {
		campaign.AgentEnabled = *patch.AgentEnabled
	}

	switch {
	case patch.ClearTemplate:
		campaign.AssignedTemplateID = nil
	case patch.AssignedTemplateID != nil:
		if err := s.requireCampaignTemplate(ctx, campaign.ID, *patch.AssignedTemplateID); err != nil {
			return nil, err
		}
		campaign.AssignedTemplateID = patch.AssignedTemplateID
	}

	if err := s.campaigns.Update(ctx, campaign); err != nil {
		return nil, err
	}

	return s.campaigns.GetByID(ctx, id)
}

// ChangeStatus applies an explicit lifecycle transition. Scheduling goes
// through ScheduleBroadcast, which also stores the start time.
func (s *CampaignService) ChangeStatus(
	ctx context.Context,
	agentID, id int64,
	to domain.CampaignStatus,
) (*domain.Campaign, error) {
	if !to.Valid() {
		return nil, domain.Validationf("unknown campaign status %q", to)
	}

	campaign, err := s.GetCampaign(ctx, agentID, id)
	if err != nil {
		return nil, err
	}

	if err := domain.AssertTransition(campaign.Status, to); err != nil {
		return nil, err
	}

	if to == domain.CampaignScheduled {
		return nil, domain.Validationf("schedule a broadcast to move campaign %d to %s", id, to)
	}

	if err := s.campaigns.SetStatus(ctx, id, campaign.Status, to, s.now()); err != nil {
		return nil, err
	}

	logger.Infof("[Campaign %d] Status changed %s -> %s", id, campaign.Status, to)

	return s.campaigns.GetByID(ctx, id)
}

// ScheduleBroadcast stores the broadcast configuration and start time and
// moves a DRAFT campaign to SCHEDULED. A pacing window opens at the start
// time when a duration is given.
func (s *CampaignService) ScheduleBroadcast(
	ctx context.Context,
	agentID, id int64,
	in ScheduleInput,
) (*domain.Campaign, error) {
	campaign, err := s.GetCampaign(ctx, agentID, id)
	if err != nil {
		return nil, err
	}

	status := campaign.Status
	switch campaign.Status {
	case domain.CampaignDraft:
		if err := domain.AssertTransition(campaign.Status, domain.CampaignScheduled); err != nil {
			return nil, err
		}
		status = domain.CampaignScheduled
	case domain.CampaignScheduled, domain.CampaignRunning:
	default:
		return nil, &domain.InvalidTransitionError{From: campaign.Status, To: domain.CampaignScheduled}
	}

	startAt, err := s.resolveStart(in)
	if err != nil {
		return nil, err
	}

	cfg, err := s.buildBroadcastConfig(ctx, campaign.ID, startAt, in.Settings)
	if err != nil {
		return nil, err
	}

	if err := s.campaigns.SaveSchedule(ctx, id, cfg, startAt, status); err != nil {
		return nil, err
	}

	logger.Infof("[Campaign %d] Broadcast scheduled at %s (paced: %t)", id, startAt.Format(time.RFC3339), cfg.Paced())

	return s.campaigns.GetByID(ctx, id)
}

func (s *CampaignService) resolveStart(in ScheduleInput) (time.Time, error) {
	switch {
	case in.StartAt != nil && in.StartIn != nil:
		return time.Time{}, domain.Validationf("set either startAt or startIn, not both")
	case in.StartAt != nil:
		return in.StartAt.UTC().Truncate(time.Millisecond), nil
	case in.StartIn != nil:
		if *in.StartIn < 0 {
			return time.Time{}, domain.Validationf("startIn must not be negative")
		}
		return s.now().UTC().Add(*in.StartIn).Truncate(time.Millisecond), nil
	default:
		return time.Time{}, domain.Validationf("startAt or startIn is required")
	}
}

func (s *CampaignService) buildBroadcastConfig(
	ctx context.Context,
	campaignID int64,
	startAt time.Time,
	in BroadcastSettings,
) (*domain.BroadcastConfig, error) {
	cfg := &domain.BroadcastConfig{
		Version: domain.BroadcastConfigVersion,
		Batch: domain.BatchSettings{
			Size:       s.config.DefaultBatchSize,
			IntervalMs: s.config.DefaultBatchIntervalMs,
		},
	}
	if cfg.Batch.Size <= 0 {
		cfg.Batch.Size = domain.DefaultBroadcastBatchSize
	}

	if in.TemplateID != nil {
		if err := s.requireCampaignTemplate(ctx, campaignID, *in.TemplateID); err != nil {
			return nil, err
		}
		id := *in.TemplateID
		cfg.TemplateID = &id
	}

	cfg.FilterStatus = []domain.LeadStatus{domain.LeadQueued}
	if len(in.FilterStatus) > 0 {
		seen := make(map[domain.LeadStatus]struct{}, len(in.FilterStatus))
		cfg.FilterStatus = cfg.FilterStatus[:0]
		for _, st := range in.FilterStatus {
			if !st.Filterable() {
				return nil, domain.Validationf("filterStatus may only contain %s and %s, got %q",
					domain.LeadQueued, domain.LeadNeedRetry, st)
			}
			if _, dup := seen[st]; dup {
				continue
			}
			seen[st] = struct{}{}
			cfg.FilterStatus = append(cfg.FilterStatus, st)
		}
	}

	if in.Limit != nil {
		if *in.Limit < 1 {
			return nil, domain.Validationf("limit must be at least 1")
		}
		limit := *in.Limit
		cfg.Limit = &limit
	}

	if in.BatchSize != nil {
		if *in.BatchSize < 1 || *in.BatchSize > MaxBatchSize {
			return nil, domain.Validationf("batch size must be between 1 and %d", MaxBatchSize)
		}
		cfg.Batch.Size = *in.BatchSize
	}

	if in.BatchIntervalMs != nil {
		if *in.BatchIntervalMs < 0 || *in.BatchIntervalMs > MaxBatchIntervalMs {
			return nil, domain.Validationf("batch interval must be between 0 and %d ms", MaxBatchIntervalMs)
		}
		cfg.Batch.IntervalMs = *in.BatchIntervalMs
	}

	if in.Duration != nil {
		if *in.Duration < MinPacingWindow || *in.Duration > MaxPacingWindow {
			return nil, domain.Validationf("duration must be between %s and %s", MinPacingWindow, MaxPacingWindow)
		}
		ms := in.Duration.Milliseconds()
		cfg.DurationMs = &ms
		cfg.Pacing = pacing.NewState(startAt, time.Duration(ms)*time.Millisecond)
	}

	return cfg, nil
}

func (s *CampaignService) requireCampaignTemplate(ctx context.Context, campaignID, templateID int64) error {
	tmpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return err
	}

	if tmpl.CampaignID != campaignID {
		return domain.Validationf("template %d does not belong to campaign %d", templateID, campaignID)
	}

	return nil
}

// RecordActivity applies counter increments. Activity on a SCHEDULED
// campaign starts it.
func (s *CampaignService) RecordActivity(ctx context.Context, id int64, delta domain.ActivityDelta) error {
	if delta.TotalMessages < 0 || delta.LeadsCount < 0 || delta.AnsweredLeadsCount < 0 {
		return domain.Validationf("activity counters only increase")
	}

	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()

	if campaign.Status == domain.CampaignScheduled {
		if err := domain.AssertTransition(campaign.Status, domain.CampaignRunning); err != nil {
			return err
		}
		if err := s.campaigns.SetStatus(ctx, id, campaign.Status, domain.CampaignRunning, now); err != nil {
			return err
		}
	}

	if delta.LastActivityAt == nil {
		delta.LastActivityAt = &now
	}

	return s.campaigns.RecordActivity(ctx, id, delta)
}

func (s *CampaignService) DeleteCampaign(ctx context.Context, agentID, id int64) error {
	campaign, err := s.GetCampaign(ctx, agentID, id)
	if err != nil {
		return err
	}

	if campaign.Status != domain.CampaignDraft {
		return domain.Conflictf("only draft campaigns can be deleted, campaign %d is %s", id, campaign.Status)
	}

	return s.campaigns.Delete(ctx, id)
}

func (s *CampaignService) GetCampaignStats(ctx context.Context, agentID, id int64) (*domain.CampaignStats, error) {
	campaign, err := s.GetCampaign(ctx, agentID, id)
	if err != nil {
		return nil, err
	}

	counts, err := s.leads.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &domain.CampaignStats{
		CampaignID:         campaign.ID,
		Status:             campaign.Status,
		TotalMessages:      campaign.TotalMessages,
		LeadsCount:         campaign.LeadsCount,
		AnsweredLeadsCount: campaign.AnsweredLeadsCount,
		LeadsByStatus:      counts,
	}
	if campaign.Broadcast != nil && campaign.Broadcast.Pacing != nil {
		p := campaign.Broadcast.Pacing.Clone()
		stats.Pacing = &p
	}

	return stats, nil
}
