package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/pkg/logger"
	"github.com/onurcolak/outreach-campaign-service/pkg/messenger"
)

// Messenger is the outbound channel. Implementations own their timeouts.
type Messenger interface {
	SendText(ctx context.Context, agentID int64, address, text, idempotencyKey string) (string, error)
}

type dispatchLeadStore interface {
	FindMany(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error)
	Count(ctx context.Context, campaignID int64, statusIn []domain.LeadStatus) (int, error)
	SetStatus(ctx context.Context, id int64, status domain.LeadStatus) error
	MarkInProgress(ctx context.Context, id int64, at time.Time) error
	RecordAttempt(ctx context.Context, id int64, attempt domain.LeadAttempt) error
}

type dispatchCampaignStore interface {
	SetStatus(ctx context.Context, id int64, from, to domain.CampaignStatus, at time.Time) error
	RecordActivity(ctx context.Context, id int64, delta domain.ActivityDelta) error
}

type templatePicker interface {
	PickTemplate(ctx context.Context, campaign *domain.Campaign, explicitID *int64) (*domain.Template, error)
}

type sentCache interface {
	CacheSentMessage(ctx context.Context, entry domain.SentMessageCache) error
	GetCachedMessage(ctx context.Context, leadID int64) (*domain.SentMessageCache, error)
}

// RunParams bounds one dispatcher run for one campaign.
type RunParams struct {
	Allowed    int
	BatchSize  int
	Throttle   time.Duration
	MaxBatches int
	// Drain lifts the MaxBatches ceiling so the run continues until Allowed
	// leads are attempted or none match the filter.
	Drain        bool
	FilterStatus []domain.LeadStatus
	TemplateID   *int64
}

type RunResult struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Completed bool `json:"completed"`
}

// Dispatcher sends bounded batches of leads for one campaign. Leads are sent
// one at a time; a failed lead is recorded and the batch moves on.
type Dispatcher struct {
	leads       dispatchLeadStore
	campaigns   dispatchCampaignStore
	templates   templatePicker
	messenger   Messenger
	cache       sentCache
	maxAttempts int
	now         func() time.Time
}

// NewDispatcher wires a dispatcher. cache may be nil; maxAttempts <= 0 keeps
// failed leads retryable forever.
func NewDispatcher(
	leads dispatchLeadStore,
	campaigns dispatchCampaignStore,
	templates templatePicker,
	messenger Messenger,
	cache sentCache,
	maxAttempts int,
) *Dispatcher {
	return &Dispatcher{
		leads:       leads,
		campaigns:   campaigns,
		templates:   templates,
		messenger:   messenger,
		cache:       cache,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (d *Dispatcher) Run(ctx context.Context, campaign *domain.Campaign, params RunParams) (RunResult, error) {
	var result RunResult

	if !campaign.IsSendable() {
		return result, fmt.Errorf("%w: campaign %d (status %s, agentEnabled %t)",
			domain.ErrNotSendable, campaign.ID, campaign.Status, campaign.AgentEnabled)
	}

	tmpl, err := d.templates.PickTemplate(ctx, campaign, params.TemplateID)
	if err != nil {
		return result, err
	}
	if tmpl == nil {
		return result, fmt.Errorf("%w for campaign %d", domain.ErrNoActiveTemplate, campaign.ID)
	}

	filter := params.FilterStatus
	if len(filter) == 0 {
		filter = []domain.LeadStatus{domain.LeadQueued}
	}

	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = domain.DefaultBroadcastBatchSize
	}

	var limiter *rate.Limiter
	if params.Throttle > 0 {
		limiter = rate.NewLimiter(rate.Every(params.Throttle), 1)
	}

	for batch := 0; params.Drain || batch < params.MaxBatches; batch++ {
		left := params.Allowed - result.Attempted
		if left <= 0 {
			break
		}

		leads, err := d.leads.FindMany(ctx, domain.LeadFilter{
			CampaignID: campaign.ID,
			StatusIn:   filter,
			Limit:      min(batchSize, left),
		})
		if err != nil {
			return result, err
		}
		if len(leads) == 0 {
			break
		}

		if campaign.Status == domain.CampaignScheduled {
			if err := d.transition(ctx, campaign, domain.CampaignRunning); err != nil {
				return result, err
			}
		}

		succeeded, waitErr := d.sendBatch(ctx, campaign, tmpl, leads, limiter, &result)

		if err := d.campaigns.RecordActivity(ctx, campaign.ID, domain.ActivityDelta{
			TotalMessages:  int64(succeeded),
			LastActivityAt: ptrTime(d.now()),
		}); err != nil {
			return result, err
		}

		if waitErr != nil {
			return result, waitErr
		}
	}

	completed, err := d.completeIfDrained(ctx, campaign)
	if err != nil {
		return result, err
	}
	result.Completed = completed

	return result, nil
}

// sendBatch sends leads sequentially and returns the batch's successes. It
// stops early only when the context ends while waiting on the throttle.
func (d *Dispatcher) sendBatch(
	ctx context.Context,
	campaign *domain.Campaign,
	tmpl *domain.Template,
	leads []domain.Lead,
	limiter *rate.Limiter,
	result *RunResult,
) (int, error) {
	succeeded := 0

	for i := range leads {
		lead := &leads[i]

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return succeeded, fmt.Errorf("throttle wait for campaign %d: %w", campaign.ID, err)
			}
		}

		res := d.deliverLead(ctx, campaign, tmpl, lead)
		if res.Skipped {
			continue
		}
		result.Attempted++
		if res.Success {
			succeeded++
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	return succeeded, nil
}

func (d *Dispatcher) deliverLead(
	ctx context.Context,
	campaign *domain.Campaign,
	tmpl *domain.Template,
	lead *domain.Lead,
) domain.SendResult {
	now := d.now()
	result := domain.SendResult{LeadID: lead.ID, SentAt: now}

	if d.cache != nil {
		cached, err := d.cache.GetCachedMessage(ctx, lead.ID)
		if err != nil {
			logger.Warnf("[Campaign %d] Sent cache lookup failed for lead %d: %v", campaign.ID, lead.ID, err)
		} else if cached != nil {
			if err := d.leads.SetStatus(ctx, lead.ID, domain.LeadMessageSuccessful); err != nil {
				logger.Errorf("[Campaign %d] Failed to mark cached lead %d as sent: %v", campaign.ID, lead.ID, err)
				result.Error = err
				return result
			}
			logger.Infof("[Campaign %d] Lead %d already delivered as %s, skipping resend",
				campaign.ID, lead.ID, cached.MessageID)
			result.Success = true
			result.MessageID = cached.MessageID
			return result
		}
	}

	if err := d.leads.MarkInProgress(ctx, lead.ID, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			logger.Infof("[Campaign %d] Lead %d changed before its send, skipping", campaign.ID, lead.ID)
			result.Skipped = true
			return result
		}
		logger.Errorf("[Campaign %d] Failed to claim lead %d: %v", campaign.ID, lead.ID, err)
		result.Error = err
		return result
	}

	text := Render(tmpl.Body, tmpl.Variables, lead)

	messageID, sendErr := d.messenger.SendText(ctx, campaign.AgentID, lead.Phone, text,
		messenger.IdempotencyKey(lead.ID, lead.AttemptsMade+1))
	if sendErr != nil {
		status := domain.LeadNeedRetry
		if d.maxAttempts > 0 && lead.AttemptsMade+1 >= d.maxAttempts {
			status = domain.LeadFailed
		}

		logger.Warnf("[Campaign %d] Failed to send to lead %d (attempt %d, now %s): %v",
			campaign.ID, lead.ID, lead.AttemptsMade+1, status, sendErr)

		if err := d.leads.RecordAttempt(ctx, lead.ID, domain.LeadAttempt{Status: status, At: d.now()}); errors.Is(err, domain.ErrConflict) {
			logger.Infof("[Campaign %d] Lead %d changed during its send, keeping its status", campaign.ID, lead.ID)
		} else if err != nil {
			logger.Errorf("[Campaign %d] Failed to record failed attempt for lead %d: %v", campaign.ID, lead.ID, err)
		}

		result.Error = sendErr
		return result
	}

	sentAt := d.now()

	if d.cache != nil {
		if err := d.cache.CacheSentMessage(ctx, domain.SentMessageCache{
			LeadID:     lead.ID,
			CampaignID: campaign.ID,
			MessageID:  messageID,
			SentAt:     sentAt,
		}); err != nil {
			logger.Warnf("[Campaign %d] Failed to cache lead %d to Redis: %v", campaign.ID, lead.ID, err)
		}
	}

	if err := d.leads.RecordAttempt(ctx, lead.ID, domain.LeadAttempt{
		Status:    domain.LeadMessageSuccessful,
		MessageID: messageID,
		At:        sentAt,
	}); errors.Is(err, domain.ErrConflict) {
		logger.Infof("[Campaign %d] Lead %d changed during its send, keeping its status", campaign.ID, lead.ID)
	} else if err != nil {
		logger.Errorf("[Campaign %d] Sent lead %d as %s but failed to record it: %v",
			campaign.ID, lead.ID, messageID, err)
		result.Error = err
		return result
	}

	logger.Debugf("[Campaign %d] Sent lead %d (messageId: %s)", campaign.ID, lead.ID, messageID)

	result.Success = true
	result.MessageID = messageID
	result.SentAt = sentAt

	return result
}

// completeIfDrained completes the campaign once no lead is pending.
func (d *Dispatcher) completeIfDrained(ctx context.Context, campaign *domain.Campaign) (bool, error) {
	pending, err := d.leads.Count(ctx, campaign.ID, domain.PendingLeadStatuses)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}

	if campaign.Status == domain.CampaignScheduled {
		if err := d.transition(ctx, campaign, domain.CampaignRunning); err != nil {
			return false, err
		}
	}

	if err := d.transition(ctx, campaign, domain.CampaignCompleted); err != nil {
		return false, err
	}

	logger.Infof("[Campaign %d] All leads processed, campaign completed", campaign.ID)

	return true, nil
}

func (d *Dispatcher) transition(ctx context.Context, campaign *domain.Campaign, to domain.CampaignStatus) error {
	if err := domain.AssertTransition(campaign.Status, to); err != nil {
		return err
	}

	now := d.now()
	if err := d.campaigns.SetStatus(ctx, campaign.ID, campaign.Status, to, now); err != nil {
		return fmt.Errorf("failed to move campaign %d to %s: %w", campaign.ID, to, err)
	}

	applyStatus(campaign, to, now)

	return nil
}

// applyStatus mirrors a persisted status change onto the in-memory record.
func applyStatus(c *domain.Campaign, to domain.CampaignStatus, at time.Time) {
	c.Status = to
	switch to {
	case domain.CampaignRunning:
		if c.StartedAt == nil {
			c.StartedAt = ptrTime(at)
		}
	case domain.CampaignCompleted:
		if c.CompletedAt == nil {
			c.CompletedAt = ptrTime(at)
		}
	case domain.CampaignCancelled:
		if c.CancelledAt == nil {
			c.CancelledAt = ptrTime(at)
		}
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

// IsDispatchRejection reports whether err is a precondition failure rather
// than a storage or transport error.
func IsDispatchRejection(err error) bool {
	return errors.Is(err, domain.ErrNotSendable) || errors.Is(err, domain.ErrNoActiveTemplate)
}
