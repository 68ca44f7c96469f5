package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/internal/pacing"
	"github.com/onurcolak/outreach-campaign-service/internal/service"
	"github.com/onurcolak/outreach-campaign-service/pkg/logger"
)

type campaignSource interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
	SaveBroadcast(ctx context.Context, id, revision int64, cfg *domain.BroadcastConfig) error
}

type leadCounter interface {
	Count(ctx context.Context, campaignID int64, statusIn []domain.LeadStatus) (int, error)
	ResetStale(ctx context.Context, before time.Time) (int64, error)
}

// campaignRunner matches service.Dispatcher.Run and lets tests drive the
// scheduler with a small fake.
type campaignRunner interface {
	Run(ctx context.Context, campaign *domain.Campaign, params service.RunParams) (service.RunResult, error)
}

// Scheduler owns the periodic broadcast tick. Only one tick runs at a time;
// an invocation that finds a tick in flight is dropped, not queued.
type Scheduler struct {
	campaigns  campaignSource
	leads      leadCounter
	dispatcher campaignRunner
	config     environments.SchedulerConfig
	now        func() time.Time

	alertClient     *resty.Client
	alertWebhook    string
	alertThreshold  int
	lastAlertSentAt time.Time

	inFlight atomic.Bool

	// Trigger state
	running  bool
	interval time.Duration
	cron     *cron.Cron
	initial  sync.WaitGroup
	mu       sync.RWMutex

	// Statistics
	lastRunAt    time.Time
	messagesSent int64
	runsCount    int64
	skippedTicks int64
	lastTick     *TickSummary

	consecutiveAllFailCount int
}

// CampaignTickResult is the outcome of one campaign within a tick. Allowed is
// -1 when the broadcast has neither pacing nor a limit.
type CampaignTickResult struct {
	CampaignID int64  `json:"campaignId"`
	Allowed    int    `json:"allowed"`
	Attempted  int    `json:"attempted"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Completed  bool   `json:"completed"`
	Error      string `json:"error,omitempty"`
}

type TickSummary struct {
	RunID     string               `json:"runId"`
	StartedAt time.Time            `json:"startedAt"`
	Scanned   int                  `json:"scanned"`
	Campaigns []CampaignTickResult `json:"campaigns"`
}

func (t TickSummary) totals() (attempted, succeeded int) {
	for _, c := range t.Campaigns {
		attempted += c.Attempted
		succeeded += c.Succeeded
	}
	return attempted, succeeded
}

func NewScheduler(
	campaigns campaignSource,
	leads leadCounter,
	dispatcher campaignRunner,
	cfg environments.SchedulerConfig,
	alert environments.AlertConfig,
) *Scheduler {
	return &Scheduler{
		campaigns:      campaigns,
		leads:          leads,
		dispatcher:     dispatcher,
		config:         cfg,
		now:            time.Now,
		interval:       cfg.TickInterval,
		alertClient:    resty.New().SetTimeout(10 * time.Second),
		alertWebhook:   alert.WebhookURL,
		alertThreshold: alert.IterationCount,
	}
}

// StartWithParams overrides the tick interval and alert settings, then starts
// the trigger. A non-positive interval keeps the configured one.
func (s *Scheduler) StartWithParams(
	ctx context.Context,
	interval time.Duration,
	alertWebhook string,
	alertThreshold int,
) error {
	s.mu.Lock()
	if interval > 0 {
		s.interval = interval
	}
	s.alertWebhook = alertWebhook
	s.alertThreshold = alertThreshold
	s.consecutiveAllFailCount = 0
	s.mu.Unlock()

	return s.Start(ctx)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = 30 * time.Second
		s.interval = interval
	}

	c := cron.New()
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.Tick(ctx)
	}))

	s.cron = c
	s.running = true
	s.mu.Unlock()

	logger.Infof("Starting scheduler with interval: %v", interval)

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.Tick(ctx)
	}()

	c.Start()

	return nil
}

// Stop halts the trigger and waits for any tick it started to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	s.initial.Wait()

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Tick runs one scheduling pass. The boolean is false when the call was
// skipped because another tick was in flight.
func (s *Scheduler) Tick(ctx context.Context) (TickSummary, bool) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.skippedTicks++
		s.mu.Unlock()
		logger.Warnf("Previous tick still running, skipping this one")
		return TickSummary{}, false
	}
	defer s.inFlight.Store(false)

	now := s.now()
	summary := TickSummary{
		RunID:     uuid.NewString(),
		StartedAt: now,
		Campaigns: []CampaignTickResult{},
	}

	s.mu.Lock()
	s.lastRunAt = now
	s.runsCount++
	runNumber := s.runsCount
	s.mu.Unlock()

	logger.Infof("[Run #%d] Tick %s started at %s", runNumber, summary.RunID, now.Format(time.RFC3339))

	s.reconcileStale(ctx, runNumber, now)

	due, err := s.campaigns.FindDue(ctx, now, s.config.DuePageSize)
	if err != nil {
		logger.Errorf("[Run #%d] Failed to load due campaigns: %v", runNumber, err)
		s.recordTick(runNumber, summary)
		return summary, true
	}

	summary.Scanned = len(due)

	for i := range due {
		summary.Campaigns = append(summary.Campaigns, s.processCampaign(ctx, &due[i], now))
	}

	s.recordTick(runNumber, summary)

	return summary, true
}

// reconcileStale returns leads abandoned in IN_PROGRESS by an interrupted
// tick to NEED_RETRY.
func (s *Scheduler) reconcileStale(ctx context.Context, runNumber int64, now time.Time) {
	if s.config.StaleInProgressAfter <= 0 {
		return
	}

	reset, err := s.leads.ResetStale(ctx, now.Add(-s.config.StaleInProgressAfter))
	if err != nil {
		logger.Errorf("[Run #%d] Failed to reset stale in-progress leads: %v", runNumber, err)
		return
	}

	if reset > 0 {
		logger.Warnf("[Run #%d] Reset %d stale in-progress leads to %s", runNumber, reset, domain.LeadNeedRetry)
	}
}

// processCampaign never lets one campaign's failure escape into the scan.
func (s *Scheduler) processCampaign(
	ctx context.Context,
	campaign *domain.Campaign,
	now time.Time,
) (result CampaignTickResult) {
	result.CampaignID = campaign.ID

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("panic: %v", r)
			logger.Errorf("[Campaign %d] Recovered from panic during tick: %v", campaign.ID, r)
		}
	}()

	if err := s.dispatchCampaign(ctx, campaign, now, &result); err != nil {
		result.Error = err.Error()
		if service.IsDispatchRejection(err) {
			logger.Warnf("[Campaign %d] Skipped: %v", campaign.ID, err)
		} else {
			logger.Errorf("[Campaign %d] Tick failed: %v", campaign.ID, err)
		}
	}

	return result
}

func (s *Scheduler) dispatchCampaign(
	ctx context.Context,
	campaign *domain.Campaign,
	now time.Time,
	result *CampaignTickResult,
) error {
	cfg := campaign.Broadcast.Clone()
	if cfg == nil {
		return fmt.Errorf("campaign %d has no broadcast configuration", campaign.ID)
	}

	filter := cfg.Filter()

	allowed := 0
	drain := false
	if cfg.Paced() {
		remaining, err := s.leads.Count(ctx, campaign.ID, filter)
		if err != nil {
			return err
		}

		decision := pacing.Plan(now, *cfg.Pacing, remaining)
		if decision.Snapshotted {
			logger.Infof("[Campaign %d] Pacing window opened with %d leads", campaign.ID, remaining)
		}
		if decision.Flushed {
			logger.Infof("[Campaign %d] Pacing window ended, flushing %d leads", campaign.ID, decision.Allowed)
		}

		allowed = decision.Allowed
		drain = decision.Flushed
		cfg.Pacing = &decision.State
		result.Allowed = allowed
	} else {
		allowed = pacing.Unpaced(cfg.Limit)
		result.Allowed = allowed
		if allowed == pacing.Unbounded {
			result.Allowed = -1
		}
	}

	run, runErr := s.dispatcher.Run(ctx, campaign, service.RunParams{
		Allowed:      allowed,
		BatchSize:    cfg.Batch.Size,
		Throttle:     cfg.Throttle(),
		MaxBatches:   s.config.MaxBatchesPerTick,
		Drain:        drain,
		FilterStatus: filter,
		TemplateID:   cfg.TemplateID,
	})

	result.Attempted = run.Attempted
	result.Succeeded = run.Succeeded
	result.Failed = run.Failed
	result.Completed = run.Completed

	if cfg.Pacing != nil {
		cfg.Pacing.Sent += run.Attempted
	}

	if err := s.campaigns.SaveBroadcast(ctx, campaign.ID, campaign.BroadcastRevision, cfg); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			logger.Warnf("[Campaign %d] Broadcast changed during the tick, keeping the new settings: %v", campaign.ID, err)
			return runErr
		}
		if runErr != nil {
			logger.Errorf("[Campaign %d] Failed to persist broadcast state: %v", campaign.ID, err)
			return runErr
		}
		return fmt.Errorf("failed to persist broadcast state: %w", err)
	}

	if run.Attempted > 0 {
		logger.Infof("[Campaign %d] Attempted %d, succeeded %d, failed %d",
			campaign.ID, run.Attempted, run.Succeeded, run.Failed)
	}

	return runErr
}

func (s *Scheduler) recordTick(runNumber int64, summary TickSummary) {
	attempted, succeeded := summary.totals()

	s.mu.Lock()
	s.messagesSent += int64(succeeded)
	s.lastTick = &summary

	alertWebhook := s.alertWebhook
	alertThreshold := s.alertThreshold
	sendAlert := false

	if attempted > 0 && succeeded == 0 {
		s.consecutiveAllFailCount++
		logger.Warnf("[Run #%d] All %d sends failed (consecutive count: %d/%d)",
			runNumber, attempted, s.consecutiveAllFailCount, alertThreshold)

		sendAlert = alertThreshold > 0 && alertWebhook != "" && s.consecutiveAllFailCount >= alertThreshold
	} else {
		if s.consecutiveAllFailCount > 0 {
			logger.Debugf("[Run #%d] Resetting consecutive failure count (was: %d)",
				runNumber, s.consecutiveAllFailCount)
		}
		s.consecutiveAllFailCount = 0
	}
	consecutive := s.consecutiveAllFailCount
	s.mu.Unlock()

	if sendAlert {
		go s.sendAlert(alertWebhook, runNumber, consecutive, attempted)
	}

	logger.Infof("[Run #%d] Scanned %d campaigns, attempted %d, succeeded %d",
		runNumber, summary.Scanned, attempted, succeeded)
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:                 s.running,
		TickInFlight:            s.inFlight.Load(),
		LastRunAt:               s.lastRunAt,
		MessagesSent:            s.messagesSent,
		RunsCount:               s.runsCount,
		SkippedTicks:            s.skippedTicks,
		Interval:                s.interval,
		ConsecutiveAllFailCount: s.consecutiveAllFailCount,
		LastAlertSentAt:         s.lastAlertSentAt,
		LastTick:                s.lastTick,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}

func (s *Scheduler) sendAlert(webhookURL string, runNumber int64, consecutiveFailures, attempted int) {
	resp, err := s.alertClient.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"alert":               "consecutive_all_fail",
			"runNumber":           runNumber,
			"consecutiveFailures": consecutiveFailures,
			"attempted":           attempted,
			"timestamp":           s.now().Format(time.RFC3339),
			"message": fmt.Sprintf(
				"All %d sends failed for %d consecutive ticks",
				attempted,
				consecutiveFailures,
			),
		}).
		Post(webhookURL)
	if err != nil {
		logger.Errorf("Failed to send alert to webhook: %v", err)
		return
	}

	if resp.IsSuccess() {
		s.mu.Lock()
		s.lastAlertSentAt = s.now()
		s.mu.Unlock()
		logger.Infof("Alert sent successfully to %s (consecutive failures: %d)", webhookURL, consecutiveFailures)
	} else {
		logger.Warnf("Alert webhook returned status %d", resp.StatusCode())
	}
}

type SchedulerStatus struct {
	Running                 bool          `json:"running"`
	TickInFlight            bool          `json:"tickInFlight"`
	LastRunAt               time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt               time.Time     `json:"nextRunAt,omitempty"`
	MessagesSent            int64         `json:"messagesSent"`
	RunsCount               int64         `json:"runsCount"`
	SkippedTicks            int64         `json:"skippedTicks"`
	Interval                time.Duration `json:"interval"`
	ConsecutiveAllFailCount int           `json:"consecutiveAllFailCount"`
	LastAlertSentAt         time.Time     `json:"lastAlertSentAt,omitempty"`
	LastTick                *TickSummary  `json:"lastTick,omitempty"`
}
