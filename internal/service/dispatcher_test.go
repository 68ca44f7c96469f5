package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/internal/pacing"
	"github.com/onurcolak/outreach-campaign-service/pkg/messenger"
)

type dispatchFixture struct {
	leads      *memLeads
	campaigns  *memCampaigns
	templates  *memTemplates
	messenger  *fakeMessenger
	cache      *fakeSentCache
	dispatcher *Dispatcher
	campaign   *domain.Campaign
}

func newDispatchFixture(t *testing.T, status domain.CampaignStatus, leadCount int) *dispatchFixture {
	t.Helper()

	f := &dispatchFixture{
		leads:     &memLeads{},
		campaigns: newMemCampaigns(),
		templates: newMemTemplates(),
		messenger: &fakeMessenger{failTo: map[string]bool{}},
		cache:     &fakeSentCache{},
	}

	f.campaign = f.campaigns.put(domain.Campaign{
		AgentID:      1,
		Name:         "spring",
		Type:         domain.CampaignOutbound,
		Status:       status,
		AgentEnabled: true,
	})

	if _, err := f.templates.Create(context.Background(), &domain.Template{
		CampaignID: f.campaign.ID,
		Name:       "intro",
		Body:       "Hi {{name}}",
		Variables:  domain.StringList{"name"},
		Status:     domain.TemplateActive,
		IsDefault:  true,
	}); err != nil {
		t.Fatalf("failed to seed template: %v", err)
	}

	for i := 1; i <= leadCount; i++ {
		f.leads.add(f.campaign.ID, fmt.Sprintf("lead-%d", i), fmt.Sprintf("+9055500000%02d", i), domain.LeadQueued)
	}

	f.dispatcher = NewDispatcher(
		f.leads,
		f.campaigns,
		NewTemplateResolver(f.templates),
		f.messenger,
		f.cache,
		0,
	)
	f.dispatcher.now = func() time.Time { return testNow }

	return f
}

func (f *dispatchFixture) run(t *testing.T, params RunParams) (RunResult, error) {
	t.Helper()
	if params.MaxBatches == 0 {
		params.MaxBatches = 10
	}
	return f.dispatcher.Run(context.Background(), f.campaign, params)
}

func (f *dispatchFixture) stored(t *testing.T) *domain.Campaign {
	t.Helper()
	c, err := f.campaigns.GetByID(context.Background(), f.campaign.ID)
	if err != nil {
		t.Fatalf("failed to load campaign: %v", err)
	}
	return c
}

func TestDispatcher_DrainsAllLeadsAndCompletes(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 10)

	result, err := f.run(t, RunParams{Allowed: pacing.Unbounded, BatchSize: 5, MaxBatches: 2})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Attempted != 10 || result.Succeeded != 10 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.Completed {
		t.Errorf("expected run to complete the campaign")
	}

	stored := f.stored(t)
	if stored.Status != domain.CampaignCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Errorf("expected completedAt to be set")
	}
	if stored.TotalMessages != 10 {
		t.Errorf("expected totalMessages=10, got %d", stored.TotalMessages)
	}
	if len(f.campaigns.activity) != 2 {
		t.Errorf("expected one activity record per batch, got %d", len(f.campaigns.activity))
	}

	for _, l := range f.leads.leads {
		if l.Status != domain.LeadMessageSuccessful || l.AttemptsMade != 1 || l.LastMessageID == nil {
			t.Errorf("unexpected lead state: %+v", *l)
		}
	}

	if f.messenger.texts[0] != "Hi lead-1" {
		t.Errorf("expected rendered text, got %q", f.messenger.texts[0])
	}
}

func TestDispatcher_DrainRunsPastBatchCeiling(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 30)

	state := pacing.NewState(testNow.Add(-time.Hour), 50*time.Minute)
	decision := pacing.Plan(testNow, *state, 30)
	if !decision.Flushed || decision.Allowed != 30 {
		t.Fatalf("expected a flush of 30, got %+v", decision)
	}

	result, err := f.run(t, RunParams{
		Allowed:    decision.Allowed,
		BatchSize:  5,
		MaxBatches: 2,
		Drain:      decision.Flushed,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Attempted != 30 {
		t.Errorf("expected all 30 leads attempted, got %d", result.Attempted)
	}
	if left, _ := f.leads.Count(context.Background(), f.campaign.ID, []domain.LeadStatus{domain.LeadQueued}); left != 0 {
		t.Errorf("expected no queued leads after the flush, got %d", left)
	}
	if !result.Completed {
		t.Errorf("expected the flush to complete the campaign")
	}
}

func TestDispatcher_BatchCeilingAppliesWithoutDrain(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 30)

	result, err := f.run(t, RunParams{Allowed: 30, BatchSize: 5, MaxBatches: 2})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Attempted != 10 || result.Completed {
		t.Errorf("expected 10 attempted and no completion, got %+v", result)
	}
}

func TestDispatcher_SendsInCreationOrder(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 4)

	if _, err := f.run(t, RunParams{Allowed: 3, BatchSize: 2}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"+905550000001", "+905550000002", "+905550000003"}
	if fmt.Sprint(f.messenger.sent) != fmt.Sprint(want) {
		t.Errorf("expected sends %v, got %v", want, f.messenger.sent)
	}
}

func TestDispatcher_IdempotencyKeyFollowsAttempt(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 1)
	f.messenger.failTo["+905550000001"] = true

	if _, err := f.run(t, RunParams{Allowed: 1, BatchSize: 1, FilterStatus: []domain.LeadStatus{domain.LeadQueued, domain.LeadNeedRetry}}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	delete(f.messenger.failTo, "+905550000001")

	if _, err := f.run(t, RunParams{Allowed: 1, BatchSize: 1, FilterStatus: []domain.LeadStatus{domain.LeadNeedRetry}}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{messenger.IdempotencyKey(1, 1), messenger.IdempotencyKey(1, 2)}
	if fmt.Sprint(f.messenger.keys) != fmt.Sprint(want) {
		t.Errorf("expected keys %v, got %v", want, f.messenger.keys)
	}
}

func TestDispatcher_ReclaimedLeadReusesKey(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 1)

	if err := f.leads.MarkInProgress(context.Background(), 1, testNow); err != nil {
		t.Fatalf("MarkInProgress returned error: %v", err)
	}
	if err := f.leads.SetStatus(context.Background(), 1, domain.LeadNeedRetry); err != nil {
		t.Fatalf("SetStatus returned error: %v", err)
	}

	if _, err := f.run(t, RunParams{Allowed: 1, BatchSize: 1, FilterStatus: []domain.LeadStatus{domain.LeadNeedRetry}}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(f.messenger.keys) != 1 || f.messenger.keys[0] != messenger.IdempotencyKey(1, 1) {
		t.Errorf("expected the first attempt key, got %v", f.messenger.keys)
	}
}

func TestDispatcher_AnswerDuringSendIsKept(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 1)
	f.messenger.onSend = func(string) {
		if err := f.leads.SetStatus(context.Background(), 1, domain.LeadAnswered); err != nil {
			t.Errorf("SetStatus returned error: %v", err)
		}
	}

	result, err := f.run(t, RunParams{Allowed: 1, BatchSize: 1})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Succeeded != 1 {
		t.Errorf("expected the delivered message to count, got %+v", result)
	}
	if got := f.leads.get(1).Status; got != domain.LeadAnswered {
		t.Errorf("expected ANSWERED to survive the send, got %s", got)
	}
}

func TestDispatcher_SkipsLeadAnsweredBeforeClaim(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 2)
	fetched := f.leads.get(1)

	if err := f.leads.SetStatus(context.Background(), fetched.ID, domain.LeadAnswered); err != nil {
		t.Fatalf("SetStatus returned error: %v", err)
	}

	res := f.dispatcher.deliverLead(context.Background(), f.campaign, &domain.Template{Body: "Hi"}, fetched)

	if !res.Skipped {
		t.Errorf("expected the lead to be skipped, got %+v", res)
	}
	if len(f.messenger.sent) != 0 {
		t.Errorf("expected no send, got %v", f.messenger.sent)
	}
	if got := f.leads.get(fetched.ID).Status; got != domain.LeadAnswered {
		t.Errorf("expected ANSWERED, got %s", got)
	}
}

func TestDispatcher_FailedLeadNeedsRetryAndBlocksCompletion(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 3)
	f.messenger.failTo["+905550000002"] = true

	result, err := f.run(t, RunParams{Allowed: pacing.Unbounded, BatchSize: 5})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Attempted != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	failed := f.leads.get(2)
	if failed.Status != domain.LeadNeedRetry {
		t.Errorf("expected NEED_RETRY, got %s", failed.Status)
	}
	if failed.AttemptsMade != 1 {
		t.Errorf("expected attemptsMade=1, got %d", failed.AttemptsMade)
	}

	if f.leads.get(3).Status != domain.LeadMessageSuccessful {
		t.Errorf("expected the lead after the failure to still be sent")
	}

	if result.Completed || f.stored(t).Status == domain.CampaignCompleted {
		t.Errorf("expected campaign to stay open while a lead needs retry")
	}
}

func TestDispatcher_FailsLeadAfterMaxAttempts(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 0)
	lead := f.leads.add(f.campaign.ID, "ada", "+905559999999", domain.LeadNeedRetry)
	lead.AttemptsMade = 2
	f.messenger.failTo["+905559999999"] = true
	f.dispatcher.maxAttempts = 3

	result, err := f.run(t, RunParams{
		Allowed:      pacing.Unbounded,
		BatchSize:    5,
		FilterStatus: []domain.LeadStatus{domain.LeadNeedRetry},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	stored := f.leads.get(lead.ID)
	if stored.Status != domain.LeadFailed || stored.AttemptsMade != 3 {
		t.Errorf("expected FAILED after 3 attempts, got %s after %d", stored.Status, stored.AttemptsMade)
	}

	if !result.Completed {
		t.Errorf("expected campaign to complete once no lead is pending")
	}
}

func TestDispatcher_StartsScheduledCampaign(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignScheduled, 6)

	if _, err := f.run(t, RunParams{Allowed: 2, BatchSize: 5}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	stored := f.stored(t)
	if stored.Status != domain.CampaignRunning {
		t.Errorf("expected RUNNING, got %s", stored.Status)
	}
	if stored.StartedAt == nil {
		t.Errorf("expected startedAt to be set")
	}
}

func TestDispatcher_ScheduledCampaignWithoutLeadsCompletes(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignScheduled, 0)

	result, err := f.run(t, RunParams{Allowed: pacing.Unbounded, BatchSize: 5})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	stored := f.stored(t)
	if !result.Completed || stored.Status != domain.CampaignCompleted {
		t.Errorf("expected empty scheduled campaign to complete, got %s", stored.Status)
	}
	if stored.StartedAt == nil {
		t.Errorf("expected startedAt to be set on the way to COMPLETED")
	}
}

func TestDispatcher_ZeroAllowanceMutatesNothing(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 5)

	result, err := f.run(t, RunParams{Allowed: 0, BatchSize: 5})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Attempted != 0 {
		t.Errorf("expected no attempts, got %d", result.Attempted)
	}
	if f.leads.findCalls != 0 {
		t.Errorf("expected no lead fetch, got %d", f.leads.findCalls)
	}
	if f.leads.mutations != 0 {
		t.Errorf("expected no lead mutations, got %d", f.leads.mutations)
	}
	if len(f.campaigns.activity) != 0 {
		t.Errorf("expected no counter increments, got %d", len(f.campaigns.activity))
	}
	if f.stored(t).Status != domain.CampaignRunning {
		t.Errorf("expected campaign to stay RUNNING")
	}
}

func TestDispatcher_RejectsUnsendableCampaign(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 2)
	f.campaign.AgentEnabled = false

	_, err := f.run(t, RunParams{Allowed: pacing.Unbounded, BatchSize: 5})
	if !errors.Is(err, domain.ErrNotSendable) {
		t.Fatalf("expected ErrNotSendable, got %v", err)
	}
	if !IsDispatchRejection(err) {
		t.Errorf("expected error to count as a dispatch rejection")
	}
	if len(f.messenger.sent) != 0 {
		t.Errorf("expected no sends, got %d", len(f.messenger.sent))
	}
}

func TestDispatcher_RejectsTerminalCampaign(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignCancelled, 2)

	_, err := f.run(t, RunParams{Allowed: pacing.Unbounded, BatchSize: 5})
	if !errors.Is(err, domain.ErrNotSendable) {
		t.Fatalf("expected ErrNotSendable, got %v", err)
	}
}

func TestDispatcher_RequiresActiveTemplate(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 2)
	for _, tmpl := range f.templates.templates {
		tmpl.Status = domain.TemplateDraft
	}

	_, err := f.run(t, RunParams{Allowed: pacing.Unbounded, BatchSize: 5})
	if !errors.Is(err, domain.ErrNoActiveTemplate) {
		t.Fatalf("expected ErrNoActiveTemplate, got %v", err)
	}
	if f.leads.mutations != 0 {
		t.Errorf("expected no lead mutations, got %d", f.leads.mutations)
	}
}

func TestDispatcher_SkipsResendForCachedLead(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 2)
	_ = f.cache.CacheSentMessage(context.Background(), domain.SentMessageCache{
		LeadID:     1,
		CampaignID: f.campaign.ID,
		MessageID:  "wamid.previous",
		SentAt:     testNow.Add(-time.Minute),
	})

	result, err := f.run(t, RunParams{Allowed: pacing.Unbounded, BatchSize: 5})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(f.messenger.sent) != 1 || f.messenger.sent[0] != "+905550000002" {
		t.Errorf("expected only the uncached lead to be sent, got %v", f.messenger.sent)
	}
	if result.Succeeded != 2 {
		t.Errorf("expected both leads to count as delivered, got %d", result.Succeeded)
	}
	if f.leads.get(1).Status != domain.LeadMessageSuccessful {
		t.Errorf("expected cached lead to be marked successful")
	}
	if _, ok := f.cache.entries[2]; !ok {
		t.Errorf("expected newly sent lead to be cached")
	}
}

func TestDispatcher_ThrottleHonoursContext(t *testing.T) {
	f := newDispatchFixture(t, domain.CampaignRunning, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.dispatcher.Run(ctx, f.campaign, RunParams{
		Allowed:    pacing.Unbounded,
		BatchSize:  5,
		MaxBatches: 1,
		Throttle:   time.Hour,
	})
	if err == nil {
		t.Fatalf("expected throttle wait to fail on a cancelled context")
	}
	if result.Attempted != 0 {
		t.Errorf("expected no attempts, got %d", result.Attempted)
	}
}
