package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

type campaignFixture struct {
	campaigns *memCampaigns
	leads     *memLeads
	templates *memTemplates
	service   *CampaignService
}

func newCampaignFixture() *campaignFixture {
	f := &campaignFixture{
		campaigns: newMemCampaigns(),
		leads:     &memLeads{},
		templates: newMemTemplates(),
	}
	f.service = NewCampaignService(f.campaigns, f.leads, f.templates, environments.SchedulerConfig{
		DefaultBatchSize:       20,
		DefaultBatchIntervalMs: 0,
	})
	f.service.now = func() time.Time { return testNow }
	return f
}

func (f *campaignFixture) seed(status domain.CampaignStatus) *domain.Campaign {
	return f.campaigns.put(domain.Campaign{
		AgentID:      1,
		Name:         "spring",
		Type:         domain.CampaignOutbound,
		Status:       status,
		AgentEnabled: true,
	})
}

func ptrDuration(d time.Duration) *time.Duration { return &d }
func ptrInt(v int) *int                          { return &v }

func TestCreateCampaign_StartsAsDraft(t *testing.T) {
	f := newCampaignFixture()

	c, err := f.service.CreateCampaign(context.Background(), 1, CampaignInput{Name: "  launch  "})
	if err != nil {
		t.Fatalf("CreateCampaign returned error: %v", err)
	}

	if c.Status != domain.CampaignDraft || c.Type != domain.CampaignOutbound || c.Name != "launch" {
		t.Errorf("unexpected campaign: %+v", c)
	}

	if _, err := f.service.CreateCampaign(context.Background(), 1, CampaignInput{Name: " "}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for blank name, got %v", err)
	}
}

func TestGetCampaign_OtherAgentIsNotFound(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignDraft)

	if _, err := f.service.GetCampaign(context.Background(), 2, c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleBroadcast_RelativeStartWithPacingWindow(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignDraft)

	got, err := f.service.ScheduleBroadcast(context.Background(), 1, c.ID, ScheduleInput{
		StartIn:  ptrDuration(5 * time.Minute),
		Settings: BroadcastSettings{Duration: ptrDuration(10 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("ScheduleBroadcast returned error: %v", err)
	}

	if got.Status != domain.CampaignScheduled {
		t.Errorf("expected SCHEDULED, got %s", got.Status)
	}

	wantStart := testNow.Add(5 * time.Minute)
	if got.ScheduledAt == nil || !got.ScheduledAt.Equal(wantStart) {
		t.Errorf("expected scheduledAt %v, got %v", wantStart, got.ScheduledAt)
	}

	p := got.Broadcast.Pacing
	if p == nil {
		t.Fatalf("expected a pacing window")
	}
	if !p.StartAt.Equal(wantStart) {
		t.Errorf("expected pacing start %v, got %v", wantStart, p.StartAt)
	}
	if want := testNow.Add(15 * time.Minute); !p.EndAt.Equal(want) {
		t.Errorf("expected pacing end %v, got %v", want, p.EndAt)
	}
	if p.InitialTotal != nil || p.Sent != 0 || p.Completed {
		t.Errorf("expected fresh pacing state, got %+v", p)
	}
}

func TestScheduleBroadcast_ConfigRoundTrips(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignDraft)
	tmpl := seedTemplate(t, f.templates, c.ID, "intro", domain.TemplateActive, false)

	startAt := testNow.Add(time.Hour)
	interval := int64(1500)
	size := 50

	scheduled, err := f.service.ScheduleBroadcast(context.Background(), 1, c.ID, ScheduleInput{
		StartAt: &startAt,
		Settings: BroadcastSettings{
			TemplateID:      &tmpl.ID,
			FilterStatus:    []domain.LeadStatus{domain.LeadQueued, domain.LeadNeedRetry, domain.LeadQueued},
			Limit:           ptrInt(200),
			BatchSize:       &size,
			BatchIntervalMs: &interval,
			Duration:        ptrDuration(2 * time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("ScheduleBroadcast returned error: %v", err)
	}

	read, err := f.service.GetCampaign(context.Background(), 1, c.ID)
	if err != nil {
		t.Fatalf("GetCampaign returned error: %v", err)
	}

	if !reflect.DeepEqual(scheduled.Broadcast, read.Broadcast) {
		t.Errorf("broadcast config changed on read:\n got %+v\nwant %+v", read.Broadcast, scheduled.Broadcast)
	}

	cfg := read.Broadcast
	if cfg.Version != domain.BroadcastConfigVersion || *cfg.TemplateID != tmpl.ID || *cfg.Limit != 200 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.FilterStatus) != 2 {
		t.Errorf("expected duplicate filter statuses to collapse, got %v", cfg.FilterStatus)
	}
	if cfg.Batch.Size != 50 || cfg.Batch.IntervalMs != 1500 || *cfg.DurationMs != (2*time.Hour).Milliseconds() {
		t.Errorf("unexpected batch/duration settings: %+v", cfg)
	}
}

func TestScheduleBroadcast_DefaultsWithoutPacing(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignDraft)

	got, err := f.service.ScheduleBroadcast(context.Background(), 1, c.ID, ScheduleInput{StartIn: ptrDuration(0)})
	if err != nil {
		t.Fatalf("ScheduleBroadcast returned error: %v", err)
	}

	cfg := got.Broadcast
	if cfg.Paced() || cfg.Pacing != nil {
		t.Errorf("expected no pacing without a duration")
	}
	if len(cfg.FilterStatus) != 1 || cfg.FilterStatus[0] != domain.LeadQueued {
		t.Errorf("expected default filter [QUEUED], got %v", cfg.FilterStatus)
	}
	if cfg.Batch.Size != 20 {
		t.Errorf("expected default batch size 20, got %d", cfg.Batch.Size)
	}
}

func TestScheduleBroadcast_RejectsInvalidInput(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignDraft)
	foreign := seedTemplate(t, f.templates, 99, "foreign", domain.TemplateActive, false)

	startAt := testNow
	tooBig := MaxBatchSize + 1
	negative := int64(-1)

	tests := []struct {
		name string
		in   ScheduleInput
	}{
		{name: "no start", in: ScheduleInput{}},
		{name: "both starts", in: ScheduleInput{StartAt: &startAt, StartIn: ptrDuration(time.Minute)}},
		{name: "negative startIn", in: ScheduleInput{StartIn: ptrDuration(-time.Minute)}},
		{name: "batch too large", in: ScheduleInput{StartAt: &startAt, Settings: BroadcastSettings{BatchSize: &tooBig}}},
		{name: "negative interval", in: ScheduleInput{StartAt: &startAt, Settings: BroadcastSettings{BatchIntervalMs: &negative}}},
		{name: "window too short", in: ScheduleInput{StartAt: &startAt, Settings: BroadcastSettings{Duration: ptrDuration(30 * time.Second)}}},
		{name: "window too long", in: ScheduleInput{StartAt: &startAt, Settings: BroadcastSettings{Duration: ptrDuration(31 * 24 * time.Hour)}}},
		{name: "zero limit", in: ScheduleInput{StartAt: &startAt, Settings: BroadcastSettings{Limit: ptrInt(0)}}},
		{name: "unfilterable status", in: ScheduleInput{StartAt: &startAt, Settings: BroadcastSettings{
			FilterStatus: []domain.LeadStatus{domain.LeadFailed},
		}}},
		{name: "template of another campaign", in: ScheduleInput{StartAt: &startAt, Settings: BroadcastSettings{
			TemplateID: &foreign.ID,
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.ScheduleBroadcast(context.Background(), 1, c.ID, tt.in)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}

			stored, _ := f.campaigns.GetByID(context.Background(), c.ID)
			if stored.Status != domain.CampaignDraft || stored.Broadcast != nil {
				t.Errorf("expected campaign to stay untouched, got %s", stored.Status)
			}
		})
	}
}

func TestScheduleBroadcast_TerminalCampaignIsRejected(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignCompleted)

	_, err := f.service.ScheduleBroadcast(context.Background(), 1, c.ID, ScheduleInput{StartIn: ptrDuration(0)})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestChangeStatus_InvalidTransitionsLeaveStatusUnchanged(t *testing.T) {
	for _, from := range domain.AllCampaignStatuses() {
		for _, to := range domain.AllCampaignStatuses() {
			if domain.CanTransition(from, to) {
				continue
			}

			f := newCampaignFixture()
			c := f.seed(from)

			_, err := f.service.ChangeStatus(context.Background(), 1, c.ID, to)
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", from, to, err)
			}

			stored, _ := f.campaigns.GetByID(context.Background(), c.ID)
			if stored.Status != from {
				t.Errorf("%s -> %s: stored status changed to %s", from, to, stored.Status)
			}
			if f.campaigns.statusWrites != 0 {
				t.Errorf("%s -> %s: expected no status writes", from, to)
			}
		}
	}
}

func TestChangeStatus_StampsTimestamps(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignDraft)

	running, err := f.service.ChangeStatus(context.Background(), 1, c.ID, domain.CampaignRunning)
	if err != nil {
		t.Fatalf("ChangeStatus returned error: %v", err)
	}
	if running.StartedAt == nil {
		t.Errorf("expected startedAt to be set")
	}

	cancelled, err := f.service.ChangeStatus(context.Background(), 1, c.ID, domain.CampaignCancelled)
	if err != nil {
		t.Fatalf("ChangeStatus returned error: %v", err)
	}
	if cancelled.CancelledAt == nil || cancelled.Status != domain.CampaignCancelled {
		t.Errorf("expected cancelled campaign with cancelledAt, got %+v", cancelled)
	}
}

func TestChangeStatus_SchedulingRequiresBroadcast(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignDraft)

	if _, err := f.service.ChangeStatus(context.Background(), 1, c.ID, domain.CampaignScheduled); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestUpdateCampaign_TerminalRejectsEnableChange(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignCompleted)
	disabled := false

	_, err := f.service.UpdateCampaign(context.Background(), 1, c.ID, domain.CampaignPatch{AgentEnabled: &disabled})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	name := "renamed"
	got, err := f.service.UpdateCampaign(context.Background(), 1, c.ID, domain.CampaignPatch{Name: &name})
	if err != nil {
		t.Fatalf("expected rename to succeed, got %v", err)
	}
	if got.Name != "renamed" || !got.AgentEnabled {
		t.Errorf("unexpected campaign after rename: %+v", got)
	}
}

func TestUpdateCampaign_AssignsOwnTemplateOnly(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignDraft)
	own := seedTemplate(t, f.templates, c.ID, "own", domain.TemplateActive, false)
	foreign := seedTemplate(t, f.templates, 99, "foreign", domain.TemplateActive, false)

	got, err := f.service.UpdateCampaign(context.Background(), 1, c.ID, domain.CampaignPatch{AssignedTemplateID: &own.ID})
	if err != nil {
		t.Fatalf("UpdateCampaign returned error: %v", err)
	}
	if got.AssignedTemplateID == nil || *got.AssignedTemplateID != own.ID {
		t.Errorf("expected template %d to be assigned", own.ID)
	}

	if _, err := f.service.UpdateCampaign(context.Background(), 1, c.ID, domain.CampaignPatch{AssignedTemplateID: &foreign.ID}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for foreign template, got %v", err)
	}
}

func TestRecordActivity_StartsScheduledCampaign(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignScheduled)

	if err := f.service.RecordActivity(context.Background(), c.ID, domain.ActivityDelta{TotalMessages: 3}); err != nil {
		t.Fatalf("RecordActivity returned error: %v", err)
	}

	stored, _ := f.campaigns.GetByID(context.Background(), c.ID)
	if stored.Status != domain.CampaignRunning {
		t.Errorf("expected RUNNING, got %s", stored.Status)
	}
	if stored.TotalMessages != 3 || stored.LastActivityAt == nil {
		t.Errorf("expected counters to be applied, got %+v", stored)
	}

	if err := f.service.RecordActivity(context.Background(), c.ID, domain.ActivityDelta{TotalMessages: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for a negative increment, got %v", err)
	}
}

func TestDeleteCampaign_OnlyDrafts(t *testing.T) {
	f := newCampaignFixture()
	draft := f.seed(domain.CampaignDraft)
	running := f.seed(domain.CampaignRunning)

	if err := f.service.DeleteCampaign(context.Background(), 1, draft.ID); err != nil {
		t.Fatalf("expected draft delete to succeed, got %v", err)
	}
	if err := f.service.DeleteCampaign(context.Background(), 1, running.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetCampaignStats_CountsLeadsByStatus(t *testing.T) {
	f := newCampaignFixture()
	c := f.seed(domain.CampaignRunning)
	f.leads.add(c.ID, "a", "+1", domain.LeadQueued)
	f.leads.add(c.ID, "b", "+2", domain.LeadQueued)
	f.leads.add(c.ID, "c", "+3", domain.LeadMessageSuccessful)

	stats, err := f.service.GetCampaignStats(context.Background(), 1, c.ID)
	if err != nil {
		t.Fatalf("GetCampaignStats returned error: %v", err)
	}

	if stats.LeadsByStatus[domain.LeadQueued] != 2 || stats.LeadsByStatus[domain.LeadMessageSuccessful] != 1 {
		t.Errorf("unexpected lead counts: %v", stats.LeadsByStatus)
	}
}
