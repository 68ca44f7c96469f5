package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type memLeads struct {
	mu        sync.Mutex
	leads     []*domain.Lead
	nextID    int64
	findCalls int
	mutations int
}

func (m *memLeads) add(campaignID int64, name, phone string, status domain.LeadStatus) *domain.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	lead := &domain.Lead{
		ID:         m.nextID,
		CampaignID: campaignID,
		Name:       name,
		Phone:      phone,
		Status:     status,
		CreatedAt:  testNow.Add(time.Duration(m.nextID) * time.Millisecond),
	}
	m.leads = append(m.leads, lead)
	return lead
}

func (m *memLeads) get(id int64) *domain.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.ID == id {
			cp := *l
			return &cp
		}
	}
	return nil
}

func (m *memLeads) FindMany(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	var out []domain.Lead
	for _, l := range m.leads {
		if l.CampaignID != filter.CampaignID || !slices.Contains(filter.StatusIn, l.Status) {
			continue
		}
		out = append(out, *l)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *memLeads) Count(ctx context.Context, campaignID int64, statusIn []domain.LeadStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.CampaignID == campaignID && slices.Contains(statusIn, l.Status) {
			n++
		}
	}
	return n, nil
}

func (m *memLeads) update(id int64, fn func(l *domain.Lead)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.ID == id {
			fn(l)
			m.mutations++
			return nil
		}
	}
	return domain.NotFoundf("lead %d", id)
}

func (m *memLeads) SetStatus(ctx context.Context, id int64, status domain.LeadStatus) error {
	return m.update(id, func(l *domain.Lead) { l.Status = status })
}

func (m *memLeads) MarkInProgress(ctx context.Context, id int64, at time.Time) error {
	if l := m.get(id); l != nil && l.Status != domain.LeadQueued && l.Status != domain.LeadNeedRetry {
		return domain.Conflictf("lead %d is %s", id, l.Status)
	}
	return m.update(id, func(l *domain.Lead) {
		l.Status = domain.LeadInProgress
		l.LastAttemptAt = &at
	})
}

func (m *memLeads) RecordAttempt(ctx context.Context, id int64, attempt domain.LeadAttempt) error {
	if l := m.get(id); l != nil && l.Status != domain.LeadInProgress {
		return domain.Conflictf("lead %d is %s", id, l.Status)
	}
	return m.update(id, func(l *domain.Lead) {
		l.Status = attempt.Status
		l.AttemptsMade++
		at := attempt.At
		l.LastAttemptAt = &at
		if attempt.MessageID != "" {
			msgID := attempt.MessageID
			l.LastMessageID = &msgID
		}
	})
}

func (m *memLeads) CreateMany(ctx context.Context, campaignID int64, inputs []domain.LeadInput) (int64, error) {
	for _, in := range inputs {
		for _, l := range m.leads {
			if l.CampaignID == campaignID && l.Phone == in.Phone {
				return 0, domain.Conflictf("lead %s already exists", in.Phone)
			}
		}
	}
	for _, in := range inputs {
		m.add(campaignID, in.Name, in.Phone, domain.LeadQueued)
	}
	return int64(len(inputs)), nil
}

func (m *memLeads) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	if l := m.get(id); l != nil {
		return l, nil
	}
	return nil, domain.NotFoundf("lead %d", id)
}

func (m *memLeads) List(
	ctx context.Context,
	campaignID int64,
	status *domain.LeadStatus,
	page, pageSize int,
) ([]domain.Lead, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Lead
	for _, l := range m.leads {
		if l.CampaignID == campaignID && (status == nil || l.Status == *status) {
			all = append(all, *l)
		}
	}
	start := min((page-1)*pageSize, len(all))
	end := min(start+pageSize, len(all))
	return all[start:end], int64(len(all)), nil
}

func (m *memLeads) CountByStatus(ctx context.Context, campaignID int64) (map[domain.LeadStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.LeadStatus]int64{}
	for _, l := range m.leads {
		if l.CampaignID == campaignID {
			out[l.Status]++
		}
	}
	return out, nil
}

func (m *memLeads) RequeueFailed(ctx context.Context, campaignID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.leads {
		if l.CampaignID == campaignID && l.Status == domain.LeadFailed {
			l.Status = domain.LeadNeedRetry
			n++
		}
	}
	return n, nil
}

type memCampaigns struct {
	mu           sync.Mutex
	campaigns    map[int64]*domain.Campaign
	nextID       int64
	activity     []domain.ActivityDelta
	statusWrites int
}

func newMemCampaigns() *memCampaigns {
	return &memCampaigns{campaigns: map[int64]*domain.Campaign{}}
}

func cloneCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.Broadcast = c.Broadcast.Clone()
	return &cp
}

func (m *memCampaigns) put(c domain.Campaign) *domain.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
	} else if c.ID > m.nextID {
		m.nextID = c.ID
	}
	m.campaigns[c.ID] = cloneCampaign(&c)
	return cloneCampaign(&c)
}

func (m *memCampaigns) Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
	c.CreatedAt = testNow
	c.UpdatedAt = testNow
	return m.put(*c), nil
}

func (m *memCampaigns) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, domain.NotFoundf("campaign %d", id)
	}
	return cloneCampaign(c), nil
}

func (m *memCampaigns) List(
	ctx context.Context,
	agentID int64,
	status *domain.CampaignStatus,
	page, pageSize int,
) ([]domain.Campaign, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for id := int64(1); id <= m.nextID; id++ {
		c, ok := m.campaigns[id]
		if !ok || c.AgentID != agentID || (status != nil && c.Status != *status) {
			continue
		}
		out = append(out, *cloneCampaign(c))
	}
	return out, int64(len(out)), nil
}

func (m *memCampaigns) Update(ctx context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.campaigns[c.ID]
	if !ok {
		return domain.NotFoundf("campaign %d", c.ID)
	}
	stored.Name = c.Name
	stored.Type = c.Type
	stored.AgentEnabled = c.AgentEnabled
	stored.AssignedTemplateID = c.AssignedTemplateID
	return nil
}

func (m *memCampaigns) SetStatus(ctx context.Context, id int64, from, to domain.CampaignStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return domain.NotFoundf("campaign %d", id)
	}
	if c.Status != from {
		return domain.Conflictf("campaign %d is %s, not %s", id, c.Status, from)
	}
	m.statusWrites++
	applyStatus(c, to, at)
	return nil
}

func (m *memCampaigns) SaveSchedule(
	ctx context.Context,
	id int64,
	cfg *domain.BroadcastConfig,
	scheduledAt time.Time,
	status domain.CampaignStatus,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return domain.NotFoundf("campaign %d", id)
	}
	c.Broadcast = cfg.Clone()
	c.BroadcastRevision++
	c.ScheduledAt = &scheduledAt
	c.Status = status
	return nil
}

func (m *memCampaigns) SaveBroadcast(ctx context.Context, id, revision int64, cfg *domain.BroadcastConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return domain.NotFoundf("campaign %d", id)
	}
	if c.BroadcastRevision != revision {
		return domain.Conflictf("campaign %d broadcast was rescheduled", id)
	}
	c.Broadcast = cfg.Clone()
	return nil
}

func (m *memCampaigns) RecordActivity(ctx context.Context, id int64, delta domain.ActivityDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return domain.NotFoundf("campaign %d", id)
	}
	m.activity = append(m.activity, delta)
	c.TotalMessages += delta.TotalMessages
	c.LeadsCount += delta.LeadsCount
	c.AnsweredLeadsCount += delta.AnsweredLeadsCount
	if delta.LastActivityAt != nil {
		c.LastActivityAt = delta.LastActivityAt
	}
	return nil
}

func (m *memCampaigns) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return domain.NotFoundf("campaign %d", id)
	}
	if c.Status != domain.CampaignDraft {
		return domain.Conflictf("campaign %d is %s", id, c.Status)
	}
	delete(m.campaigns, id)
	return nil
}

type memTemplates struct {
	mu        sync.Mutex
	templates map[int64]*domain.Template
	nextID    int64
}

func newMemTemplates() *memTemplates {
	return &memTemplates{templates: map[int64]*domain.Template{}}
}

func (m *memTemplates) Create(ctx context.Context, t *domain.Template) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.templates {
		if existing.CampaignID == t.CampaignID && existing.Name == t.Name {
			return nil, domain.Conflictf("template %q already exists", t.Name)
		}
	}
	if t.IsDefault {
		for _, existing := range m.templates {
			if existing.CampaignID == t.CampaignID {
				existing.IsDefault = false
			}
		}
	}
	m.nextID++
	cp := *t
	cp.ID = m.nextID
	m.templates[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memTemplates) Update(ctx context.Context, t *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; !ok {
		return domain.NotFoundf("template %d", t.ID)
	}
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memTemplates) SetDefault(ctx context.Context, campaignID, templateID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if t.CampaignID == campaignID {
			t.IsDefault = t.ID == templateID
		}
	}
	return nil
}

func (m *memTemplates) GetByID(ctx context.Context, id int64) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, domain.NotFoundf("template %d", id)
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplates) ListByCampaign(ctx context.Context, campaignID int64) ([]domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Template
	for id := int64(1); id <= m.nextID; id++ {
		if t, ok := m.templates[id]; ok && t.CampaignID == campaignID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTemplates) FindActiveByID(ctx context.Context, id int64) (*domain.Template, error) {
	t, err := m.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) || (t != nil && t.Status != domain.TemplateActive) {
		return nil, nil
	}
	return t, err
}

func (m *memTemplates) FindDefault(ctx context.Context, campaignID int64) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if t.CampaignID == campaignID && t.IsDefault {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeMessenger struct {
	mu     sync.Mutex
	failTo map[string]bool
	sent   []string
	texts  []string
	keys   []string
	onSend func(address string)
}

func (f *fakeMessenger) SendText(ctx context.Context, agentID int64, address, text, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, idempotencyKey)
	if f.onSend != nil {
		f.onSend(address)
	}
	if f.failTo[address] {
		return "", errors.New("provider rejected the message")
	}
	f.sent = append(f.sent, address)
	f.texts = append(f.texts, text)
	return "wamid." + address, nil
}

type fakeSentCache struct {
	mu      sync.Mutex
	entries map[int64]domain.SentMessageCache
}

func (f *fakeSentCache) CacheSentMessage(ctx context.Context, entry domain.SentMessageCache) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = map[int64]domain.SentMessageCache{}
	}
	f.entries[entry.LeadID] = entry
	return nil
}

func (f *fakeSentCache) GetCachedMessage(ctx context.Context, leadID int64) (*domain.SentMessageCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[leadID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}
