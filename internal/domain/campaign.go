package domain

import (
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignCancelled CampaignStatus = "CANCELLED"
)

type CampaignType string

const (
	CampaignOutbound CampaignType = "OUTBOUND"
	CampaignInbound  CampaignType = "INBOUND"
)

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignRunning, CampaignCancelled},
	CampaignScheduled: {CampaignRunning, CampaignCancelled},
	CampaignRunning:   {CampaignCompleted, CampaignCancelled},
	CampaignCompleted: {},
	CampaignCancelled: {},
}

// AllCampaignStatuses lists every known status in lifecycle order.
func AllCampaignStatuses() []CampaignStatus {
	return []CampaignStatus{
		CampaignDraft,
		CampaignScheduled,
		CampaignRunning,
		CampaignCompleted,
		CampaignCancelled,
	}
}

func (s CampaignStatus) Valid() bool {
	_, ok := campaignTransitions[s]
	return ok
}

func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to CampaignStatus) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AssertTransition checks a status change against the transition table.
// It has no side effects; callers apply the change after it returns nil.
func AssertTransition(from, to CampaignStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

type Campaign struct {
	ID                 int64            `db:"id" json:"id"`
	AgentID            int64            `db:"agent_id" json:"agentId"`
	Name               string           `db:"name" json:"name"`
	Type               CampaignType     `db:"type" json:"type"`
	Status             CampaignStatus   `db:"status" json:"status"`
	AgentEnabled       bool             `db:"agent_enabled" json:"agentEnabled"`
	ScheduledAt        *time.Time       `db:"scheduled_at" json:"scheduledAt,omitempty"`
	StartedAt          *time.Time       `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt        *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
	CancelledAt        *time.Time       `db:"cancelled_at" json:"cancelledAt,omitempty"`
	AssignedTemplateID *int64           `db:"assigned_template_id" json:"assignedTemplateId,omitempty"`
	TotalMessages      int64            `db:"total_messages" json:"totalMessages"`
	LeadsCount         int64            `db:"leads_count" json:"leadsCount"`
	AnsweredLeadsCount int64            `db:"answered_leads_count" json:"answeredLeadsCount"`
	LastActivityAt     *time.Time       `db:"last_activity_at" json:"lastActivityAt,omitempty"`
	Broadcast          *BroadcastConfig `db:"broadcast_config" json:"broadcast,omitempty"`
	BroadcastRevision  int64            `db:"broadcast_revision" json:"broadcastRevision"`
	Stats              JSONMap          `db:"stats" json:"stats,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updatedAt"`
}

// IsSendable reports whether the dispatcher may send on behalf of c.
func (c *Campaign) IsSendable() bool {
	return c.AgentEnabled && !c.Status.IsTerminal()
}

// ActivityDelta carries atomic counter increments for a campaign.
type ActivityDelta struct {
	TotalMessages      int64
	LeadsCount         int64
	AnsweredLeadsCount int64
	LastActivityAt     *time.Time
}

func (d ActivityDelta) IsZero() bool {
	return d.TotalMessages == 0 && d.LeadsCount == 0 && d.AnsweredLeadsCount == 0 && d.LastActivityAt == nil
}

// CampaignPatch holds the mutable CRUD fields of a campaign. Nil means unchanged.
type CampaignPatch struct {
	Name               *string
	Type               *CampaignType
	AgentEnabled       *bool
	AssignedTemplateID *int64
	ClearTemplate      bool
}

type CampaignStats struct {
	CampaignID         int64                `json:"campaignId"`
	Status             CampaignStatus       `json:"status"`
	TotalMessages      int64                `json:"totalMessages"`
	LeadsCount         int64                `json:"leadsCount"`
	AnsweredLeadsCount int64                `json:"answeredLeadsCount"`
	LeadsByStatus      map[LeadStatus]int64 `json:"leadsByStatus"`
	Pacing             *PacingState         `json:"pacing,omitempty"`
}
