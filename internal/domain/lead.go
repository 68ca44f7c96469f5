package domain

import "time"

type LeadStatus string

const (
	LeadQueued            LeadStatus = "QUEUED"
	LeadInProgress        LeadStatus = "IN_PROGRESS"
	LeadNeedRetry         LeadStatus = "NEED_RETRY"
	LeadMessageSuccessful LeadStatus = "MESSAGE_SUCCESSFUL"
	LeadAnswered          LeadStatus = "ANSWERED"
	LeadFailed            LeadStatus = "FAILED"
)

// PendingLeadStatuses are the statuses that keep a campaign from completing.
var PendingLeadStatuses = []LeadStatus{LeadQueued, LeadNeedRetry, LeadInProgress}

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadQueued, LeadInProgress, LeadNeedRetry, LeadMessageSuccessful, LeadAnswered, LeadFailed:
		return true
	}
	return false
}

// Filterable reports whether s may be used as a broadcast filter status.
func (s LeadStatus) Filterable() bool {
	return s == LeadQueued || s == LeadNeedRetry
}

type Lead struct {
	ID            int64      `db:"id" json:"id"`
	CampaignID    int64      `db:"campaign_id" json:"campaignId"`
	Name          string     `db:"name" json:"name"`
	Phone         string     `db:"phone" json:"phone"`
	Email         string     `db:"email" json:"email,omitempty"`
	Company       string     `db:"company" json:"company,omitempty"`
	Status        LeadStatus `db:"status" json:"status"`
	AttemptsMade  int        `db:"attempts_made" json:"attemptsMade"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"lastAttemptAt,omitempty"`
	LastMessageID *string    `db:"last_message_id" json:"lastMessageId,omitempty"`
	CustomFields  JSONMap    `db:"custom_fields" json:"customFields,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// Field returns the lead's own field with the given name. Blank fields
// report false so callers can fall back to custom fields.
func (l *Lead) Field(name string) (string, bool) {
	var v string
	switch name {
	case "name":
		v = l.Name
	case "phone":
		v = l.Phone
	case "email":
		v = l.Email
	case "company":
		v = l.Company
	}
	return v, v != ""
}

type LeadInput struct {
	Name         string
	Phone        string
	Email        string
	Company      string
	CustomFields map[string]any
}

// LeadFilter selects leads of one campaign.
type LeadFilter struct {
	CampaignID int64
	StatusIn   []LeadStatus
	Limit      int
	Offset     int
}

// LeadAttempt is the outcome written back after one send attempt.
type LeadAttempt struct {
	Status    LeadStatus
	MessageID string
	At        time.Time
}
