package domain

import "time"

// SentMessageCache is the valkey record of a lead that was already delivered.
type SentMessageCache struct {
	LeadID     int64     `json:"leadId"`
	CampaignID int64     `json:"campaignId"`
	MessageID  string    `json:"messageId"`
	SentAt     time.Time `json:"sentAt"`
}

// SendResult is the outcome of one lead inside a dispatcher batch.
type SendResult struct {
	LeadID    int64
	MessageID string
	Success   bool
	// Skipped marks a lead that changed status before it could be claimed.
	Skipped bool
	Error   error
	SentAt  time.Time
}
