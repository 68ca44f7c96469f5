package domain

import "time"

type TemplateStatus string

const (
	TemplateDraft    TemplateStatus = "DRAFT"
	TemplateActive   TemplateStatus = "ACTIVE"
	TemplateArchived TemplateStatus = "ARCHIVED"
)

func (s TemplateStatus) Valid() bool {
	return s == TemplateDraft || s == TemplateActive || s == TemplateArchived
}

type Template struct {
	ID         int64          `db:"id" json:"id"`
	CampaignID int64          `db:"campaign_id" json:"campaignId"`
	Name       string         `db:"name" json:"name"`
	Body       string         `db:"body" json:"body"`
	Variables  StringList     `db:"variables" json:"variables"`
	Status     TemplateStatus `db:"status" json:"status"`
	IsDefault  bool           `db:"is_default" json:"isDefault"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

type TemplatePatch struct {
	Name      *string
	Body      *string
	Variables []string
	Status    *TemplateStatus
}
