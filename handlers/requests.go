package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/internal/service"
)

type CreateCampaignRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	Type         string `json:"type,omitempty" validate:"omitempty,campaign_type"`
	AgentEnabled *bool  `json:"agentEnabled,omitempty"`
}

func (r CreateCampaignRequest) toInput() service.CampaignInput {
	in := service.CampaignInput{
		Name:         r.Name,
		Type:         domain.CampaignType(r.Type),
		AgentEnabled: true,
	}
	if r.AgentEnabled != nil {
		in.AgentEnabled = *r.AgentEnabled
	}
	return in
}

type UpdateCampaignRequest struct {
	Name               *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Type               *string `json:"type,omitempty" validate:"omitempty,campaign_type"`
	AgentEnabled       *bool   `json:"agentEnabled,omitempty"`
	AssignedTemplateID *int64  `json:"assignedTemplateId,omitempty" validate:"omitempty,min=1"`
	ClearTemplate      bool    `json:"clearTemplate,omitempty"`
}

func (r UpdateCampaignRequest) toPatch() domain.CampaignPatch {
	patch := domain.CampaignPatch{
		Name:               r.Name,
		AgentEnabled:       r.AgentEnabled,
		AssignedTemplateID: r.AssignedTemplateID,
		ClearTemplate:      r.ClearTemplate,
	}
	if r.Type != nil {
		t := domain.CampaignType(*r.Type)
		patch.Type = &t
	}
	return patch
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,campaign_status"`
}

type BatchRequest struct {
	Size       *int   `json:"size,omitempty" validate:"omitempty,min=1,max=500"`
	IntervalMs *int64 `json:"intervalMs,omitempty" validate:"omitempty,min=0,max=60000"`
}

// ScheduleBroadcastRequest starts a broadcast at startAt (RFC 3339) or after
// startIn (a duration such as "5m"). The pacing window is given as duration
// or durationMs.
type ScheduleBroadcastRequest struct {
	StartAt      *time.Time    `json:"startAt,omitempty"`
	StartIn      *string       `json:"startIn,omitempty" validate:"omitempty,duration"`
	TemplateID   *int64        `json:"templateId,omitempty" validate:"omitempty,min=1"`
	FilterStatus []string      `json:"filterStatus,omitempty" validate:"omitempty,dive,filter_status"`
	Limit        *int          `json:"limit,omitempty" validate:"omitempty,min=1"`
	Batch        *BatchRequest `json:"batch,omitempty"`
	Duration     *string       `json:"duration,omitempty" validate:"omitempty,duration"`
	DurationMs   *int64        `json:"durationMs,omitempty" validate:"omitempty,min=1"`
}

func (r ScheduleBroadcastRequest) toInput() (service.ScheduleInput, error) {
	in := service.ScheduleInput{
		StartAt: r.StartAt,
		Settings: service.BroadcastSettings{
			TemplateID: r.TemplateID,
			Limit:      r.Limit,
		},
	}

	if r.StartIn != nil {
		d, err := time.ParseDuration(*r.StartIn)
		if err != nil {
			return in, domain.Validationf("startIn: %v", err)
		}
		in.StartIn = &d
	}

	for _, st := range r.FilterStatus {
		in.Settings.FilterStatus = append(in.Settings.FilterStatus, domain.LeadStatus(st))
	}

	if r.Batch != nil {
		in.Settings.BatchSize = r.Batch.Size
		in.Settings.BatchIntervalMs = r.Batch.IntervalMs
	}

	switch {
	case r.Duration != nil && r.DurationMs != nil:
		return in, domain.Validationf("set either duration or durationMs, not both")
	case r.Duration != nil:
		d, err := time.ParseDuration(*r.Duration)
		if err != nil {
			return in, domain.Validationf("duration: %v", err)
		}
		in.Settings.Duration = &d
	case r.DurationMs != nil:
		d := time.Duration(*r.DurationMs) * time.Millisecond
		in.Settings.Duration = &d
	}

	return in, nil
}

type CreateTemplateRequest struct {
	Name      string   `json:"name" validate:"required,max=255"`
	Body      string   `json:"body" validate:"required,max=4096"`
	Variables []string `json:"variables,omitempty" validate:"omitempty,dive,required,max=64"`
	Status    string   `json:"status,omitempty" validate:"omitempty,template_status"`
	IsDefault bool     `json:"isDefault,omitempty"`
}

type UpdateTemplateRequest struct {
	Name      *string  `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Body      *string  `json:"body,omitempty" validate:"omitempty,min=1,max=4096"`
	Variables []string `json:"variables,omitempty" validate:"omitempty,dive,required,max=64"`
	Status    *string  `json:"status,omitempty" validate:"omitempty,template_status"`
}

func (r UpdateTemplateRequest) toPatch() domain.TemplatePatch {
	patch := domain.TemplatePatch{
		Name:      r.Name,
		Body:      r.Body,
		Variables: r.Variables,
	}
	if r.Status != nil {
		st := domain.TemplateStatus(*r.Status)
		patch.Status = &st
	}
	return patch
}

type LeadRequest struct {
	Name         string         `json:"name" validate:"max=255"`
	Phone        string         `json:"phone" validate:"required,e164"`
	Email        string         `json:"email,omitempty" validate:"omitempty,email"`
	Company      string         `json:"company,omitempty" validate:"max=255"`
	CustomFields map[string]any `json:"customFields,omitempty"`
}

type AddLeadsRequest struct {
	Leads []LeadRequest `json:"leads" validate:"required,min=1,max=1000,dive"`
}

func (r AddLeadsRequest) toInputs() []domain.LeadInput {
	inputs := make([]domain.LeadInput, 0, len(r.Leads))
	for _, l := range r.Leads {
		inputs = append(inputs, domain.LeadInput{
			Name:         l.Name,
			Phone:        l.Phone,
			Email:        l.Email,
			Company:      l.Company,
			CustomFields: l.CustomFields,
		})
	}
	return inputs
}

type StartSchedulerRequest struct {
	IntervalSeconds *int `json:"intervalSeconds,omitempty" validate:"omitempty,min=1,max=86400"`
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	page := defaultPage
	if raw := c.QueryParam("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if raw := c.QueryParam("pageSize"); raw != "" {
		ps, err := strconv.Atoi(raw)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}
		pageSize = ps
	}

	return page, pageSize, nil
}
