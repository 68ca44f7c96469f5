package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/internal/middlewares"
	"github.com/onurcolak/outreach-campaign-service/internal/service"
	"github.com/onurcolak/outreach-campaign-service/pkg/response"
	"github.com/onurcolak/outreach-campaign-service/pkg/validator"
)

type templateService interface {
	CreateTemplate(ctx context.Context, agentID, campaignID int64, in service.TemplateInput) (*domain.Template, error)
	UpdateTemplate(ctx context.Context, agentID, campaignID, templateID int64, patch domain.TemplatePatch) (*domain.Template, error)
	SetDefault(ctx context.Context, agentID, campaignID, templateID int64) (*domain.Template, error)
	ListTemplates(ctx context.Context, agentID, campaignID int64) ([]domain.Template, error)
}

type TemplateHandler struct {
	service templateService
}

func NewTemplateHandler(service templateService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// CreateTemplate godoc
// @Summary Create a message template
// @Description Every {{placeholder}} in the body must be listed in variables
// @Tags templates
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Param request body CreateTemplateRequest true "Template"
// @Success 201 {object} response.SuccessResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/templates [post]
func (h *TemplateHandler) CreateTemplate(c echo.Context) error {
	campaignID, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	var req CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	tmpl, err := h.service.CreateTemplate(c.Request().Context(), middlewares.AgentID(c), campaignID, service.TemplateInput{
		Name:      req.Name,
		Body:      req.Body,
		Variables: req.Variables,
		Status:    domain.TemplateStatus(req.Status),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Template created successfully", tmpl)
}

// ListTemplates godoc
// @Summary List campaign templates
// @Tags templates
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/templates [get]
func (h *TemplateHandler) ListTemplates(c echo.Context) error {
	campaignID, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	templates, err := h.service.ListTemplates(c.Request().Context(), middlewares.AgentID(c), campaignID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, templates)
}

// UpdateTemplate godoc
// @Summary Update a message template
// @Tags templates
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Param templateId path int true "Template ID"
// @Param request body UpdateTemplateRequest true "Fields to change"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/templates/{templateId} [patch]
func (h *TemplateHandler) UpdateTemplate(c echo.Context) error {
	campaignID, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	templateID, err := parseIDParam(c, "templateId")
	if err != nil {
		return response.BadRequest(c, err)
	}

	var req UpdateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	tmpl, err := h.service.UpdateTemplate(c.Request().Context(), middlewares.AgentID(c), campaignID, templateID, req.toPatch())
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OkWithMessage(c, "Template updated successfully", tmpl)
}

// SetDefaultTemplate godoc
// @Summary Make a template the campaign default
// @Tags templates
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Param templateId path int true "Template ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/templates/{templateId}/default [post]
func (h *TemplateHandler) SetDefaultTemplate(c echo.Context) error {
	campaignID, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	templateID, err := parseIDParam(c, "templateId")
	if err != nil {
		return response.BadRequest(c, err)
	}

	tmpl, err := h.service.SetDefault(c.Request().Context(), middlewares.AgentID(c), campaignID, templateID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OkWithMessage(c, "Default template set", tmpl)
}
