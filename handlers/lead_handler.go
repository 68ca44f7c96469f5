package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/internal/middlewares"
	"github.com/onurcolak/outreach-campaign-service/pkg/response"
	"github.com/onurcolak/outreach-campaign-service/pkg/validator"
)

type leadService interface {
	AddLeads(ctx context.Context, agentID, campaignID int64, inputs []domain.LeadInput) (int64, error)
	ListLeads(ctx context.Context, agentID, campaignID int64, status *domain.LeadStatus, page, pageSize int) ([]domain.Lead, int64, error)
	MarkAnswered(ctx context.Context, agentID, leadID int64) (*domain.Lead, error)
	RequeueFailed(ctx context.Context, agentID, campaignID int64) (int64, error)
}

type LeadHandler struct {
	service leadService
}

func NewLeadHandler(service leadService) *LeadHandler {
	return &LeadHandler{service: service}
}

// AddLeads godoc
// @Summary Queue leads on a campaign
// @Tags leads
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Param request body AddLeadsRequest true "Leads"
// @Success 201 {object} response.SuccessResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/leads [post]
func (h *LeadHandler) AddLeads(c echo.Context) error {
	campaignID, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	var req AddLeadsRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	created, err := h.service.AddLeads(c.Request().Context(), middlewares.AgentID(c), campaignID, req.toInputs())
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Leads queued successfully", map[string]any{
		"created": created,
	})
}

// ListLeads godoc
// @Summary List campaign leads
// @Tags leads
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Param status query string false "Lead status"
// @Param page query int false "Page number (default 1)"
// @Param pageSize query int false "Page size (default 20, max 100)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/leads [get]
func (h *LeadHandler) ListLeads(c echo.Context) error {
	campaignID, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var status *domain.LeadStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := domain.LeadStatus(raw)
		status = &st
	}

	leads, total, err := h.service.ListLeads(c.Request().Context(), middlewares.AgentID(c), campaignID, status, page, pageSize)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Paginated(c, leads, page, pageSize, total)
}

// RequeueFailedLeads godoc
// @Summary Requeue failed leads
// @Description Moves FAILED leads back to NEED_RETRY so a broadcast filtering on NEED_RETRY resends them
// @Tags leads
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/leads/requeue [post]
func (h *LeadHandler) RequeueFailedLeads(c echo.Context) error {
	campaignID, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	count, err := h.service.RequeueFailed(c.Request().Context(), middlewares.AgentID(c), campaignID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, map[string]any{
		"requeued": count,
	})
}

// MarkLeadAnswered godoc
// @Summary Record a lead reply
// @Tags leads
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param leadId path int true "Lead ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/leads/{leadId}/answered [post]
func (h *LeadHandler) MarkLeadAnswered(c echo.Context) error {
	leadID, err := parseIDParam(c, "leadId")
	if err != nil {
		return response.BadRequest(c, err)
	}

	lead, err := h.service.MarkAnswered(c.Request().Context(), middlewares.AgentID(c), leadID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, lead)
}
