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

type campaignService interface {
	CreateCampaign(ctx context.Context, agentID int64, in service.CampaignInput) (*domain.Campaign, error)
	GetCampaign(ctx context.Context, agentID, id int64) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, agentID int64, status *domain.CampaignStatus, page, pageSize int) ([]domain.Campaign, int64, error)
	UpdateCampaign(ctx context.Context, agentID, id int64, patch domain.CampaignPatch) (*domain.Campaign, error)
	ChangeStatus(ctx context.Context, agentID, id int64, to domain.CampaignStatus) (*domain.Campaign, error)
	ScheduleBroadcast(ctx context.Context, agentID, id int64, in service.ScheduleInput) (*domain.Campaign, error)
	DeleteCampaign(ctx context.Context, agentID, id int64) error
	GetCampaignStats(ctx context.Context, agentID, id int64) (*domain.CampaignStats, error)
}

type CampaignHandler struct {
	service campaignService
}

func NewCampaignHandler(service campaignService) *CampaignHandler {
	return &CampaignHandler{service: service}
}

// CreateCampaign godoc
// @Summary Create a campaign
// @Description Creates a DRAFT campaign for the agent
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param request body CreateCampaignRequest true "Campaign"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c echo.Context) error {
	var req CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	campaign, err := h.service.CreateCampaign(c.Request().Context(), middlewares.AgentID(c), req.toInput())
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Campaign created successfully", campaign)
}

// ListCampaigns godoc
// @Summary List campaigns
// @Description Returns the agent's campaigns, optionally filtered by status
// @Tags campaigns
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param status query string false "Campaign status"
// @Param page query int false "Page number (default 1)"
// @Param pageSize query int false "Page size (default 20, max 100)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var status *domain.CampaignStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := domain.CampaignStatus(raw)
		status = &st
	}

	campaigns, total, err := h.service.ListCampaigns(c.Request().Context(), middlewares.AgentID(c), status, page, pageSize)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Paginated(c, campaigns, page, pageSize, total)
}

// GetCampaign godoc
// @Summary Get a campaign
// @Tags campaigns
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	campaign, err := h.service.GetCampaign(c.Request().Context(), middlewares.AgentID(c), id)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, campaign)
}

// UpdateCampaign godoc
// @Summary Update a campaign
// @Description Updates name, type, enablement or assigned template
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Param request body UpdateCampaignRequest true "Fields to change"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id} [patch]
func (h *CampaignHandler) UpdateCampaign(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	var req UpdateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	campaign, err := h.service.UpdateCampaign(c.Request().Context(), middlewares.AgentID(c), id, req.toPatch())
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OkWithMessage(c, "Campaign updated successfully", campaign)
}

// DeleteCampaign godoc
// @Summary Delete a draft campaign
// @Tags campaigns
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id} [delete]
func (h *CampaignHandler) DeleteCampaign(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	if err := h.service.DeleteCampaign(c.Request().Context(), middlewares.AgentID(c), id); err != nil {
		return response.FromError(c, err)
	}

	return response.NoContent(c)
}

// ChangeStatus godoc
// @Summary Change campaign status
// @Description Applies a lifecycle transition (e.g. RUNNING -> CANCELLED)
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Param request body ChangeStatusRequest true "Target status"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/status [post]
func (h *CampaignHandler) ChangeStatus(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	var req ChangeStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	campaign, err := h.service.ChangeStatus(c.Request().Context(), middlewares.AgentID(c), id, domain.CampaignStatus(req.Status))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OkWithMessage(c, "Campaign status changed", campaign)
}

// ScheduleBroadcast godoc
// @Summary Schedule a broadcast
// @Description Stores the broadcast settings and start time; a DRAFT campaign becomes SCHEDULED
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Param request body ScheduleBroadcastRequest true "Broadcast settings"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/broadcast [post]
func (h *CampaignHandler) ScheduleBroadcast(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	var req ScheduleBroadcastRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	in, err := req.toInput()
	if err != nil {
		return response.FromError(c, err)
	}

	campaign, err := h.service.ScheduleBroadcast(c.Request().Context(), middlewares.AgentID(c), id, in)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OkWithMessage(c, "Broadcast scheduled", campaign)
}

// GetCampaignStats godoc
// @Summary Campaign statistics
// @Description Counters, lead counts per status and pacing progress
// @Tags campaigns
// @Produce json
// @Param x-api-key header string true "API key"
// @Param agentId path int true "Agent ID"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/agents/{agentId}/campaigns/{id}/stats [get]
func (h *CampaignHandler) GetCampaignStats(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, err)
	}

	stats, err := h.service.GetCampaignStats(c.Request().Context(), middlewares.AgentID(c), id)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, stats)
}
