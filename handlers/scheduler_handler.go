package handlers

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/internal/scheduler"
	"github.com/onurcolak/outreach-campaign-service/pkg/response"
	"github.com/onurcolak/outreach-campaign-service/pkg/validator"
)

type schedulerControl interface {
	StartWithParams(ctx context.Context, interval time.Duration, alertWebhook string, alertThreshold int) error
	Stop() error
	IsRunning() bool
	GetStatus() scheduler.SchedulerStatus
}

type SchedulerHandler struct {
	scheduler schedulerControl
	ctx       context.Context
	config    *environments.Config
}

func NewSchedulerHandler(
	sched schedulerControl,
	ctx context.Context,
	cfg *environments.Config,
) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		ctx:       ctx,
		config:    cfg,
	}
}

// StartScheduler godoc
// @Summary Start the broadcast scheduler
// @Description Starts periodic ticks that pace due broadcasts. The interval defaults to SCHEDULER_TICK_INTERVAL.
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for scheduler"
// @Param request body StartSchedulerRequest false "Scheduler parameters (optional)"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/start [post]
func (h *SchedulerHandler) StartScheduler(c echo.Context) error {
	if h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already running", h.scheduler.GetStatus())
	}

	var req StartSchedulerRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	interval := h.config.Scheduler.TickInterval
	if req.IntervalSeconds != nil {
		interval = time.Duration(*req.IntervalSeconds) * time.Second
	}

	if err := h.scheduler.StartWithParams(
		h.ctx,
		interval,
		h.config.Alert.WebhookURL,
		h.config.Alert.IterationCount,
	); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler started successfully", h.scheduler.GetStatus())
}

// StopScheduler godoc
// @Summary Stop the broadcast scheduler
// @Description Stops ticking and waits for an in-flight tick to finish
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/stop [post]
func (h *SchedulerHandler) StopScheduler(c echo.Context) error {
	if !h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already stopped", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler stopped successfully", h.scheduler.GetStatus())
}

// GetSchedulerStatus godoc
// @Summary Get scheduler status
// @Description Returns run counters and the last tick summary
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/status [get]
func (h *SchedulerHandler) GetSchedulerStatus(c echo.Context) error {
	return response.Ok(c, h.scheduler.GetStatus())
}
