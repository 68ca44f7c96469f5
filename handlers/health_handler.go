package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/onurcolak/outreach-campaign-service/internal/scheduler"
	"github.com/onurcolak/outreach-campaign-service/pkg/redis"
)

type schedulerStatusReader interface {
	GetStatus() scheduler.SchedulerStatus
}

// HealthHandler handles health checks.
type HealthHandler struct {
	db           *sqlx.DB
	redis        *redis.Client
	scheduler    schedulerStatusReader
	checkTimeout time.Duration
}

func NewHealthHandler(db *sqlx.DB, redisClient *redis.Client, sched schedulerStatusReader) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redis:        redisClient,
		scheduler:    sched,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and component statuses for the database,
// Redis and the scheduler.
// @Summary Health check
// @Description Returns overall status with DB, Redis and scheduler state
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
		overallStatus = "down"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		overallStatus = "down"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		} else {
			redisStatus = "up"
		}
	}

	schedulerComponent := map[string]any{"status": "unknown"}
	if h.scheduler != nil {
		st := h.scheduler.GetStatus()
		state := "stopped"
		if st.Running {
			state = "running"
		}
		schedulerComponent = map[string]any{
			"status":       state,
			"tickInFlight": st.TickInFlight,
			"runsCount":    st.RunsCount,
		}
		if !st.LastRunAt.IsZero() {
			schedulerComponent["lastRunAt"] = st.LastRunAt.Format(time.RFC3339)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"redis": map[string]any{
				"status": redisStatus,
			},
			"scheduler": schedulerComponent,
		},
	})
}
