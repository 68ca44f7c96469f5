package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
	"github.com/onurcolak/outreach-campaign-service/pkg/response"
)

type sentCacheReader interface {
	GetAllCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error)
}

// MessageHandler exposes the sent-message cache used to suppress duplicate
// sends. cache is nil when Redis is unavailable.
type MessageHandler struct {
	cache sentCacheReader
}

func NewMessageHandler(cache sentCacheReader) *MessageHandler {
	return &MessageHandler{cache: cache}
}

// GetCachedMessages godoc
// @Summary Get cached sends from Redis
// @Description Returns recently delivered leads keyed by lead ID
// @Tags messages
// @Produce json
// @Param x-api-key header string true "API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/cached [get]
func (h *MessageHandler) GetCachedMessages(c echo.Context) error {
	if h.cache == nil {
		return response.OkWithMessage(c, "Redis cache is disabled", map[int64]*domain.SentMessageCache{})
	}

	cached, err := h.cache.GetAllCachedMessages(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, cached)
}
