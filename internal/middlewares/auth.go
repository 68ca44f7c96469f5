package middlewares

import (
	"crypto/subtle"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/onurcolak/outreach-campaign-service/pkg/response"
)

const (
	APIKeyHeader = "x-api-key"

	agentIDKey = "agentId"
)

// secureCompare compares two strings in a way that is safer against timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// APIKeyAuth guards a route group with a static key read from the x-api-key
// header. An empty server key is a misconfiguration and fails every request.
func APIKeyAuth(apiKey string) echo.MiddlewareFunc {
	if apiKey == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return response.InternalServerError(
					c,
					fmt.Errorf("API key is not configured for this endpoint group"),
				)
			}
		}
	}

	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + APIKeyHeader,
		Validator: func(key string, c echo.Context) (bool, error) {
			return secureCompare(key, apiKey), nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return response.Unauthorized(c)
		},
	})
}

// AgentScope parses the :agentId path parameter and stores it on the context
// for handlers to read with AgentID.
func AgentScope() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := strconv.ParseInt(c.Param("agentId"), 10, 64)
			if err != nil || id <= 0 {
				return response.BadRequestWithMessage(c, "agentId must be a positive integer")
			}

			c.Set(agentIDKey, id)

			return next(c)
		}
	}
}

// AgentID returns the agent set by AgentScope, or 0 outside a scoped route.
func AgentID(c echo.Context) int64 {
	id, _ := c.Get(agentIDKey).(int64)
	return id
}
