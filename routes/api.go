package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/handlers"
	"github.com/onurcolak/outreach-campaign-service/internal/middlewares"
)

type Handlers struct {
	Health    *handlers.HealthHandler
	Campaign  *handlers.CampaignHandler
	Template  *handlers.TemplateHandler
	Lead      *handlers.LeadHandler
	Message   *handlers.MessageHandler
	Scheduler *handlers.SchedulerHandler
}

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(e *echo.Echo, h Handlers, cfg *environments.Config) {
	e.GET("/health", h.Health.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/api/v1")
	apiKey := middlewares.APIKeyAuth(cfg.Auth.APIKey)

	// Agent-scoped routes
	agent := v1.Group("/agents/:agentId", apiKey, middlewares.AgentScope())

	campaigns := agent.Group("/campaigns")
	campaigns.POST("", h.Campaign.CreateCampaign)
	campaigns.GET("", h.Campaign.ListCampaigns)
	campaigns.GET("/:id", h.Campaign.GetCampaign)
	campaigns.PATCH("/:id", h.Campaign.UpdateCampaign)
	campaigns.DELETE("/:id", h.Campaign.DeleteCampaign)
	campaigns.POST("/:id/status", h.Campaign.ChangeStatus)
	campaigns.POST("/:id/broadcast", h.Campaign.ScheduleBroadcast)
	campaigns.GET("/:id/stats", h.Campaign.GetCampaignStats)

	campaigns.POST("/:id/templates", h.Template.CreateTemplate)
	campaigns.GET("/:id/templates", h.Template.ListTemplates)
	campaigns.PATCH("/:id/templates/:templateId", h.Template.UpdateTemplate)
	campaigns.POST("/:id/templates/:templateId/default", h.Template.SetDefaultTemplate)

	campaigns.POST("/:id/leads", h.Lead.AddLeads)
	campaigns.GET("/:id/leads", h.Lead.ListLeads)
	campaigns.POST("/:id/leads/requeue", h.Lead.RequeueFailedLeads)

	agent.POST("/leads/:leadId/answered", h.Lead.MarkLeadAnswered)

	messages := v1.Group("/messages", apiKey)
	messages.GET("/cached", h.Message.GetCachedMessages)

	// Scheduler routes with their own API key
	schedulerGroup := v1.Group("/scheduler", middlewares.APIKeyAuth(cfg.Auth.SchedulerAPIKey))

	schedulerGroup.POST("/start", h.Scheduler.StartScheduler)
	schedulerGroup.POST("/stop", h.Scheduler.StopScheduler)
	schedulerGroup.GET("/status", h.Scheduler.GetSchedulerStatus)
}
