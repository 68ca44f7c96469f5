package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/handlers"
	"github.com/onurcolak/outreach-campaign-service/internal/middlewares"
	"github.com/onurcolak/outreach-campaign-service/internal/repository"
	"github.com/onurcolak/outreach-campaign-service/internal/scheduler"
	"github.com/onurcolak/outreach-campaign-service/internal/service"
	"github.com/onurcolak/outreach-campaign-service/pkg/database"
	"github.com/onurcolak/outreach-campaign-service/pkg/logger"
	"github.com/onurcolak/outreach-campaign-service/pkg/messenger"
	"github.com/onurcolak/outreach-campaign-service/pkg/redis"
	"github.com/onurcolak/outreach-campaign-service/pkg/validator"
	"github.com/onurcolak/outreach-campaign-service/routes"

	_ "github.com/onurcolak/outreach-campaign-service/docs" // swagger docs
)

// @title Outreach Campaign Service API
// @version 1.0
// @description Paced WhatsApp broadcasts for agent outreach campaigns
// @termsOfService http://swagger.io/terms/

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	// Load config
	cfg := environments.Load()

	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	// Hard-fail if required secrets are missing
	if cfg.Auth.APIKey == "" {
		logger.Fatalf("API_KEY is required but not set")
	}
	if cfg.Auth.SchedulerAPIKey == "" {
		logger.Fatalf("SCHEDULER_API_KEY is required but not set")
	}
	if cfg.Messenger.Token == "" {
		logger.Fatalf("WHATSAPP_TOKEN is required but not set")
	}

	logger.Infof("Starting Outreach Campaign Service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis
	redisClient, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, duplicate-send guard disabled: %v", err)
		redisClient = nil
	}

	messengerClient := messenger.NewClient(cfg.Messenger)
	logger.Infof("Messenger configured for phone number %s", cfg.Messenger.PhoneNumberID)

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	// Services
	resolver := service.NewTemplateResolver(templateRepo)

	var dispatcher *service.Dispatcher
	if redisClient != nil {
		dispatcher = service.NewDispatcher(leadRepo, campaignRepo, resolver, messengerClient, redisClient, cfg.Scheduler.MaxAttempts)
	} else {
		dispatcher = service.NewDispatcher(leadRepo, campaignRepo, resolver, messengerClient, nil, cfg.Scheduler.MaxAttempts)
	}

	campaignService := service.NewCampaignService(campaignRepo, leadRepo, templateRepo, cfg.Scheduler)
	templateService := service.NewTemplateService(templateRepo, campaignRepo)
	leadService := service.NewLeadService(leadRepo, campaignRepo, campaignRepo, campaignService)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize scheduler
	sched := scheduler.NewScheduler(campaignRepo, leadRepo, dispatcher, cfg.Scheduler, cfg.Alert)

	// Initialize handlers
	var messageHandler *handlers.MessageHandler
	if redisClient != nil {
		messageHandler = handlers.NewMessageHandler(redisClient)
	} else {
		messageHandler = handlers.NewMessageHandler(nil)
	}

	h := routes.Handlers{
		Health:    handlers.NewHealthHandler(db, redisClient, sched),
		Campaign:  handlers.NewCampaignHandler(campaignService),
		Template:  handlers.NewTemplateHandler(templateService),
		Lead:      handlers.NewLeadHandler(leadService),
		Message:   messageHandler,
		Scheduler: handlers.NewSchedulerHandler(sched, ctx, cfg),
	}

	// Auto-start scheduler
	if cfg.Scheduler.AutoStart {
		logger.Infof("Auto-starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start scheduler: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			middlewares.APIKeyHeader,
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, h, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger UI available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context to signal all goroutines to stop
	cancel()

	// Stop scheduler first (with timeout)
	if sched.IsRunning() {
		logger.Infof("Stopping scheduler...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- sched.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping scheduler: %v", err)
			} else {
				logger.Infof("Scheduler stopped successfully")
			}
		case <-stopCtx.Done():
			logger.Warnf("Scheduler stop timeout, forcing shutdown")
		}
	}

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
