package main

import (
	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/pkg/database"
	"github.com/onurcolak/outreach-campaign-service/pkg/logger"
)

func main() {
	cfg := environments.Load()
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	defer func() {
		if err := db.Close(); err != nil {
			logger.Warnf("Failed to close database: %v", err)
		}
	}()

	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	if err := database.SeedTestData(db); err != nil {
		logger.Fatalf("Failed to seed test data: %v", err)
	}

	logger.Infof("Seed completed successfully")
}
