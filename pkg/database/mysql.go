package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	// clientFoundRows makes RowsAffected count matched rows, so idempotent
	// status writes are not mistaken for missing rows.
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&clientFoundRows=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS campaigns (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		agent_id BIGINT NOT NULL,
		name VARCHAR(120) NOT NULL,
		type VARCHAR(20) NOT NULL DEFAULT 'OUTBOUND',
		status VARCHAR(20) NOT NULL DEFAULT 'DRAFT',
		agent_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		scheduled_at DATETIME(3),
		started_at DATETIME(3),
		completed_at DATETIME(3),
		cancelled_at DATETIME(3),
		assigned_template_id BIGINT,
		total_messages BIGINT NOT NULL DEFAULT 0,
		leads_count BIGINT NOT NULL DEFAULT 0,
		answered_leads_count BIGINT NOT NULL DEFAULT 0,
		last_activity_at DATETIME(3),
		broadcast_config JSON,
		broadcast_revision BIGINT NOT NULL DEFAULT 0,
		stats JSON,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_campaigns_agent (agent_id, created_at),
		INDEX idx_campaigns_due (status, agent_enabled, scheduled_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`,
	`
	CREATE TABLE IF NOT EXISTS templates (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		campaign_id BIGINT NOT NULL,
		name VARCHAR(120) NOT NULL,
		body TEXT NOT NULL,
		variables JSON,
		status VARCHAR(20) NOT NULL DEFAULT 'DRAFT',
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_templates_campaign_name (campaign_id, name),
		INDEX idx_templates_default (campaign_id, is_default),
		CONSTRAINT fk_templates_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`,
	`
	CREATE TABLE IF NOT EXISTS leads (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		campaign_id BIGINT NOT NULL,
		name VARCHAR(120) NOT NULL DEFAULT '',
		phone VARCHAR(20) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		company VARCHAR(120) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'QUEUED',
		attempts_made INT NOT NULL DEFAULT 0,
		last_attempt_at DATETIME(3),
		last_message_id VARCHAR(128),
		custom_fields JSON,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_leads_campaign_phone (campaign_id, phone),
		INDEX idx_leads_campaign_status (campaign_id, status, created_at),
		INDEX idx_leads_in_progress (status, last_attempt_at),
		CONSTRAINT fk_leads_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`,
}

func RunMigrations(db *sqlx.DB) error {
	for i, schema := range migrations {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

// SeedTestData creates one demo campaign with an active default template and
// a handful of queued leads.
func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM campaigns")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d campaigns, skipping seed", count)
		return nil
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(
		"INSERT INTO campaigns (agent_id, name, type, status, agent_enabled, stats) VALUES (1, 'Spring outreach', 'OUTBOUND', 'DRAFT', TRUE, '{}')",
	)
	if err != nil {
		return fmt.Errorf("failed to seed campaign: %w", err)
	}

	campaignID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to seed campaign: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO templates (campaign_id, name, body, variables, status, is_default)
		 VALUES (?, 'intro', 'Hi {{name}}, this is {{agent}} from {{company}}. Got a minute to talk about {{product}}?',
		 '["name","agent","company","product"]', 'ACTIVE', TRUE)`,
		campaignID,
	); err != nil {
		return fmt.Errorf("failed to seed template: %w", err)
	}

	testLeads := []struct {
		name    string
		phone   string
		company string
		product string
	}{
		{"Ayse", "+905551234567", "Acme", "solar panels"},
		{"Mehmet", "+905559876543", "Globex", "fleet tracking"},
		{"Elif", "+905551112233", "Initech", "payroll"},
		{"Can", "+905554445566", "Umbrella", "lab supplies"},
		{"Zeynep", "+905557778899", "Hooli", "cloud storage"},
	}

	for _, lead := range testLeads {
		_, err := tx.Exec(
			"INSERT INTO leads (campaign_id, name, phone, company, status, custom_fields) VALUES (?, ?, ?, ?, 'QUEUED', ?)",
			campaignID, lead.name, lead.phone, lead.company,
			fmt.Sprintf(`{"agent":"Deniz","product":%q}`, lead.product),
		)
		if err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	if _, err := tx.Exec("UPDATE campaigns SET leads_count = ? WHERE id = ?", len(testLeads), campaignID); err != nil {
		return fmt.Errorf("failed to seed lead count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	logger.Infof("Seeded campaign %d with %d test leads", campaignID, len(testLeads))
	return nil
}
