package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

const campaignColumns = `id, agent_id, name, type, status, agent_enabled, scheduled_at, started_at,
	completed_at, cancelled_at, assigned_template_id, total_messages, leads_count,
	answered_leads_count, last_activity_at, broadcast_config, broadcast_revision, stats, created_at, updated_at`

// CampaignRepository handles database operations for campaigns.
type CampaignRepository struct {
	db *sqlx.DB
}

func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
	query := `
		INSERT INTO campaigns (agent_id, name, type, status, agent_enabled, assigned_template_id, stats, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`

	result, err := r.db.ExecContext(ctx, query,
		c.AgentID, c.Name, c.Type, c.Status, c.AgentEnabled, c.AssignedTemplateID, c.Stats,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", mapWriteError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`

	var campaign domain.Campaign
	if err := r.db.GetContext(ctx, &campaign, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("campaign %d", id)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

func (r *CampaignRepository) List(
	ctx context.Context,
	agentID int64,
	status *domain.CampaignStatus,
	page, pageSize int,
) ([]domain.Campaign, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var campaigns []domain.Campaign

	if status != nil {
		countQuery := "SELECT COUNT(*) FROM campaigns WHERE agent_id = ? AND status = ?"
		if err := r.db.GetContext(ctx, &totalCount, countQuery, agentID, *status); err != nil {
			return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
		}

		query := `
			SELECT ` + campaignColumns + `
			FROM campaigns
			WHERE agent_id = ? AND status = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &campaigns, query, agentID, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
		}
	} else {
		countQuery := "SELECT COUNT(*) FROM campaigns WHERE agent_id = ?"
		if err := r.db.GetContext(ctx, &totalCount, countQuery, agentID); err != nil {
			return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
		}

		query := `
			SELECT ` + campaignColumns + `
			FROM campaigns
			WHERE agent_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &campaigns, query, agentID, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
		}
	}

	return campaigns, totalCount, nil
}

// Update writes the CRUD-editable fields of a campaign.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	query := `
		UPDATE campaigns
		SET name = ?, type = ?, agent_enabled = ?, assigned_template_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, c.Name, c.Type, c.AgentEnabled, c.AssignedTemplateID, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", mapWriteError(err))
	}

	return requireAffected(result, "campaign", c.ID)
}

// SetStatus moves a campaign from one status to another. The update only
// applies while the stored status still equals from; otherwise ErrConflict.
func (r *CampaignRepository) SetStatus(
	ctx context.Context,
	id int64,
	from, to domain.CampaignStatus,
	at time.Time,
) error {
	var stampColumn string
	switch to {
	case domain.CampaignRunning:
		stampColumn = "started_at"
	case domain.CampaignCompleted:
		stampColumn = "completed_at"
	case domain.CampaignCancelled:
		stampColumn = "cancelled_at"
	}

	query := `UPDATE campaigns SET status = ?, updated_at = CURRENT_TIMESTAMP`
	args := []any{to}
	if stampColumn != "" {
		query += `, ` + stampColumn + ` = COALESCE(` + stampColumn + `, ?)`
		args = append(args, at)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, from)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set campaign status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.Conflictf("campaign %d is no longer %s", id, from)
	}

	return nil
}

// SaveSchedule stores a freshly scheduled broadcast together with its start
// time and resulting status, and bumps the broadcast revision.
func (r *CampaignRepository) SaveSchedule(
	ctx context.Context,
	id int64,
	cfg *domain.BroadcastConfig,
	scheduledAt time.Time,
	status domain.CampaignStatus,
) error {
	query := `
		UPDATE campaigns
		SET broadcast_config = ?, broadcast_revision = broadcast_revision + 1,
		    scheduled_at = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status NOT IN ('COMPLETED', 'CANCELLED')
	`

	result, err := r.db.ExecContext(ctx, query, cfg, scheduledAt, status, id)
	if err != nil {
		return fmt.Errorf("failed to save broadcast schedule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.Conflictf("campaign %d changed while scheduling", id)
	}

	return nil
}

// SaveBroadcast persists pacing progress written by the scheduler. The write
// only applies while the stored revision still equals revision; a broadcast
// rescheduled in the meantime yields ErrConflict.
func (r *CampaignRepository) SaveBroadcast(ctx context.Context, id, revision int64, cfg *domain.BroadcastConfig) error {
	query := `
		UPDATE campaigns
		SET broadcast_config = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND broadcast_revision = ?
	`

	result, err := r.db.ExecContext(ctx, query, cfg, id, revision)
	if err != nil {
		return fmt.Errorf("failed to save broadcast config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.Conflictf("campaign %d broadcast was rescheduled", id)
	}

	return nil
}

// RecordActivity applies counter increments atomically in one statement.
func (r *CampaignRepository) RecordActivity(ctx context.Context, id int64, delta domain.ActivityDelta) error {
	query := `
		UPDATE campaigns
		SET total_messages = total_messages + ?,
		    leads_count = leads_count + ?,
		    answered_leads_count = answered_leads_count + ?,
		    last_activity_at = COALESCE(?, last_activity_at),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		delta.TotalMessages, delta.LeadsCount, delta.AnsweredLeadsCount, delta.LastActivityAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record campaign activity: %w", err)
	}

	return requireAffected(result, "campaign", id)
}

// FindDue returns enabled SCHEDULED/RUNNING campaigns whose start time has
// passed, earliest first, capped at limit.
func (r *CampaignRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE agent_enabled = TRUE
		  AND status IN ('SCHEDULED', 'RUNNING')
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, id ASC
		LIMIT ?
	`

	var campaigns []domain.Campaign
	if err := r.db.SelectContext(ctx, &campaigns, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to find due campaigns: %w", err)
	}

	return campaigns, nil
}

// Delete removes a DRAFT campaign; its leads and templates cascade.
func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM campaigns WHERE id = ? AND status = 'DRAFT'", id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.Conflictf("campaign %d is not a draft", id)
	}

	return nil
}
