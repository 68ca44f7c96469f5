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

const leadColumns = `id, campaign_id, name, phone, email, company, status, attempts_made,
	last_attempt_at, last_message_id, custom_fields, created_at, updated_at`

// LeadRepository handles database operations for leads.
type LeadRepository struct {
	db *sqlx.DB
}

func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// FindMany returns leads of one campaign matching the filter statuses,
// oldest first.
func (r *LeadRepository) FindMany(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	if len(filter.StatusIn) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+leadColumns+`
		FROM leads
		WHERE campaign_id = ? AND status IN (?)
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, filter.CampaignID, filter.StatusIn, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to build lead query: %w", err)
	}

	var leads []domain.Lead
	if err := r.db.SelectContext(ctx, &leads, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find leads: %w", err)
	}

	return leads, nil
}

func (r *LeadRepository) Count(ctx context.Context, campaignID int64, statusIn []domain.LeadStatus) (int, error) {
	if len(statusIn) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		"SELECT COUNT(*) FROM leads WHERE campaign_id = ? AND status IN (?)",
		campaignID, statusIn,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to build lead count query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}

	return count, nil
}

func (r *LeadRepository) SetStatus(ctx context.Context, id int64, status domain.LeadStatus) error {
	query := `
		UPDATE leads
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to set lead status: %w", err)
	}

	return requireAffected(result, "lead", id)
}

// MarkInProgress claims a QUEUED or NEED_RETRY lead right before its send.
// A lead that moved on since it was fetched yields ErrConflict.
func (r *LeadRepository) MarkInProgress(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE leads
		SET status = 'IN_PROGRESS', last_attempt_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('QUEUED', 'NEED_RETRY')
	`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark lead in progress: %w", err)
	}

	return requireClaimed(result, id)
}

// RecordAttempt stores the outcome of a send and counts the attempt. Only a
// lead still IN_PROGRESS is updated; otherwise ErrConflict is returned.
func (r *LeadRepository) RecordAttempt(ctx context.Context, id int64, attempt domain.LeadAttempt) error {
	var messageID *string
	if attempt.MessageID != "" {
		messageID = &attempt.MessageID
	}

	query := `
		UPDATE leads
		SET status = ?,
		    attempts_made = attempts_made + 1,
		    last_attempt_at = ?,
		    last_message_id = COALESCE(?, last_message_id),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'IN_PROGRESS'
	`

	result, err := r.db.ExecContext(ctx, query, attempt.Status, attempt.At, messageID, id)
	if err != nil {
		return fmt.Errorf("failed to record lead attempt: %w", err)
	}

	return requireClaimed(result, id)
}

// ResetStale moves leads stuck in IN_PROGRESS since before the cutoff back to
// NEED_RETRY.
func (r *LeadRepository) ResetStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE leads
		SET status = 'NEED_RETRY', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'IN_PROGRESS' AND (last_attempt_at IS NULL OR last_attempt_at < ?)
	`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale leads: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

func (r *LeadRepository) CreateMany(ctx context.Context, campaignID int64, inputs []domain.LeadInput) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin lead insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO leads (campaign_id, name, phone, email, company, status, custom_fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'QUEUED', ?, CURRENT_TIMESTAMP(6), CURRENT_TIMESTAMP)
	`

	var created int64
	for _, in := range inputs {
		if _, err := tx.ExecContext(ctx, query,
			campaignID, in.Name, in.Phone, in.Email, in.Company, domain.JSONMap(in.CustomFields),
		); err != nil {
			return 0, fmt.Errorf("failed to create lead %s: %w", in.Phone, mapWriteError(err))
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit lead insert: %w", err)
	}

	return created, nil
}

func (r *LeadRepository) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = ?`

	var lead domain.Lead
	if err := r.db.GetContext(ctx, &lead, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("lead %d", id)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return &lead, nil
}

func (r *LeadRepository) List(
	ctx context.Context,
	campaignID int64,
	status *domain.LeadStatus,
	page, pageSize int,
) ([]domain.Lead, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var leads []domain.Lead

	if status != nil {
		countQuery := "SELECT COUNT(*) FROM leads WHERE campaign_id = ? AND status = ?"
		if err := r.db.GetContext(ctx, &totalCount, countQuery, campaignID, *status); err != nil {
			return nil, 0, fmt.Errorf("failed to count leads: %w", err)
		}

		query := `
			SELECT ` + leadColumns + `
			FROM leads
			WHERE campaign_id = ? AND status = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &leads, query, campaignID, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list leads: %w", err)
		}
	} else {
		countQuery := "SELECT COUNT(*) FROM leads WHERE campaign_id = ?"
		if err := r.db.GetContext(ctx, &totalCount, countQuery, campaignID); err != nil {
			return nil, 0, fmt.Errorf("failed to count leads: %w", err)
		}

		query := `
			SELECT ` + leadColumns + `
			FROM leads
			WHERE campaign_id = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ? OFFSET ?
		`
		if err := r.db.SelectContext(ctx, &leads, query, campaignID, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to list leads: %w", err)
		}
	}

	return leads, totalCount, nil
}

// CountByStatus returns lead counts per status for one campaign.
func (r *LeadRepository) CountByStatus(ctx context.Context, campaignID int64) (map[domain.LeadStatus]int64, error) {
	query := `
		SELECT status, COUNT(*) AS total
		FROM leads
		WHERE campaign_id = ?
		GROUP BY status
	`

	var rows []struct {
		Status domain.LeadStatus `db:"status"`
		Total  int64             `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to count leads by status: %w", err)
	}

	counts := make(map[domain.LeadStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}

	return counts, nil
}

// RequeueFailed moves FAILED leads of a campaign back to NEED_RETRY.
func (r *LeadRepository) RequeueFailed(ctx context.Context, campaignID int64) (int64, error) {
	query := `
		UPDATE leads
		SET status = 'NEED_RETRY', updated_at = CURRENT_TIMESTAMP
		WHERE campaign_id = ? AND status = 'FAILED'
	`

	result, err := r.db.ExecContext(ctx, query, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed leads: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}
