package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

const templateColumns = `id, campaign_id, name, body, variables, status, is_default, created_at, updated_at`

// TemplateRepository handles database operations for message templates.
type TemplateRepository struct {
	db *sqlx.DB
}

func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a template. When t.IsDefault is set, any other default of
// the campaign is cleared in the same transaction.
func (r *TemplateRepository) Create(ctx context.Context, t *domain.Template) (*domain.Template, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin template insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if t.IsDefault {
		if err := clearDefault(ctx, tx, t.CampaignID); err != nil {
			return nil, err
		}
	}

	query := `
		INSERT INTO templates (campaign_id, name, body, variables, status, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`

	result, err := tx.ExecContext(ctx, query, t.CampaignID, t.Name, t.Body, t.Variables, t.Status, t.IsDefault)
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", mapWriteError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit template insert: %w", mapWriteError(err))
	}

	return r.GetByID(ctx, id)
}

func (r *TemplateRepository) Update(ctx context.Context, t *domain.Template) error {
	query := `
		UPDATE templates
		SET name = ?, body = ?, variables = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, t.Name, t.Body, t.Variables, t.Status, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", mapWriteError(err))
	}

	return requireAffected(result, "template", t.ID)
}

// SetDefault flips the campaign default to templateID: clear then set, in one
// transaction holding the campaign row lock.
func (r *TemplateRepository) SetDefault(ctx context.Context, campaignID, templateID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin default flip: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearDefault(ctx, tx, campaignID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE templates SET is_default = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND campaign_id = ?",
		templateID, campaignID,
	)
	if err != nil {
		return fmt.Errorf("failed to set default template: %w", mapWriteError(err))
	}

	if err := requireAffected(result, "template", templateID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit default flip: %w", mapWriteError(err))
	}

	return nil
}

func clearDefault(ctx context.Context, tx *sqlx.Tx, campaignID int64) error {
	var locked int64
	if err := tx.GetContext(ctx, &locked, "SELECT id FROM campaigns WHERE id = ? FOR UPDATE", campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundf("campaign %d", campaignID)
		}
		return fmt.Errorf("failed to lock campaign: %w", mapWriteError(err))
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE templates SET is_default = FALSE, updated_at = CURRENT_TIMESTAMP WHERE campaign_id = ? AND is_default = TRUE",
		campaignID,
	); err != nil {
		return fmt.Errorf("failed to clear default template: %w", mapWriteError(err))
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = ?`

	var t domain.Template
	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("template %d", id)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return &t, nil
}

// FindActiveByID returns the template if it exists and is ACTIVE, else nil.
func (r *TemplateRepository) FindActiveByID(ctx context.Context, id int64) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = ? AND status = 'ACTIVE'`

	var t domain.Template
	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active template: %w", err)
	}

	return &t, nil
}

// FindDefault returns the campaign's default template, or nil.
func (r *TemplateRepository) FindDefault(ctx context.Context, campaignID int64) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE campaign_id = ? AND is_default = TRUE LIMIT 1`

	var t domain.Template
	if err := r.db.GetContext(ctx, &t, query, campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get default template: %w", err)
	}

	return &t, nil
}

func (r *TemplateRepository) ListByCampaign(ctx context.Context, campaignID int64) ([]domain.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE campaign_id = ?
		ORDER BY created_at ASC, id ASC
	`

	var templates []domain.Template
	if err := r.db.SelectContext(ctx, &templates, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}
