package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gcmrelay/internal/model"
)

type appRepository struct {
	db *sqlx.DB
}

func NewAppRepository(db *sqlx.DB) AppRepository {
	return &appRepository{db: db}
}

func (r *appRepository) Create(ctx context.Context, app *model.GcmApp) error {
	query := `
		INSERT INTO gcm_apps (package, display_name, sender_id, api_key, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.ExecContext(ctx, query, app.Package, app.DisplayName, app.SenderID, app.APIKey)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return nil
}

func (r *appRepository) GetByPackage(ctx context.Context, pkg string) (*model.GcmApp, error) {
	query := `
		SELECT package, display_name, sender_id, api_key, updated_at
		FROM gcm_apps
		WHERE package = $1
	`
	var app model.GcmApp
	err := r.db.GetContext(ctx, &app, query, pkg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrAppNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get app: %w", err)
	}
	return &app, nil
}

func (r *appRepository) Exists(ctx context.Context, pkg string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM gcm_apps WHERE package = $1)`, pkg)
	if err != nil {
		return false, fmt.Errorf("check app exists: %w", err)
	}
	return exists, nil
}

func (r *appRepository) List(ctx context.Context) ([]model.GcmApp, error) {
	query := `
		SELECT package, display_name, sender_id, api_key, updated_at
		FROM gcm_apps
		ORDER BY display_name
	`
	var apps []model.GcmApp
	if err := r.db.SelectContext(ctx, &apps, query); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return apps, nil
}
