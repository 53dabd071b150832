package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"gcmrelay/internal/gcm"
	"gcmrelay/internal/model"
)

type deviceRepository struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) Create(ctx context.Context, device *model.Device) error {
	query := `
		INSERT INTO gcm_devices (registration_id, package, version, uuid, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		device.RegistrationID, device.Package, device.Version, device.UUID, device.Enabled)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (r *deviceRepository) GetByRegistrationID(ctx context.Context, regID string) (*model.Device, error) {
	query := `
		SELECT registration_id, package, version, uuid, enabled, updated_at
		FROM gcm_devices
		WHERE registration_id = $1
	`
	var device model.Device
	err := r.db.GetContext(ctx, &device, query, regID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &device, nil
}

func (r *deviceRepository) SetEnabled(ctx context.Context, regID string, enabled bool) error {
	query := `UPDATE gcm_devices SET enabled = $2, updated_at = NOW() WHERE registration_id = $1`
	res, err := r.db.ExecContext(ctx, query, regID, enabled)
	if err != nil {
		return fmt.Errorf("set device enabled: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrDeviceNotFound
	}
	return nil
}

func (r *deviceRepository) ListByPackage(ctx context.Context, pkg string, limit, offset int) ([]model.Device, error) {
	query := `
		SELECT registration_id, package, version, uuid, enabled, updated_at
		FROM gcm_devices
		WHERE package = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	var devices []model.Device
	if err := r.db.SelectContext(ctx, &devices, query, pkg, limit, offset); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

func (r *deviceRepository) ListEnabledIDs(ctx context.Context, pkg string, limit int) ([]string, error) {
	query := `
		SELECT registration_id
		FROM gcm_devices
		WHERE package = $1 AND enabled
		ORDER BY updated_at DESC
		LIMIT $2
	`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, pkg, limit); err != nil {
		return nil, fmt.Errorf("list enabled device ids: %w", err)
	}
	return ids, nil
}

// ReconcileOutcomes commits every registry mutation of one classified batch
// in a single transaction. A replacement disables the old row and creates
// (or re-enables) the canonical row carrying over package/version/uuid. Old
// rows the gateway knows about but we don't are skipped with a log line;
// they can't be migrated and aborting the whole batch over them would lose
// the mutations we can apply.
func (r *deviceRepository) ReconcileOutcomes(ctx context.Context, disabled []string, replacements []gcm.Replacement) error {
	if len(disabled) == 0 && len(replacements) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback()

	getQuery := `
		SELECT registration_id, package, version, uuid, enabled, updated_at
		FROM gcm_devices
		WHERE registration_id = $1
		FOR UPDATE
	`
	disableQuery := `UPDATE gcm_devices SET enabled = FALSE, updated_at = NOW() WHERE registration_id = $1`
	replaceQuery := `
		INSERT INTO gcm_devices (registration_id, package, version, uuid, enabled, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (registration_id) DO UPDATE SET
			package = EXCLUDED.package,
			version = EXCLUDED.version,
			uuid = EXCLUDED.uuid,
			enabled = TRUE,
			updated_at = NOW()
	`

	for _, rep := range replacements {
		var old model.Device
		err := tx.GetContext(ctx, &old, getQuery, rep.Old)
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[DeviceRepo] Canonical id for unknown device %s, skipping migration", rep.Old)
			continue
		}
		if err != nil {
			return fmt.Errorf("load device %s: %w", rep.Old, err)
		}

		if _, err := tx.ExecContext(ctx, disableQuery, rep.Old); err != nil {
			return fmt.Errorf("disable replaced device %s: %w", rep.Old, err)
		}
		if _, err := tx.ExecContext(ctx, replaceQuery, rep.New, old.Package, old.Version, old.UUID); err != nil {
			return fmt.Errorf("create canonical device %s: %w", rep.New, err)
		}
	}

	for _, regID := range disabled {
		res, err := tx.ExecContext(ctx, disableQuery, regID)
		if err != nil {
			return fmt.Errorf("disable device %s: %w", regID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			log.Printf("[DeviceRepo] NotRegistered for unknown device %s, nothing to disable", regID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reconcile tx: %w", err)
	}
	return nil
}
