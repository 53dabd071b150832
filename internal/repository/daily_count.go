package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gcmrelay/internal/model"
)

type dailyCountRepository struct {
	db *sqlx.DB
}

func NewDailyCountRepository(db *sqlx.DB) DailyCountRepository {
	return &dailyCountRepository{db: db}
}

func (r *dailyCountRepository) Get(ctx context.Context, id string) (*model.DeviceDailyCount, error) {
	query := `SELECT id, count, count_till_yesterday FROM device_daily_counts WHERE id = $1`
	var count model.DeviceDailyCount
	err := r.db.GetContext(ctx, &count, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		// Absent is a normal state: the aggregation simply hasn't run for
		// that day, or the app is new.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily count: %w", err)
	}
	return &count, nil
}

func (r *dailyCountRepository) Upsert(ctx context.Context, count *model.DeviceDailyCount) error {
	query := `
		INSERT INTO device_daily_counts (id, count, count_till_yesterday)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			count = EXCLUDED.count,
			count_till_yesterday = EXCLUDED.count_till_yesterday
	`
	_, err := r.db.ExecContext(ctx, query, count.ID, count.Count, count.CountTillYesterday)
	if err != nil {
		return fmt.Errorf("upsert daily count: %w", err)
	}
	return nil
}
