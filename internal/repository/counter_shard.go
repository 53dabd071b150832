package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type counterShardRepository struct {
	db *sqlx.DB
}

func NewCounterShardRepository(db *sqlx.DB) CounterShardRepository {
	return &counterShardRepository{db: db}
}

// Add increments one shard row in a single upsert statement, so two
// concurrent increments on the same shard serialize inside Postgres instead
// of racing a read-modify-write.
func (r *counterShardRepository) Add(ctx context.Context, counterName string, shardIndex int, delta int64) error {
	query := `
		INSERT INTO counter_shards (counter_name, shard_index, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (counter_name, shard_index) DO UPDATE SET
			value = counter_shards.value + EXCLUDED.value
	`
	_, err := r.db.ExecContext(ctx, query, counterName, shardIndex, delta)
	if err != nil {
		return fmt.Errorf("add to counter shard: %w", err)
	}
	return nil
}

func (r *counterShardRepository) Values(ctx context.Context, counterName string) ([]int64, error) {
	query := `SELECT value FROM counter_shards WHERE counter_name = $1`
	var values []int64
	if err := r.db.SelectContext(ctx, &values, query, counterName); err != nil {
		return nil, fmt.Errorf("read counter shards: %w", err)
	}
	return values, nil
}
