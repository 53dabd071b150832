// Package counter implements a sharded counter: a write-hot counter split
// across a fixed number of independent shard records so concurrent
// increments (one per device registration) never serialize on a single row.
package counter

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// ShardStore is the persistence the counter needs. Satisfied by
// repository.CounterShardRepository; tests use an in-memory map.
type ShardStore interface {
	Add(ctx context.Context, counterName string, shardIndex int, delta int64) error
	Values(ctx context.Context, counterName string) ([]int64, error)
}

// Counter spreads increments of a logical counter across shards and sums
// them on read.
//
// Reads are not transactional across shards: under concurrent increments
// the total can lag by the number of increments in flight, but it is
// monotonically non-decreasing once writes stop.
type Counter struct {
	store  ShardStore
	shards int

	// randInt picks the shard for an increment. Injectable so tests can
	// force collisions or a fixed distribution.
	randInt func(n int) int
}

// New creates a counter with the given shard count per logical counter.
func New(store ShardStore, shards int) *Counter {
	if shards <= 0 {
		shards = 1
	}
	return &Counter{
		store:   store,
		shards:  shards,
		randInt: rand.IntN,
	}
}

// Increment adds 1 to one uniformly random shard of the named counter. No
// cross-shard coordination: two concurrent increments almost always land on
// different rows.
func (c *Counter) Increment(ctx context.Context, name string) error {
	shard := c.randInt(c.shards)
	if err := c.store.Add(ctx, name, shard, 1); err != nil {
		return fmt.Errorf("increment counter %q: %w", name, err)
	}
	return nil
}

// Read sums every shard of the named counter. A counter that was never
// incremented reads as 0.
func (c *Counter) Read(ctx context.Context, name string) (int64, error) {
	values, err := c.store.Values(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("read counter %q: %w", name, err)
	}
	var total int64
	for _, v := range values {
		total += v
	}
	return total, nil
}
