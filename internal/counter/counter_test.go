package counter

import (
	"context"
	"sync"
	"testing"
)

// memShardStore is an in-memory ShardStore guarded by a mutex, standing in
// for the Postgres-backed repository.
type memShardStore struct {
	mu     sync.Mutex
	shards map[string]map[int]int64
}

func newMemShardStore() *memShardStore {
	return &memShardStore{shards: make(map[string]map[int]int64)}
}

func (s *memShardStore) Add(ctx context.Context, counterName string, shardIndex int, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shards[counterName] == nil {
		s.shards[counterName] = make(map[int]int64)
	}
	s.shards[counterName][shardIndex] += delta
	return nil
}

func (s *memShardStore) Values(ctx context.Context, counterName string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var values []int64
	for _, v := range s.shards[counterName] {
		values = append(values, v)
	}
	return values, nil
}

func (s *memShardStore) shardCount(counterName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shards[counterName])
}

func TestCounter_ReadNeverIncremented(t *testing.T) {
	c := New(newMemShardStore(), 10)

	total, err := c.Read(context.Background(), "ghost_register")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestCounter_ConcurrentIncrements(t *testing.T) {
	store := newMemShardStore()
	c := New(store, 10)
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Increment(ctx, "com.example.app_register"); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	total, err := c.Read(ctx, "com.example.app_register")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if total != n {
		t.Errorf("total = %d, want %d", total, n)
	}
}

func TestCounter_ForcedShardCollisions(t *testing.T) {
	store := newMemShardStore()
	c := New(store, 10)
	// Every increment hits shard 3
	c.randInt = func(n int) int { return 3 }
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if err := c.Increment(ctx, "x"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	if got := store.shardCount("x"); got != 1 {
		t.Errorf("shard records = %d, want 1 (all increments forced onto one shard)", got)
	}
	total, err := c.Read(ctx, "x")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if total != 25 {
		t.Errorf("total = %d, want 25", total)
	}
}

func TestCounter_SumAcrossShardsIndependentOfDistribution(t *testing.T) {
	store := newMemShardStore()
	c := New(store, 4)
	// Deterministic round-robin across all shards
	next := 0
	c.randInt = func(n int) int {
		next = (next + 1) % n
		return next
	}
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		if err := c.Increment(ctx, "y"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	if got := store.shardCount("y"); got != 4 {
		t.Errorf("shard records = %d, want 4", got)
	}
	total, err := c.Read(ctx, "y")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if total != 40 {
		t.Errorf("total = %d, want 40", total)
	}
}
