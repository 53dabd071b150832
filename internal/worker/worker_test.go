package worker_test

import (
	"context"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"gcmrelay/internal/queue"
	"gcmrelay/internal/worker"
)

// =============================================================================
// Mock Implementations
// =============================================================================

// MockDeliverer records every task handed to it instead of talking to the
// gateway.
type MockDeliverer struct {
	mu    sync.Mutex
	tasks []queue.DeliveryTask
	seen  chan queue.DeliveryTask
}

func NewMockDeliverer() *MockDeliverer {
	return &MockDeliverer{seen: make(chan queue.DeliveryTask, 16)}
}

func (m *MockDeliverer) Deliver(ctx context.Context, task queue.DeliveryTask) error {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
	m.seen <- task
	return nil
}

func (m *MockDeliverer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestRedis(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}

	// Use DB 1 for testing to avoid conflicts with dev data
	opts.DB = 1

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}

	client.FlushDB(ctx)

	return client
}

func cleanupTestRedis(client *redis.Client) {
	ctx := context.Background()
	client.FlushDB(ctx)
	client.Close()
}

func testTask(tryCount int, ids ...string) queue.DeliveryTask {
	ttl := 3600
	return queue.DeliveryTask{
		APIKey:          "test-key",
		RegistrationIDs: ids,
		TryCount:        tryCount,
		Data:            map[string]string{"k": "v"},
		CollapseKey:     "updates",
		TimeToLive:      &ttl,
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

// TestEnqueueReadRoundTrip checks that a task survives the trip through the
// stream intact.
func TestEnqueueReadRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	ctx := context.Background()
	publisher := queue.NewPublisher(client)
	consumer := queue.NewConsumer(client)

	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	task := testTask(2, "reg-1", "reg-2")
	if err := publisher.EnqueueDelivery(ctx, task, 0); err != nil {
		t.Fatalf("EnqueueDelivery failed: %v", err)
	}

	messages, err := consumer.Read(ctx, "test-consumer", 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}

	got := messages[0].Task
	if !reflect.DeepEqual(got, task) {
		t.Errorf("task round trip mismatch:\ngot  %+v\nwant %+v", got, task)
	}

	if err := consumer.Ack(ctx, messages[0].ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	pending, err := consumer.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after ack = %v, want none", pending)
	}
}

// TestDelayedTaskPromotion checks that a delayed task stays invisible until
// its ready time and then reaches the stream.
func TestDelayedTaskPromotion(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	ctx := context.Background()
	publisher := queue.NewPublisher(client)
	consumer := queue.NewConsumer(client)

	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	task := testTask(1, "reg-1")
	if err := publisher.EnqueueDelivery(ctx, task, time.Second); err != nil {
		t.Fatalf("EnqueueDelivery failed: %v", err)
	}

	// Not ready yet: nothing to promote, nothing to read.
	n, err := consumer.PromoteDue(ctx, 10)
	if err != nil {
		t.Fatalf("PromoteDue failed: %v", err)
	}
	if n != 0 {
		t.Errorf("promoted %d tasks before ready time, want 0", n)
	}
	messages, err := consumer.Read(ctx, "test-consumer", 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("delayed task visible early: %v", messages)
	}

	// After the delay the promoter moves it into the stream.
	time.Sleep(1200 * time.Millisecond)
	n, err = consumer.PromoteDue(ctx, 10)
	if err != nil {
		t.Fatalf("PromoteDue failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted %d tasks, want 1", n)
	}

	messages, err = consumer.Read(ctx, "test-consumer", 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages after promotion, want 1", len(messages))
	}
	if messages[0].Task.TryCount != 1 {
		t.Errorf("try count = %d, want 1", messages[0].Task.TryCount)
	}
}

// TestManagerDeliversTask runs the full worker loop against Redis with a
// mock deliverer standing in for the gateway.
func TestManagerDeliversTask(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	ctx := context.Background()
	publisher := queue.NewPublisher(client)
	consumer := queue.NewConsumer(client)
	deliverer := NewMockDeliverer()

	manager := worker.NewManager(consumer, worker.NewHandler(deliverer), worker.ManagerConfig{
		WorkerCount:     1,
		BlockTimeout:    100 * time.Millisecond,
		PromoteInterval: 100 * time.Millisecond,
	})
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	task := testTask(0, "reg-1", "reg-2")
	if err := publisher.EnqueueDelivery(ctx, task, 0); err != nil {
		t.Fatalf("EnqueueDelivery failed: %v", err)
	}

	select {
	case got := <-deliverer.seen:
		if !reflect.DeepEqual(got.RegistrationIDs, task.RegistrationIDs) {
			t.Errorf("delivered ids = %v, want %v", got.RegistrationIDs, task.RegistrationIDs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("task never reached the deliverer")
	}
}

// TestManagerPromotesDelayedTask checks the promoter loop end to end: a
// delayed task becomes a delivery without any manual promotion.
func TestManagerPromotesDelayedTask(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	ctx := context.Background()
	publisher := queue.NewPublisher(client)
	consumer := queue.NewConsumer(client)
	deliverer := NewMockDeliverer()

	manager := worker.NewManager(consumer, worker.NewHandler(deliverer), worker.ManagerConfig{
		WorkerCount:     1,
		BlockTimeout:    100 * time.Millisecond,
		PromoteInterval: 100 * time.Millisecond,
	})
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	if err := publisher.EnqueueDelivery(ctx, testTask(1, "reg-1"), time.Second); err != nil {
		t.Fatalf("EnqueueDelivery failed: %v", err)
	}

	select {
	case got := <-deliverer.seen:
		if got.TryCount != 1 {
			t.Errorf("try count = %d, want 1", got.TryCount)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delayed task never delivered")
	}
}

// TestManagerDropsRedeliveredOnStartup simulates a worker that crashed mid-
// task: the entry is pending in the group when the next manager starts. It
// must be acknowledged without being processed again.
func TestManagerDropsRedeliveredOnStartup(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	ctx := context.Background()
	publisher := queue.NewPublisher(client)
	consumer := queue.NewConsumer(client)

	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	// A consumer reads the entry and dies before acking.
	if err := publisher.EnqueueDelivery(ctx, testTask(0, "reg-1"), 0); err != nil {
		t.Fatalf("EnqueueDelivery failed: %v", err)
	}
	messages, err := consumer.Read(ctx, "crashed-consumer", 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("setup read got %d messages, want 1", len(messages))
	}

	deliverer := NewMockDeliverer()
	manager := worker.NewManager(consumer, worker.NewHandler(deliverer), worker.ManagerConfig{
		WorkerCount:     1,
		BlockTimeout:    100 * time.Millisecond,
		PromoteInterval: 100 * time.Millisecond,
	})
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	manager.Stop()

	pending, err := consumer.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after startup = %v, want none", pending)
	}
	if deliverer.Count() != 0 {
		t.Errorf("redelivered entry was reprocessed %d times, want 0", deliverer.Count())
	}
}
