package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher defines the interface for enqueueing delivery tasks.
type Publisher interface {
	// EnqueueDelivery adds a task to the delivery queue. With a zero delay
	// the task is appended to the stream directly; with a positive delay it
	// is parked in the delayed sorted set until its ready time.
	EnqueueDelivery(ctx context.Context, task DeliveryTask, delay time.Duration) error
}

// RedisPublisher implements Publisher using a Redis stream plus a sorted-set
// delay queue.
type RedisPublisher struct {
	client *redis.Client
}

// NewPublisher creates a Publisher backed by Redis.
func NewPublisher(client *redis.Client) Publisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) EnqueueDelivery(ctx context.Context, task DeliveryTask, delay time.Duration) error {
	if delay <= 0 {
		return p.appendToStream(ctx, task)
	}

	env := delayedEnvelope{ID: uuid.NewString(), Task: task}
	member, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal delayed task: %w", err)
	}

	readyAt := time.Now().Add(delay)
	err = p.client.ZAdd(ctx, DelayedSenderKey, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd delayed task: %w", err)
	}

	log.Printf("[Publisher] Delayed task parked: try=%d ids=%d ready=%s",
		task.TryCount, len(task.RegistrationIDs), readyAt.Format(time.RFC3339))
	return nil
}

func (p *RedisPublisher) appendToStream(ctx context.Context, task DeliveryTask) error {
	values, err := task.ToMap()
	if err != nil {
		return fmt.Errorf("serialize task: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamSender,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd to stream: %w", err)
	}

	log.Printf("[Publisher] Enqueue OK: stream=%s try=%d ids=%d msgID=%s",
		StreamSender, task.TryCount, len(task.RegistrationIDs), messageID)
	return nil
}
