package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message represents a delivery task read from the stream.
type Message struct {
	ID   string // Redis message ID (e.g., "1702000000000-0")
	Task DeliveryTask
}

// PendingMessage is a stream entry that was delivered to some consumer but
// never acknowledged. DeliveryCount comes from XPENDING and is the queue's
// own redelivery indicator, distinct from the task's TryCount.
type PendingMessage struct {
	ID            string
	Consumer      string
	DeliveryCount int64
}

// Consumer defines the interface workers use to drain the delivery queue.
type Consumer interface {
	// EnsureGroup creates the consumer group if it doesn't exist.
	// Called once at worker startup.
	EnsureGroup(ctx context.Context) error

	// Read reads new messages from the stream for this consumer.
	Read(ctx context.Context, consumer string, count int64, block time.Duration) ([]Message, error)

	// Ack acknowledges processed (or deliberately skipped) messages.
	Ack(ctx context.Context, messageIDs ...string) error

	// Pending lists unacknowledged stream entries across the whole group,
	// with their delivery counts.
	Pending(ctx context.Context, count int64) ([]PendingMessage, error)

	// PromoteDue moves delayed tasks whose ready time has passed into the
	// stream. Returns how many were promoted.
	PromoteDue(ctx context.Context, limit int64) (int, error)
}

// RedisConsumer implements Consumer on a Redis stream with a sorted-set
// delay queue.
type RedisConsumer struct {
	client *redis.Client
}

// NewConsumer creates a Consumer backed by Redis.
func NewConsumer(client *redis.Client) Consumer {
	return &RedisConsumer{client: client}
}

// EnsureGroup creates the consumer group with MKSTREAM so stream and group
// appear together. "0" makes the group see messages enqueued before the
// first worker came up.
func (c *RedisConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, StreamSender, ConsumerGroupSender, "0").Err()
	if err != nil {
		// BUSYGROUP means the group already exists, which is fine
		if err.Error() == "BUSYGROUP Consumer Group name already exists" {
			return nil
		}
		return fmt.Errorf("create consumer group: %w", err)
	}

	log.Printf("[Consumer] Group created: stream=%s group=%s", StreamSender, ConsumerGroupSender)
	return nil
}

// Read reads new messages using XREADGROUP with ">": only entries never
// delivered to any consumer of the group.
func (c *RedisConsumer) Read(ctx context.Context, consumer string, count int64, block time.Duration) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroupSender,
		Consumer: consumer,
		Streams:  []string{StreamSender, ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if err == redis.Nil {
		// Block timeout, no new messages
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var messages []Message
	for _, s := range streams {
		for _, msg := range s.Messages {
			task, err := ParseDeliveryTask(msg.Values)
			if err != nil {
				log.Printf("[Consumer] Skipping malformed message %s: %v", msg.ID, err)
				// Ack it so it doesn't clog the pending list forever
				if ackErr := c.Ack(ctx, msg.ID); ackErr != nil {
					log.Printf("[Consumer] Ack of malformed message %s failed: %v", msg.ID, ackErr)
				}
				continue
			}
			messages = append(messages, Message{ID: msg.ID, Task: task})
		}
	}

	return messages, nil
}

// Ack acknowledges messages using XACK.
func (c *RedisConsumer) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	if err := c.client.XAck(ctx, StreamSender, ConsumerGroupSender, messageIDs...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// Pending returns unacknowledged entries group-wide via XPENDING. These are
// by definition redeliveries: they were handed to a consumer at least once.
func (c *RedisConsumer) Pending(ctx context.Context, count int64) ([]PendingMessage, error) {
	entries, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: StreamSender,
		Group:  ConsumerGroupSender,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}

	pending := make([]PendingMessage, 0, len(entries))
	for _, e := range entries {
		pending = append(pending, PendingMessage{
			ID:            e.ID,
			Consumer:      e.Consumer,
			DeliveryCount: e.RetryCount,
		})
	}
	return pending, nil
}

// PromoteDue moves due delayed tasks into the stream: XADD first, then ZREM,
// so a crash in between duplicates rather than loses a task. The queue is
// at-least-once; the worker-side redelivery guard handles duplicates.
func (c *RedisConsumer) PromoteDue(ctx context.Context, limit int64) (int, error) {
	now := time.Now().Unix()
	members, err := c.client.ZRangeByScore(ctx, DelayedSenderKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore delayed: %w", err)
	}

	promoted := 0
	for _, member := range members {
		var env delayedEnvelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			log.Printf("[Consumer] Dropping malformed delayed entry: %v", err)
			c.client.ZRem(ctx, DelayedSenderKey, member)
			continue
		}

		values, err := env.Task.ToMap()
		if err != nil {
			log.Printf("[Consumer] Dropping unserializable delayed task: %v", err)
			c.client.ZRem(ctx, DelayedSenderKey, member)
			continue
		}

		if err := c.client.XAdd(ctx, &redis.XAddArgs{
			Stream: StreamSender,
			Values: values,
		}).Err(); err != nil {
			return promoted, fmt.Errorf("xadd promoted task: %w", err)
		}
		if err := c.client.ZRem(ctx, DelayedSenderKey, member).Err(); err != nil {
			return promoted, fmt.Errorf("zrem promoted task: %w", err)
		}
		promoted++
	}

	return promoted, nil
}
