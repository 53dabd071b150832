package queue

import (
	"encoding/json"
	"fmt"
)

// Stream and key names for the delivery queue
const (
	// StreamSender is the redis stream delivery workers consume from.
	StreamSender = "stream:gcm_sender"

	// ConsumerGroupSender is the consumer group for delivery workers.
	ConsumerGroupSender = "gcm_senders"

	// DelayedSenderKey is the sorted set holding tasks scheduled for the
	// future, scored by their ready time (unix seconds). A promoter loop
	// moves due entries into the stream.
	DelayedSenderKey = "queue:gcm_sender:delayed"
)

// DeliveryTask is one batch send job. It lives only on the queue: enqueued
// by the push trigger or the retry scheduler, destroyed once a worker has
// dispatched or abandoned it.
//
// TryCount is owned by the application, not the queue: 0 is the first
// attempt, 1 the first retry, and so on. Queue-level redelivery of the same
// message must not advance it.
type DeliveryTask struct {
	APIKey          string   `json:"api_key"`
	RegistrationIDs []string `json:"registration_ids"`
	TryCount        int      `json:"try_count"`

	// Optional delivery fields, carried unchanged across retries.
	Data                  map[string]string `json:"data,omitempty"`
	CollapseKey           string            `json:"collapse_key,omitempty"`
	DelayWhileIdle        *bool             `json:"delay_while_idle,omitempty"`
	TimeToLive            *int              `json:"time_to_live,omitempty"`
	RestrictedPackageName string            `json:"restricted_package_name,omitempty"`
	DryRun                bool              `json:"dry_run,omitempty"`
}

// NextTry returns a copy of the task with the try counter advanced. The
// caller replaces RegistrationIDs when only a subset is retried.
func (t DeliveryTask) NextTry() DeliveryTask {
	next := t
	next.TryCount++
	return next
}

// ToMap converts the task to field-value pairs for XADD. The whole task is
// serialized into a single "data" field as JSON.
func (t DeliveryTask) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return map[string]interface{}{
		"data": string(data),
	}, nil
}

// ParseDeliveryTask parses a DeliveryTask from redis stream message values.
func ParseDeliveryTask(values map[string]interface{}) (DeliveryTask, error) {
	data, ok := values["data"].(string)
	if !ok {
		return DeliveryTask{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var task DeliveryTask
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return DeliveryTask{}, fmt.Errorf("unmarshal task: %w", err)
	}
	return task, nil
}

// delayedEnvelope wraps a task stored in the delayed sorted set. The ID
// keeps otherwise-identical tasks from colliding as set members.
type delayedEnvelope struct {
	ID   string       `json:"id"`
	Task DeliveryTask `json:"task"`
}
