package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"gcmrelay/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of messages to read per batch
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for new messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultPromoteInterval is how often due delayed tasks are moved into
	// the stream
	DefaultPromoteInterval = time.Second
)

// Manager orchestrates the delivery workers: N consumer goroutines on the
// task stream plus one promoter loop feeding due delayed tasks back in.
type Manager struct {
	consumer    queue.Consumer
	handler     *Handler
	workerCount int
	batchSize   int64
	blockTime   time.Duration
	promoteTick time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	WorkerCount     int
	BatchSize       int64
	BlockTimeout    time.Duration
	PromoteInterval time.Duration
}

// NewManager creates a new worker manager.
func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = DefaultPromoteInterval
	}

	return &Manager{
		consumer:    consumer,
		handler:     handler,
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,
		promoteTick: cfg.PromoteInterval,
	}
}

// Start brings up the worker goroutines and the promoter loop.
// Call Stop() to gracefully shut down.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx); err != nil {
		return err
	}

	// Entries still pending from a previous run were delivered to some
	// worker before; a batch send may already have gone out for them, so
	// they are dropped rather than replayed.
	m.dropRedelivered()

	m.wg.Add(1)
	go m.runPromoter()

	log.Printf("[Manager] Starting %d workers for stream=%s group=%s",
		m.workerCount, queue.StreamSender, queue.ConsumerGroupSender)

	for i := 0; i < m.workerCount; i++ {
		workerID := i + 1
		consumerName := "sender-" + uuid.NewString()

		m.wg.Add(1)
		go m.runWorker(workerID, consumerName)
	}

	return nil
}

// Stop gracefully shuts down all workers.
// Blocks until all workers have finished.
func (m *Manager) Stop() {
	log.Printf("[Manager] Stopping workers...")
	m.cancel()
	m.wg.Wait()
	log.Printf("[Manager] All workers stopped")
}

// dropRedelivered acknowledges, without reprocessing, every message the
// queue would redeliver. The task carries its own try counter and the retry
// scheduler owns all application-level retries; letting the queue replay a
// message on top of that would double-send batches.
func (m *Manager) dropRedelivered() {
	for {
		pending, err := m.consumer.Pending(m.ctx, m.batchSize)
		if err != nil {
			log.Printf("[Manager] Error listing pending messages: %v", err)
			return
		}
		if len(pending) == 0 {
			return
		}

		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			log.Printf("[Manager] Queue redelivery of %s (deliveries=%d, consumer=%s), not reprocessing",
				p.ID, p.DeliveryCount, p.Consumer)
			ids = append(ids, p.ID)
		}
		if err := m.consumer.Ack(m.ctx, ids...); err != nil {
			log.Printf("[Manager] Error acking redelivered messages: %v", err)
			return
		}
	}
}

// runPromoter periodically moves due delayed tasks into the stream.
func (m *Manager) runPromoter() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.promoteTick)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			n, err := m.consumer.PromoteDue(m.ctx, m.batchSize)
			if err != nil {
				if m.ctx.Err() == nil {
					log.Printf("[Manager] Error promoting delayed tasks: %v", err)
				}
				continue
			}
			if n > 0 {
				log.Printf("[Manager] Promoted %d delayed tasks", n)
			}
		}
	}
}

// runWorker is the main loop for a single worker goroutine.
func (m *Manager) runWorker(workerID int, consumerName string) {
	defer m.wg.Done()

	log.Printf("[Worker-%d] Started (consumer=%s)", workerID, consumerName)

	for {
		select {
		case <-m.ctx.Done():
			log.Printf("[Worker-%d] Shutting down", workerID)
			return
		default:
			m.processMessages(workerID, consumerName)
		}
	}
}

// processMessages reads and handles a batch of messages.
func (m *Manager) processMessages(workerID int, consumerName string) {
	messages, err := m.consumer.Read(m.ctx, consumerName, m.batchSize, m.blockTime)
	if err != nil {
		if m.ctx.Err() == nil {
			log.Printf("[Worker-%d] Error reading: %v", workerID, err)
			time.Sleep(time.Second) // Back off on error
		}
		return
	}

	for _, msg := range messages {
		log.Printf("[Worker-%d] Processing msgID=%s try=%d ids=%d",
			workerID, msg.ID, msg.Task.TryCount, len(msg.Task.RegistrationIDs))

		if err := m.handler.HandleTask(m.ctx, msg.Task); err != nil {
			// Ack anyway: the push service terminates request-level errors
			// itself and the scheduler owns retries. Letting the message go
			// back to pending would only trip the redelivery guard later.
			log.Printf("[Worker-%d] Handler error msgID=%s: %v", workerID, msg.ID, err)
		}

		if err := m.consumer.Ack(m.ctx, msg.ID); err != nil {
			log.Printf("[Worker-%d] ACK error msgID=%s: %v", workerID, msg.ID, err)
		}
	}
}
