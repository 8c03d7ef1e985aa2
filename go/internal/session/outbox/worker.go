package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	QueueSize      int
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Stats counts what the worker has done since start.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Pending   int   `json:"pending"`
}

// Worker publishes events off the caller's goroutine. Enqueue never blocks.
type Worker struct {
	publisher EventPublisher
	config    Config
	queue     chan Event

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(publisher EventPublisher, cfg Config) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Worker{
		publisher: publisher,
		config:    cfg,
		queue:     make(chan Event, cfg.QueueSize),
		stopChan:  make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Int("queue_size", w.config.QueueSize).
		Int("max_retries", w.config.MaxRetries).
		Msg("outbox worker started")
	return nil
}

// Stop publishes whatever is still queued and waits for the worker to exit.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

// Enqueue hands an event to the worker. A full queue drops the event.
func (w *Worker) Enqueue(event Event) bool {
	select {
	case w.queue <- event:
		return true
	default:
		w.dropped.Add(1)
		log.Warn().
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Msg("outbox queue full, dropping event")
		return false
	}
}

func (w *Worker) Stats() Stats {
	return Stats{
		Published: w.published.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
		Pending:   len(w.queue),
	}
}

// Running reports whether Start has been called without a matching Stop.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			w.drain(ctx)
			return
		case event := <-w.queue:
			w.process(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event := <-w.queue:
			w.process(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, event Event) {
	if err := w.publishWithRetry(ctx, event); err != nil {
		w.failed.Add(1)
		log.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Msg("failed to publish event")
		return
	}
	w.published.Add(1)
}

func (w *Worker) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.publishOnce(ctx, event); err != nil {
			lastErr = err
			log.Warn().Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}

func (w *Worker) publishOnce(ctx context.Context, event Event) error {
	if w.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.PublishTimeout)
		defer cancel()
	}
	return w.publisher.Publish(ctx, event)
}
