// Package events publishes data-change notifications to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coremodel/coremodel/internal/metrics"
)

const (
	// StreamKey is the Redis stream for data-change events.
	StreamKey = "stream:data_changes"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 250 * time.Millisecond

	// QueueSize bounds the events waiting for the publish loop.
	QueueSize = 1024
)

// Publisher enqueues data-change events to a Redis stream. PublishAsync
// feeds a single publish loop, so events reach the stream in call order.
type Publisher struct {
	redis   *redis.Client
	stream  string
	logger  *slog.Logger
	metrics metrics.Recorder

	send  func(ctx context.Context, event Event) (string, error)
	queue chan Event
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPublisher creates a new event publisher and starts its publish loop.
// Call Close to flush queued events.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	return newPublisher(client, logger, recorder, nil)
}

func newPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder,
	send func(context.Context, Event) (string, error)) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		redis:   client,
		stream:  StreamKey,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
		send:    send,
		queue:   make(chan Event, QueueSize),
		done:    make(chan struct{}),
	}
	if p.send == nil {
		p.send = p.Publish
	}
	go p.run()
	return p
}

// Publish adds an event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"type":    string(event.Type),
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync queues an event without blocking the caller. The event is
// dropped when the queue is full or the publisher is closed. Errors are
// logged but not returned.
func (p *Publisher) PublishAsync(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(event, "publisher closed")
		return
	}
	select {
	case p.queue <- event:
	default:
		p.drop(event, "event queue full")
	}
}

// Close stops accepting events and waits until the queued ones are
// published or ctx is done.
func (p *Publisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush events: %w", ctx.Err())
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.queue {
		p.deliver(event)
	}
}

func (p *Publisher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
	defer cancel()

	streamID, err := p.send(ctx, event)
	if err != nil {
		p.logger.Warn("failed to publish data-change event",
			"type", event.Type,
			"id", event.ID,
			"error", err,
		)
		p.metrics.IncEventPublished("dropped")
		return
	}

	p.logger.Debug("data-change event published",
		"type", event.Type,
		"id", event.ID,
		"stream_id", streamID,
	)
	p.metrics.IncEventPublished("success")
}

func (p *Publisher) drop(event Event, reason string) {
	p.logger.Warn("data-change event dropped",
		"type", event.Type,
		"id", event.ID,
		"reason", reason,
	)
	p.metrics.IncEventPublished("dropped")
}

// Decode parses the payload field of a stream message.
func Decode(values map[string]interface{}) (Event, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return Event{}, fmt.Errorf("payload field missing")
	}

	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}
