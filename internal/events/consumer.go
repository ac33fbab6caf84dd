package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coremodel/coremodel/internal/metrics"
)

const (
	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:data_changes:dlq"

	// DefaultGroup is the consumer group used when none is given.
	DefaultGroup = "data_change_consumers"

	// DefaultBatchSize is the max messages per read.
	DefaultBatchSize = 100

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the max attempts for one message.
	DefaultMaxRetries = 3

	// DefaultMaxDeliveries is how many times a message may be delivered to
	// the group before a failing one is dead-lettered.
	DefaultMaxDeliveries = 5

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second

	deadLetterMaxLen = 10000
)

// Handler processes one decoded event. A returned error leaves the message
// pending so it is retried or reclaimed later.
type Handler func(ctx context.Context, streamID string, event Event) error

// Consumer reads data-change events through a Redis consumer group.
type Consumer struct {
	redis           *redis.Client
	handler         Handler
	logger          *slog.Logger
	metrics         metrics.Recorder
	group           string
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	maxDeliveries   int64
	retryBackoff    time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewConsumerID creates a stable-ish consumer ID for Redis consumer groups.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "consumer"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}

// NewConsumer creates a consumer in group. An empty group uses DefaultGroup
// and an empty consumerID gets a generated one.
func NewConsumer(client *redis.Client, group, consumerID string, handler Handler, logger *slog.Logger, recorder metrics.Recorder) *Consumer {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if group == "" {
		group = DefaultGroup
	}
	if consumerID == "" {
		consumerID = NewConsumerID()
	}
	return &Consumer{
		redis:           client,
		handler:         handler,
		logger:          logger.With("component", "events.consumer", "group", group, "consumer_id", consumerID),
		metrics:         recorder,
		group:           group,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		maxDeliveries:   DefaultMaxDeliveries,
		retryBackoff:    time.Second,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// SetBatchSize overrides the default batch size.
func (c *Consumer) SetBatchSize(size int) {
	if size > 0 {
		c.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (c *Consumer) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.blockTimeout = timeout
	}
}

// SetRetry overrides the attempt count and the base backoff.
func (c *Consumer) SetRetry(attempts int, backoff time.Duration) {
	if attempts > 0 {
		c.maxRetries = attempts
	}
	if backoff > 0 {
		c.retryBackoff = backoff
	}
}

// SetMaxDeliveries overrides how many deliveries a failing message gets
// before it is dead-lettered. Zero keeps failing messages pending forever.
func (c *Consumer) SetMaxDeliveries(n int) {
	if n >= 0 {
		c.maxDeliveries = int64(n)
	}
}

// SetClaim overrides the pending-claim interval and idle threshold.
// A zero interval disables reclaiming.
func (c *Consumer) SetClaim(interval, idle time.Duration) {
	c.claimInterval = interval
	if idle > 0 {
		c.claimIdle = idle
	}
}

// Run starts the consume loop. Blocks until ctx is cancelled or Shutdown is called.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("consumer already started")
	}
	c.started = true
	c.done = make(chan struct{})
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	defer close(c.done)

	if err := c.ensureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	c.logger.Info("events consumer started")

	for {
		c.mu.Lock()
		draining := c.draining
		c.mu.Unlock()

		if draining {
			c.logger.Info("events consumer draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Info("events consumer stopping")
			return nil
		default:
			if err := c.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				c.logger.Error("process error", "error", err)
				sleep(ctx, time.Second)
			}
		}
	}
}

// Shutdown stops the consumer after the in-flight batch.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("events consumer shutdown timed out")
		return ctx.Err()
	}
}

// ensureGroup creates the consumer group, and the stream with it, when missing.
// New groups start at the beginning of the stream.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, StreamKey, c.group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return err
	}
	return nil
}

func (c *Consumer) processOnce(ctx context.Context) error {
	c.maybeUpdateQueueDepth(ctx)

	messages, err := c.maybeClaimPending(ctx)
	if err != nil {
		c.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		messages, err = c.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	valid, poison := splitMessages(messages)
	acks := make([]string, 0, len(messages))

	for _, p := range poison {
		c.deadLetter(ctx, p)
		acks = append(acks, p.msg.ID)
	}

	for _, r := range valid {
		if err := c.handleWithRetry(ctx, r); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			if deliveries, exhausted := c.deliveriesExhausted(ctx, r.streamID); exhausted {
				c.deadLetter(ctx, poisoned{
					msg:    redis.XMessage{ID: r.streamID, Values: r.values},
					reason: "max_deliveries",
					detail: fmt.Sprintf("delivered %d times: %v", deliveries, err),
				})
				acks = append(acks, r.streamID)
				continue
			}
			c.logger.Error("event handling failed after retries",
				"stream_id", r.streamID,
				"type", r.event.Type,
				"error", err,
			)
			c.metrics.IncEventConsumed("failed")
			continue
		}
		c.metrics.IncEventConsumed("success")
		acks = append(acks, r.streamID)
	}

	return c.ack(context.WithoutCancel(ctx), acks)
}

func (c *Consumer) handleWithRetry(ctx context.Context, r received) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err := c.handler(ctx, r.streamID, r.event)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == c.maxRetries {
			break
		}

		backoff := c.retryBackoff * time.Duration(1<<(attempt-1))
		c.logger.Warn("event handling failed, retrying",
			"stream_id", r.streamID,
			"attempt", attempt,
			"backoff_seconds", backoff.Seconds(),
			"error", err,
		)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
	}
	return lastErr
}

// deliveriesExhausted reports whether the group has delivered id at least
// maxDeliveries times, along with the delivery count.
func (c *Consumer) deliveriesExhausted(ctx context.Context, id string) (int64, bool) {
	if c.maxDeliveries <= 0 {
		return 0, false
	}
	pending, err := c.redis.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: StreamKey,
		Group:  c.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		if err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Warn("failed to read delivery count", "stream_id", id, "error", err)
		}
		return 0, false
	}
	return pending[0].RetryCount, pending[0].RetryCount >= c.maxDeliveries
}

func (c *Consumer) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(c.batchSize),
		Block:    c.blockTimeout,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (c *Consumer) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if c.claimInterval <= 0 || c.claimIdle <= 0 {
		return nil, nil
	}
	if !c.lastClaim.IsZero() && time.Since(c.lastClaim) < c.claimInterval {
		return nil, nil
	}
	c.lastClaim = time.Now()

	messages, start, err := c.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    c.group,
		Consumer: c.consumerID,
		MinIdle:  c.claimIdle,
		Start:    c.claimStartID,
		Count:    int64(c.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		c.claimStartID = start
	}
	return messages, nil
}

func (c *Consumer) maybeUpdateQueueDepth(ctx context.Context) {
	if c.metricsInterval <= 0 {
		return
	}
	if !c.lastMetrics.IsZero() && time.Since(c.lastMetrics) < c.metricsInterval {
		return
	}
	c.lastMetrics = time.Now()

	groups, err := c.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == c.group {
			c.metrics.SetEventQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, p poisoned) {
	c.logger.Warn("dead-lettering poison message",
		"message_id", p.msg.ID,
		"reason", p.reason,
		"detail", p.detail,
	)

	err := c.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      p.msg.ID,
			"original_stream":  StreamKey,
			"group":            c.group,
			"reason":           p.reason,
			"detail":           p.detail,
			"payload":          fmt.Sprint(p.msg.Values["payload"]),
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		c.logger.Error("failed to write to dead-letter stream",
			"message_id", p.msg.ID,
			"error", err,
		)
	}

	c.metrics.IncEventConsumed("dead_lettered")
}

func (c *Consumer) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.redis.XAck(ctx, StreamKey, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

type received struct {
	streamID string
	event    Event
	values   map[string]interface{}
}

type poisoned struct {
	msg    redis.XMessage
	reason string
	detail string
}

// splitMessages decodes messages, separating poison messages that can never
// be handled from valid events.
func splitMessages(messages []redis.XMessage) ([]received, []poisoned) {
	valid := make([]received, 0, len(messages))
	var poison []poisoned

	for _, msg := range messages {
		if _, ok := msg.Values["payload"].(string); !ok {
			poison = append(poison, poisoned{msg: msg, reason: "invalid_format", detail: "payload field missing or not a string"})
			continue
		}
		event, err := Decode(msg.Values)
		if err != nil {
			reason := "validation_error"
			if strings.HasPrefix(err.Error(), "unmarshal event") {
				reason = "unmarshal_error"
			}
			poison = append(poison, poisoned{msg: msg, reason: reason, detail: err.Error()})
			continue
		}
		valid = append(valid, received{streamID: msg.ID, event: event, values: msg.Values})
	}
	return valid, poison
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
