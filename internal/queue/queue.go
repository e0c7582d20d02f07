// Package queue carries CloudEvents to asynchronous collaborators.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"leadflow/internal/observability"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TopicAnalytics  = "analytics"
	TopicReanalysis = "reanalysis"

	keyPrefix = "leadflow:queue:"

	// DefaultCapacity bounds each topic when Options.Capacity is not set.
	DefaultCapacity = 10000
)

var ErrEmpty = errors.New("queue empty")

type Queue interface {
	Publish(ctx context.Context, topic string, ev event.Event) error
	// Consume blocks for up to wait and returns ErrEmpty when nothing arrived.
	Consume(ctx context.Context, topic string, wait time.Duration) (event.Event, error)
	Len(ctx context.Context, topic string) (int64, error)
}

// Options bound a queue. When a topic is full, Publish drops its oldest entry.
type Options struct {
	Capacity int
	Logger   *zap.Logger
	Metrics  *observability.QueueMetrics
}

type limiter struct {
	capacity int
	logger   *zap.Logger
	metrics  *observability.QueueMetrics
}

func newLimiter(opts Options) limiter {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return limiter{capacity: capacity, logger: logger.Named("queue"), metrics: opts.Metrics}
}

func (l limiter) dropped(topic string, n int) {
	if n <= 0 {
		return
	}
	l.metrics.Dropped(topic, n)
	l.logger.Warn("Queue at capacity; dropped oldest entries",
		zap.String("topic", topic),
		zap.Int("dropped", n),
		zap.Int("capacity", l.capacity),
	)
}

type RedisQueue struct {
	client redis.UniversalClient
	limit  limiter
}

func NewRedisQueue(client redis.UniversalClient, opts Options) *RedisQueue {
	return &RedisQueue{client: client, limit: newLimiter(opts)}
}

func (q *RedisQueue) Publish(ctx context.Context, topic string, ev event.Event) error {
	key, err := topicKey(topic)
	if err != nil {
		return err
	}
	payload, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode cloudevent: %w", err)
	}
	n, err := q.client.LPush(ctx, key, payload).Result()
	if err != nil {
		return err
	}
	if over := n - int64(q.limit.capacity); over > 0 {
		// The tail holds the oldest entries.
		if err := q.client.LTrim(ctx, key, 0, int64(q.limit.capacity-1)).Err(); err != nil {
			return fmt.Errorf("trim %s: %w", topic, err)
		}
		q.limit.dropped(strings.TrimPrefix(key, keyPrefix), int(over))
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context, topic string, wait time.Duration) (event.Event, error) {
	key, err := topicKey(topic)
	if err != nil {
		return event.Event{}, err
	}
	res, err := q.client.BRPop(ctx, wait, key).Result()
	if errors.Is(err, redis.Nil) {
		return event.Event{}, ErrEmpty
	}
	if err != nil {
		return event.Event{}, err
	}
	if len(res) != 2 {
		return event.Event{}, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}
	return decode([]byte(res[1]))
}

func (q *RedisQueue) Len(ctx context.Context, topic string) (int64, error) {
	key, err := topicKey(topic)
	if err != nil {
		return 0, err
	}
	return q.client.LLen(ctx, key).Result()
}

// Ping reports whether redis is reachable.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// MemoryQueue is the in-process fallback when redis is not configured.
type MemoryQueue struct {
	mu     sync.Mutex
	topics map[string][][]byte
	limit  limiter
}

const memoryPollInterval = 10 * time.Millisecond

func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{topics: map[string][][]byte{}, limit: newLimiter(opts)}
}

func (q *MemoryQueue) Publish(ctx context.Context, topic string, ev event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := topicKey(topic)
	if err != nil {
		return err
	}
	payload, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode cloudevent: %w", err)
	}
	q.mu.Lock()
	items := append(q.topics[key], payload)
	over := len(items) - q.limit.capacity
	if over > 0 {
		items = items[over:]
	}
	q.topics[key] = items
	q.mu.Unlock()
	q.limit.dropped(strings.TrimPrefix(key, keyPrefix), over)
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, topic string, wait time.Duration) (event.Event, error) {
	key, err := topicKey(topic)
	if err != nil {
		return event.Event{}, err
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	tick := time.NewTicker(memoryPollInterval)
	defer tick.Stop()
	for {
		if payload, ok := q.pop(key); ok {
			return decode(payload)
		}
		select {
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		case <-timer.C:
			return event.Event{}, ErrEmpty
		case <-tick.C:
		}
	}
}

func (q *MemoryQueue) Len(_ context.Context, topic string) (int64, error) {
	key, err := topicKey(topic)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.topics[key])), nil
}

func (q *MemoryQueue) pop(key string) ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.topics[key]
	if len(items) == 0 {
		return nil, false
	}
	q.topics[key] = items[1:]
	return items[0], true
}

func topicKey(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("empty topic")
	}
	return keyPrefix + topic, nil
}

func decode(payload []byte) (event.Event, error) {
	ev := event.New()
	if err := ev.UnmarshalJSON(payload); err != nil {
		return event.Event{}, fmt.Errorf("decode cloudevent: %w", err)
	}
	return ev, nil
}
