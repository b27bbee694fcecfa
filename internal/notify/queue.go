package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const DefaultQueueKey = "bizops:notifications"

// MaxAttempts bounds redelivery of a message that Slack keeps rejecting.
const MaxAttempts = 3

// Queue is a Notifier backed by a Redis list: LPUSH to enqueue, BRPOP to consume.
type Queue struct {
	client redis.Cmdable
	key    string
}

func NewQueue(client redis.Cmdable, key string) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{client: client, key: key}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (q *Queue) Notify(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next message. It returns nil, nil on timeout.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d items", len(res))
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	return &msg, nil
}

// Source is what the worker consumes from.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*Message, error)
	Notify(ctx context.Context, msg Message) error
}

// Worker drains a Source into a sink, requeueing failed deliveries until
// MaxAttempts is reached.
type Worker struct {
	source Source
	sink   Notifier
	wait   time.Duration
}

func NewWorker(source Source, sink Notifier) *Worker {
	return &Worker{source: source, sink: sink, wait: 5 * time.Second}
}

// Run processes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("Notification worker started")
	for ctx.Err() == nil {
		if err := w.Step(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Notification worker error", slog.Any("error", err))
			time.Sleep(time.Second)
		}
	}
	slog.Info("Notification worker stopped")
}

// Step handles at most one message.
func (w *Worker) Step(ctx context.Context) error {
	msg, err := w.source.Pop(ctx, w.wait)
	if err != nil || msg == nil {
		return err
	}

	if err := w.sink.Notify(ctx, *msg); err != nil {
		msg.Attempts++
		l := slog.With(slog.String("kind", msg.Kind), slog.Int("attempts", msg.Attempts), slog.Any("error", err))
		if msg.Attempts >= MaxAttempts {
			l.Error("Dropping notification after repeated failures")
			return nil
		}
		l.Warn("Notification delivery failed, requeueing")
		return w.source.Notify(ctx, *msg)
	}
	return nil
}
