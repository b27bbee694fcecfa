// Package notify delivers operational messages to Slack, either directly or
// through a durable Redis list drained by the notify-worker command.
package notify

import (
	"context"
	"log/slog"
	"time"
)

type Message struct {
	Kind       string    `json:"kind"`
	ResourceID string    `json:"resource_id,omitempty"`
	Text       string    `json:"text"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Poster is the Slack client surface the notifiers need.
type Poster interface {
	Enabled() bool
	Post(ctx context.Context, text string) error
}

// Direct posts synchronously.
type Direct struct {
	poster Poster
}

func NewDirect(p Poster) *Direct {
	return &Direct{poster: p}
}

func (d *Direct) Notify(ctx context.Context, msg Message) error {
	if !d.poster.Enabled() {
		slog.DebugContext(ctx, "slack disabled, dropping notification", slog.String("kind", msg.Kind))
		return nil
	}
	return d.poster.Post(ctx, msg.Text)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Notify(context.Context, Message) error { return nil }
