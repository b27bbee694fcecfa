// Package pubsub listens for sync run events published by Postgres on the
// sync_events channel.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/curaious/bizops/internal/config"
	"github.com/curaious/bizops/internal/db"
	"github.com/curaious/bizops/internal/notify"
)

const Channel = "sync_events"

// SyncEvent reports that a sync run left the running state.
type SyncEvent struct {
	Kind   string
	Status string
	RunID  uuid.UUID
}

// SyncEventHandler is called for every received event.
type SyncEventHandler func(ctx context.Context, event SyncEvent)

// ParsePayload decodes a "kind:status:id" notification payload.
func ParsePayload(payload string) (SyncEvent, error) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 {
		return SyncEvent{}, fmt.Errorf("invalid payload %q", payload)
	}

	id, err := uuid.Parse(parts[2])
	if err != nil {
		return SyncEvent{}, fmt.Errorf("invalid run id in payload %q: %w", payload, err)
	}
	return SyncEvent{Kind: parts[0], Status: parts[1], RunID: id}, nil
}

// PubSub handles PostgreSQL LISTEN/NOTIFY for sync run events
type PubSub struct {
	connStr  string
	listener *pq.Listener
	handlers []SyncEventHandler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(conf *config.Config) *PubSub {
	ctx, cancel := context.WithCancel(context.Background())

	return &PubSub{
		connStr:  db.DSN(conf),
		handlers: make([]SyncEventHandler, 0),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (ps *PubSub) Subscribe(handler SyncEventHandler) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.handlers = append(ps.handlers, handler)
}

// Start begins listening for notifications
func (ps *PubSub) Start() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("PubSub listener error", slog.Any("error", err))
		}
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			slog.Warn("PubSub connection attempt failed, will retry")
		case pq.ListenerEventDisconnected:
			slog.Warn("PubSub disconnected, will attempt reconnect")
		case pq.ListenerEventReconnected:
			// Events sent while disconnected are lost; the sync run log still has them.
			slog.Info("PubSub reconnected")
		}
	}

	ps.listener = pq.NewListener(ps.connStr, 10*time.Second, time.Minute, reportProblem)

	if err := ps.listener.Listen(Channel); err != nil {
		ps.listener.Close()
		ps.listener = nil
		return fmt.Errorf("failed to listen on %s channel: %w", Channel, err)
	}

	slog.Info("PubSub started listening for sync events")

	go ps.processNotifications()

	return nil
}

// Stop closes the listener
func (ps *PubSub) Stop() {
	ps.cancel()
	if ps.listener != nil {
		ps.listener.Close()
	}
	slog.Info("PubSub stopped")
}

func (ps *PubSub) processNotifications() {
	for {
		select {
		case <-ps.ctx.Done():
			return
		case notification := <-ps.listener.Notify:
			if notification == nil {
				// Connection lost, will be handled by reportProblem callback
				continue
			}

			event, err := ParsePayload(notification.Extra)
			if err != nil {
				slog.Warn("Invalid notification payload", slog.String("payload", notification.Extra), slog.Any("error", err))
				continue
			}

			slog.Debug("Received sync event",
				slog.String("kind", event.Kind),
				slog.String("status", event.Status),
				slog.String("run_id", event.RunID.String()))

			ps.dispatch(event)
		}
	}
}

func (ps *PubSub) dispatch(event SyncEvent) {
	ps.mu.RLock()
	handlers := make([]SyncEventHandler, len(ps.handlers))
	copy(handlers, ps.handlers)
	ps.mu.RUnlock()

	for _, handler := range handlers {
		go handler(ps.ctx, event)
	}
}

// SlackAlerts forwards failed runs to the notifier.
func SlackAlerts(n notify.Notifier) SyncEventHandler {
	return func(ctx context.Context, event SyncEvent) {
		if event.Status != "failed" {
			return
		}

		err := n.Notify(ctx, notify.Message{
			Kind:       "sync_failed",
			ResourceID: event.RunID.String(),
			Text:       fmt.Sprintf(":warning: %s run %s failed. Check the sync log for details.", event.Kind, event.RunID),
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			slog.WarnContext(ctx, "Failed to send sync alert", slog.String("run_id", event.RunID.String()), slog.Any("error", err))
		}
	}
}
