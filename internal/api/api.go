package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/api/authenticator"
	"github.com/curaious/bizops/internal/config"
	"github.com/curaious/bizops/internal/migrations"
	"github.com/curaious/bizops/internal/pubsub"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/media"
)

// Server is the HTTP API together with the services it serves.
type Server struct {
	srv      *fasthttp.Server
	addr     string
	services *services.Services
	events   *pubsub.PubSub
}

// New connects to the database, applies pending migrations and builds the
// routed server.
func New(ctx context.Context, conf *config.Config) (*Server, error) {
	auth, err := authenticator.New(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("unable to create authenticator: %w", err)
	}

	svc := services.NewServices(ctx, conf)

	m, err := migrations.NewMigrator(svc.DB)
	if err != nil {
		return nil, fmt.Errorf("unable to create migrator: %w", err)
	}
	if err := m.Up(0); err != nil {
		return nil, fmt.Errorf("unable to run migrations: %w", err)
	}

	s := &Server{
		srv: &fasthttp.Server{
			Handler:            NewHandler(svc, auth, conf),
			Name:               "bizops",
			MaxRequestBodySize: int(media.MaxVideoBytes + media.MiB),
			ReadTimeout:        5 * time.Minute,
			WriteTimeout:       5 * time.Minute,
		},
		addr:     conf.HTTP_ADDR,
		services: svc,
		events:   pubsub.New(conf),
	}

	return s, nil
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() {
	if err := s.events.Start(); err != nil {
		slog.Warn("Sync run events are unavailable", slog.Any("error", err))
	} else {
		s.events.Subscribe(pubsub.SlackAlerts(s.services.Notifier))
	}

	slog.Info("Starting REST server...", slog.String("addr", s.addr))
	go func() {
		if err := s.srv.ListenAndServe(s.addr); err != nil {
			slog.Error("Server shutdown", slog.Any("error", err))
		}
	}()
	slog.Info("REST server started!")

	// Listen for OS interrupts
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block till we receive an interrupt
	<-c
	slog.Info("Received interrupt...")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s.shutdown(ctx)
}

func (s *Server) shutdown(ctx context.Context) {
	slog.Info("Gracefully shutting down REST server...")
	if err := s.srv.ShutdownWithContext(ctx); err != nil {
		slog.Error("Failed to shutdown the server", slog.Any("error", err))
	}
	s.events.Stop()
	s.services.Close(ctx)
	slog.Info("REST server shutdown!")
}
