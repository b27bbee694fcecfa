package syncrun

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/listquery"
)

type SyncRunService struct {
	repo *SyncRunRepo
}

func NewSyncRunService(repo *SyncRunRepo) *SyncRunService {
	return &SyncRunService{repo: repo}
}

// Start records a new running run.
func (s *SyncRunService) Start(ctx context.Context, kind, triggeredBy string) (*Run, error) {
	run := &Run{
		ID:          uuid.New(),
		Kind:        kind,
		Status:      StatusRunning,
		StartedAt:   time.Now().UTC(),
		TriggeredBy: triggeredBy,
	}
	if err := s.repo.Insert(ctx, run); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Sync run started", slog.String("kind", kind), slog.String("run_id", run.ID.String()))
	return run, nil
}

// Complete finishes the run as completed. Per-item errors do not fail a run.
func (s *SyncRunService) Complete(ctx context.Context, run *Run, counts Counts, message string) error {
	return s.finish(ctx, run, StatusCompleted, counts, message)
}

// Fail finishes the run as failed.
func (s *SyncRunService) Fail(ctx context.Context, run *Run, counts Counts, cause error) error {
	return s.finish(ctx, run, StatusFailed, counts, cause.Error())
}

func (s *SyncRunService) finish(ctx context.Context, run *Run, status Status, counts Counts, message string) error {
	at := time.Now().UTC()
	if err := s.repo.Finish(ctx, run.ID, status, counts, message, at); err != nil {
		return err
	}

	run.Status = status
	run.CompletedAt = &at
	run.Fetched, run.Upserted, run.Errors = counts.Fetched, counts.Upserted, counts.Errors
	run.Message = message

	slog.InfoContext(ctx, "Sync run finished",
		slog.String("kind", run.Kind),
		slog.String("run_id", run.ID.String()),
		slog.String("status", string(status)),
		slog.Int("fetched", counts.Fetched),
		slog.Int("upserted", counts.Upserted),
		slog.Int("errors", counts.Errors))
	return nil
}

func (s *SyncRunService) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *SyncRunService) List(ctx context.Context, f Filter, page listquery.Page) ([]Run, int, error) {
	return s.repo.List(ctx, f, page)
}

// Stale reports runs left in running for longer than age. They are never
// repaired automatically.
func (s *SyncRunService) Stale(ctx context.Context, age time.Duration) ([]Run, error) {
	return s.repo.Stale(ctx, time.Now().UTC().Add(-age))
}
