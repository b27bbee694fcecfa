// Package scheduler runs the periodic sync jobs in-process. Each job calls the
// same resumable steps the cron endpoints expose.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/notify"
	"github.com/curaious/bizops/internal/services/ar"
	"github.com/curaious/bizops/internal/services/syncrun"
)

const (
	// Upper bounds on resumable calls made by a single tick.
	maxSyncCalls     = 10
	maxBackfillSteps = 20

	StaleAfter = time.Hour
	SweepSpec  = "0 0 * * * *"
	jobTimeout = 10 * time.Minute
)

// Receivables is the part of the receivables service the jobs drive.
type Receivables interface {
	Sync(ctx context.Context, actor *access.Principal, req ar.SyncRequest) (*ar.SyncResult, error)
	BackfillPayments(ctx context.Context, actor *access.Principal, limit int) (*ar.BackfillResult, error)
}

type Runs interface {
	Stale(ctx context.Context, age time.Duration) ([]syncrun.Run, error)
}

// Specs are six-field cron expressions (with seconds). Empty disables a job.
type Specs struct {
	Sync     string
	Backfill string
	Sweep    string
}

type Scheduler struct {
	cron        *cron.Cron
	receivables Receivables
	runs        Runs
	notifier    notify.Notifier
}

func New(receivables Receivables, runs Runs, notifier notify.Notifier) *Scheduler {
	return &Scheduler{
		cron:        cron.NewWithLocation(time.UTC),
		receivables: receivables,
		runs:        runs,
		notifier:    notifier,
	}
}

// Register adds the jobs whose spec is set.
func (s *Scheduler) Register(specs Specs) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{"invoice sync", specs.Sync, s.SyncInvoices},
		{"payment backfill", specs.Backfill, s.BackfillPayments},
		{"stale run sweep", specs.Sweep, s.SweepStale},
	}

	for _, job := range jobs {
		if job.spec == "" {
			slog.Info("Scheduled job disabled", slog.String("job", job.name))
			continue
		}
		if err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.fn)); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", job.spec, job.name, err)
		}
		slog.Info("Scheduled job", slog.String("job", job.name), slog.String("spec", job.spec))
	}
	return nil
}

func (s *Scheduler) wrap(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			slog.Error("Scheduled job failed", slog.String("job", name), slog.Any("error", err))
			return
		}
		slog.Info("Scheduled job finished", slog.String("job", name), slog.Duration("duration", time.Since(start)))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// SyncInvoices follows the sync's page cursor until ServiceTitan has no more.
func (s *Scheduler) SyncInvoices(ctx context.Context) error {
	req := ar.SyncRequest{Page: 1}
	for i := 0; i < maxSyncCalls; i++ {
		res, err := s.receivables.Sync(ctx, nil, req)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Invoice sync step",
			slog.String("run_id", res.RunID.String()),
			slog.Int("fetched", res.Fetched),
			slog.Int("upserted", res.Upserted),
			slog.Int("errors", res.Errors))
		if !res.HasMore {
			return nil
		}
		req.Page = res.NextPage
	}
	slog.WarnContext(ctx, "Invoice sync stopped with pages left", slog.Int("next_page", req.Page))
	return nil
}

// BackfillPayments repeats the backfill step until the backlog is drained.
func (s *Scheduler) BackfillPayments(ctx context.Context) error {
	for i := 0; i < maxBackfillSteps; i++ {
		res, err := s.receivables.BackfillPayments(ctx, nil, 0)
		if err != nil {
			return err
		}
		if res.Done {
			return nil
		}
		if res.Enriched == 0 && res.Processed == res.Errors {
			// Every item failed; leave the rest for the next tick.
			slog.WarnContext(ctx, "Payment backfill made no progress", slog.Int("remaining", res.Remaining))
			return nil
		}
	}
	return nil
}

// SweepStale reports runs stuck in running. They are left as they are.
func (s *Scheduler) SweepStale(ctx context.Context) error {
	stale, err := s.runs.Stale(ctx, StaleAfter)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	lines := make([]string, 0, len(stale))
	for _, r := range stale {
		lines = append(lines, fmt.Sprintf("• %s %s started %s", r.Kind, r.ID, r.StartedAt.Format(time.RFC3339)))
	}
	slog.WarnContext(ctx, "Sync runs stuck in running", slog.Int("count", len(stale)))

	return s.notifier.Notify(ctx, notify.Message{
		Kind:      "sync_stale",
		Text:      fmt.Sprintf(":hourglass: %d sync run(s) have been running for over %s:\n%s", len(stale), StaleAfter, strings.Join(lines, "\n")),
		CreatedAt: time.Now().UTC(),
	})
}
