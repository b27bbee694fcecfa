package syncrun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/curaious/bizops/internal/listquery"
)

const runColumns = `id, kind, status, started_at, completed_at, fetched, upserted, errors, message, triggered_by`

type SyncRunRepo struct {
	db *sqlx.DB
}

func NewSyncRunRepo(db *sqlx.DB) *SyncRunRepo {
	return &SyncRunRepo{db: db}
}

func (r *SyncRunRepo) Insert(ctx context.Context, run *Run) error {
	query := r.db.Rebind(`
		INSERT INTO sync_runs (id, kind, status, started_at, triggered_by)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.Kind, run.Status, run.StartedAt, run.TriggeredBy); err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// Finish sets the single terminal status of a running run.
func (r *SyncRunRepo) Finish(ctx context.Context, id uuid.UUID, status Status, counts Counts, message string, at time.Time) error {
	query := r.db.Rebind(`
		UPDATE sync_runs
		SET status = ?, completed_at = ?, fetched = ?, upserted = ?, errors = ?, message = ?
		WHERE id = ? AND status = 'running'
	`)
	res, err := r.db.ExecContext(ctx, query, status, at, counts.Fetched, counts.Upserted, counts.Errors, message, id)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrRunNotRunning
	}
	return nil
}

func (r *SyncRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	err := r.db.GetContext(ctx, &run, r.db.Rebind(`SELECT `+runColumns+` FROM sync_runs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}
	return &run, nil
}

func (r *SyncRunRepo) List(ctx context.Context, f Filter, page listquery.Page) ([]Run, int, error) {
	b := listquery.New().
		Eq("kind", f.Kind).
		Eq("status", f.Status).
		OrderBy("started_at DESC", "id DESC")

	runs := []Run{}
	if err := b.Select(ctx, r.db, &runs, `SELECT `+runColumns+` FROM sync_runs`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list sync runs: %w", err)
	}
	total, err := b.Count(ctx, r.db, "sync_runs")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sync runs: %w", err)
	}
	return runs, total, nil
}

// Stale lists runs still marked running that started before cutoff.
func (r *SyncRunRepo) Stale(ctx context.Context, cutoff time.Time) ([]Run, error) {
	runs := []Run{}
	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM sync_runs WHERE status = 'running' AND started_at < ? ORDER BY started_at`)
	if err := r.db.SelectContext(ctx, &runs, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale sync runs: %w", err)
	}
	return runs, nil
}
