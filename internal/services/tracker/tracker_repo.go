package tracker

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

const (
	trackerColumns   = `id, st_job_id, job_number, customer_name, customer_phone, address, status, created_by, created_at, updated_at`
	milestoneColumns = `id, tracker_id, name, position, notify_customer, status, sync_state, completed_at, completed_by, created_at, updated_at`
)

type TrackerRepo struct {
	db *sqlx.DB
}

func NewTrackerRepo(db *sqlx.DB) *TrackerRepo {
	return &TrackerRepo{db: db}
}

// Create inserts the tracker and its initial milestones in one transaction.
func (r *TrackerRepo) Create(ctx context.Context, t *Tracker, milestones []Milestone) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO job_trackers (id, st_job_id, job_number, customer_name, customer_phone, address, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (st_job_id) DO NOTHING
	`)
	res, err := tx.ExecContext(ctx, query, t.ID, t.STJobID, t.JobNumber, t.CustomerName, t.CustomerPhone, t.Address,
		t.Status, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}
	if n == 0 {
		return ErrJobTracked
	}

	for i := range milestones {
		if err := upsertMilestone(ctx, tx, &milestones[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracker: %w", err)
	}
	return nil
}

func (r *TrackerRepo) Get(ctx context.Context, id uuid.UUID) (*Tracker, error) {
	var t Tracker
	if err := r.db.GetContext(ctx, &t, r.db.Rebind(`SELECT `+trackerColumns+` FROM job_trackers WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTrackerNotFound
		}
		return nil, fmt.Errorf("failed to get tracker: %w", err)
	}
	return &t, nil
}

func (r *TrackerRepo) List(ctx context.Context, f TrackerFilter, page listquery.Page) ([]Tracker, int, error) {
	b := listquery.New().
		Eq("status", f.Status).
		Search(f.Search, "customer_name", "job_number", "address").
		OrderBy("created_at DESC", "id")

	trackers := []Tracker{}
	if err := b.Select(ctx, r.db, &trackers, `SELECT `+trackerColumns+` FROM job_trackers`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list trackers: %w", err)
	}
	total, err := b.Count(ctx, r.db, "job_trackers")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count trackers: %w", err)
	}
	return trackers, total, nil
}

func (r *TrackerRepo) ListMilestones(ctx context.Context, trackerID uuid.UUID) ([]Milestone, error) {
	milestones := []Milestone{}
	query := r.db.Rebind(`SELECT ` + milestoneColumns + ` FROM tracker_milestones WHERE tracker_id = ? ORDER BY position, id`)
	if err := r.db.SelectContext(ctx, &milestones, query, trackerID); err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	return milestones, nil
}

func (r *TrackerRepo) GetMilestone(ctx context.Context, id uuid.UUID) (*Milestone, error) {
	var m Milestone
	if err := r.db.GetContext(ctx, &m, r.db.Rebind(`SELECT `+milestoneColumns+` FROM tracker_milestones WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("failed to get milestone: %w", err)
	}
	return &m, nil
}

// UpsertMilestones writes every milestone keyed by (tracker_id, name) in one
// transaction. Existing rows keep their lifecycle state.
func (r *TrackerRepo) UpsertMilestones(ctx context.Context, milestones []Milestone) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range milestones {
		if err := upsertMilestone(ctx, tx, &milestones[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit milestones: %w", err)
	}
	return nil
}

func upsertMilestone(ctx context.Context, tx *sqlx.Tx, m *Milestone) error {
	query := tx.Rebind(`
		INSERT INTO tracker_milestones (id, tracker_id, name, position, notify_customer, status, sync_state, completed_at, completed_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tracker_id, name) DO UPDATE SET
			position = excluded.position,
			notify_customer = excluded.notify_customer,
			updated_at = CASE WHEN tracker_milestones.updated_at > excluded.updated_at
				THEN tracker_milestones.updated_at ELSE excluded.updated_at END
	`)
	_, err := tx.ExecContext(ctx, query, m.ID, m.TrackerID, m.Name, m.Position, m.NotifyCustomer,
		m.Status, m.SyncState, m.CompletedAt, m.CompletedBy, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert milestone %q: %w", m.Name, err)
	}
	return nil
}

func (r *TrackerRepo) UpdateMilestone(ctx context.Context, m *Milestone) error {
	query := r.db.Rebind(`
		UPDATE tracker_milestones SET
			status = ?, sync_state = ?, completed_at = ?, completed_by = ?,
			updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END
		WHERE id = ?
	`)
	res, err := r.db.ExecContext(ctx, query, m.Status, m.SyncState, m.CompletedAt, m.CompletedBy, m.UpdatedAt, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update milestone: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMilestoneNotFound
	}
	return nil
}

// Touch bumps the tracker's updated_at after a milestone change.
func (r *TrackerRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := r.db.Rebind(`UPDATE job_trackers SET updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, at, at, id); err != nil {
		return fmt.Errorf("failed to touch tracker: %w", err)
	}
	return nil
}
