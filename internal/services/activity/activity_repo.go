package activity

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/curaious/bizops/internal/listquery"
)

const entryColumns = `id, resource_type, resource_id, action, description, actor_id, actor_name, created_at`

// ActivityRepo has no update or delete path; the log is append-only.
type ActivityRepo struct {
	db *sqlx.DB
}

func NewActivityRepo(db *sqlx.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

func (r *ActivityRepo) Insert(ctx context.Context, e *Entry) error {
	query := r.db.Rebind(`
		INSERT INTO activity_log (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query, e.ID, e.ResourceType, e.ResourceID, e.Action, e.Description, e.ActorID, e.ActorName, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func (r *ActivityRepo) List(ctx context.Context, f Filter, page listquery.Page) ([]Entry, int, error) {
	b := listquery.New().
		Eq("resource_type", f.ResourceType).
		Eq("resource_id", f.ResourceID).
		Eq("action", f.Action).
		OrderBy("created_at DESC", "id DESC")

	entries := []Entry{}
	if err := b.Select(ctx, r.db, &entries, `SELECT `+entryColumns+` FROM activity_log`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}

	total, err := b.Count(ctx, r.db, "activity_log")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}
	return entries, total, nil
}
