package huddle

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
	kpiColumns   = `id, slug, name, department, unit, target, position, created_at, updated_at`
	valueColumns = `id, kpi_id, snapshot_date, value, note, updated_by, created_at, updated_at`
)

type HuddleRepo struct {
	db *sqlx.DB
}

func NewHuddleRepo(db *sqlx.DB) *HuddleRepo {
	return &HuddleRepo{db: db}
}

// CreateKPI inserts the KPI and fails with ErrSlugTaken when the slug is in use.
func (r *HuddleRepo) CreateKPI(ctx context.Context, k *KPI) error {
	query := r.db.Rebind(`
		INSERT INTO huddle_kpis (` + kpiColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO NOTHING
	`)
	res, err := r.db.ExecContext(ctx, query, k.ID, k.Slug, k.Name, k.Department, k.Unit, k.Target, k.Position, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create kpi: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create kpi: %w", err)
	}
	if n == 0 {
		return ErrSlugTaken
	}
	return nil
}

func (r *HuddleRepo) GetKPI(ctx context.Context, id uuid.UUID) (*KPI, error) {
	var k KPI
	if err := r.db.GetContext(ctx, &k, r.db.Rebind(`SELECT `+kpiColumns+` FROM huddle_kpis WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKPINotFound
		}
		return nil, fmt.Errorf("failed to get kpi: %w", err)
	}
	return &k, nil
}

// Board lists KPIs with the value recorded on date, if any.
func (r *HuddleRepo) Board(ctx context.Context, date time.Time, department string) ([]BoardRow, error) {
	query := `
		SELECT k.id, k.slug, k.name, k.department, k.unit, k.target, k.position, k.created_at, k.updated_at,
			v.value, v.note, v.updated_by
		FROM huddle_kpis k
		LEFT JOIN huddle_kpi_values v ON v.kpi_id = k.id AND v.snapshot_date = ?`
	args := []any{date}
	if department != "" {
		query += ` WHERE k.department = ?`
		args = append(args, department)
	}
	query += ` ORDER BY k.department, k.position, k.id`

	rows := []BoardRow{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load kpi board: %w", err)
	}
	return rows, nil
}

// UpsertValue writes the value for (kpi_id, snapshot_date) and returns the
// stored row.
func (r *HuddleRepo) UpsertValue(ctx context.Context, v *Value) (*Value, error) {
	query := r.db.Rebind(`
		INSERT INTO huddle_kpi_values (` + valueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kpi_id, snapshot_date) DO UPDATE SET
			value = excluded.value,
			note = excluded.note,
			updated_by = excluded.updated_by,
			updated_at = CASE WHEN huddle_kpi_values.updated_at > excluded.updated_at
				THEN huddle_kpi_values.updated_at ELSE excluded.updated_at END
	`)
	_, err := r.db.ExecContext(ctx, query, v.ID, v.KPIID, v.SnapshotDate, v.Value, v.Note, v.UpdatedBy, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert kpi value: %w", err)
	}

	var out Value
	sel := r.db.Rebind(`SELECT ` + valueColumns + ` FROM huddle_kpi_values WHERE kpi_id = ? AND snapshot_date = ?`)
	if err := r.db.GetContext(ctx, &out, sel, v.KPIID, v.SnapshotDate); err != nil {
		return nil, fmt.Errorf("failed to read kpi value: %w", err)
	}
	return &out, nil
}

func (r *HuddleRepo) History(ctx context.Context, kpiID uuid.UUID, f HistoryFilter, page listquery.Page) ([]Value, int, error) {
	b := historyQuery(kpiID, f)

	values := []Value{}
	if err := b.Select(ctx, r.db, &values, `SELECT `+valueColumns+` FROM huddle_kpi_values`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list kpi values: %w", err)
	}
	total, err := b.Count(ctx, r.db, "huddle_kpi_values")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count kpi values: %w", err)
	}
	return values, total, nil
}

func historyQuery(kpiID uuid.UUID, f HistoryFilter) *listquery.Builder {
	return listquery.New().
		EqAny("kpi_id", kpiID).
		DateRange("snapshot_date", f.From, f.To).
		OrderBy("snapshot_date DESC", "id")
}
