package ap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/curaious/bizops/internal/listquery"
)

const (
	contractorColumns = `id, name, email, phone, trade, is_active, created_at, updated_at`
	rateColumns       = `id, contractor_id, trade, job_type, amount, created_at, updated_at`
	jobColumns        = `id, contractor_id, job_number, trade, job_type, completed_on, payment_status, payment_amount, paid_at, notes, created_at, updated_at`
)

type PayablesRepo struct {
	db *sqlx.DB
}

func NewPayablesRepo(db *sqlx.DB) *PayablesRepo {
	return &PayablesRepo{db: db}
}

func (r *PayablesRepo) CreateContractor(ctx context.Context, c *Contractor) error {
	query := r.db.Rebind(`
		INSERT INTO contractors (id, name, email, phone, trade, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Email, c.Phone, c.Trade, c.IsActive, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create contractor: %w", err)
	}
	return nil
}

func (r *PayablesRepo) GetContractor(ctx context.Context, id uuid.UUID) (*Contractor, error) {
	var c Contractor
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`SELECT `+contractorColumns+` FROM contractors WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContractorNotFound
		}
		return nil, fmt.Errorf("failed to get contractor: %w", err)
	}
	return &c, nil
}

func (r *PayablesRepo) UpdateContractor(ctx context.Context, id uuid.UUID, req *UpdateContractorRequest, at time.Time) (*Contractor, error) {
	var (
		setParts []string
		args     []any
	)

	if req.Name != nil {
		setParts = append(setParts, "name = ?")
		args = append(args, *req.Name)
	}
	if req.Email != nil {
		setParts = append(setParts, "email = ?")
		args = append(args, *req.Email)
	}
	if req.Phone != nil {
		setParts = append(setParts, "phone = ?")
		args = append(args, *req.Phone)
	}
	if req.Trade != nil {
		setParts = append(setParts, "trade = ?")
		args = append(args, *req.Trade)
	}
	if req.IsActive != nil {
		setParts = append(setParts, "is_active = ?")
		args = append(args, *req.IsActive)
	}

	if len(setParts) == 0 {
		return r.GetContractor(ctx, id)
	}

	setParts = append(setParts, "updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END")
	args = append(args, at, at, id)

	query := fmt.Sprintf(`UPDATE contractors SET %s WHERE id = ?`, strings.Join(setParts, ", "))
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update contractor: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrContractorNotFound
	}

	return r.GetContractor(ctx, id)
}

func contractorQuery(f ContractorFilter) *listquery.Builder {
	return listquery.New().
		Search(f.Search, "name", "email", "phone").
		Eq("trade", f.Trade).
		Bool("is_active", f.Active).
		OrderBy("name", "id")
}

func (r *PayablesRepo) ListContractors(ctx context.Context, f ContractorFilter, page listquery.Page) ([]Contractor, int, error) {
	b := contractorQuery(f)

	contractors := []Contractor{}
	if err := b.Select(ctx, r.db, &contractors, `SELECT `+contractorColumns+` FROM contractors`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list contractors: %w", err)
	}
	total, err := b.Count(ctx, r.db, "contractors")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count contractors: %w", err)
	}
	return contractors, total, nil
}

// UpsertRate writes the rate for (contractor_id, trade, job_type). A second call
// with the same key updates the amount in place.
func (r *PayablesRepo) UpsertRate(ctx context.Context, rate *Rate) (*Rate, error) {
	query := r.db.Rebind(`
		INSERT INTO contractor_rates (id, contractor_id, trade, job_type, amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contractor_id, trade, job_type) DO UPDATE SET
			amount = excluded.amount,
			updated_at = CASE WHEN contractor_rates.updated_at > excluded.updated_at
				THEN contractor_rates.updated_at ELSE excluded.updated_at END
	`)

	_, err := r.db.ExecContext(ctx, query, rate.ID, rate.ContractorID, rate.Trade, rate.JobType, rate.Amount, rate.CreatedAt, rate.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rate: %w", err)
	}

	out, err := r.FindRate(ctx, rate.ContractorID, rate.Trade, rate.JobType)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("rate %s/%s vanished after upsert", rate.Trade, rate.JobType)
	}
	return out, nil
}

func (r *PayablesRepo) ListRates(ctx context.Context, contractorID uuid.UUID) ([]Rate, error) {
	rates := []Rate{}
	query := r.db.Rebind(`SELECT ` + rateColumns + ` FROM contractor_rates WHERE contractor_id = ? ORDER BY trade, job_type, id`)
	if err := r.db.SelectContext(ctx, &rates, query, contractorID); err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	return rates, nil
}

// FindRate returns the rate for the key, or nil when none is set.
func (r *PayablesRepo) FindRate(ctx context.Context, contractorID uuid.UUID, trade, jobType string) (*Rate, error) {
	var rate Rate
	query := r.db.Rebind(`SELECT ` + rateColumns + ` FROM contractor_rates WHERE contractor_id = ? AND trade = ? AND job_type = ?`)
	if err := r.db.GetContext(ctx, &rate, query, contractorID, trade, jobType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find rate: %w", err)
	}
	return &rate, nil
}

func (r *PayablesRepo) CreateJob(ctx context.Context, j *Job) error {
	query := r.db.Rebind(`
		INSERT INTO contractor_jobs (id, contractor_id, job_number, trade, job_type, completed_on, payment_status, payment_amount, paid_at, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query, j.ID, j.ContractorID, j.JobNumber, j.Trade, j.JobType, j.CompletedOn,
		j.PaymentStatus, j.PaymentAmount, j.PaidAt, j.Notes, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contractor job: %w", err)
	}
	return nil
}

func (r *PayablesRepo) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var j Job
	if err := r.db.GetContext(ctx, &j, r.db.Rebind(`SELECT `+jobColumns+` FROM contractor_jobs WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get contractor job: %w", err)
	}
	return &j, nil
}

func (r *PayablesRepo) jobQuery(f JobFilter) *listquery.Builder {
	return listquery.New().
		Eq("contractor_id", f.ContractorID).
		Eq("payment_status", f.PaymentStatus).
		DateRange("completed_on", f.From, f.To).
		Search(f.Search, "job_number", "job_type", "notes").
		OrderBy("completed_on DESC", "id")
}

func (r *PayablesRepo) ListJobs(ctx context.Context, f JobFilter, page listquery.Page) ([]Job, int, error) {
	b := r.jobQuery(f)

	jobs := []Job{}
	if err := b.Select(ctx, r.db, &jobs, `SELECT `+jobColumns+` FROM contractor_jobs`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list contractor jobs: %w", err)
	}
	total, err := b.Count(ctx, r.db, "contractor_jobs")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count contractor jobs: %w", err)
	}
	return jobs, total, nil
}

func (r *PayablesRepo) UpdatePayment(ctx context.Context, j *Job) error {
	query := r.db.Rebind(`
		UPDATE contractor_jobs SET
			payment_status = ?,
			payment_amount = ?,
			paid_at = ?,
			updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END
		WHERE id = ?
	`)
	res, err := r.db.ExecContext(ctx, query, j.PaymentStatus, j.PaymentAmount, j.PaidAt, j.UpdatedAt, j.UpdatedAt, j.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// StatusTotals groups job counts and amounts by payment status, optionally for
// one contractor.
func (r *PayablesRepo) StatusTotals(ctx context.Context, contractorID *uuid.UUID) ([]statusRow, error) {
	b := listquery.New()
	if contractorID != nil {
		b.EqAny("contractor_id", *contractorID)
	}
	where, args := b.Clause()

	query := `SELECT payment_status, COUNT(*) AS job_count, COALESCE(SUM(payment_amount), 0) AS amount
		FROM contractor_jobs` + where + ` GROUP BY payment_status`

	rows := []statusRow{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to total contractor jobs: %w", err)
	}
	return rows, nil
}
