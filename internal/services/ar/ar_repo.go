package ar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/workflow"
)

const (
	invoiceColumns = `id, st_invoice_id, st_customer_id, invoice_number, customer_name, job_number, business_unit,
		invoice_date, due_date, total, balance, status, payment_method, enriched_at, enrich_attempts, synced_at, created_at, updated_at`
	paymentColumns = `id, st_payment_id, invoice_id, amount, paid_on, method, created_at, updated_at`
	taskColumns    = `id, invoice_id, title, assignee, due_on, st_task_id, status, sync_state, completed_at, completed_by, created_at, updated_at`
)

type ReceivablesRepo struct {
	db *sqlx.DB
}

func NewReceivablesRepo(db *sqlx.DB) *ReceivablesRepo {
	return &ReceivablesRepo{db: db}
}

// UpsertInvoices writes invoices keyed by st_invoice_id with one statement.
// Callers must dedupe keys first. A changed balance re-opens the invoice for
// payment enrichment.
func (r *ReceivablesRepo) UpsertInvoices(ctx context.Context, invoices []Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	const cols = 15
	placeholders := make([]string, 0, len(invoices))
	args := make([]any, 0, len(invoices)*cols)
	for _, inv := range invoices {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			inv.ID, inv.STInvoiceID, inv.STCustomerID, inv.InvoiceNumber, inv.CustomerName, inv.JobNumber, inv.BusinessUnit,
			inv.InvoiceDate, inv.DueDate, inv.Total, inv.Balance, inv.Status, inv.SyncedAt, inv.CreatedAt, inv.UpdatedAt)
	}

	query := `
		INSERT INTO ar_invoices (id, st_invoice_id, st_customer_id, invoice_number, customer_name, job_number, business_unit,
			invoice_date, due_date, total, balance, status, synced_at, created_at, updated_at)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (st_invoice_id) DO UPDATE SET
			st_customer_id = excluded.st_customer_id,
			invoice_number = excluded.invoice_number,
			customer_name = excluded.customer_name,
			job_number = excluded.job_number,
			business_unit = excluded.business_unit,
			invoice_date = excluded.invoice_date,
			due_date = excluded.due_date,
			total = excluded.total,
			enriched_at = CASE WHEN ar_invoices.balance <> excluded.balance THEN NULL ELSE ar_invoices.enriched_at END,
			enrich_attempts = CASE WHEN ar_invoices.balance <> excluded.balance THEN 0 ELSE ar_invoices.enrich_attempts END,
			balance = excluded.balance,
			status = excluded.status,
			synced_at = excluded.synced_at,
			updated_at = CASE WHEN ar_invoices.updated_at > excluded.updated_at
				THEN ar_invoices.updated_at ELSE excluded.updated_at END
	`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to upsert invoices: %w", err)
	}
	return nil
}

func (r *ReceivablesRepo) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var inv Invoice
	if err := r.db.GetContext(ctx, &inv, r.db.Rebind(`SELECT `+invoiceColumns+` FROM ar_invoices WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

func (r *ReceivablesRepo) GetInvoiceBySTID(ctx context.Context, stID int64) (*Invoice, error) {
	var inv Invoice
	if err := r.db.GetContext(ctx, &inv, r.db.Rebind(`SELECT `+invoiceColumns+` FROM ar_invoices WHERE st_invoice_id = ?`), stID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

func invoiceQuery(f InvoiceFilter) *listquery.Builder {
	b := listquery.New().
		Eq("status", f.Status).
		Eq("business_unit", f.BusinessUnit).
		DateRange("invoice_date", f.From, f.To).
		Search(f.Search, "invoice_number", "customer_name", "job_number")

	switch f.Outstanding {
	case "true", "1":
		b.Where(outstandingPredicate)
	case "false", "0":
		b.Where("NOT (" + outstandingPredicate + ")")
	}
	return b.OrderBy("invoice_date DESC", "id")
}

func (r *ReceivablesRepo) ListInvoices(ctx context.Context, f InvoiceFilter, page listquery.Page) ([]Invoice, int, error) {
	b := invoiceQuery(f)

	invoices := []Invoice{}
	if err := b.Select(ctx, r.db, &invoices, `SELECT `+invoiceColumns+` FROM ar_invoices`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	total, err := b.Count(ctx, r.db, "ar_invoices")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return invoices, total, nil
}

// PendingEnrichment returns invoices whose payments have not been fetched and
// that have attempts left, oldest first.
func (r *ReceivablesRepo) PendingEnrichment(ctx context.Context, limit int) ([]Invoice, error) {
	query := r.db.Rebind(`SELECT ` + invoiceColumns + ` FROM ar_invoices
		WHERE enriched_at IS NULL AND enrich_attempts < ?
		ORDER BY created_at, id
		LIMIT ?`)

	invoices := []Invoice{}
	if err := r.db.SelectContext(ctx, &invoices, query, MaxEnrichAttempts, limit); err != nil {
		return nil, fmt.Errorf("failed to load enrichment backlog: %w", err)
	}
	return invoices, nil
}

func (r *ReceivablesRepo) CountPendingEnrichment(ctx context.Context) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM ar_invoices WHERE enriched_at IS NULL AND enrich_attempts < ?`)
	if err := r.db.GetContext(ctx, &n, query, MaxEnrichAttempts); err != nil {
		return 0, fmt.Errorf("failed to count enrichment backlog: %w", err)
	}
	return n, nil
}

// SaveEnrichment stores an invoice's payments and marks it enriched in one
// transaction.
func (r *ReceivablesRepo) SaveEnrichment(ctx context.Context, invoiceID uuid.UUID, payments []Payment, method string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := tx.Rebind(`
		INSERT INTO ar_payments (id, st_payment_id, invoice_id, amount, paid_on, method, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (st_payment_id, invoice_id) DO UPDATE SET
			amount = excluded.amount,
			paid_on = excluded.paid_on,
			method = excluded.method,
			updated_at = CASE WHEN ar_payments.updated_at > excluded.updated_at
				THEN ar_payments.updated_at ELSE excluded.updated_at END
	`)
	for _, p := range payments {
		if _, err := tx.ExecContext(ctx, upsert, p.ID, p.STPaymentID, invoiceID, p.Amount, p.PaidOn, p.Method, at, at); err != nil {
			return fmt.Errorf("failed to upsert payment %d: %w", p.STPaymentID, err)
		}
	}

	mark := tx.Rebind(`UPDATE ar_invoices SET payment_method = ?, enriched_at = ?,
		updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, mark, method, at, at, at, invoiceID); err != nil {
		return fmt.Errorf("failed to mark invoice enriched: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enrichment: %w", err)
	}
	return nil
}

func (r *ReceivablesRepo) IncrementEnrichAttempts(ctx context.Context, invoiceID uuid.UUID) error {
	query := r.db.Rebind(`UPDATE ar_invoices SET enrich_attempts = enrich_attempts + 1 WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, invoiceID); err != nil {
		return fmt.Errorf("failed to count enrichment attempt: %w", err)
	}
	return nil
}

func (r *ReceivablesRepo) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	payments := []Payment{}
	query := r.db.Rebind(`SELECT ` + paymentColumns + ` FROM ar_payments WHERE invoice_id = ? ORDER BY paid_on DESC, id`)
	if err := r.db.SelectContext(ctx, &payments, query, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (r *ReceivablesRepo) InsertTask(ctx context.Context, t *Task) error {
	query := r.db.Rebind(`
		INSERT INTO collection_tasks (id, invoice_id, title, assignee, due_on, st_task_id, status, sync_state, completed_at, completed_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query, t.ID, t.InvoiceID, t.Title, t.Assignee, t.DueOn, t.STTaskID,
		t.Status, t.SyncState, t.CompletedAt, t.CompletedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create collection task: %w", err)
	}
	return nil
}

func (r *ReceivablesRepo) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	var t Task
	if err := r.db.GetContext(ctx, &t, r.db.Rebind(`SELECT `+taskColumns+` FROM collection_tasks WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get collection task: %w", err)
	}
	return &t, nil
}

func (r *ReceivablesRepo) UpdateTask(ctx context.Context, t *Task) error {
	query := r.db.Rebind(`
		UPDATE collection_tasks SET
			assignee = ?, due_on = ?, st_task_id = ?,
			status = ?, sync_state = ?, completed_at = ?, completed_by = ?,
			updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END
		WHERE id = ?
	`)
	res, err := r.db.ExecContext(ctx, query, t.Assignee, t.DueOn, t.STTaskID,
		t.Status, t.SyncState, t.CompletedAt, t.CompletedBy, t.UpdatedAt, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update collection task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *ReceivablesRepo) ListTasks(ctx context.Context, invoiceID uuid.UUID) ([]Task, error) {
	tasks := []Task{}
	query := r.db.Rebind(`SELECT ` + taskColumns + ` FROM collection_tasks WHERE invoice_id = ? ORDER BY created_at, id`)
	if err := r.db.SelectContext(ctx, &tasks, query, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to list collection tasks: %w", err)
	}
	return tasks, nil
}

type outstandingTotals struct {
	Count  int             `db:"invoice_count"`
	Amount decimal.Decimal `db:"amount"`
}

func (r *ReceivablesRepo) Summary(ctx context.Context) (*Summary, error) {
	var all int
	if err := r.db.GetContext(ctx, &all, `SELECT COUNT(*) FROM ar_invoices`); err != nil {
		return nil, fmt.Errorf("failed to count invoices: %w", err)
	}

	var out outstandingTotals
	query := `SELECT COUNT(*) AS invoice_count, COALESCE(SUM(balance), 0) AS amount FROM ar_invoices WHERE ` + outstandingPredicate
	if err := r.db.GetContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to total outstanding invoices: %w", err)
	}

	var open int
	openQuery, args, err := sqlx.In(`SELECT COUNT(*) FROM collection_tasks WHERE status NOT IN (?)`,
		[]string{string(workflow.StatusCompleted), string(workflow.StatusSkipped)})
	if err != nil {
		return nil, err
	}
	if err := r.db.GetContext(ctx, &open, r.db.Rebind(openQuery), args...); err != nil {
		return nil, fmt.Errorf("failed to count open tasks: %w", err)
	}

	return &Summary{
		TotalOutstanding: out.Amount.Round(2),
		InvoiceCount:     all,
		OutstandingCount: out.Count,
		OpenTasks:        open,
	}, nil
}
