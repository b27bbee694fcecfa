package ar

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curaious/bizops/internal/integrations/servicetitan"
	"github.com/curaious/bizops/internal/services/activity"
	"github.com/curaious/bizops/internal/workflow"
)

var (
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrTaskNotFound        = errors.New("collection task not found")
	ErrServiceTitanOffline = errors.New("servicetitan is not configured")
)

const (
	// MaxEnrichAttempts is how often an invoice's payments are fetched before
	// it leaves the backfill backlog.
	MaxEnrichAttempts = 3
	// BackfillChunk is the number of concurrent ServiceTitan calls per step.
	BackfillChunk = 5

	defaultHoursBack = 24
	maxHoursBack     = 24 * 30
	defaultMaxPages  = 5
	maxPages         = 20
	upsertChunk      = 50
)

// ServiceTitan is the slice of the ServiceTitan API receivables needs.
type ServiceTitan interface {
	ListInvoices(ctx context.Context, since time.Time, page, pageSize int) (*servicetitan.Page[servicetitan.Invoice], error)
	PaymentsForInvoice(ctx context.Context, invoiceID, customerID int64) ([]servicetitan.Payment, error)
	PaymentTypes(ctx context.Context) (map[int64]string, error)
	CreateTask(ctx context.Context, task servicetitan.TaskRequest) (int64, error)
	UpdateTask(ctx context.Context, id int64, task servicetitan.TaskUpdate) error
}

type InvoiceStatus string

const (
	InvoiceOpen       InvoiceStatus = "open"
	InvoicePartial    InvoiceStatus = "partial"
	InvoicePaid       InvoiceStatus = "paid"
	InvoiceWrittenOff InvoiceStatus = "written_off"
)

// DeriveStatus classifies an invoice from its total and remaining balance.
func DeriveStatus(total, balance decimal.Decimal) InvoiceStatus {
	switch {
	case !balance.IsPositive():
		return InvoicePaid
	case balance.LessThan(total):
		return InvoicePartial
	default:
		return InvoiceOpen
	}
}

// outstandingPredicate is the SQL form of Invoice.Outstanding.
const outstandingPredicate = "balance > 0"

type Invoice struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	STInvoiceID    int64           `db:"st_invoice_id" json:"st_invoice_id"`
	STCustomerID   int64           `db:"st_customer_id" json:"st_customer_id"`
	InvoiceNumber  string          `db:"invoice_number" json:"invoice_number"`
	CustomerName   string          `db:"customer_name" json:"customer_name"`
	JobNumber      string          `db:"job_number" json:"job_number"`
	BusinessUnit   string          `db:"business_unit" json:"business_unit"`
	InvoiceDate    *time.Time      `db:"invoice_date" json:"invoice_date,omitempty"`
	DueDate        *time.Time      `db:"due_date" json:"due_date,omitempty"`
	Total          decimal.Decimal `db:"total" json:"total"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	Status         InvoiceStatus   `db:"status" json:"status"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method"`
	EnrichedAt     *time.Time      `db:"enriched_at" json:"enriched_at,omitempty"`
	EnrichAttempts int             `db:"enrich_attempts" json:"enrich_attempts"`
	SyncedAt       time.Time       `db:"synced_at" json:"synced_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Outstanding reports whether any balance remains.
func (i *Invoice) Outstanding() bool {
	return i.Balance.IsPositive()
}

type Payment struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	STPaymentID int64           `db:"st_payment_id" json:"st_payment_id"`
	InvoiceID   uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PaidOn      *time.Time      `db:"paid_on" json:"paid_on,omitempty"`
	Method      string          `db:"method" json:"method"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

type Task struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	InvoiceID uuid.UUID  `db:"invoice_id" json:"invoice_id"`
	Title     string     `db:"title" json:"title"`
	Assignee  string     `db:"assignee" json:"assignee"`
	DueOn     *time.Time `db:"due_on" json:"due_on,omitempty"`
	STTaskID  *int64     `db:"st_task_id" json:"st_task_id,omitempty"`
	workflow.State
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type InvoiceFilter struct {
	Status       string
	BusinessUnit string
	From         string
	To           string
	Search       string
	Outstanding  string
}

type InvoiceDetail struct {
	*Invoice
	Payments         []Payment        `json:"payments"`
	Tasks            []Task           `json:"tasks"`
	Activity         []activity.Entry `json:"activity"`
	AmountPaid       decimal.Decimal  `json:"amount_paid"`
	OpenTasks        int              `json:"open_tasks"`
	PercentCollected decimal.Decimal  `json:"percent_collected"`
}

type Summary struct {
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	InvoiceCount     int             `json:"invoice_count"`
	OutstandingCount int             `json:"outstanding_count"`
	OpenTasks        int             `json:"open_tasks"`
}

type CreateTaskRequest struct {
	Title    string `json:"title"`
	Assignee string `json:"assignee"`
	DueOn    string `json:"due_on"`
}

type UpdateTaskRequest struct {
	Status   *string `json:"status,omitempty"`
	Assignee *string `json:"assignee,omitempty"`
	DueOn    *string `json:"due_on,omitempty"`
}

type SyncRequest struct {
	HoursBack int
	Page      int
	MaxPages  int
}

type SyncResult struct {
	RunID    uuid.UUID `json:"run_id"`
	Fetched  int       `json:"fetched"`
	Upserted int       `json:"upserted"`
	Errors   int       `json:"errors"`
	Pages    int       `json:"pages"`
	NextPage int       `json:"next_page,omitempty"`
	HasMore  bool      `json:"has_more"`
}

type BackfillResult struct {
	Processed int  `json:"processed"`
	Enriched  int  `json:"enriched"`
	Errors    int  `json:"errors"`
	Remaining int  `json:"remaining"`
	Done      bool `json:"done"`
}

// TaskDefaults are the ServiceTitan ids stamped on pushed tasks.
type TaskDefaults struct {
	TypeID   int64
	SourceID int64
}
