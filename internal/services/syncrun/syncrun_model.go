package syncrun

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	KindInvoiceSync     = "ar_invoices"
	KindPaymentBackfill = "ar_payments_backfill"
)

var (
	ErrRunNotFound   = errors.New("sync run not found")
	ErrRunNotRunning = errors.New("sync run already finished")
)

type Run struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Kind        string     `db:"kind" json:"kind"`
	Status      Status     `db:"status" json:"status"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Fetched     int        `db:"fetched" json:"fetched"`
	Upserted    int        `db:"upserted" json:"upserted"`
	Errors      int        `db:"errors" json:"errors"`
	Message     string     `db:"message" json:"message"`
	TriggeredBy string     `db:"triggered_by" json:"triggered_by"`
}

// Counts are the tallies reported when a run finishes.
type Counts struct {
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
	Errors   int `json:"errors"`
}

func (c *Counts) Add(o Counts) {
	c.Fetched += o.Fetched
	c.Upserted += o.Upserted
	c.Errors += o.Errors
}

type Filter struct {
	Kind   string
	Status string
}
