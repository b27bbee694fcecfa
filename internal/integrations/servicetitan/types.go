package servicetitan

import (
	"bytes"

	"github.com/shopspring/decimal"
)

// Amount keeps a money field as sent. ServiceTitan mixes quoted and bare
// numbers, and one bad value must not fail the whole page.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	*a = Amount(bytes.Trim(b, `"`))
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + string(a) + `"`), nil
}

// Decimal parses the amount. An empty amount is zero.
func (a Amount) Decimal() (decimal.Decimal, error) {
	if a == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(string(a))
}

// Page is the envelope of every list endpoint.
type Page[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasMore  bool `json:"hasMore"`
	Data     []T  `json:"data"`
}

type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type JobRef struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
}

type Invoice struct {
	ID              int64           `json:"id"`
	ReferenceNumber string          `json:"referenceNumber"`
	InvoiceDate     string          `json:"invoiceDate"`
	DueDate         string          `json:"dueDate"`
	Total           Amount          `json:"total"`
	Balance         Amount          `json:"balance"`
	Customer        *Ref            `json:"customer"`
	Job             *JobRef         `json:"job"`
	BusinessUnit    *Ref            `json:"businessUnit"`
	ModifiedOn      string          `json:"modifiedOn"`
}

type AppliedTo struct {
	AppliedTo     int64           `json:"appliedTo"`
	AppliedAmount decimal.Decimal `json:"appliedAmount"`
}

type Payment struct {
	ID        int64           `json:"id"`
	TypeID    int64           `json:"typeId"`
	Type      string          `json:"type"`
	Total     decimal.Decimal `json:"total"`
	Date      string          `json:"date"`
	AppliedTo []AppliedTo     `json:"appliedTo"`
}

// AppliesTo reports whether any part of the payment was applied to invoiceID.
func (p Payment) AppliesTo(invoiceID int64) bool {
	for _, a := range p.AppliedTo {
		if a.AppliedTo == invoiceID {
			return true
		}
	}
	return false
}

// AmountFor is the portion applied to invoiceID, or the whole total when the
// payment carries no breakdown.
func (p Payment) AmountFor(invoiceID int64) decimal.Decimal {
	if len(p.AppliedTo) == 0 {
		return p.Total
	}
	sum := decimal.Zero
	for _, a := range p.AppliedTo {
		if a.AppliedTo == invoiceID {
			sum = sum.Add(a.AppliedAmount)
		}
	}
	return sum
}

// TaskRequest is the task management create payload.
type TaskRequest struct {
	JobID          int64  `json:"jobId,omitempty"`
	TaskTypeID     int64  `json:"taskTypeId"`
	TaskSourceID   int64  `json:"taskSourceId"`
	Name           string `json:"name"`
	Body           string `json:"body"`
	DueDate        string `json:"dueDate"`
	ReportedDate   string `json:"reportedDate"`
	IsClosed       bool   `json:"isClosed"`
	Priority       string `json:"priority"`
	AssignedToID   int64  `json:"assignedToId,omitempty"`
	ReportedByID   int64  `json:"reportedById,omitempty"`
	BusinessUnitID int64  `json:"businessUnitId,omitempty"`
}

// TaskUpdate is the task management patch payload.
type TaskUpdate struct {
	Name     string `json:"name"`
	Body     string `json:"body"`
	DueDate  string `json:"dueDate"`
	IsClosed bool   `json:"isClosed"`
	Priority string `json:"priority"`
}
