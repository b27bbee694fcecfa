package ap

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrContractorNotFound = errors.New("contractor not found")
	ErrJobNotFound        = errors.New("contractor job not found")
)

type PaymentStatus string

const (
	PaymentNone      PaymentStatus = "none"
	PaymentRequested PaymentStatus = "requested"
	PaymentApproved  PaymentStatus = "approved"
	PaymentPaid      PaymentStatus = "paid"
)

var PaymentStatuses = []PaymentStatus{PaymentNone, PaymentRequested, PaymentApproved, PaymentPaid}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	for _, st := range PaymentStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// Outstanding reports whether money is still owed for a job in this status.
// Jobs never requested and jobs already paid are not outstanding.
func (s PaymentStatus) Outstanding() bool {
	return s != PaymentPaid && s != PaymentNone
}

type Contractor struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Trade     string    `db:"trade" json:"trade"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Rate struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	ContractorID uuid.UUID       `db:"contractor_id" json:"contractor_id"`
	Trade        string          `db:"trade" json:"trade"`
	JobType      string          `db:"job_type" json:"job_type"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

type Job struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ContractorID  uuid.UUID       `db:"contractor_id" json:"contractor_id"`
	JobNumber     string          `db:"job_number" json:"job_number"`
	Trade         string          `db:"trade" json:"trade"`
	JobType       string          `db:"job_type" json:"job_type"`
	CompletedOn   time.Time       `db:"completed_on" json:"completed_on"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentAmount decimal.Decimal `db:"payment_amount" json:"payment_amount"`
	PaidAt        *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	Notes         string          `db:"notes" json:"notes"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

type CreateContractorRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Trade string `json:"trade"`
}

type UpdateContractorRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Trade    *string `json:"trade,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type UpsertRateRequest struct {
	ContractorID string           `json:"contractor_id"`
	Trade        string           `json:"trade"`
	JobType      string           `json:"job_type"`
	Amount       *decimal.Decimal `json:"amount"`
}

type CreateJobRequest struct {
	ContractorID  string           `json:"contractor_id"`
	JobNumber     string           `json:"job_number"`
	Trade         string           `json:"trade"`
	JobType       string           `json:"job_type"`
	CompletedOn   string           `json:"completed_on"`
	PaymentStatus string           `json:"payment_status"`
	Amount        *decimal.Decimal `json:"amount"`
	Notes         string           `json:"notes"`
}

type UpdatePaymentRequest struct {
	Status string           `json:"status"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type ContractorFilter struct {
	Search string
	Trade  string
	Active string
}

type JobFilter struct {
	ContractorID  string
	PaymentStatus string
	From          string
	To            string
	Search        string
}

// StatusTotal is the job count and amount for one payment status.
type StatusTotal struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type Summary struct {
	TotalOutstanding decimal.Decimal               `json:"total_outstanding"`
	TotalPaid        decimal.Decimal               `json:"total_paid"`
	ByStatus         map[PaymentStatus]StatusTotal `json:"by_status"`
}

// summarize derives outstanding and paid totals from per-status rows.
func summarize(rows []statusRow) Summary {
	s := Summary{
		TotalOutstanding: decimal.Zero,
		TotalPaid:        decimal.Zero,
		ByStatus:         make(map[PaymentStatus]StatusTotal, len(PaymentStatuses)),
	}
	for _, st := range PaymentStatuses {
		s.ByStatus[st] = StatusTotal{Amount: decimal.Zero}
	}

	for _, r := range rows {
		amount := r.Amount.Round(2)
		s.ByStatus[r.Status] = StatusTotal{Count: r.Count, Amount: amount}
		switch {
		case r.Status == PaymentPaid:
			s.TotalPaid = s.TotalPaid.Add(amount)
		case r.Status.Outstanding():
			s.TotalOutstanding = s.TotalOutstanding.Add(amount)
		}
	}
	return s
}

type statusRow struct {
	Status PaymentStatus   `db:"payment_status"`
	Count  int             `db:"job_count"`
	Amount decimal.Decimal `db:"amount"`
}

type ContractorDetail struct {
	*Contractor
	Rates            []Rate          `json:"rates"`
	Jobs             []Job           `json:"jobs"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	JobCount         int             `json:"job_count"`
}
