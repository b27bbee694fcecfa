package ap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/fanout"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services/activity"
)

// detailJobLimit bounds the jobs embedded in a contractor detail.
const detailJobLimit = 100

type PayablesService struct {
	repo     *PayablesRepo
	activity *activity.ActivityService
}

func NewPayablesService(repo *PayablesRepo, activity *activity.ActivityService) *PayablesService {
	return &PayablesService{repo: repo, activity: activity}
}

func invalid(msg string) error {
	return perrors.NewErrInvalidRequest(msg, nil)
}

func (s *PayablesService) CreateContractor(ctx context.Context, actor *access.Principal, req *CreateContractorRequest) (*Contractor, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}

	now := time.Now().UTC()
	c := &Contractor{
		ID:        uuid.New(),
		Name:      name,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Trade:     strings.TrimSpace(req.Trade),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateContractor(ctx, c); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceContractor, c.ID.String(), "created", fmt.Sprintf("Added contractor %s", c.Name))
	return c, nil
}

func (s *PayablesService) UpdateContractor(ctx context.Context, actor *access.Principal, id uuid.UUID, req *UpdateContractorRequest) (*Contractor, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, invalid("name cannot be empty")
	}

	c, err := s.repo.UpdateContractor(ctx, id, req, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceContractor, c.ID.String(), "updated", fmt.Sprintf("Updated contractor %s", c.Name))
	return c, nil
}

func (s *PayablesService) ListContractors(ctx context.Context, f ContractorFilter, page listquery.Page) ([]Contractor, int, error) {
	if err := contractorQuery(f).Err(); err != nil {
		return nil, 0, invalid(err.Error())
	}
	return s.repo.ListContractors(ctx, f, page)
}

// Detail loads the contractor, then its rates, recent jobs and totals in
// parallel. A failed secondary read is logged and comes back empty.
func (s *PayablesService) Detail(ctx context.Context, id uuid.UUID) (*ContractorDetail, error) {
	c, err := s.repo.GetContractor(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		rates  []Rate
		jobs   []Job
		totals []statusRow
	)
	errs := fanout.Settle(ctx, fanout.DefaultLimit,
		func(ctx context.Context) error {
			var err error
			rates, err = s.repo.ListRates(ctx, id)
			return err
		},
		func(ctx context.Context) error {
			var err error
			jobs, _, err = s.repo.ListJobs(ctx, JobFilter{ContractorID: id.String()}, listquery.NewPage(detailJobLimit, 0, detailJobLimit))
			return err
		},
		func(ctx context.Context) error {
			var err error
			totals, err = s.repo.StatusTotals(ctx, &id)
			return err
		},
	)
	for i, err := range errs {
		if err != nil {
			slog.WarnContext(ctx, "Contractor detail section failed", slog.String("contractor_id", id.String()), slog.Int("section", i), slog.Any("error", err))
		}
	}

	summary := summarize(totals)
	d := &ContractorDetail{
		Contractor:       c,
		Rates:            nonNil(rates),
		Jobs:             nonNil(jobs),
		TotalPaid:        summary.TotalPaid,
		TotalOutstanding: summary.TotalOutstanding,
	}
	for _, t := range summary.ByStatus {
		d.JobCount += t.Count
	}
	return d, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// UpsertRate validates the key and amount before writing anything.
func (s *PayablesService) UpsertRate(ctx context.Context, actor *access.Principal, req *UpsertRateRequest) (*Rate, error) {
	contractorID, err := uuid.Parse(req.ContractorID)
	if err != nil {
		return nil, invalid("contractor_id must be a valid id")
	}
	trade, jobType := strings.TrimSpace(req.Trade), strings.TrimSpace(req.JobType)
	if trade == "" || jobType == "" {
		return nil, invalid("trade and job_type are required")
	}
	if req.Amount == nil {
		return nil, invalid("amount is required")
	}
	if req.Amount.IsNegative() {
		return nil, invalid("amount cannot be negative")
	}

	if _, err := s.repo.GetContractor(ctx, contractorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rate, err := s.repo.UpsertRate(ctx, &Rate{
		ID:           uuid.New(),
		ContractorID: contractorID,
		Trade:        trade,
		JobType:      jobType,
		Amount:       req.Amount.Round(2),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceContractorRate, rate.ID.String(), "rate_set",
		fmt.Sprintf("Set %s/%s rate to %s", rate.Trade, rate.JobType, rate.Amount.StringFixed(2)))
	return rate, nil
}

func (s *PayablesService) ListRates(ctx context.Context, contractorID uuid.UUID) ([]Rate, error) {
	return s.repo.ListRates(ctx, contractorID)
}

// CreateJob records a payout job. Without an explicit amount the matching rate
// is used; with neither the request is rejected.
func (s *PayablesService) CreateJob(ctx context.Context, actor *access.Principal, req *CreateJobRequest) (*Job, error) {
	contractorID, err := uuid.Parse(req.ContractorID)
	if err != nil {
		return nil, invalid("contractor_id must be a valid id")
	}
	jobNumber := strings.TrimSpace(req.JobNumber)
	trade, jobType := strings.TrimSpace(req.Trade), strings.TrimSpace(req.JobType)
	if jobNumber == "" || trade == "" || jobType == "" {
		return nil, invalid("job_number, trade and job_type are required")
	}
	completedOn, err := time.Parse(time.DateOnly, req.CompletedOn)
	if err != nil {
		return nil, invalid("completed_on must be a YYYY-MM-DD date")
	}
	status := PaymentNone
	if req.PaymentStatus != "" {
		if status, err = ParsePaymentStatus(req.PaymentStatus); err != nil {
			return nil, invalid(err.Error())
		}
	}
	if req.Amount != nil && req.Amount.IsNegative() {
		return nil, invalid("amount cannot be negative")
	}

	if _, err := s.repo.GetContractor(ctx, contractorID); err != nil {
		return nil, err
	}

	amount := req.Amount
	if amount == nil {
		rate, err := s.repo.FindRate(ctx, contractorID, trade, jobType)
		if err != nil {
			return nil, err
		}
		if rate == nil {
			return nil, invalid(fmt.Sprintf("no rate for %s/%s; an amount is required", trade, jobType))
		}
		amount = &rate.Amount
	}

	now := time.Now().UTC()
	j := &Job{
		ID:            uuid.New(),
		ContractorID:  contractorID,
		JobNumber:     jobNumber,
		Trade:         trade,
		JobType:       jobType,
		CompletedOn:   completedOn,
		PaymentStatus: status,
		PaymentAmount: amount.Round(2),
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if status == PaymentPaid {
		j.PaidAt = &now
	}
	if err := s.repo.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceContractorJob, j.ID.String(), "created",
		fmt.Sprintf("Recorded job %s for %s", j.JobNumber, j.PaymentAmount.StringFixed(2)))
	return j, nil
}

func (s *PayablesService) ListJobs(ctx context.Context, f JobFilter, page listquery.Page) ([]Job, int, error) {
	if f.ContractorID != "" {
		if _, err := uuid.Parse(f.ContractorID); err != nil {
			return nil, 0, invalid("contractor_id must be a valid id")
		}
	}
	if f.PaymentStatus != "" {
		if _, err := ParsePaymentStatus(f.PaymentStatus); err != nil {
			return nil, 0, invalid(err.Error())
		}
	}

	b := s.repo.jobQuery(f)
	if err := b.Err(); err != nil {
		return nil, 0, invalid(err.Error())
	}
	return s.repo.ListJobs(ctx, f, page)
}

// UpdatePayment moves a job to a new payment status. Moving to paid stamps
// paid_at; moving away clears it.
func (s *PayablesService) UpdatePayment(ctx context.Context, actor *access.Principal, id uuid.UUID, req *UpdatePaymentRequest) (*Job, error) {
	status, err := ParsePaymentStatus(req.Status)
	if err != nil {
		return nil, invalid(err.Error())
	}
	if req.Amount != nil && req.Amount.IsNegative() {
		return nil, invalid("amount cannot be negative")
	}

	j, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := j.PaymentStatus
	now := time.Now().UTC()

	j.PaymentStatus = status
	if req.Amount != nil {
		j.PaymentAmount = req.Amount.Round(2)
	}
	switch {
	case status == PaymentPaid && previous != PaymentPaid:
		j.PaidAt = &now
	case status != PaymentPaid:
		j.PaidAt = nil
	}
	j.UpdatedAt = now

	if err := s.repo.UpdatePayment(ctx, j); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceContractorJob, j.ID.String(), "payment_"+string(status),
		fmt.Sprintf("Payment for job %s moved from %s to %s", j.JobNumber, previous, status))
	return j, nil
}

// Summary recomputes totals from the current rows.
func (s *PayablesService) Summary(ctx context.Context) (*Summary, error) {
	rows, err := s.repo.StatusTotals(ctx, nil)
	if err != nil {
		return nil, err
	}
	summary := summarize(rows)
	return &summary, nil
}
