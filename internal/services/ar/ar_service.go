package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/fanout"
	"github.com/curaious/bizops/internal/integrations/servicetitan"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services/activity"
	"github.com/curaious/bizops/internal/services/syncrun"
	"github.com/curaious/bizops/internal/workflow"
)

const (
	detailActivityLimit = 20
	maxTaskNameRunes    = 100
	stTimeLayout        = "2006-01-02T15:04:05.000Z"
)

type ReceivablesService struct {
	repo         *ReceivablesRepo
	st           ServiceTitan
	syncRuns     *syncrun.SyncRunService
	activity     *activity.ActivityService
	taskDefaults TaskDefaults
}

// NewReceivablesService wires the service. st may be nil when ServiceTitan is
// not configured; sync, backfill and push then fail with a 502.
func NewReceivablesService(repo *ReceivablesRepo, st ServiceTitan, syncRuns *syncrun.SyncRunService, activity *activity.ActivityService, defaults TaskDefaults) *ReceivablesService {
	return &ReceivablesService{
		repo:         repo,
		st:           st,
		syncRuns:     syncRuns,
		activity:     activity,
		taskDefaults: defaults,
	}
}

func invalid(msg string) error {
	return perrors.NewErrInvalidRequest(msg, nil)
}

func (s *ReceivablesService) serviceTitan() (ServiceTitan, error) {
	if s.st == nil {
		return nil, perrors.NewErrBadGateway("ServiceTitan is not configured", ErrServiceTitanOffline)
	}
	return s.st, nil
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, invalid(field + " must be a YYYY-MM-DD date")
	}
	return &t, nil
}

func (s *ReceivablesService) ListInvoices(ctx context.Context, f InvoiceFilter, page listquery.Page) ([]Invoice, int, error) {
	switch f.Outstanding {
	case "", "true", "1", "false", "0":
	default:
		return nil, 0, invalid(fmt.Sprintf("invalid outstanding %q", f.Outstanding))
	}
	if err := invoiceQuery(f).Err(); err != nil {
		return nil, 0, invalid(err.Error())
	}
	return s.repo.ListInvoices(ctx, f, page)
}

// Detail loads the invoice, then payments, tasks and activity in parallel.
func (s *ReceivablesService) Detail(ctx context.Context, id uuid.UUID) (*InvoiceDetail, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		payments []Payment
		tasks    []Task
		entries  []activity.Entry
	)
	errs := fanout.Settle(ctx, fanout.DefaultLimit,
		func(ctx context.Context) error {
			var err error
			payments, err = s.repo.ListPayments(ctx, id)
			return err
		},
		func(ctx context.Context) error {
			var err error
			tasks, err = s.repo.ListTasks(ctx, id)
			return err
		},
		func(ctx context.Context) error {
			var err error
			entries, err = s.activity.Recent(ctx, activity.ResourceInvoice, id.String(), detailActivityLimit)
			return err
		},
	)
	for _, err := range errs {
		if err != nil {
			slog.WarnContext(ctx, "Invoice detail section failed", slog.String("invoice_id", id.String()), slog.Any("error", err))
		}
	}

	d := &InvoiceDetail{
		Invoice:          inv,
		Payments:         nonNil(payments),
		Tasks:            nonNil(tasks),
		Activity:         nonNil(entries),
		AmountPaid:       inv.Total.Sub(inv.Balance).Round(2),
		PercentCollected: decimal.Zero,
	}
	if inv.Total.IsPositive() {
		d.PercentCollected = d.AmountPaid.Div(inv.Total).Mul(decimal.NewFromInt(100)).Round(1)
	}
	for _, t := range d.Tasks {
		if !t.Status.Terminal() {
			d.OpenTasks++
		}
	}
	return d, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (s *ReceivablesService) Summary(ctx context.Context) (*Summary, error) {
	return s.repo.Summary(ctx)
}

func (s *ReceivablesService) CreateTask(ctx context.Context, actor *access.Principal, invoiceID uuid.UUID, req *CreateTaskRequest) (*Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("title is required")
	}
	dueOn, err := parseOptionalDate("due_on", req.DueOn)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Title:     title,
		Assignee:  strings.TrimSpace(req.Assignee),
		DueOn:     dueOn,
		State:     workflow.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertTask(ctx, t); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceInvoice, inv.ID.String(), "task_created", fmt.Sprintf("Created task %q", t.Title))
	return t, nil
}

// UpdateTask applies status, assignee and due date changes through the
// lifecycle rules.
func (s *ReceivablesService) UpdateTask(ctx context.Context, actor *access.Principal, id uuid.UUID, req *UpdateTaskRequest) (*Task, error) {
	var status workflow.Status
	if req.Status != nil {
		var err error
		if status, err = workflow.ParseStatus(*req.Status); err != nil {
			return nil, invalid(err.Error())
		}
	}
	var dueOn *time.Time
	if req.DueOn != nil {
		var err error
		if dueOn, err = parseOptionalDate("due_on", *req.DueOn); err != nil {
			return nil, err
		}
	}

	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	previous := t.Status

	if req.Status != nil {
		next, err := t.State.Transition(status, actor.Actor(), now)
		if err != nil {
			if errors.Is(err, workflow.ErrAlreadyCompleted) {
				return nil, invalid("task is already completed")
			}
			return nil, invalid(err.Error())
		}
		t.State = next
	}
	if req.Assignee != nil {
		t.Assignee = strings.TrimSpace(*req.Assignee)
		t.State = t.State.Touched()
	}
	if req.DueOn != nil {
		t.DueOn = dueOn
		t.State = t.State.Touched()
	}
	t.UpdatedAt = now

	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return nil, err
	}

	if t.Status != previous {
		s.activity.Record(ctx, actor, activity.ResourceInvoice, t.InvoiceID.String(), "task_"+string(t.Status),
			fmt.Sprintf("Task %q moved from %s to %s", t.Title, previous, t.Status))
	} else {
		s.activity.Record(ctx, actor, activity.ResourceInvoice, t.InvoiceID.String(), "task_updated", fmt.Sprintf("Updated task %q", t.Title))
	}
	return t, nil
}

// PushTask sends the task to ServiceTitan task management. The first push
// creates the remote task; later pushes of local changes patch that same task.
// A task that is already synced is returned unchanged.
func (s *ReceivablesService) PushTask(ctx context.Context, actor *access.Principal, id uuid.UUID) (*Task, error) {
	st, err := s.serviceTitan()
	if err != nil {
		return nil, err
	}

	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.SyncState == workflow.SyncSynced && t.STTaskID != nil {
		return t, nil
	}

	inv, err := s.repo.GetInvoice(ctx, t.InvoiceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	due := now.AddDate(0, 0, 7)
	if t.DueOn != nil {
		due = *t.DueOn
	}

	name := truncateRunes(t.Title, maxTaskNameRunes)
	body := fmt.Sprintf("Invoice %s for %s, balance %s. Assignee: %s",
		inv.InvoiceNumber, inv.CustomerName, inv.Balance.StringFixed(2), t.Assignee)
	closed := t.Status == workflow.StatusCompleted || t.Status == workflow.StatusSkipped
	dueDate := due.UTC().Format(stTimeLayout)

	action := "task_pushed"
	if t.STTaskID != nil {
		action = "task_repushed"
		err = st.UpdateTask(ctx, *t.STTaskID, servicetitan.TaskUpdate{
			Name:     name,
			Body:     body,
			DueDate:  dueDate,
			IsClosed: closed,
			Priority: "Low",
		})
		if err != nil {
			return nil, perrors.NewErrBadGateway("ServiceTitan rejected the task update", err)
		}
	} else {
		stID, err := st.CreateTask(ctx, servicetitan.TaskRequest{
			TaskTypeID:   s.taskDefaults.TypeID,
			TaskSourceID: s.taskDefaults.SourceID,
			Name:         name,
			Body:         body,
			DueDate:      dueDate,
			ReportedDate: now.Format(stTimeLayout),
			IsClosed:     closed,
			Priority:     "Low",
		})
		if err != nil {
			return nil, perrors.NewErrBadGateway("ServiceTitan rejected the task", err)
		}
		t.STTaskID = &stID
	}

	t.State = t.State.Synced()
	t.UpdatedAt = now
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceInvoice, inv.ID.String(), action,
		fmt.Sprintf("Pushed task %q to ServiceTitan as %d", t.Title, *t.STTaskID))
	return t, nil
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
