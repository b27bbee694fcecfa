package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/background"
	"github.com/curaious/bizops/internal/fanout"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/notify"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services/activity"
	"github.com/curaious/bizops/internal/workflow"
)

const detailActivityLimit = 20

type TrackerService struct {
	repo     *TrackerRepo
	activity *activity.ActivityService
	notifier notify.Notifier
	runner   background.Runner
}

func NewTrackerService(repo *TrackerRepo, activity *activity.ActivityService, notifier notify.Notifier, runner background.Runner) *TrackerService {
	return &TrackerService{repo: repo, activity: activity, notifier: notifier, runner: runner}
}

func invalid(msg string) error {
	return perrors.NewErrInvalidRequest(msg, nil)
}

// Create opens a tracker for a job and seeds it with DefaultMilestones.
func (s *TrackerService) Create(ctx context.Context, actor *access.Principal, req *CreateTrackerRequest) (*TrackerDetail, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, invalid("customer_name is required")
	}
	if req.STJobID != nil {
		if *req.STJobID <= 0 {
			return nil, invalid("st_job_id must be positive")
		}
	}

	now := time.Now().UTC()
	t := &Tracker{
		ID:            uuid.New(),
		STJobID:       req.STJobID,
		JobNumber:     strings.TrimSpace(req.JobNumber),
		CustomerName:  name,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Address:       strings.TrimSpace(req.Address),
		Status:        StatusActive,
		CreatedBy:     actor.Actor(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	milestones := make([]Milestone, 0, len(DefaultMilestones))
	for i, d := range DefaultMilestones {
		milestones = append(milestones, newMilestone(t.ID, d.Name, i, d.NotifyCustomer, now))
	}

	if err := s.repo.Create(ctx, t, milestones); err != nil {
		if errors.Is(err, ErrJobTracked) {
			return nil, perrors.New(perrors.ErrCodeConflict, fmt.Sprintf("job %d already has a tracker", *req.STJobID), err)
		}
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceTracker, t.ID.String(), "created", fmt.Sprintf("Opened tracker for %s", t.CustomerName))

	done, percent := progress(milestones)
	return &TrackerDetail{
		Tracker:             t,
		Milestones:          milestones,
		Activity:            []activity.Entry{},
		CompletedMilestones: done,
		ProgressPercent:     percent,
	}, nil
}

func newMilestone(trackerID uuid.UUID, name string, position int, notifyCustomer bool, now time.Time) Milestone {
	return Milestone{
		ID:             uuid.New(),
		TrackerID:      trackerID,
		Name:           name,
		Position:       position,
		NotifyCustomer: notifyCustomer,
		State:          workflow.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *TrackerService) List(ctx context.Context, f TrackerFilter, page listquery.Page) ([]Tracker, int, error) {
	switch Status(f.Status) {
	case "", StatusActive, StatusClosed:
	default:
		return nil, 0, invalid(fmt.Sprintf("invalid status %q", f.Status))
	}
	return s.repo.List(ctx, f, page)
}

// Detail loads the tracker, then its milestones and activity in parallel.
func (s *TrackerService) Detail(ctx context.Context, id uuid.UUID) (*TrackerDetail, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		milestones []Milestone
		entries    []activity.Entry
	)
	errs := fanout.Settle(ctx, fanout.DefaultLimit,
		func(ctx context.Context) error {
			var err error
			milestones, err = s.repo.ListMilestones(ctx, id)
			return err
		},
		func(ctx context.Context) error {
			var err error
			entries, err = s.activity.Recent(ctx, activity.ResourceTracker, id.String(), detailActivityLimit)
			return err
		},
	)
	for _, err := range errs {
		if err != nil {
			slog.WarnContext(ctx, "Tracker detail section failed", slog.String("tracker_id", id.String()), slog.Any("error", err))
		}
	}

	if milestones == nil {
		milestones = []Milestone{}
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	done, percent := progress(milestones)
	return &TrackerDetail{
		Tracker:             t,
		Milestones:          milestones,
		Activity:            entries,
		CompletedMilestones: done,
		ProgressPercent:     percent,
	}, nil
}

// UpsertMilestones adds or re-orders milestones by name. Positions default to
// the order given.
func (s *TrackerService) UpsertMilestones(ctx context.Context, actor *access.Principal, trackerID uuid.UUID, req *UpsertMilestonesRequest) ([]Milestone, error) {
	if len(req.Milestones) == 0 {
		return nil, invalid("milestones are required")
	}

	now := time.Now().UTC()
	seen := map[string]bool{}
	milestones := make([]Milestone, 0, len(req.Milestones))
	for i, in := range req.Milestones {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, invalid(fmt.Sprintf("milestones[%d].name is required", i))
		}
		if seen[strings.ToLower(name)] {
			return nil, invalid(fmt.Sprintf("duplicate milestone %q", name))
		}
		seen[strings.ToLower(name)] = true

		position := i
		if in.Position != nil {
			if *in.Position < 0 {
				return nil, invalid(fmt.Sprintf("milestones[%d].position cannot be negative", i))
			}
			position = *in.Position
		}
		milestones = append(milestones, newMilestone(trackerID, name, position, in.NotifyCustomer, now))
	}

	t, err := s.repo.Get(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertMilestones(ctx, milestones); err != nil {
		return nil, err
	}
	if err := s.repo.Touch(ctx, t.ID, now); err != nil {
		slog.WarnContext(ctx, "Failed to touch tracker", slog.String("tracker_id", t.ID.String()), slog.Any("error", err))
	}

	s.activity.Record(ctx, actor, activity.ResourceTracker, t.ID.String(), "milestones_updated",
		fmt.Sprintf("Updated %d milestones", len(milestones)))
	return s.repo.ListMilestones(ctx, t.ID)
}

// UpdateMilestone moves a milestone through its lifecycle. Completing a
// milestone flagged notify_customer sends a notification after the write.
func (s *TrackerService) UpdateMilestone(ctx context.Context, actor *access.Principal, id uuid.UUID, req *UpdateMilestoneRequest) (*Milestone, error) {
	status, err := workflow.ParseStatus(req.Status)
	if err != nil {
		return nil, invalid(err.Error())
	}

	m, err := s.repo.GetMilestone(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	previous := m.Status
	next, err := m.State.Transition(status, actor.Actor(), now)
	if err != nil {
		return nil, invalid(fmt.Sprintf("milestone %q: %s", m.Name, err))
	}
	if next == m.State {
		return m, nil
	}
	m.State = next
	m.UpdatedAt = now

	if err := s.repo.UpdateMilestone(ctx, m); err != nil {
		return nil, err
	}
	if err := s.repo.Touch(ctx, m.TrackerID, now); err != nil {
		slog.WarnContext(ctx, "Failed to touch tracker", slog.String("tracker_id", m.TrackerID.String()), slog.Any("error", err))
	}

	s.activity.Record(ctx, actor, activity.ResourceTracker, m.TrackerID.String(), "milestone_"+string(m.Status),
		fmt.Sprintf("Milestone %q moved from %s to %s", m.Name, previous, m.Status))

	if m.Status == workflow.StatusCompleted && m.NotifyCustomer {
		s.notifyCompleted(ctx, m)
	}
	return m, nil
}

func (s *TrackerService) notifyCompleted(ctx context.Context, m *Milestone) {
	milestone := *m
	s.runner.Go(ctx, "tracker.notify", func(ctx context.Context) error {
		t, err := s.repo.Get(ctx, milestone.TrackerID)
		if err != nil {
			return err
		}
		text := fmt.Sprintf("%s: %s", t.CustomerName, milestone.Name)
		if t.JobNumber != "" {
			text = fmt.Sprintf("Job %s for %s: %s", t.JobNumber, t.CustomerName, milestone.Name)
		}
		if t.CustomerPhone != "" {
			text += fmt.Sprintf(". Customer phone %s", t.CustomerPhone)
		}
		return s.notifier.Notify(ctx, notify.Message{
			Kind:       "milestone_completed",
			ResourceID: milestone.ID.String(),
			Text:       text,
			CreatedAt:  time.Now().UTC(),
		})
	})
}
