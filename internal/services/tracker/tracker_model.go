package tracker

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/services/activity"
	"github.com/curaious/bizops/internal/workflow"
)

var (
	ErrTrackerNotFound   = errors.New("tracker not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
	ErrJobTracked        = errors.New("job already has a tracker")
)

type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// DefaultMilestone seeds a new tracker.
type DefaultMilestone struct {
	Name           string
	NotifyCustomer bool
}

var DefaultMilestones = []DefaultMilestone{
	{Name: "Scheduled", NotifyCustomer: true},
	{Name: "Technician en route", NotifyCustomer: true},
	{Name: "Work in progress"},
	{Name: "Work completed", NotifyCustomer: true},
	{Name: "Invoice sent"},
}

type Tracker struct {
	ID            uuid.UUID `db:"id" json:"id"`
	STJobID       *int64    `db:"st_job_id" json:"st_job_id,omitempty"`
	JobNumber     string    `db:"job_number" json:"job_number"`
	CustomerName  string    `db:"customer_name" json:"customer_name"`
	CustomerPhone string    `db:"customer_phone" json:"customer_phone"`
	Address       string    `db:"address" json:"address"`
	Status        Status    `db:"status" json:"status"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type Milestone struct {
	ID             uuid.UUID `db:"id" json:"id"`
	TrackerID      uuid.UUID `db:"tracker_id" json:"tracker_id"`
	Name           string    `db:"name" json:"name"`
	Position       int       `db:"position" json:"position"`
	NotifyCustomer bool      `db:"notify_customer" json:"notify_customer"`
	workflow.State
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type CreateTrackerRequest struct {
	STJobID       *int64 `json:"st_job_id,omitempty"`
	JobNumber     string `json:"job_number"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Address       string `json:"address"`
}

type MilestoneInput struct {
	Name           string `json:"name"`
	Position       *int   `json:"position,omitempty"`
	NotifyCustomer bool   `json:"notify_customer"`
}

type UpsertMilestonesRequest struct {
	Milestones []MilestoneInput `json:"milestones"`
}

type UpdateMilestoneRequest struct {
	Status string `json:"status"`
}

type TrackerFilter struct {
	Status string
	Search string
}

type TrackerDetail struct {
	*Tracker
	Milestones          []Milestone      `json:"milestones"`
	Activity            []activity.Entry `json:"activity"`
	CompletedMilestones int              `json:"completed_milestones"`
	ProgressPercent     int              `json:"progress_percent"`
}

// progress counts completed milestones and the share of non-skipped ones done.
func progress(milestones []Milestone) (completed, percent int) {
	counted := 0
	for _, m := range milestones {
		switch m.Status {
		case workflow.StatusSkipped:
			continue
		case workflow.StatusCompleted:
			completed++
		}
		counted++
	}
	if counted == 0 {
		return completed, 0
	}
	return completed, (completed*100 + counted/2) / counted
}
