// Package workflow holds the lifecycle shared by tracker milestones and collection
// tasks: pending -> in_progress -> completed, with skipped as a terminal
// alternative, plus a substate tracking whether the record has been pushed to
// ServiceTitan.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
)

type SyncState string

const (
	SyncLocal       SyncState = "local"
	SyncPendingPush SyncState = "pending_push"
	SyncSynced      SyncState = "synced"
)

var (
	ErrAlreadyCompleted = errors.New("already completed")
	ErrInvalidStatus    = errors.New("invalid status")
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusInProgress, StatusCompleted, StatusSkipped:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Terminal reports whether the status closes the record.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// State is the lifecycle portion of a record, embedded by the owning model.
type State struct {
	Status      Status     `db:"status" json:"status"`
	SyncState   SyncState  `db:"sync_state" json:"sync_state"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CompletedBy *string    `db:"completed_by" json:"completed_by,omitempty"`
}

// New returns the initial state of a freshly created record.
func New() State {
	return State{Status: StatusPending, SyncState: SyncLocal}
}

// Transition moves the record to status to. Entering a terminal status stamps
// completion; leaving one clears it. A synced record becomes pending_push.
func (s State) Transition(to Status, actor string, now time.Time) (State, error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return s, err
	}
	if s.Status == StatusCompleted && to == StatusCompleted {
		return s, ErrAlreadyCompleted
	}
	if s.Status == to {
		return s, nil
	}

	next := s
	next.Status = to

	switch {
	case to.Terminal():
		at := now.UTC()
		by := actor
		next.CompletedAt = &at
		next.CompletedBy = &by
	case s.Status.Terminal():
		next.CompletedAt = nil
		next.CompletedBy = nil
	}

	return next.Touched(), nil
}

// Touched marks a synced record as needing a push after any local change.
func (s State) Touched() State {
	if s.SyncState == SyncSynced {
		s.SyncState = SyncPendingPush
	}
	return s
}

// Synced records a successful push.
func (s State) Synced() State {
	s.SyncState = SyncSynced
	return s
}
