package activity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/background"
	"github.com/curaious/bizops/internal/listquery"
)

// Sink persists entries.
type Sink interface {
	Insert(ctx context.Context, e *Entry) error
}

type ActivityService struct {
	repo   *ActivityRepo
	sink   Sink
	runner background.Runner
}

func NewActivityService(repo *ActivityRepo, runner background.Runner) *ActivityService {
	return &ActivityService{repo: repo, sink: repo, runner: runner}
}

// WithSink swaps the write path, keeping reads on the repo.
func (s *ActivityService) WithSink(sink Sink) *ActivityService {
	return &ActivityService{repo: s.repo, sink: sink, runner: s.runner}
}

// Record appends an entry in the background. It never fails the caller.
func (s *ActivityService) Record(ctx context.Context, actor *access.Principal, resourceType ResourceType, resourceID, action, description string) {
	e := &Entry{
		ID:           uuid.New(),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		Description:  description,
		ActorName:    actor.Actor(),
		CreatedAt:    time.Now().UTC(),
	}
	if actor != nil {
		id := actor.ID
		e.ActorID = &id
	}

	s.runner.Go(ctx, "activity."+action, func(ctx context.Context) error {
		return s.sink.Insert(ctx, e)
	})
}

func (s *ActivityService) List(ctx context.Context, f Filter, page listquery.Page) ([]Entry, int, error) {
	return s.repo.List(ctx, f, page)
}

// Recent returns the newest entries for one resource.
func (s *ActivityService) Recent(ctx context.Context, resourceType ResourceType, resourceID string, limit int) ([]Entry, error) {
	entries, _, err := s.repo.List(ctx, Filter{ResourceType: string(resourceType), ResourceID: resourceID}, listquery.NewPage(limit, 0, 20))
	return entries, err
}
