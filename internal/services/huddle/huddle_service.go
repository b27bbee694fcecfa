package huddle

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services/activity"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,99}$`)

type HuddleService struct {
	repo     *HuddleRepo
	activity *activity.ActivityService
}

func NewHuddleService(repo *HuddleRepo, activity *activity.ActivityService) *HuddleService {
	return &HuddleService{repo: repo, activity: activity}
}

func invalid(msg string) error {
	return perrors.NewErrInvalidRequest(msg, nil)
}

// parseDate reads a YYYY-MM-DD snapshot date. Empty means today in UTC.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, invalid(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw))
	}
	return t, nil
}

// Board returns every KPI, optionally for one department, with its value on date.
func (s *HuddleService) Board(ctx context.Context, date, department string) (*Board, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.Board(ctx, day, strings.TrimSpace(department))
	if err != nil {
		return nil, err
	}

	b := &Board{Date: day.Format(time.DateOnly), Department: department, KPIs: rows}
	for i := range rows {
		r := &rows[i]
		if r.Value == nil {
			continue
		}
		b.Entered++
		v := r.Value.Round(2)
		r.Value = &v
		if r.Target != nil {
			met := !v.LessThan(*r.Target)
			r.OnTarget = &met
		}
	}
	return b, nil
}

func (s *HuddleService) CreateKPI(ctx context.Context, actor *access.Principal, req *CreateKPIRequest) (*KPI, error) {
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, invalid("slug must be lowercase letters, digits, dashes or underscores")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	unit, ok := ParseUnit(req.Unit)
	if !ok {
		return nil, invalid(fmt.Sprintf("invalid unit %q", req.Unit))
	}

	now := time.Now().UTC()
	k := &KPI{
		ID:         uuid.New(),
		Slug:       slug,
		Name:       name,
		Department: strings.TrimSpace(req.Department),
		Unit:       unit,
		Target:     req.Target,
		Position:   req.Position,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateKPI(ctx, k); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return nil, perrors.New(perrors.ErrCodeConflict, fmt.Sprintf("kpi %q already exists", slug), err)
		}
		return nil, err
	}

	s.activity.Record(ctx, actor, activity.ResourceKPI, k.ID.String(), "created", fmt.Sprintf("Added KPI %s", k.Name))
	return k, nil
}

// UpsertValue records the KPI value for one day. Writing the same day again
// replaces it.
func (s *HuddleService) UpsertValue(ctx context.Context, actor *access.Principal, kpiID uuid.UUID, date string, req *UpsertValueRequest) (*Value, error) {
	if strings.TrimSpace(date) == "" {
		return nil, invalid("date is required")
	}
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	if req.Value == nil {
		return nil, invalid("value is required")
	}

	k, err := s.repo.GetKPI(ctx, kpiID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	v, err := s.repo.UpsertValue(ctx, &Value{
		ID:           uuid.New(),
		KPIID:        k.ID,
		SnapshotDate: day,
		Value:        req.Value.Round(2),
		Note:         strings.TrimSpace(req.Note),
		UpdatedBy:    actor.Actor(),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	v.Value = v.Value.Round(2)

	s.activity.Record(ctx, actor, activity.ResourceKPI, k.ID.String(), "value_recorded",
		fmt.Sprintf("%s on %s: %s", k.Name, day.Format(time.DateOnly), v.Value.String()))
	return v, nil
}

func (s *HuddleService) History(ctx context.Context, kpiID uuid.UUID, f HistoryFilter, page listquery.Page) ([]Value, int, error) {
	if err := historyQuery(kpiID, f).Err(); err != nil {
		return nil, 0, invalid(err.Error())
	}
	if _, err := s.repo.GetKPI(ctx, kpiID); err != nil {
		return nil, 0, err
	}

	values, total, err := s.repo.History(ctx, kpiID, f, page)
	if err != nil {
		return nil, 0, err
	}
	for i := range values {
		values[i].Value = values[i].Value.Round(2)
	}
	return values, total, nil
}
