package huddle

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/background"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services/activity"
	"github.com/curaious/bizops/internal/testutil"
)

var lead = &access.Principal{ID: uuid.New(), Name: "Jordan", Role: access.RoleManager}

func newService(t *testing.T) *HuddleService {
	t.Helper()
	db := testutil.NewDB(t)
	acts := activity.NewActivityService(activity.NewActivityRepo(db), background.Inline{})
	return NewHuddleService(NewHuddleRepo(db), acts)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateKPI_Validation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "Calls Booked!", Name: "Calls"})
	assert.Equal(t, 400, perrors.Status(err))
	_, err = svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "calls", Name: " "})
	assert.Equal(t, 400, perrors.Status(err))
	_, err = svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "calls", Name: "Calls", Unit: "widgets"})
	assert.Equal(t, 400, perrors.Status(err))

	k, err := svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "calls-booked", Name: "Calls booked", Department: "CSR"})
	require.NoError(t, err)
	assert.Equal(t, UnitCount, k.Unit)

	_, err = svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "calls-booked", Name: "Duplicate"})
	assert.Equal(t, 409, perrors.Status(err))
}

func TestUpsertValue_OnePerDay(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	k, err := svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "revenue", Name: "Revenue", Unit: "currency", Target: dec("5000")})
	require.NoError(t, err)

	first, err := svc.UpsertValue(ctx, lead, k.ID, "2026-03-02", &UpsertValueRequest{Value: dec("4200.50")})
	require.NoError(t, err)
	second, err := svc.UpsertValue(ctx, lead, k.ID, "2026-03-02", &UpsertValueRequest{Value: dec("5100"), Note: "late invoices"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "5100", second.Value.String())
	assert.Equal(t, "late invoices", second.Note)
	assert.Equal(t, "Jordan", second.UpdatedBy)

	_, err = svc.UpsertValue(ctx, lead, k.ID, "2026-03-03", &UpsertValueRequest{Value: dec("3000")})
	require.NoError(t, err)

	_, err = svc.UpsertValue(ctx, lead, k.ID, "03/02/2026", &UpsertValueRequest{Value: dec("1")})
	assert.Equal(t, 400, perrors.Status(err))
	_, err = svc.UpsertValue(ctx, lead, k.ID, "2026-03-02", &UpsertValueRequest{})
	assert.Equal(t, 400, perrors.Status(err))
	_, err = svc.UpsertValue(ctx, lead, uuid.New(), "2026-03-02", &UpsertValueRequest{Value: dec("1")})
	assert.ErrorIs(t, err, ErrKPINotFound)

	values, total, err := svc.History(ctx, k.ID, HistoryFilter{}, listquery.NewPage(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "3000", values[0].Value.String(), "newest first")

	_, total, err = svc.History(ctx, k.ID, HistoryFilter{From: "2026-03-03"}, listquery.NewPage(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, _, err = svc.History(ctx, k.ID, HistoryFilter{To: "soon"}, listquery.NewPage(0, 0, 30))
	assert.Equal(t, 400, perrors.Status(err))
}

func TestBoard(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	revenue, err := svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "revenue", Name: "Revenue", Department: "Sales", Target: dec("5000")})
	require.NoError(t, err)
	_, err = svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "calls", Name: "Calls", Department: "CSR", Position: 1})
	require.NoError(t, err)

	_, err = svc.UpsertValue(ctx, lead, revenue.ID, "2026-03-02", &UpsertValueRequest{Value: dec("4200")})
	require.NoError(t, err)

	board, err := svc.Board(ctx, "2026-03-02", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", board.Date)
	require.Len(t, board.KPIs, 2)
	assert.Equal(t, 1, board.Entered)

	for _, row := range board.KPIs {
		switch row.Slug {
		case "revenue":
			require.NotNil(t, row.Value)
			assert.Equal(t, "4200", row.Value.String())
			require.NotNil(t, row.OnTarget)
			assert.False(t, *row.OnTarget)
		case "calls":
			assert.Nil(t, row.Value)
			assert.Nil(t, row.OnTarget)
		}
	}

	board, err = svc.Board(ctx, "2026-03-03", "Sales")
	require.NoError(t, err)
	require.Len(t, board.KPIs, 1)
	assert.Zero(t, board.Entered)

	_, err = svc.Board(ctx, "tomorrow", "")
	assert.Equal(t, 400, perrors.Status(err))
}

func TestCreateKPI_ConcurrentSameSlugYieldsOne(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		statuses []int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateKPI(ctx, lead, &CreateKPIRequest{Slug: "calls-booked", Name: "Calls booked"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			statuses = append(statuses, perrors.Status(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, statuses, 7)
	for _, st := range statuses {
		assert.Equal(t, 409, st)
	}
}

func TestRepo_CreateKPIReportsTakenSlug(t *testing.T) {
	repo := NewHuddleRepo(testutil.NewDB(t))
	ctx := context.Background()

	k := &KPI{ID: uuid.New(), Slug: "revenue", Name: "Revenue", Unit: UnitCount}
	require.NoError(t, repo.CreateKPI(ctx, k))

	dup := *k
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.CreateKPI(ctx, &dup), ErrSlugTaken)
}
