package syncrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/testutil"
)

func TestStartComplete(t *testing.T) {
	svc := NewSyncRunService(NewSyncRunRepo(testutil.NewDB(t)))
	ctx := context.Background()

	run, err := svc.Start(ctx, KindInvoiceSync, "cron")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)

	require.NoError(t, svc.Complete(ctx, run, Counts{Fetched: 10, Upserted: 8, Errors: 2}, "2 malformed"))

	got, err := svc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 8, got.Upserted)
	assert.Equal(t, 2, got.Errors)
	assert.Equal(t, "cron", got.TriggeredBy)

	// only one terminal status
	assert.ErrorIs(t, svc.Fail(ctx, run, Counts{}, errors.New("late")), ErrRunNotRunning)
}

func TestFailAndList(t *testing.T) {
	svc := NewSyncRunService(NewSyncRunRepo(testutil.NewDB(t)))
	ctx := context.Background()

	first, err := svc.Start(ctx, KindInvoiceSync, "cron")
	require.NoError(t, err)
	require.NoError(t, svc.Fail(ctx, first, Counts{}, errors.New("servicetitan: 503")))

	_, err = svc.Start(ctx, KindPaymentBackfill, "cron")
	require.NoError(t, err)

	runs, total, err := svc.List(ctx, Filter{Status: string(StatusFailed)}, listquery.NewPage(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "servicetitan: 503", runs[0].Message)

	_, total, err = svc.List(ctx, Filter{}, listquery.NewPage(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestStaleAndMissing(t *testing.T) {
	svc := NewSyncRunService(NewSyncRunRepo(testutil.NewDB(t)))
	ctx := context.Background()

	_, err := svc.Start(ctx, KindInvoiceSync, "cron")
	require.NoError(t, err)

	stale, err := svc.Stale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	stale, err = svc.Stale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, svc.Complete(ctx, &Run{ID: uuid.New()}, Counts{}, ""), ErrRunNotFound)
}
