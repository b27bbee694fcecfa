package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/background"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/testutil"
)

type failingSink struct{ calls int }

func (f *failingSink) Insert(context.Context, *Entry) error {
	f.calls++
	return errors.New("activity table is locked")
}

func TestRecordAndList_NewestFirst(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewActivityService(NewActivityRepo(db), background.Inline{})
	ctx := context.Background()

	actor := &access.Principal{ID: uuid.New(), Name: "Dana", Role: access.RoleManager}
	svc.Record(ctx, actor, ResourceInvoice, "inv-1", "task_created", "Call customer")
	time.Sleep(2 * time.Millisecond)
	svc.Record(ctx, actor, ResourceInvoice, "inv-1", "task_completed", "Called")
	svc.Record(ctx, nil, ResourceInvoice, "inv-2", "synced", "")

	entries, total, err := svc.List(ctx, Filter{ResourceType: "invoice", ResourceID: "inv-1"}, listquery.NewPage(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "task_completed", entries[0].Action)
	assert.Equal(t, "Dana", entries[0].ActorName)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, actor.ID, *entries[0].ActorID)

	recent, err := svc.Recent(ctx, ResourceInvoice, "inv-2", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "system", recent[0].ActorName)
	assert.Nil(t, recent[0].ActorID)
}

func TestRecord_FailingSinkIsSwallowed(t *testing.T) {
	db := testutil.NewDB(t)
	sink := &failingSink{}
	svc := NewActivityService(NewActivityRepo(db), background.Inline{}).WithSink(sink)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), nil, ResourceContractor, "c-1", "updated", "")
	})
	assert.Equal(t, 1, sink.calls)
}

func TestAppFor(t *testing.T) {
	app, ok := AppFor(ResourceCollectionTask)
	assert.True(t, ok)
	assert.Equal(t, access.AppReceivables, app)

	_, ok = AppFor(ResourceType("unknown"))
	assert.False(t, ok)
}
