package listquery

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID     int    `db:"id"`
	Name   string `db:"name"`
	Kind   string `db:"kind"`
	Active bool   `db:"active"`
}

func newItemsDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "items.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	db.MustExec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, kind TEXT, active BOOLEAN, created_at TIMESTAMP)`)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 120; i++ {
		kind := []string{"plumbing", "hvac", "electrical"}[i%3]
		db.MustExec(`INSERT INTO items (id, name, kind, active, created_at) VALUES (?, ?, ?, ?, ?)`,
			i, fmt.Sprintf("Item %03d", i), kind, i%2 == 0, base.Add(time.Duration(i)*time.Hour))
	}
	return db
}

func TestNewPage(t *testing.T) {
	assert.Equal(t, Page{Limit: 20, Offset: 0}, NewPage(0, -5, 20))
	assert.Equal(t, Page{Limit: MaxLimit, Offset: 10}, NewPage(1000, 10, 20))
	assert.Equal(t, Page{Limit: DefaultLimit}, NewPage(0, 0, 0))
}

func TestParsePage(t *testing.T) {
	p, err := ParsePage("", "", 25)
	require.NoError(t, err)
	assert.Equal(t, Page{Limit: 25}, p)

	p, err = ParsePage("500", "7", 25)
	require.NoError(t, err)
	assert.Equal(t, Page{Limit: 100, Offset: 7}, p)

	_, err = ParsePage("ten", "", 25)
	assert.Error(t, err)
}

func TestBuilder_EmptyAddsNothing(t *testing.T) {
	b := New().Eq("kind", "").In("kind", nil).Search("  ", "name").Bool("active", "").DateRange("created_at", "", "")
	where, args := b.Clause()
	assert.Empty(t, where)
	assert.Empty(t, args)
	assert.NoError(t, b.Err())
}

func TestBuilder_RendersConjunction(t *testing.T) {
	q, args := New().
		Eq("kind", "hvac").
		Search("50%", "name", "kind").
		OrderBy("created_at DESC", "id DESC").
		SelectQuery("SELECT * FROM items", Page{Limit: 10, Offset: 20})

	assert.Equal(t, `SELECT * FROM items WHERE kind = ? AND (LOWER(COALESCE(name, '')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(kind, '')) LIKE ? ESCAPE '\') ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, q)
	assert.Equal(t, []any{"hvac", `%50\%%`, `%50\%%`, 10, 20}, args)
}

func TestBuilder_InvalidInputs(t *testing.T) {
	assert.Error(t, New().Bool("active", "maybe").Err())
	assert.Error(t, New().DateRange("created_at", "03/01/2026", "").Err())
}

func TestBuilder_FilterConjunction(t *testing.T) {
	db := newItemsDB(t)
	ctx := context.Background()

	var byKind, byActive, both []item
	require.NoError(t, New().Eq("kind", "hvac").Select(ctx, db, &byKind, "SELECT id, name, kind, active FROM items", Page{Limit: 100}))
	require.NoError(t, New().Bool("active", "true").Select(ctx, db, &byActive, "SELECT id, name, kind, active FROM items", Page{Limit: 100}))
	require.NoError(t, New().Eq("kind", "hvac").Bool("active", "true").Select(ctx, db, &both, "SELECT id, name, kind, active FROM items", Page{Limit: 100}))

	ids := func(items []item) map[int]bool {
		out := map[int]bool{}
		for _, it := range items {
			out[it.ID] = true
		}
		return out
	}

	kindIDs, activeIDs := ids(byKind), ids(byActive)
	var want []int
	for id := range kindIDs {
		if activeIDs[id] {
			want = append(want, id)
		}
	}

	got := make([]int, 0, len(both))
	for _, it := range both {
		got = append(got, it.ID)
	}
	assert.ElementsMatch(t, want, got)
	assert.NotEmpty(t, got)
}

func TestBuilder_TotalIgnoresPage(t *testing.T) {
	db := newItemsDB(t)
	ctx := context.Background()

	b := New().OrderBy("id")
	var page []item
	require.NoError(t, b.Select(ctx, db, &page, "SELECT id, name, kind, active FROM items", Page{Limit: 50, Offset: 100}))
	total, err := b.Count(ctx, db, "items")
	require.NoError(t, err)

	assert.Equal(t, 120, total)
	assert.Len(t, page, 20)
	assert.Equal(t, 101, page[0].ID)
}

func TestBuilder_SearchAndDateRange(t *testing.T) {
	db := newItemsDB(t)
	ctx := context.Background()

	var found []item
	require.NoError(t, New().Search("item 01", "name").Select(ctx, db, &found, "SELECT id, name, kind, active FROM items", Page{Limit: 100}))
	assert.Len(t, found, 10)

	b := New().DateRange("created_at", "2026-03-02", "2026-03-02")
	n, err := b.Count(ctx, db, "items")
	require.NoError(t, err)
	assert.Equal(t, 24, n)
}

func TestBuilder_In(t *testing.T) {
	db := newItemsDB(t)
	n, err := New().In("kind", []string{"hvac", "electrical"}).Count(context.Background(), db, "items")
	require.NoError(t, err)
	assert.Equal(t, 80, n)
}

func TestBuilder_Sort(t *testing.T) {
	allowed := map[string]string{"name": "name ASC"}
	q, _ := New().Sort("name", allowed, "id DESC", "id DESC").SelectQuery("SELECT * FROM items", Page{Limit: 1})
	assert.Contains(t, q, "ORDER BY name ASC, id DESC")

	q, _ = New().Sort("drop table", allowed, "created_at DESC", "id DESC").SelectQuery("SELECT * FROM items", Page{Limit: 1})
	assert.Contains(t, q, "ORDER BY created_at DESC, id DESC")
}
