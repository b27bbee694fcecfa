// Package listquery composes filtered, paginated list queries. Every filter is an
// independent conjunctive predicate and an absent filter adds nothing.
package listquery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Page is a normalized limit/offset pair.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPage clamps limit into (0, MaxLimit] using def when limit is not positive, and
// clamps offset at zero.
func NewPage(limit, offset, def int) Page {
	if def <= 0 || def > MaxLimit {
		def = DefaultLimit
	}
	if limit <= 0 {
		limit = def
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// ParsePage reads raw limit/offset query values. Empty values take defaults; values
// that are not integers are rejected.
func ParsePage(limitRaw, offsetRaw string, def int) (Page, error) {
	limit, offset := 0, 0
	var err error
	if limitRaw != "" {
		if limit, err = strconv.Atoi(limitRaw); err != nil {
			return Page{}, fmt.Errorf("invalid limit %q", limitRaw)
		}
	}
	if offsetRaw != "" {
		if offset, err = strconv.Atoi(offsetRaw); err != nil {
			return Page{}, fmt.Errorf("invalid offset %q", offsetRaw)
		}
	}
	return NewPage(limit, offset, def), nil
}

// Builder accumulates WHERE predicates and an ORDER BY.
type Builder struct {
	conds []string
	args  []any
	order []string
	err   error
}

func New() *Builder {
	return &Builder{}
}

// Where adds a raw predicate with ? placeholders.
func (b *Builder) Where(cond string, args ...any) *Builder {
	b.conds = append(b.conds, cond)
	b.args = append(b.args, args...)
	return b
}

// Eq adds col = v when v is not empty.
func (b *Builder) Eq(col string, v string) *Builder {
	if v == "" {
		return b
	}
	return b.Where(col+" = ?", v)
}

// EqAny adds col = v unconditionally.
func (b *Builder) EqAny(col string, v any) *Builder {
	return b.Where(col+" = ?", v)
}

// Bool adds col = true/false when raw is "true" or "false".
func (b *Builder) Bool(col string, raw string) *Builder {
	switch raw {
	case "true", "1":
		return b.Where(col + " = TRUE")
	case "false", "0":
		return b.Where(col + " = FALSE")
	case "":
		return b
	default:
		b.setErr(fmt.Errorf("invalid boolean %q for %s", raw, col))
		return b
	}
}

// In adds col IN (...) when vals is not empty.
func (b *Builder) In(col string, vals []string) *Builder {
	if len(vals) == 0 {
		return b
	}
	frag, args, err := sqlx.In(col+" IN (?)", vals)
	if err != nil {
		b.setErr(err)
		return b
	}
	return b.Where(frag, args...)
}

// Since adds col >= t when t is set.
func (b *Builder) Since(col string, t *time.Time) *Builder {
	if t == nil {
		return b
	}
	return b.Where(col+" >= ?", t.UTC())
}

// Until adds col <= t when t is set.
func (b *Builder) Until(col string, t *time.Time) *Builder {
	if t == nil {
		return b
	}
	return b.Where(col+" <= ?", t.UTC())
}

// DateRange parses YYYY-MM-DD bounds; to is inclusive of the whole day.
func (b *Builder) DateRange(col, from, to string) *Builder {
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			b.setErr(fmt.Errorf("invalid from date %q", from))
			return b
		}
		b.Since(col, &t)
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			b.setErr(fmt.Errorf("invalid to date %q", to))
			return b
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		b.Until(col, &end)
	}
	return b
}

// Search adds a case-insensitive substring match OR'd across cols.
func (b *Builder) Search(term string, cols ...string) *Builder {
	term = strings.TrimSpace(term)
	if term == "" || len(cols) == 0 {
		return b
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf(`LOWER(COALESCE(%s, '')) LIKE ? ESCAPE '\'`, c))
		args = append(args, pattern)
	}
	return b.Where("("+strings.Join(parts, " OR ")+")", args...)
}

// OrderBy sets the sort. The last column should be unique so pages are stable.
func (b *Builder) OrderBy(cols ...string) *Builder {
	b.order = cols
	return b
}

// Sort picks a whitelisted sort for a user supplied key, then appends tiebreak.
func (b *Builder) Sort(requested string, allowed map[string]string, fallback string, tiebreak string) *Builder {
	col, ok := allowed[requested]
	if !ok {
		col = fallback
	}
	return b.OrderBy(col, tiebreak)
}

// Err returns the first parse error met while building.
func (b *Builder) Err() error {
	return b.err
}

// Clause renders the WHERE clause and its arguments.
func (b *Builder) Clause() (string, []any) {
	if len(b.conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(b.conds, " AND "), append([]any{}, b.args...)
}

func (b *Builder) orderClause() string {
	if len(b.order) == 0 {
		return " ORDER BY id"
	}
	return " ORDER BY " + strings.Join(b.order, ", ")
}

// SelectQuery renders base + WHERE + ORDER BY + LIMIT/OFFSET with ? placeholders.
func (b *Builder) SelectQuery(base string, page Page) (string, []any) {
	where, args := b.Clause()
	return base + where + b.orderClause() + " LIMIT ? OFFSET ?", append(args, page.Limit, page.Offset)
}

// CountQuery renders an independent COUNT(*) over from with the same predicates.
func (b *Builder) CountQuery(from string) (string, []any) {
	where, args := b.Clause()
	return "SELECT COUNT(*) FROM " + from + where, args
}

// Select runs the page query into dest.
func (b *Builder) Select(ctx context.Context, db sqlx.ExtContext, dest any, base string, page Page) error {
	if b.err != nil {
		return b.err
	}
	q, args := b.SelectQuery(base, page)
	return sqlx.SelectContext(ctx, db, dest, db.Rebind(q), args...)
}

// Count runs the total query. The total ignores limit and offset.
func (b *Builder) Count(ctx context.Context, db sqlx.ExtContext, from string) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	q, args := b.CountQuery(from)
	var n int
	if err := sqlx.GetContext(ctx, db, &n, db.Rebind(q), args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
