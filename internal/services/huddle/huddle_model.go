package huddle

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrKPINotFound = errors.New("kpi not found")
	ErrSlugTaken   = errors.New("kpi slug already exists")
)

type Unit string

const (
	UnitCount    Unit = "count"
	UnitCurrency Unit = "currency"
	UnitPercent  Unit = "percent"
	UnitHours    Unit = "hours"
)

func ParseUnit(s string) (Unit, bool) {
	switch u := Unit(s); u {
	case UnitCount, UnitCurrency, UnitPercent, UnitHours:
		return u, true
	case "":
		return UnitCount, true
	}
	return "", false
}

type KPI struct {
	ID         uuid.UUID        `db:"id" json:"id"`
	Slug       string           `db:"slug" json:"slug"`
	Name       string           `db:"name" json:"name"`
	Department string           `db:"department" json:"department"`
	Unit       Unit             `db:"unit" json:"unit"`
	Target     *decimal.Decimal `db:"target" json:"target,omitempty"`
	Position   int              `db:"position" json:"position"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

type Value struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	KPIID        uuid.UUID       `db:"kpi_id" json:"kpi_id"`
	SnapshotDate time.Time       `db:"snapshot_date" json:"snapshot_date"`
	Value        decimal.Decimal `db:"value" json:"value"`
	Note         string          `db:"note" json:"note"`
	UpdatedBy    string          `db:"updated_by" json:"updated_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// BoardRow is a KPI with its value for the board date, if one was entered.
type BoardRow struct {
	KPI
	Value     *decimal.Decimal `db:"value" json:"value"`
	Note      *string          `db:"note" json:"note,omitempty"`
	UpdatedBy *string          `db:"updated_by" json:"updated_by,omitempty"`
	OnTarget  *bool            `db:"-" json:"on_target,omitempty"`
}

type Board struct {
	Date       string     `json:"date"`
	Department string     `json:"department,omitempty"`
	KPIs       []BoardRow `json:"kpis"`
	Entered    int        `json:"entered"`
}

type CreateKPIRequest struct {
	Slug       string           `json:"slug"`
	Name       string           `json:"name"`
	Department string           `json:"department"`
	Unit       string           `json:"unit"`
	Target     *decimal.Decimal `json:"target,omitempty"`
	Position   int              `json:"position"`
}

type UpsertValueRequest struct {
	Value *decimal.Decimal `json:"value"`
	Note  string           `json:"note"`
}

type HistoryFilter struct {
	From string
	To   string
}
