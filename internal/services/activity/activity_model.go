package activity

import (
	"time"

	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/access"
)

type ResourceType string

const (
	ResourceContractor     ResourceType = "contractor"
	ResourceContractorJob  ResourceType = "contractor_job"
	ResourceContractorRate ResourceType = "contractor_rate"
	ResourceInvoice        ResourceType = "invoice"
	ResourceCollectionTask ResourceType = "collection_task"
	ResourceTracker        ResourceType = "tracker"
	ResourceMilestone      ResourceType = "milestone"
	ResourceKPI            ResourceType = "kpi"
	ResourceMedia          ResourceType = "media"
	ResourceUser           ResourceType = "user"
	ResourceSyncRun        ResourceType = "sync_run"
)

var owningApp = map[ResourceType]access.App{
	ResourceContractor:     access.AppPayables,
	ResourceContractorJob:  access.AppPayables,
	ResourceContractorRate: access.AppPayables,
	ResourceInvoice:        access.AppReceivables,
	ResourceCollectionTask: access.AppReceivables,
	ResourceTracker:        access.AppJobs,
	ResourceMilestone:      access.AppJobs,
	ResourceKPI:            access.AppHuddle,
	ResourceMedia:          access.AppMarketing,
	ResourceUser:           access.AppAdmin,
	ResourceSyncRun:        access.AppSync,
}

// AppFor returns the app whose view capability guards entries of t.
func AppFor(t ResourceType) (access.App, bool) {
	app, ok := owningApp[t]
	return app, ok
}

type Entry struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	ResourceType ResourceType `db:"resource_type" json:"resource_type"`
	ResourceID   string       `db:"resource_id" json:"resource_id"`
	Action       string       `db:"action" json:"action"`
	Description  string       `db:"description" json:"description"`
	ActorID      *uuid.UUID   `db:"actor_id" json:"actor_id,omitempty"`
	ActorName    string       `db:"actor_name" json:"actor_name"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

type Filter struct {
	ResourceType string
	ResourceID   string
	Action       string
}
