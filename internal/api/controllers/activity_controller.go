package controllers

import (
	"context"
	"fmt"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/activity"
	"github.com/curaious/bizops/internal/services/syncrun"
)

// readCapability is the capability that lets a principal read an app's records.
// Apps without a view capability use the one their screens are gated on.
func readCapability(app access.App) access.Capability {
	switch app {
	case access.AppMarketing:
		return access.CapUpload
	case access.AppAdmin:
		return access.CapManageUsers
	default:
		return access.CapView
	}
}

func RegisterActivityRoutes(r *router.Router, svc *services.Services, gate *Gate) {
	r.GET("/api/activity", gate.Session(func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		resourceType, err := requireStringQuery(ctx, "resource_type")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid resource type", err)
			return
		}
		app, ok := activity.AppFor(activity.ResourceType(resourceType))
		if !ok {
			writeError(ctx, stdCtx, "Invalid resource type", perrors.NewErrInvalidRequest(fmt.Sprintf("unknown resource_type %q", resourceType), nil))
			return
		}
		capability := readCapability(app)
		if !access.Allow(p, app, capability) {
			forbid(ctx, stdCtx, p, app, capability)
			return
		}

		page, err := pageQuery(ctx, 50)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		entries, total, err := svc.Activity.List(stdCtx, activity.Filter{
			ResourceType: resourceType,
			ResourceID:   query(ctx, "resource_id"),
			Action:       query(ctx, "action"),
		}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list activity", err)
			return
		}

		writeList(ctx, stdCtx, "activity", entries, total, page)
	}))

	r.GET("/api/sync/runs", gate.Require(access.AppSync, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		page, err := pageQuery(ctx, 50)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		runs, total, err := svc.SyncRuns.List(stdCtx, syncrun.Filter{
			Kind:   query(ctx, "kind"),
			Status: query(ctx, "status"),
		}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list sync runs", err)
			return
		}

		writeList(ctx, stdCtx, "runs", runs, total, page)
	}))

	r.GET("/api/sync/runs/{id}", gate.Require(access.AppSync, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid run id", err)
			return
		}

		run, err := svc.SyncRuns.Get(stdCtx, id)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to get sync run", err)
			return
		}

		writeOK(ctx, stdCtx, "success", run)
	}))
}
