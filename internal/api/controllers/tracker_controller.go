package controllers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/tracker"
)

func RegisterTrackerRoutes(r *router.Router, svc *services.Services, gate *Gate) {
	g := r.Group("/api/jobs")

	g.GET("/trackers", gate.Require(access.AppJobs, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		page, err := pageQuery(ctx, 20)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		trackers, total, err := svc.Trackers.List(stdCtx, tracker.TrackerFilter{
			Status: query(ctx, "status"),
			Search: query(ctx, "search"),
		}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list trackers", err)
			return
		}

		writeList(ctx, stdCtx, "trackers", trackers, total, page)
	}))

	g.POST("/trackers", gate.Require(access.AppJobs, access.CapEdit, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		var req tracker.CreateTrackerRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		detail, err := svc.Trackers.Create(stdCtx, p, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to create tracker", err)
			return
		}

		writeCreated(ctx, stdCtx, "Tracker created", detail)
	}))

	g.GET("/trackers/{id}", gate.Require(access.AppJobs, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid tracker id", err)
			return
		}

		detail, err := svc.Trackers.Detail(stdCtx, id)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to get tracker", err)
			return
		}

		writeOK(ctx, stdCtx, "success", detail)
	}))

	g.PUT("/trackers/{id}/milestones", gate.Require(access.AppJobs, access.CapManage, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid tracker id", err)
			return
		}

		var req tracker.UpsertMilestonesRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		milestones, err := svc.Trackers.UpsertMilestones(stdCtx, p, id, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to save milestones", err)
			return
		}

		writeOK(ctx, stdCtx, "Milestones saved", map[string]any{"milestones": milestones})
	}))

	g.PATCH("/milestones/{id}", gate.Require(access.AppJobs, access.CapEdit, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid milestone id", err)
			return
		}

		var req tracker.UpdateMilestoneRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		milestone, err := svc.Trackers.UpdateMilestone(stdCtx, p, id, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to update milestone", err)
			return
		}

		writeOK(ctx, stdCtx, "Milestone updated", milestone)
	}))
}
