package controllers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/huddle"
)

func RegisterHuddleRoutes(r *router.Router, svc *services.Services, gate *Gate) {
	g := r.Group("/api/huddle")

	g.GET("/kpis", gate.Require(access.AppHuddle, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		board, err := svc.Huddle.Board(stdCtx, query(ctx, "date"), query(ctx, "department"))
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to load huddle board", err)
			return
		}

		writeOK(ctx, stdCtx, "success", board)
	}))

	g.POST("/kpis", gate.Require(access.AppHuddle, access.CapManage, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		var req huddle.CreateKPIRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		kpi, err := svc.Huddle.CreateKPI(stdCtx, p, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to create KPI", err)
			return
		}

		writeCreated(ctx, stdCtx, "KPI created", kpi)
	}))

	g.PUT("/kpis/{id}/values/{date}", gate.Require(access.AppHuddle, access.CapEdit, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid KPI id", err)
			return
		}
		date, err := pathParam(ctx, "date")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid date", err)
			return
		}

		var req huddle.UpsertValueRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		value, err := svc.Huddle.UpsertValue(stdCtx, p, id, date, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to save KPI value", err)
			return
		}

		writeOK(ctx, stdCtx, "KPI value saved", value)
	}))

	g.GET("/kpis/{id}/values", gate.Require(access.AppHuddle, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid KPI id", err)
			return
		}
		page, err := pageQuery(ctx, 30)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		values, total, err := svc.Huddle.History(stdCtx, id, huddle.HistoryFilter{
			From: query(ctx, "from"),
			To:   query(ctx, "to"),
		}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to load KPI history", err)
			return
		}

		writeList(ctx, stdCtx, "values", values, total, page)
	}))
}
