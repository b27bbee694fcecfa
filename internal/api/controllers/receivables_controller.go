package controllers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/ar"
)

func RegisterReceivablesRoutes(r *router.Router, svc *services.Services, gate *Gate) {
	g := r.Group("/api/ar")

	g.GET("/invoices", gate.Require(access.AppReceivables, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		page, err := pageQuery(ctx, 50)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		invoices, total, err := svc.Receivables.ListInvoices(stdCtx, ar.InvoiceFilter{
			Status:       query(ctx, "status"),
			BusinessUnit: query(ctx, "business_unit"),
			From:         query(ctx, "from"),
			To:           query(ctx, "to"),
			Search:       query(ctx, "search"),
			Outstanding:  query(ctx, "outstanding"),
		}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list invoices", err)
			return
		}

		writeList(ctx, stdCtx, "invoices", invoices, total, page)
	}))

	g.GET("/invoices/{id}", gate.Require(access.AppReceivables, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid invoice id", err)
			return
		}

		detail, err := svc.Receivables.Detail(stdCtx, id)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to get invoice", err)
			return
		}

		writeOK(ctx, stdCtx, "success", detail)
	}))

	g.GET("/summary", gate.Require(access.AppReceivables, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		summary, err := svc.Receivables.Summary(stdCtx)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to summarise receivables", err)
			return
		}

		writeOK(ctx, stdCtx, "success", summary)
	}))

	g.POST("/sync", gate.CronOrRequire(access.AppReceivables, access.CapSync, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		var req ar.SyncRequest
		var err error
		if req.HoursBack, err = intQuery(ctx, "hours_back", 0); err != nil {
			writeError(ctx, stdCtx, "Invalid hours_back", err)
			return
		}
		if req.Page, err = intQuery(ctx, "page", 1); err != nil {
			writeError(ctx, stdCtx, "Invalid page", err)
			return
		}
		if req.MaxPages, err = intQuery(ctx, "max_pages", 0); err != nil {
			writeError(ctx, stdCtx, "Invalid max_pages", err)
			return
		}

		result, err := svc.Receivables.Sync(stdCtx, p, req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invoice sync failed", err)
			return
		}

		writeOK(ctx, stdCtx, "success", result)
	}))

	g.POST("/payments/backfill", gate.CronOrRequire(access.AppReceivables, access.CapSync, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		limit, err := intQuery(ctx, "limit", 0)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid limit", err)
			return
		}

		result, err := svc.Receivables.BackfillPayments(stdCtx, p, limit)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Payment backfill failed", err)
			return
		}

		writeOK(ctx, stdCtx, "success", result)
	}))

	g.POST("/invoices/{id}/tasks", gate.Require(access.AppReceivables, access.CapManageTasks, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid invoice id", err)
			return
		}

		var req ar.CreateTaskRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		task, err := svc.Receivables.CreateTask(stdCtx, p, id, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to create task", err)
			return
		}

		writeCreated(ctx, stdCtx, "Task created", task)
	}))

	g.PATCH("/tasks/{id}", gate.Require(access.AppReceivables, access.CapManageTasks, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid task id", err)
			return
		}

		var req ar.UpdateTaskRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		task, err := svc.Receivables.UpdateTask(stdCtx, p, id, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to update task", err)
			return
		}

		writeOK(ctx, stdCtx, "Task updated", task)
	}))

	g.POST("/tasks/{id}/push", gate.Require(access.AppReceivables, access.CapManageTasks, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid task id", err)
			return
		}

		task, err := svc.Receivables.PushTask(stdCtx, p, id)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to push task", err)
			return
		}

		writeOK(ctx, stdCtx, "Task pushed", task)
	}))
}
