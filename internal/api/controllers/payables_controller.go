package controllers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/ap"
)

func RegisterPayablesRoutes(r *router.Router, svc *services.Services, gate *Gate) {
	g := r.Group("/api/ap")

	g.GET("/contractors", gate.Require(access.AppPayables, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		page, err := pageQuery(ctx, 50)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		contractors, total, err := svc.Payables.ListContractors(stdCtx, ap.ContractorFilter{
			Search: query(ctx, "search"),
			Trade:  query(ctx, "trade"),
			Active: query(ctx, "active"),
		}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list contractors", err)
			return
		}

		writeList(ctx, stdCtx, "contractors", contractors, total, page)
	}))

	g.POST("/contractors", gate.Require(access.AppPayables, access.CapEditRates, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		var req ap.CreateContractorRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		contractor, err := svc.Payables.CreateContractor(stdCtx, p, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to create contractor", err)
			return
		}

		writeCreated(ctx, stdCtx, "Contractor created", contractor)
	}))

	g.GET("/contractors/{id}", gate.Require(access.AppPayables, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid contractor id", err)
			return
		}

		detail, err := svc.Payables.Detail(stdCtx, id)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to get contractor", err)
			return
		}

		writeOK(ctx, stdCtx, "success", detail)
	}))

	g.PUT("/contractors/{id}", gate.Require(access.AppPayables, access.CapEditRates, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid contractor id", err)
			return
		}

		var req ap.UpdateContractorRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		contractor, err := svc.Payables.UpdateContractor(stdCtx, p, id, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to update contractor", err)
			return
		}

		writeOK(ctx, stdCtx, "Contractor updated", contractor)
	}))

	g.GET("/rates", gate.Require(access.AppPayables, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		raw, err := requireStringQuery(ctx, "contractor_id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid contractor id", err)
			return
		}
		contractorID, err := uuid.Parse(raw)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid contractor id", perrors.NewErrInvalidRequest("invalid contractor_id", err))
			return
		}

		rates, err := svc.Payables.ListRates(stdCtx, contractorID)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list rates", err)
			return
		}

		writeOK(ctx, stdCtx, "success", map[string]any{"rates": rates})
	}))

	g.POST("/rates", gate.Require(access.AppPayables, access.CapEditRates, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		var req ap.UpsertRateRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		rate, err := svc.Payables.UpsertRate(stdCtx, p, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to save rate", err)
			return
		}

		writeOK(ctx, stdCtx, "Rate saved", rate)
	}))

	g.GET("/jobs", gate.Require(access.AppPayables, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		page, err := pageQuery(ctx, 50)
		if err != nil {
			writeError(ctx, stdCtx, "Invalid pagination", err)
			return
		}

		jobs, total, err := svc.Payables.ListJobs(stdCtx, ap.JobFilter{
			ContractorID:  query(ctx, "contractor_id"),
			PaymentStatus: query(ctx, "payment_status"),
			From:          query(ctx, "from"),
			To:            query(ctx, "to"),
			Search:        query(ctx, "search"),
		}, page)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list jobs", err)
			return
		}

		writeList(ctx, stdCtx, "jobs", jobs, total, page)
	}))

	g.POST("/jobs", gate.Require(access.AppPayables, access.CapManagePayments, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		var req ap.CreateJobRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		job, err := svc.Payables.CreateJob(stdCtx, p, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to record job", err)
			return
		}

		writeCreated(ctx, stdCtx, "Job recorded", job)
	}))

	g.PATCH("/jobs/{id}/payment", gate.Require(access.AppPayables, access.CapManagePayments, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Invalid job id", err)
			return
		}

		var req ap.UpdatePaymentRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}

		job, err := svc.Payables.UpdatePayment(stdCtx, p, id, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to update payment", err)
			return
		}

		writeOK(ctx, stdCtx, "Payment updated", job)
	}))

	g.GET("/summary", gate.Require(access.AppPayables, access.CapView, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *access.Principal) {
		summary, err := svc.Payables.Summary(stdCtx)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to summarise payables", err)
			return
		}

		writeOK(ctx, stdCtx, "success", summary)
	}))
}
