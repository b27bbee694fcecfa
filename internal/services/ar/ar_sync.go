package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/fanout"
	"github.com/curaious/bizops/internal/integrations/servicetitan"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services/syncrun"
)

var tracer = otel.Tracer("Receivables")

// Sync pulls invoices modified within HoursBack from ServiceTitan, one page
// range per call. Malformed records are counted and skipped; a fetch failure
// fails the run.
func (s *ReceivablesService) Sync(ctx context.Context, actor *access.Principal, req SyncRequest) (*SyncResult, error) {
	st, err := s.serviceTitan()
	if err != nil {
		return nil, err
	}

	hoursBack := req.HoursBack
	if hoursBack <= 0 {
		hoursBack = defaultHoursBack
	}
	hoursBack = min(hoursBack, maxHoursBack)
	firstPage := max(req.Page, 1)
	pages := req.MaxPages
	if pages <= 0 {
		pages = defaultMaxPages
	}
	pages = min(pages, maxPages)

	ctx, span := tracer.Start(ctx, "Receivables.Sync", trace.WithAttributes(
		attribute.Int("hours_back", hoursBack),
		attribute.Int("page", firstPage),
		attribute.Int("max_pages", pages),
	))
	defer span.End()

	run, err := s.syncRuns.Start(ctx, syncrun.KindInvoiceSync, actor.Actor())
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour)
	result := &SyncResult{RunID: run.ID}
	var counts syncrun.Counts

	for page := firstPage; page < firstPage+pages; page++ {
		resp, err := st.ListInvoices(ctx, since, page, servicetitan.MaxPageSize)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			if ferr := s.syncRuns.Fail(ctx, run, counts, err); ferr != nil {
				slog.ErrorContext(ctx, "Failed to close sync run", slog.String("run_id", run.ID.String()), slog.Any("error", ferr))
			}
			return nil, perrors.NewErrBadGateway("Failed to fetch invoices from ServiceTitan", err)
		}

		result.Pages++
		counts.Add(s.writePage(ctx, resp.Data))

		result.HasMore = resp.HasMore
		if !resp.HasMore {
			break
		}
		result.NextPage = page + 1
	}
	if !result.HasMore {
		result.NextPage = 0
	}

	result.Fetched, result.Upserted, result.Errors = counts.Fetched, counts.Upserted, counts.Errors
	span.SetAttributes(attribute.Int("fetched", counts.Fetched), attribute.Int("upserted", counts.Upserted), attribute.Int("errors", counts.Errors))

	msg := fmt.Sprintf("%d pages since %s", result.Pages, since.Format(time.RFC3339))
	if err := s.syncRuns.Complete(ctx, run, counts, msg); err != nil {
		return nil, err
	}
	return result, nil
}

// writePage validates, dedupes and upserts one page of invoices. A failed
// chunk is retried row by row so one bad row only costs itself.
func (s *ReceivablesService) writePage(ctx context.Context, records []servicetitan.Invoice) syncrun.Counts {
	counts := syncrun.Counts{Fetched: len(records)}
	now := time.Now().UTC()

	byKey := make(map[int64]Invoice, len(records))
	for _, rec := range records {
		inv, err := invoiceFromRecord(rec, now)
		if err != nil {
			counts.Errors++
			slog.WarnContext(ctx, "Skipping malformed invoice", slog.Int64("st_invoice_id", rec.ID), slog.Any("error", err))
			continue
		}
		byKey[inv.STInvoiceID] = inv
	}

	rows := make([]Invoice, 0, len(byKey))
	for _, inv := range byKey {
		rows = append(rows, inv)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].STInvoiceID < rows[j].STInvoiceID })

	for start := 0; start < len(rows); start += upsertChunk {
		chunk := rows[start:min(start+upsertChunk, len(rows))]
		err := s.repo.UpsertInvoices(ctx, chunk)
		if err == nil {
			counts.Upserted += len(chunk)
			continue
		}
		slog.WarnContext(ctx, "Invoice chunk upsert failed, retrying rows", slog.Int("rows", len(chunk)), slog.Any("error", err))

		for _, inv := range chunk {
			if err := s.repo.UpsertInvoices(ctx, []Invoice{inv}); err != nil {
				counts.Errors++
				slog.WarnContext(ctx, "Invoice upsert failed", slog.Int64("st_invoice_id", inv.STInvoiceID), slog.Any("error", err))
				continue
			}
			counts.Upserted++
		}
	}
	return counts
}

func invoiceFromRecord(rec servicetitan.Invoice, now time.Time) (Invoice, error) {
	if rec.ID <= 0 {
		return Invoice{}, errors.New("missing invoice id")
	}
	total, err := rec.Total.Decimal()
	if err != nil {
		return Invoice{}, fmt.Errorf("invalid total %q", rec.Total)
	}
	balance, err := rec.Balance.Decimal()
	if err != nil {
		return Invoice{}, fmt.Errorf("invalid balance %q", rec.Balance)
	}
	invoiceDate, err := parseSTDate(rec.InvoiceDate)
	if err != nil {
		return Invoice{}, fmt.Errorf("invalid invoice date %q", rec.InvoiceDate)
	}
	dueDate, err := parseSTDate(rec.DueDate)
	if err != nil {
		return Invoice{}, fmt.Errorf("invalid due date %q", rec.DueDate)
	}

	inv := Invoice{
		ID:            uuid.New(),
		STInvoiceID:   rec.ID,
		InvoiceNumber: rec.ReferenceNumber,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Total:         total.Round(2),
		Balance:       balance.Round(2),
		SyncedAt:      now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inv.Status = DeriveStatus(inv.Total, inv.Balance)
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = fmt.Sprint(rec.ID)
	}
	if rec.Customer != nil {
		inv.STCustomerID = rec.Customer.ID
		inv.CustomerName = rec.Customer.Name
	}
	if rec.Job != nil {
		inv.JobNumber = rec.Job.Number
	}
	if rec.BusinessUnit != nil {
		inv.BusinessUnit = rec.BusinessUnit.Name
	}
	return inv, nil
}

// parseSTDate reads the date part of a ServiceTitan timestamp.
func parseSTDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if len(raw) > len(time.DateOnly) {
		raw = raw[:len(time.DateOnly)]
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// BackfillPayments enriches up to limit invoices with their payments, in
// chunks of concurrent ServiceTitan calls. Callers repeat until Done. Each
// failure costs the invoice one attempt; after MaxEnrichAttempts it leaves the
// backlog.
func (s *ReceivablesService) BackfillPayments(ctx context.Context, actor *access.Principal, limit int) (*BackfillResult, error) {
	st, err := s.serviceTitan()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = BackfillChunk
	}
	limit = min(limit, 50)

	ctx, span := tracer.Start(ctx, "Receivables.BackfillPayments", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	backlog, err := s.repo.PendingEnrichment(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(backlog) == 0 {
		return &BackfillResult{Done: true}, nil
	}

	run, err := s.syncRuns.Start(ctx, syncrun.KindPaymentBackfill, actor.Actor())
	if err != nil {
		return nil, err
	}

	types, err := st.PaymentTypes(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Payment types unavailable, methods fall back to type ids", slog.Any("error", err))
		types = map[int64]string{}
	}

	errs := fanout.Each(ctx, backlog, BackfillChunk, func(ctx context.Context, inv Invoice) error {
		if err := s.enrich(ctx, st, inv, types); err != nil {
			if aerr := s.repo.IncrementEnrichAttempts(ctx, inv.ID); aerr != nil {
				slog.ErrorContext(ctx, "Failed to count enrichment attempt", slog.String("invoice_id", inv.ID.String()), slog.Any("error", aerr))
			}
			return err
		}
		return nil
	})

	failed := fanout.Count(errs)
	for i, err := range errs {
		if err != nil {
			slog.WarnContext(ctx, "Payment enrichment failed", slog.Int64("st_invoice_id", backlog[i].STInvoiceID), slog.Any("error", err))
		}
	}

	remaining, err := s.repo.CountPendingEnrichment(ctx)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{
		Processed: len(backlog),
		Enriched:  len(backlog) - failed,
		Errors:    failed,
		Remaining: remaining,
		Done:      remaining == 0,
	}
	span.SetAttributes(attribute.Int("processed", result.Processed), attribute.Int("errors", result.Errors), attribute.Int("remaining", remaining))

	counts := syncrun.Counts{Fetched: result.Processed, Upserted: result.Enriched, Errors: result.Errors}
	if err := s.syncRuns.Complete(ctx, run, counts, fmt.Sprintf("%d remaining", remaining)); err != nil {
		slog.ErrorContext(ctx, "Failed to close backfill run", slog.String("run_id", run.ID.String()), slog.Any("error", err))
	}
	return result, nil
}

func (s *ReceivablesService) enrich(ctx context.Context, st ServiceTitan, inv Invoice, types map[int64]string) error {
	records, err := st.PaymentsForInvoice(ctx, inv.STInvoiceID, inv.STCustomerID)
	if err != nil {
		return err
	}

	payments := make([]Payment, 0, len(records))
	var methods []string
	seen := map[string]bool{}
	for _, rec := range records {
		method := rec.Type
		if name, ok := types[rec.TypeID]; ok {
			method = name
		}
		if method == "" && rec.TypeID != 0 {
			method = fmt.Sprintf("type %d", rec.TypeID)
		}
		if method != "" && !seen[method] {
			seen[method] = true
			methods = append(methods, method)
		}

		paidOn, err := parseSTDate(rec.Date)
		if err != nil {
			return fmt.Errorf("payment %d: invalid date %q", rec.ID, rec.Date)
		}
		payments = append(payments, Payment{
			ID:          uuid.New(),
			STPaymentID: rec.ID,
			Amount:      rec.AmountFor(inv.STInvoiceID).Round(2),
			PaidOn:      paidOn,
			Method:      method,
		})
	}

	return s.repo.SaveEnrichment(ctx, inv.ID, payments, strings.Join(methods, ", "), time.Now().UTC())
}
