package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	json "github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/api/authenticator"
	"github.com/curaious/bizops/internal/api/response"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services/ap"
	"github.com/curaious/bizops/internal/services/ar"
	"github.com/curaious/bizops/internal/services/huddle"
	"github.com/curaious/bizops/internal/services/syncrun"
	"github.com/curaious/bizops/internal/services/tracker"
	"github.com/curaious/bizops/internal/services/user"
)

// TraceContextKey is the user value holding the context extracted from inbound
// trace headers.
const TraceContextKey = "traceCtx"

// requestContext returns the trace context set by the middleware, or Background
// when the handler is driven without it.
func requestContext(ctx *fasthttp.RequestCtx) context.Context {
	if c, ok := ctx.UserValue(TraceContextKey).(context.Context); ok && c != nil {
		return c
	}
	return context.Background()
}

func parseBody(ctx *fasthttp.RequestCtx, target any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return perrors.NewErrInvalidRequest("request body is empty", nil)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return perrors.NewErrInvalidRequest("invalid request body", err)
	}
	return nil
}

func writeError(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, err error) {
	response.NewResponse[any](stdCtx, message, nil).WithError(err).Write(ctx)
}

func writeOK(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, data any) {
	response.NewResponse(stdCtx, message, data).Write(ctx)
}

func writeCreated(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, data any) {
	response.NewResponse(stdCtx, message, data).WithStatus(http.StatusCreated).Write(ctx)
}

func writeList[T any](ctx *fasthttp.RequestCtx, stdCtx context.Context, key string, items []T, total int, page listquery.Page) {
	writeOK(ctx, stdCtx, "success", response.Page[T]{
		Items:  items,
		Key:    key,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

var notFound = []error{
	ap.ErrContractorNotFound,
	ap.ErrJobNotFound,
	ar.ErrInvoiceNotFound,
	ar.ErrTaskNotFound,
	tracker.ErrTrackerNotFound,
	tracker.ErrMilestoneNotFound,
	huddle.ErrKPINotFound,
	user.ErrUserNotFound,
	syncrun.ErrRunNotFound,
}

// writeServiceError maps a service error onto its HTTP status. Errors that already
// carry a code keep it, sentinel not-found errors become 404 and anything else is
// a 500 carrying the original message.
func writeServiceError(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, err error) {
	var perr perrors.Err
	if errors.As(err, &perr) {
		writeError(ctx, stdCtx, message, err)
		return
	}

	for _, sentinel := range notFound {
		if errors.Is(err, sentinel) {
			writeError(ctx, stdCtx, message, perrors.NewErrNotFound(sentinel.Error(), err))
			return
		}
	}

	writeError(ctx, stdCtx, message, perrors.NewErrInternalServerError(message, err))
}

func pathParam(ctx *fasthttp.RequestCtx, key string) (string, error) {
	val := ctx.UserValue(key)
	if val == nil {
		return "", perrors.NewErrInvalidRequest(fmt.Sprintf("%s is required", key), nil)
	}

	return fmt.Sprint(val), nil
}

func pathParamUUID(ctx *fasthttp.RequestCtx, key string) (uuid.UUID, error) {
	val, err := pathParam(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, perrors.NewErrInvalidRequest(fmt.Sprintf("invalid %s", key), err)
	}
	return id, nil
}

// query returns a query argument, or "" when it is absent.
func query(ctx *fasthttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func requireStringQuery(ctx *fasthttp.RequestCtx, key string) (string, error) {
	raw := query(ctx, key)
	if raw == "" {
		return "", perrors.NewErrInvalidRequest(fmt.Sprintf("%s parameter is required", key), nil)
	}

	return raw, nil
}

// intQuery parses an optional integer query argument. Absent means def.
func intQuery(ctx *fasthttp.RequestCtx, key string, def int) (int, error) {
	raw := query(ctx, key)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, perrors.NewErrInvalidRequest(fmt.Sprintf("invalid %s %q", key, raw), err)
	}
	return n, nil
}

// pageQuery reads limit and offset, with def as the endpoint's default limit.
func pageQuery(ctx *fasthttp.RequestCtx, def int) (listquery.Page, error) {
	page, err := listquery.ParsePage(query(ctx, "limit"), query(ctx, "offset"), def)
	if err != nil {
		return listquery.Page{}, perrors.NewErrInvalidRequest(err.Error(), err)
	}
	return page, nil
}

// Handler is a request handler that runs after the gate has admitted the caller.
// The principal is nil for scheduler calls authenticated by the cron secret.
type Handler func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal)

// Gate resolves the caller and checks capabilities before a handler runs.
type Gate struct {
	auth     *authenticator.Authenticator
	resolver *authenticator.Resolver
}

func NewGate(auth *authenticator.Authenticator, resolver *authenticator.Resolver) *Gate {
	return &Gate{auth: auth, resolver: resolver}
}

// principal resolves the caller and writes 401 when there is none.
func (g *Gate) principal(ctx *fasthttp.RequestCtx, stdCtx context.Context) (*access.Principal, bool) {
	p, err := g.resolver.Resolve(stdCtx, ctx)
	if err != nil {
		writeError(ctx, stdCtx, "Failed to resolve session", perrors.NewErrInternalServerError("failed to resolve session", err))
		return nil, false
	}
	if p == nil {
		writeError(ctx, stdCtx, "unauthorized", perrors.New(perrors.ErrCodeUnauthorized, "unauthorized", nil))
		return nil, false
	}
	return p, true
}

// Session admits any signed-in user.
func (g *Gate) Session(h Handler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		p, ok := g.principal(ctx, stdCtx)
		if !ok {
			return
		}
		h(ctx, stdCtx, p)
	}
}

// Require admits signed-in users allowed capability on app. It answers 401
// without a session and 403 when the policy denies.
func (g *Gate) Require(app access.App, capability access.Capability, h Handler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		p, ok := g.principal(ctx, stdCtx)
		if !ok {
			return
		}
		if !access.Allow(p, app, capability) {
			forbid(ctx, stdCtx, p, app, capability)
			return
		}
		h(ctx, stdCtx, p)
	}
}

// CronOrRequire also admits the scheduler presenting CRON_SECRET as a bearer
// token. Such calls run with a nil principal.
func (g *Gate) CronOrRequire(app access.App, capability access.Capability, h Handler) fasthttp.RequestHandler {
	session := g.Require(app, capability, h)
	return func(ctx *fasthttp.RequestCtx) {
		if g.auth.VerifyCronSecret(authenticator.BearerToken(ctx)) {
			h(ctx, requestContext(ctx), nil)
			return
		}
		session(ctx)
	}
}

func forbid(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal, app access.App, capability access.Capability) {
	writeError(ctx, stdCtx, "forbidden", perrors.New(perrors.ErrCodeForbidden, "forbidden", nil, map[string]interface{}{
		"user_id":    p.ID.String(),
		"app":        string(app),
		"capability": string(capability),
	}))
}
