package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/curaious/bizops/internal/api/authenticator"
	"github.com/curaious/bizops/internal/api/controllers"
	"github.com/curaious/bizops/internal/config"
	"github.com/curaious/bizops/internal/services"
)

var tracePropagator = propagation.TraceContext{}

// NewHandler builds the routed handler with its middlewares. Identity is
// resolved per route by the gate, so the middleware only handles CORS, tracing
// and request logs.
func NewHandler(svc *services.Services, auth *authenticator.Authenticator, conf *config.Config) fasthttp.RequestHandler {
	r := router.New()

	r.GET("/api/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		_, _ = ctx.Write([]byte("OK"))
	})

	if svc.UploadDir != "" {
		r.ServeFiles("/uploads/{filepath:*}", svc.UploadDir)
	}

	gate := controllers.NewGate(auth, authenticator.NewResolver(auth, svc.User))

	controllers.RegisterAuthRoutes(r, svc, auth, gate, controllers.AuthOptions{PublicURL: conf.PUBLIC_URL})
	controllers.RegisterAdminRoutes(r, svc, gate)
	controllers.RegisterPayablesRoutes(r, svc, gate)
	controllers.RegisterReceivablesRoutes(r, svc, gate)
	controllers.RegisterTrackerRoutes(r, svc, gate)
	controllers.RegisterHuddleRoutes(r, svc, gate)
	controllers.RegisterMediaRoutes(r, svc, gate)
	controllers.RegisterActivityRoutes(r, svc, gate)

	return withMiddlewares(r.Handler, conf.ALLOWED_HEADERS)
}

func withMiddlewares(next fasthttp.RequestHandler, allowedHeaders string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		applyCORS(ctx, allowedHeaders)
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		start := time.Now()
		requestURI := string(ctx.RequestURI())
		slog.Info("Started processing", slog.String("method", string(ctx.Method())), slog.String("request_uri", requestURI))

		h := http.Header{}
		ctx.Request.Header.VisitAll(func(k, v []byte) {
			h[string(k)] = []string{string(v)}
		})
		// fasthttp recycles ctx after the handler returns, so the trace context
		// must not hang off it.
		traceCtx := tracePropagator.Extract(context.Background(), propagation.HeaderCarrier(h))
		ctx.SetUserValue(controllers.TraceContextKey, traceCtx)

		next(ctx)

		slog.Info("Finished processing",
			slog.String("method", string(ctx.Method())),
			slog.String("request_uri", requestURI),
			slog.Int("status", ctx.Response.StatusCode()),
			slog.Duration("duration", time.Since(start)))
	}
}

func applyCORS(ctx *fasthttp.RequestCtx, allowedHeaders string) {
	headers := &ctx.Response.Header
	headers.Set("Access-Control-Allow-Origin", string(ctx.Request.Header.Peek("Origin")))
	headers.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS,PATCH")
	headers.Set("Access-Control-Allow-Headers", allowedHeaders)
	headers.Set("Access-Control-Allow-Credentials", "true")
}
