package response

import (
	"context"
	"errors"
	"net/http"
	"testing"

	json "github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/perrors"
)

func TestWrite_Success(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	NewResponse(context.Background(), "ok", map[string]int{"count": 3}).Write(ctx)

	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
	assert.JSONEq(t, `{"count":3}`, string(ctx.Response.Body()))
}

func TestWrite_ErrorShape(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"forbidden", perrors.New(perrors.ErrCodeForbidden, "forbidden", nil), http.StatusForbidden, `{"error":"forbidden"}`},
		{"bad gateway", perrors.NewErrBadGateway("ServiceTitan request failed", errors.New("status 503")), http.StatusBadGateway, `{"error":"ServiceTitan request failed: status 503"}`},
		{"plain error", errors.New("disk full"), http.StatusInternalServerError, `{"error":"Failed to save: disk full"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := &fasthttp.RequestCtx{}
			NewResponse[any](context.Background(), "Failed to save", nil).WithError(tc.err).Write(ctx)

			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.JSONEq(t, tc.body, string(ctx.Response.Body()))
		})
	}
}

func TestPage_MarshalJSON(t *testing.T) {
	body, err := json.Marshal(Page[string]{Key: "invoices", Total: 120, Limit: 50, Offset: 100})
	require.NoError(t, err)
	assert.JSONEq(t, `{"invoices":[],"total":120,"limit":50,"offset":100}`, string(body))

	ctx := &fasthttp.RequestCtx{}
	NewResponse(context.Background(), "ok", Page[int]{Key: "values", Items: []int{1, 2}, Total: 2, Limit: 20}).
		WithStatus(http.StatusOK).
		Write(ctx)
	assert.JSONEq(t, `{"values":[1,2],"total":2,"limit":20,"offset":0}`, string(ctx.Response.Body()))
}
