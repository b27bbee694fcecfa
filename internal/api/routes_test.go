package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"testing"

	json "github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/api/authenticator"
	"github.com/curaious/bizops/internal/background"
	"github.com/curaious/bizops/internal/config"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/user"
	"github.com/curaious/bizops/internal/testutil"
)

const cronSecret = "cron-secret"

type harness struct {
	t       *testing.T
	handler fasthttp.RequestHandler
	svc     *services.Services
	auth    *authenticator.Authenticator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conf := &config.Config{
		SESSION_SECRET:    "session-secret",
		SESSION_TTL_HOURS: 1,
		CRON_SECRET:       cronSecret,
		PUBLIC_URL:        "http://localhost:3000",
		ALLOWED_HEADERS:   "Content-Type,Authorization",
		UPLOAD_DIR:        t.TempDir(),
		UPLOAD_BASE_URL:   "/uploads",
	}

	ctx := context.Background()
	auth, err := authenticator.New(ctx, conf)
	require.NoError(t, err)
	svc := services.Build(ctx, testutil.NewDB(t), conf, background.Inline{})

	return &harness{t: t, handler: NewHandler(svc, auth, conf), svc: svc, auth: auth}
}

// session provisions a user and returns a session token for them.
func (h *harness) session(role access.Role, perms access.Permissions) (string, *user.User) {
	h.t.Helper()
	u, err := h.svc.User.Create(context.Background(), &user.CreateUserRequest{
		Email:       uuid.NewString()[:8] + "@example.com",
		Name:        string(role),
		Role:        role,
		Permissions: perms,
	})
	require.NoError(h.t, err)

	token, _, err := h.auth.IssueSession(u.ID, u.Email)
	require.NoError(h.t, err)
	return token, u
}

type call struct {
	method      string
	uri         string
	session     string
	bearer      string
	body        []byte
	contentType string
}

func (h *harness) do(c call) *fasthttp.RequestCtx {
	h.t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(c.method)
	req.SetRequestURI(c.uri)
	if c.session != "" {
		req.Header.SetCookie(authenticator.SessionCookie, c.session)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.body != nil {
		req.SetBody(c.body)
		ct := c.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.SetContentType(ct)
	}

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	h.handler(ctx)
	return ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out), string(ctx.Response.Body()))
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	ctx := h.do(call{method: "GET", uri: "/api/health"})
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "OK", string(ctx.Response.Body()))
}

func TestGate_UnauthenticatedThenForbidden(t *testing.T) {
	h := newHarness(t)
	employee, _ := h.session(access.RoleEmployee, nil)
	flagged, _ := h.session(access.RoleEmployee, access.Permissions{access.AppPayables: {"can_view_payables": true}})

	ctx := h.do(call{method: "GET", uri: "/api/ap/summary"})
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"unauthorized"}`, string(ctx.Response.Body()))

	ctx = h.do(call{method: "GET", uri: "/api/ap/summary", session: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = h.do(call{method: "GET", uri: "/api/ap/summary", session: employee})
	assert.Equal(t, http.StatusForbidden, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"forbidden"}`, string(ctx.Response.Body()))

	ctx = h.do(call{method: "GET", uri: "/api/ap/summary", session: flagged})
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())

	// Unauthenticated writes are rejected before the body is looked at.
	ctx = h.do(call{method: "POST", uri: "/api/ap/contractors", body: []byte(`{`)})
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestGate_DeactivatedUserLosesSession(t *testing.T) {
	h := newHarness(t)
	token, u := h.session(access.RoleManager, nil)
	owner, _ := h.session(access.RoleOwner, nil)

	ctx := h.do(call{method: "GET", uri: "/api/auth/me", session: token})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())

	ctx = h.do(call{method: "PATCH", uri: "/api/admin/users/" + u.ID.String(), session: owner, body: []byte(`{"is_active":false}`)})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	ctx = h.do(call{method: "GET", uri: "/api/auth/me", session: token})
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestPayables_ListEnvelopeAndErrors(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.session(access.RoleOwner, nil)

	ctx := h.do(call{method: "POST", uri: "/api/ap/contractors", session: owner, body: []byte(`{"name":"Ace Plumbing","trade":"plumbing"}`)})
	require.Equal(t, http.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	created := decode(t, ctx)

	ctx = h.do(call{method: "GET", uri: "/api/ap/contractors?limit=500&offset=-3", session: owner})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	list := decode(t, ctx)
	assert.Len(t, list["contractors"], 1)
	assert.EqualValues(t, 1, list["total"])
	assert.EqualValues(t, 100, list["limit"])
	assert.EqualValues(t, 0, list["offset"])

	ctx = h.do(call{method: "GET", uri: "/api/ap/contractors/" + created["id"].(string), session: owner})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	detail := decode(t, ctx)
	assert.Equal(t, created["id"], detail["id"])
	assert.Contains(t, detail, "rates")
	assert.Contains(t, detail, "jobs")

	cases := []struct {
		name   string
		call   call
		status int
		body   string
	}{
		{"unknown contractor", call{method: "GET", uri: "/api/ap/contractors/" + uuid.NewString()}, http.StatusNotFound, `{"error":"contractor not found"}`},
		{"malformed id", call{method: "GET", uri: "/api/ap/contractors/nope"}, http.StatusBadRequest, `{"error":"invalid id"}`},
		{"bad limit", call{method: "GET", uri: "/api/ap/contractors?limit=ten"}, http.StatusBadRequest, `{"error":"invalid limit \"ten\""}`},
		{"bad active filter", call{method: "GET", uri: "/api/ap/contractors?active=maybe"}, http.StatusBadRequest, `{"error":"invalid boolean \"maybe\" for is_active"}`},
		{"missing name", call{method: "POST", uri: "/api/ap/contractors", body: []byte(`{"trade":"hvac"}`)}, http.StatusBadRequest, `{"error":"name is required"}`},
		{"broken json", call{method: "POST", uri: "/api/ap/contractors", body: []byte(`{"name":`)}, http.StatusBadRequest, `{"error":"invalid request body"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.call.session = owner
			ctx := h.do(tc.call)
			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.JSONEq(t, tc.body, string(ctx.Response.Body()))
		})
	}
}

func TestCronSecret(t *testing.T) {
	h := newHarness(t)
	manager, _ := h.session(access.RoleManager, nil)
	employee, _ := h.session(access.RoleEmployee, nil)

	cases := []struct {
		name   string
		call   call
		status int
	}{
		// ServiceTitan is not configured here, so reaching the service means 502.
		{"cron secret", call{bearer: cronSecret}, http.StatusBadGateway},
		{"wrong secret", call{bearer: "guess"}, http.StatusUnauthorized},
		{"manager session", call{session: manager}, http.StatusBadGateway},
		{"employee session", call{session: employee}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.call.method, tc.call.uri = "POST", "/api/ar/sync?hours_back=24"
			ctx := h.do(tc.call)
			assert.Equal(t, tc.status, ctx.Response.StatusCode(), string(ctx.Response.Body()))
		})
	}

	ctx := h.do(call{method: "POST", uri: "/api/ar/payments/backfill?limit=abc", bearer: cronSecret})
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do(call{method: "GET", uri: "/api/ar/summary", bearer: cronSecret})
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode(), "the cron secret only opens the scheduler endpoints")
}

func TestActivity_RequiresViewOfOwningApp(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.session(access.RoleOwner, nil)
	employee, _ := h.session(access.RoleEmployee, nil)

	ctx := h.do(call{method: "POST", uri: "/api/jobs/trackers", session: employee, body: []byte(`{"customer_name":"Jordan Lee","job_number":"J-1042"}`)})
	require.Equal(t, http.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	ctx = h.do(call{method: "GET", uri: "/api/activity?resource_type=tracker", session: employee})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.EqualValues(t, 1, decode(t, ctx)["total"])

	ctx = h.do(call{method: "GET", uri: "/api/activity?resource_type=contractor", session: employee})
	assert.Equal(t, http.StatusForbidden, ctx.Response.StatusCode())

	ctx = h.do(call{method: "GET", uri: "/api/activity", session: owner})
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do(call{method: "GET", uri: "/api/activity?resource_type=spaceship", session: owner})
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
}

func TestMedia_Upload(t *testing.T) {
	h := newHarness(t)
	manager, _ := h.session(access.RoleManager, nil)
	employee, _ := h.session(access.RoleEmployee, nil)

	form := func(name string, content []byte) ([]byte, string) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes(), w.FormDataContentType()
	}

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), make([]byte, 64)...)
	body, ct := form("truck.png", png)

	ctx := h.do(call{method: "POST", uri: "/api/marketing/media", session: employee, body: body, contentType: ct})
	assert.Equal(t, http.StatusForbidden, ctx.Response.StatusCode())

	ctx = h.do(call{method: "POST", uri: "/api/marketing/media", session: manager, body: body, contentType: ct})
	require.Equal(t, http.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	asset := decode(t, ctx)
	assert.Equal(t, "image", asset["category"])
	assert.Equal(t, "image/png", asset["mime_type"])

	body, ct = form("notes.png", []byte("plain text pretending to be a picture"))
	ctx = h.do(call{method: "POST", uri: "/api/marketing/media", session: manager, body: body, contentType: ct})
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do(call{method: "POST", uri: "/api/marketing/media", session: manager, body: []byte(`{}`)})
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do(call{method: "GET", uri: "/api/marketing/media", session: manager})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.EqualValues(t, 1, decode(t, ctx)["total"])
}

func TestPasswordLogin(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.User.Create(context.Background(), &user.CreateUserRequest{
		Email:    "dispatch@example.com",
		Name:     "Dispatch",
		Role:     access.RoleManager,
		Password: "correct horse",
	})
	require.NoError(t, err)

	ctx := h.do(call{method: "POST", uri: "/api/auth/login", body: []byte(`{"email":"dispatch@example.com","password":"wrong"}`)})
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"invalid credentials"}`, string(ctx.Response.Body()))

	ctx = h.do(call{method: "POST", uri: "/api/auth/login", body: []byte(`{"email":"nobody@example.com","password":"x"}`)})
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = h.do(call{method: "POST", uri: "/api/auth/login", body: []byte(`{"email":"Dispatch@Example.com","password":"correct horse"}`)})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	var cookie fasthttp.Cookie
	cookie.SetKey(authenticator.SessionCookie)
	require.True(t, ctx.Response.Header.Cookie(&cookie))
	assert.True(t, cookie.HTTPOnly())

	ctx = h.do(call{method: "GET", uri: "/api/auth/me", session: string(cookie.Value())})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "manager", decode(t, ctx)["role"])

	ctx = h.do(call{method: "GET", uri: "/api/auth/google/login"})
	assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())
}

func TestAdmin_SelfDeactivationRefused(t *testing.T) {
	h := newHarness(t)
	owner, me := h.session(access.RoleOwner, nil)

	ctx := h.do(call{method: "PATCH", uri: "/api/admin/users/" + me.ID.String(), session: owner, body: []byte(`{"is_active":false}`)})
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = h.do(call{method: "POST", uri: "/api/admin/users", session: owner, body: []byte(`{"email":"` + me.Email + `"}`)})
	assert.Equal(t, http.StatusConflict, ctx.Response.StatusCode())

	ctx = h.do(call{method: "GET", uri: "/api/admin/users?role=owner", session: owner})
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.EqualValues(t, 1, decode(t, ctx)["total"])

	ctx = h.do(call{method: "GET", uri: "/api/admin/users?active=maybe", session: owner})
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode(), string(ctx.Response.Body()))
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	var req fasthttp.Request
	req.Header.SetMethod(fasthttp.MethodOptions)
	req.SetRequestURI("/api/ap/summary")
	req.Header.Set("Origin", "http://localhost:3000")

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	h.handler(ctx)

	assert.Equal(t, http.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "http://localhost:3000", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
	assert.Equal(t, "true", string(ctx.Response.Header.Peek("Access-Control-Allow-Credentials")))
}
