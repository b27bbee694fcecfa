package authenticator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/config"
)

func newTestAuth(t *testing.T) *Authenticator {
	t.Helper()
	a, err := New(context.Background(), &config.Config{
		SESSION_SECRET:       "session-secret",
		SESSION_TTL_HOURS:    1,
		STATE_SECRET:         "state-secret",
		CRON_SECRET:          "cron-secret",
		ALLOWED_EMAIL_DOMAIN: "example.com",
	})
	require.NoError(t, err)
	return a
}

func TestNew_RequiresSessionSecret(t *testing.T) {
	_, err := New(context.Background(), &config.Config{})
	assert.Error(t, err)

	a := newTestAuth(t)
	assert.False(t, a.GoogleEnabled())
	_, err = a.VerifyIDToken(context.Background(), nil)
	assert.ErrorIs(t, err, ErrGoogleDisabled)
}

func TestSession_RoundTrip(t *testing.T) {
	a := newTestAuth(t)
	id := uuid.New()

	token, expires, err := a.IssueSession(id, "tech@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	got, err := a.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestSession_Rejects(t *testing.T) {
	a := newTestAuth(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	raw, err := expired.SignedString([]byte("session-secret"))
	require.NoError(t, err)
	_, err = a.ParseSession(raw)
	assert.Error(t, err)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err = other.SignedString([]byte("someone-elses-secret"))
	require.NoError(t, err)
	_, err = a.ParseSession(raw)
	assert.Error(t, err)

	_, err = a.ParseSession("not-a-jwt")
	assert.Error(t, err)
}

func TestSignedState(t *testing.T) {
	a := newTestAuth(t)

	encoded, err := a.GetSignedState(OAuthState{CSRF: "abc", Redirect: "/ap", ExpiresAt: time.Now().Add(time.Minute).Unix()})
	require.NoError(t, err)

	state, err := a.VerifySignedState(encoded)
	require.NoError(t, err)
	assert.Equal(t, "/ap", state.Redirect)

	tampered := []byte(encoded)
	tampered[3] ^= 0x01
	_, err = a.VerifySignedState(string(tampered))
	assert.Error(t, err)

	stale, err := a.GetSignedState(OAuthState{ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	require.NoError(t, err)
	_, err = a.VerifySignedState(stale)
	assert.ErrorContains(t, err, "expired")
}

func TestVerifyCronSecret(t *testing.T) {
	a := newTestAuth(t)
	assert.True(t, a.VerifyCronSecret("cron-secret"))
	assert.False(t, a.VerifyCronSecret("cron-secret "))
	assert.False(t, a.VerifyCronSecret(""))

	unset, err := New(context.Background(), &config.Config{SESSION_SECRET: "x"})
	require.NoError(t, err)
	assert.False(t, unset.VerifyCronSecret(""))
}

func TestCheckProfile(t *testing.T) {
	a := newTestAuth(t)
	assert.NoError(t, a.CheckProfile(GoogleProfile{Email: "Tech@Example.com", EmailVerified: true, HostedDomain: "example.com"}))
	assert.ErrorIs(t, a.CheckProfile(GoogleProfile{Email: "tech@gmail.com", EmailVerified: true}), ErrDomainNotAllowed)
	assert.Error(t, a.CheckProfile(GoogleProfile{Email: "tech@example.com"}))
}

type fakeLoader struct {
	principals map[uuid.UUID]*access.Principal
	err        error
}

func (f *fakeLoader) Principal(_ context.Context, id uuid.UUID) (*access.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.principals[id], nil
}

func TestResolver(t *testing.T) {
	a := newTestAuth(t)
	id := uuid.New()
	loader := &fakeLoader{principals: map[uuid.UUID]*access.Principal{id: {ID: id, Role: access.RoleManager}}}
	r := NewResolver(a, loader)
	token, _, err := a.IssueSession(id, "tech@example.com")
	require.NoError(t, err)

	t.Run("cookie", func(t *testing.T) {
		reqCtx := &fasthttp.RequestCtx{}
		reqCtx.Request.Header.SetCookie(SessionCookie, token)
		p, err := r.Resolve(context.Background(), reqCtx)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, access.RoleManager, p.Role)
	})

	t.Run("bearer", func(t *testing.T) {
		reqCtx := &fasthttp.RequestCtx{}
		reqCtx.Request.Header.Set("Authorization", "Bearer "+token)
		p, err := r.Resolve(context.Background(), reqCtx)
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("missing or garbage", func(t *testing.T) {
		p, err := r.Resolve(context.Background(), &fasthttp.RequestCtx{})
		require.NoError(t, err)
		assert.Nil(t, p)

		reqCtx := &fasthttp.RequestCtx{}
		reqCtx.Request.Header.SetCookie(SessionCookie, "garbage")
		p, err = r.Resolve(context.Background(), reqCtx)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("unknown user", func(t *testing.T) {
		other, _, err := a.IssueSession(uuid.New(), "gone@example.com")
		require.NoError(t, err)
		reqCtx := &fasthttp.RequestCtx{}
		reqCtx.Request.Header.SetCookie(SessionCookie, other)
		p, err := r.Resolve(context.Background(), reqCtx)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("store failure", func(t *testing.T) {
		broken := NewResolver(a, &fakeLoader{err: errors.New("db down")})
		reqCtx := &fasthttp.RequestCtx{}
		reqCtx.Request.Header.SetCookie(SessionCookie, token)
		_, err := broken.Resolve(context.Background(), reqCtx)
		assert.Error(t, err)
	})
}
