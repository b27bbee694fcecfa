package authenticator

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
)

// PrincipalLoader reads the current role and permissions of a user.
type PrincipalLoader interface {
	Principal(ctx context.Context, id uuid.UUID) (*access.Principal, error)
}

// Resolver turns a request into a principal, or none.
type Resolver struct {
	auth  *Authenticator
	users PrincipalLoader
}

func NewResolver(auth *Authenticator, users PrincipalLoader) *Resolver {
	return &Resolver{auth: auth, users: users}
}

// Resolve returns nil, nil when the request carries no usable session. An error
// means the principal store could not be read.
func (r *Resolver) Resolve(ctx context.Context, reqCtx *fasthttp.RequestCtx) (*access.Principal, error) {
	raw := string(reqCtx.Request.Header.Cookie(SessionCookie))
	if raw == "" {
		raw = BearerToken(reqCtx)
	}
	if raw == "" {
		return nil, nil
	}

	id, err := r.auth.ParseSession(raw)
	if err != nil {
		return nil, nil
	}

	return r.users.Principal(ctx, id)
}

// BearerToken returns the token of an Authorization: Bearer header.
func BearerToken(reqCtx *fasthttp.RequestCtx) string {
	h := string(reqCtx.Request.Header.Peek("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
