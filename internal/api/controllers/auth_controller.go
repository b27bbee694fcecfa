package controllers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/api/authenticator"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/services/user"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User      *access.Principal `json:"user"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// AuthOptions carries the public URL used for redirects and cookie security.
type AuthOptions struct {
	PublicURL string
}

func RegisterAuthRoutes(r *router.Router, svc *services.Services, auth *authenticator.Authenticator, gate *Gate, opts AuthOptions) {
	secure := strings.HasPrefix(opts.PublicURL, "https://")

	setSession := func(ctx *fasthttp.RequestCtx, u *user.User) (time.Time, error) {
		token, expires, err := auth.IssueSession(u.ID, u.Email)
		if err != nil {
			return time.Time{}, err
		}

		var cookie fasthttp.Cookie
		cookie.SetKey(authenticator.SessionCookie)
		cookie.SetValue(token)
		cookie.SetPath("/")
		cookie.SetHTTPOnly(true)
		cookie.SetSecure(secure)
		cookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
		cookie.SetExpire(expires)
		ctx.Response.Header.SetCookie(&cookie)
		return expires, nil
	}

	r.GET("/api/auth/google/login", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		if !auth.GoogleEnabled() {
			writeError(ctx, stdCtx, "Google login is not configured", perrors.NewErrNotFound(authenticator.ErrGoogleDisabled.Error(), nil))
			return
		}

		csrf := make([]byte, 16)
		if _, err := rand.Read(csrf); err != nil {
			writeError(ctx, stdCtx, "Failed to create signed state", err)
			return
		}

		now := time.Now()
		state := authenticator.OAuthState{
			CSRF:      base64.RawURLEncoding.EncodeToString(csrf),
			Redirect:  safeRedirect(query(ctx, "redirect"), opts.PublicURL),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(5 * time.Minute).Unix(),
		}

		encodedState, err := auth.GetSignedState(state)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to create signed state", err)
			return
		}

		ctx.Redirect(auth.AuthCodeURL(encodedState), fasthttp.StatusTemporaryRedirect)
	})

	r.GET("/api/auth/google/callback", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		if !auth.GoogleEnabled() {
			writeError(ctx, stdCtx, "Google login is not configured", perrors.NewErrNotFound(authenticator.ErrGoogleDisabled.Error(), nil))
			return
		}

		encodedState := query(ctx, "state")
		code := query(ctx, "code")
		if encodedState == "" || code == "" {
			writeError(ctx, stdCtx, "missing parameters", perrors.NewErrInvalidRequest("state and code are required", nil))
			return
		}

		state, err := auth.VerifySignedState(encodedState)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to decode state", perrors.NewErrInvalidRequest("invalid state", err))
			return
		}

		token, err := auth.Exchange(stdCtx, code)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to exchange token", perrors.New(perrors.ErrCodeUnauthorized, "failed to exchange token", err))
			return
		}

		idToken, err := auth.VerifyIDToken(stdCtx, token)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to verify ID token", perrors.New(perrors.ErrCodeUnauthorized, "failed to verify id token", err))
			return
		}

		var profile authenticator.GoogleProfile
		if err := idToken.Claims(&profile); err != nil {
			writeError(ctx, stdCtx, "Failed to get claims", err)
			return
		}
		if err := auth.CheckProfile(profile); err != nil {
			writeError(ctx, stdCtx, "Login refused", perrors.New(perrors.ErrCodeForbidden, err.Error(), err))
			return
		}

		u, err := svc.User.LoginWithGoogle(stdCtx, profile.Email, profile.Name)
		if err != nil {
			if errors.Is(err, user.ErrUserInactive) {
				writeError(ctx, stdCtx, "Login refused", perrors.New(perrors.ErrCodeForbidden, err.Error(), err))
				return
			}
			writeServiceError(ctx, stdCtx, "Failed to sign in", err)
			return
		}

		if _, err := setSession(ctx, u); err != nil {
			writeError(ctx, stdCtx, "Failed to issue session", err)
			return
		}

		ctx.Redirect(state.Redirect, fasthttp.StatusFound)
	})

	// Password login for users provisioned with a password.
	r.POST("/api/auth/login", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		var req LoginRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", err)
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(ctx, stdCtx, "Email and password are required", perrors.NewErrInvalidRequest("email and password are required", nil))
			return
		}

		u, err := svc.User.Authenticate(stdCtx, strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
		if err != nil {
			switch {
			case errors.Is(err, user.ErrUserNotFound), errors.Is(err, user.ErrInvalidPassword), errors.Is(err, user.ErrPasswordDisabled):
				writeError(ctx, stdCtx, "Invalid credentials", perrors.New(perrors.ErrCodeUnauthorized, "invalid credentials", err))
			case errors.Is(err, user.ErrUserInactive):
				writeError(ctx, stdCtx, "Login refused", perrors.New(perrors.ErrCodeForbidden, err.Error(), err))
			default:
				writeServiceError(ctx, stdCtx, "Failed to sign in", err)
			}
			return
		}

		p, err := u.Principal()
		if err != nil {
			writeError(ctx, stdCtx, "Failed to sign in", err)
			return
		}

		expires, err := setSession(ctx, u)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to issue session", err)
			return
		}

		writeOK(ctx, stdCtx, "success", LoginResponse{User: p, ExpiresAt: expires})
	})

	r.GET("/api/auth/me", gate.Session(func(ctx *fasthttp.RequestCtx, stdCtx context.Context, p *access.Principal) {
		writeOK(ctx, stdCtx, "success", p)
	}))

	r.POST("/api/auth/logout", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		var cookie fasthttp.Cookie
		cookie.SetKey(authenticator.SessionCookie)
		cookie.SetValue("")
		cookie.SetPath("/")
		cookie.SetHTTPOnly(true)
		cookie.SetSecure(secure)
		cookie.SetExpire(fasthttp.CookieExpireDelete)
		ctx.Response.Header.SetCookie(&cookie)

		writeOK(ctx, stdCtx, "success", map[string]any{
			"message": "Logged out successfully",
		})
	})
}

// safeRedirect keeps post-login redirects on this site: relative paths and
// absolute URLs under publicURL pass, anything else falls back to publicURL.
func safeRedirect(target, publicURL string) string {
	switch {
	case target == "":
		return publicURL
	case strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//"):
		return strings.TrimSuffix(publicURL, "/") + target
	case publicURL != "" && (target == publicURL || strings.HasPrefix(target, strings.TrimSuffix(publicURL, "/")+"/")):
		return target
	default:
		return publicURL
	}
}
