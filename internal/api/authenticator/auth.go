package authenticator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/curaious/bizops/internal/config"
)

const (
	SessionCookie = "bizops_session"
	googleIssuer  = "https://accounts.google.com"
	sessionIssuer = "bizops"
)

var (
	ErrGoogleDisabled   = errors.New("google login is not configured")
	ErrDomainNotAllowed = errors.New("email domain is not allowed")
)

type Authenticator struct {
	*oidc.Provider
	oauth2.Config

	stateSecret   []byte
	sessionSecret []byte
	sessionTTL    time.Duration
	allowedDomain string
	cronSecret    string
}

// New builds the authenticator. Google discovery is only attempted when a client
// id is configured; password login and sessions work without it.
func New(ctx context.Context, conf *config.Config) (*Authenticator, error) {
	if conf.SESSION_SECRET == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}

	stateSecret := conf.STATE_SECRET
	if stateSecret == "" {
		stateSecret = conf.SESSION_SECRET
	}

	a := &Authenticator{
		stateSecret:   []byte(stateSecret),
		sessionSecret: []byte(conf.SESSION_SECRET),
		sessionTTL:    time.Duration(conf.SESSION_TTL_HOURS) * time.Hour,
		allowedDomain: strings.ToLower(strings.TrimPrefix(conf.ALLOWED_EMAIL_DOMAIN, "@")),
		cronSecret:    conf.CRON_SECRET,
	}

	if conf.GOOGLE_CLIENT_ID == "" {
		return a, nil
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover google oidc provider: %w", err)
	}

	a.Provider = provider
	a.Config = oauth2.Config{
		ClientID:     conf.GOOGLE_CLIENT_ID,
		ClientSecret: conf.GOOGLE_CLIENT_SECRET,
		RedirectURL:  conf.GOOGLE_CALLBACK_URL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return a, nil
}

func (a *Authenticator) GoogleEnabled() bool {
	return a.Provider != nil
}

// VerifyIDToken verifies that an *oauth2.Token is a valid *oidc.IDToken.
func (a *Authenticator) VerifyIDToken(ctx context.Context, token *oauth2.Token) (*oidc.IDToken, error) {
	if !a.GoogleEnabled() {
		return nil, ErrGoogleDisabled
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token field in oauth2 token")
	}

	oidcConfig := &oidc.Config{
		ClientID: a.ClientID,
	}

	return a.Verifier(oidcConfig).Verify(ctx, rawIDToken)
}

// GoogleProfile is the subset of ID token claims used for login.
type GoogleProfile struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	HostedDomain  string `json:"hd"`
}

// CheckProfile enforces a verified email within the allowed domain.
func (a *Authenticator) CheckProfile(p GoogleProfile) error {
	if p.Email == "" || !p.EmailVerified {
		return errors.New("google account email is not verified")
	}
	if a.allowedDomain == "" {
		return nil
	}

	email := strings.ToLower(p.Email)
	if !strings.HasSuffix(email, "@"+a.allowedDomain) {
		return ErrDomainNotAllowed
	}
	if p.HostedDomain != "" && !strings.EqualFold(p.HostedDomain, a.allowedDomain) {
		return ErrDomainNotAllowed
	}
	return nil
}

type OAuthState struct {
	CSRF      string `json:"csrf"`
	Redirect  string `json:"redirect"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (a *Authenticator) GetSignedState(state OAuthState) (string, error) {
	payload, err := sonic.Marshal(state)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, a.stateSecret)
	mac.Write(payload)
	sig := mac.Sum(nil)

	combined := append(payload, sig...)
	return base64.RawURLEncoding.EncodeToString(combined), nil
}

func (a *Authenticator) VerifySignedState(encodedState string) (*OAuthState, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encodedState)
	if err != nil {
		return nil, errors.New("invalid base64")
	}

	if len(raw) < sha256.Size {
		return nil, errors.New("state too short")
	}

	payload := raw[:len(raw)-sha256.Size]
	sig := raw[len(raw)-sha256.Size:]

	mac := hmac.New(sha256.New, a.stateSecret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, errors.New("invalid state signature")
	}

	var state OAuthState
	if err := sonic.Unmarshal(payload, &state); err != nil {
		return nil, errors.New("invalid state payload")
	}

	if time.Now().Unix() > state.ExpiresAt {
		return nil, errors.New("state expired")
	}

	return &state, nil
}

// SessionClaims is carried in the session cookie. Role and permissions are not;
// they are re-read on every request.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueSession signs a session token for the user.
func (a *Authenticator) IssueSession(userID uuid.UUID, email string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(a.sessionTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})

	signed, err := token.SignedString(a.sessionSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expires, nil
}

// ParseSession validates a session token and returns the user id it names.
func (a *Authenticator) ParseSession(raw string) (uuid.UUID, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.sessionSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, err
	}

	return uuid.Parse(claims.Subject)
}

// VerifyCronSecret compares a presented bearer token with CRON_SECRET. An unset
// secret never matches.
func (a *Authenticator) VerifyCronSecret(token string) bool {
	if a.cronSecret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.cronSecret)) == 1
}
