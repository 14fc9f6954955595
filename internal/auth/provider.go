// Package auth manages the terminal's API credentials: login, token
// refresh, and expiry introspection. The sync engine subscribes to refresh
// notifications to leave its AuthFailure state.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/tilldesk/possync/internal/errors"
)

// Credentials is the token pair issued by the auth endpoints.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Provider holds the current credentials and refreshes them on demand.
type Provider struct {
	http *resty.Client

	mu        sync.RWMutex
	creds     Credentials
	expiresAt time.Time
	listeners []func()
}

// NewProvider creates a Provider against the API base URL.
func NewProvider(baseURL string, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Provider{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
	}
}

// Token returns the current access token ("" when logged out). Implements
// remote.TokenSource.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creds.AccessToken
}

// ExpiresAt returns the access token's expiry (zero when unknown).
func (p *Provider) ExpiresAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.expiresAt
}

// Expired reports whether the access token is past its exp claim. A token
// without an exp claim never reports expired; the server remains the
// authority and will answer 401 if it disagrees.
func (p *Provider) Expired(now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.expiresAt.IsZero() && now.After(p.expiresAt)
}

// OnRefresh registers a callback invoked after every successful login or
// refresh. Callbacks run on the calling goroutine.
func (p *Provider) OnRefresh(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// SetCredentials installs a token pair (used at startup when credentials
// were persisted by the host) and notifies refresh listeners.
func (p *Provider) SetCredentials(creds Credentials) {
	p.install(creds)
	p.notify()
}

// Login authenticates with username and password.
func (p *Provider) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return apperrors.Validation("username and password are required")
	}

	var creds Credentials
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&creds).
		Post("/v1/auth/login")
	if err != nil {
		return apperrors.Network("login request failed", err)
	}
	if resp.IsError() {
		return authError("login", resp)
	}

	p.install(creds)
	p.notify()
	slog.Info("authenticated", "expires_at", p.ExpiresAt())
	return nil
}

// Refresh exchanges the refresh token for a new pair. On success the sync
// engine's AuthFailure state is lifted via the refresh listeners.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.RLock()
	refreshToken := p.creds.RefreshToken
	p.mu.RUnlock()

	if refreshToken == "" {
		return apperrors.Auth("no refresh token; login required", nil)
	}

	var creds Credentials
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&creds).
		Post("/v1/auth/refresh")
	if err != nil {
		return apperrors.Network("refresh request failed", err)
	}
	if resp.IsError() {
		return authError("refresh", resp)
	}

	p.install(creds)
	p.notify()
	slog.Info("credentials refreshed", "expires_at", p.ExpiresAt())
	return nil
}

func (p *Provider) install(creds Credentials) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = creds
	p.expiresAt = tokenExpiry(creds.AccessToken)
}

func (p *Provider) notify() {
	p.mu.RLock()
	listeners := make([]func(), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

// tokenExpiry reads the exp claim without verifying the signature; the
// terminal only needs it for proactive refresh scheduling, the server
// verifies for real.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func authError(op string, resp *resty.Response) error {
	detail := fmt.Sprintf("%s rejected: %s", op, resp.Status())
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.Auth(detail, nil)
	case code >= 500:
		return apperrors.Network(detail, nil)
	default:
		return apperrors.New(apperrors.ErrValidation, detail)
	}
}
