package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/tilldesk/possync/internal/errors"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestLoginInstallsCredentials(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signedToken(t, exp)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/login" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "cashier" {
			t.Errorf("username = %q", body["username"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Credentials{AccessToken: access, RefreshToken: "r1"})
	}))
	defer server.Close()

	p := NewProvider(server.URL, 0)
	if err := p.Login(context.Background(), "cashier", "pw"); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	if p.Token() != access {
		t.Error("access token was not installed")
	}
	if !p.ExpiresAt().Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", p.ExpiresAt(), exp)
	}
	if p.Expired(time.Now()) {
		t.Error("fresh token should not be expired")
	}
	if !p.Expired(exp.Add(time.Minute)) {
		t.Error("token should be expired past its exp")
	}
}

func TestLoginRejectedIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewProvider(server.URL, 0)
	err := p.Login(context.Background(), "cashier", "wrong")
	if !apperrors.IsAuth(err) {
		t.Errorf("error = %v, want AUTH_ERROR", err)
	}
	if p.Token() != "" {
		t.Error("token must stay empty after rejected login")
	}
}

func TestRefreshNotifiesListeners(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "r1" {
			t.Errorf("refresh_token = %q", body["refresh_token"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Credentials{AccessToken: signedToken(t, time.Now().Add(time.Hour)), RefreshToken: "r2"})
	}))
	defer server.Close()

	p := NewProvider(server.URL, 0)
	p.SetCredentials(Credentials{AccessToken: "stale", RefreshToken: "r1"})

	notified := 0
	p.OnRefresh(func() { notified++ })

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if notified != 1 {
		t.Errorf("listener invoked %d times, want 1", notified)
	}
	if p.Token() == "stale" {
		t.Error("access token was not replaced")
	}
}

func TestRefreshWithoutTokenIsAuthError(t *testing.T) {
	p := NewProvider("http://127.0.0.1:1", 0)
	if err := p.Refresh(context.Background()); !apperrors.IsAuth(err) {
		t.Errorf("error = %v, want AUTH_ERROR", err)
	}
}

func TestLoginValidation(t *testing.T) {
	p := NewProvider("http://127.0.0.1:1", 0)
	if err := p.Login(context.Background(), "", ""); !apperrors.IsValidation(err) {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestExpiryUnknownForOpaqueToken(t *testing.T) {
	p := NewProvider("http://127.0.0.1:1", 0)
	p.SetCredentials(Credentials{AccessToken: "not-a-jwt"})

	if !p.ExpiresAt().IsZero() {
		t.Error("opaque token should have unknown expiry")
	}
	if p.Expired(time.Now().Add(100 * time.Hour)) {
		t.Error("unknown expiry never reports expired")
	}
}
