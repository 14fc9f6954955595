package config

import (
	"testing"
	"time"

	apperrors "github.com/tilldesk/possync/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"POSSYNC_DATA_DIR", "POSSYNC_API_URL",
		"POSSYNC_SYNC_INTERVAL", "POSSYNC_PROBE_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != "./data" {
		t.Errorf("data dir = %q, want ./data", cfg.DataDir)
	}
	if cfg.APIURL != "http://localhost:8080" {
		t.Errorf("api url = %q", cfg.APIURL)
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("sync interval = %v, want 1m", cfg.SyncInterval)
	}
	if cfg.ProbeInterval != 30*time.Second {
		t.Errorf("probe interval = %v, want 30s", cfg.ProbeInterval)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("POSSYNC_DATA_DIR", "/var/lib/possync")
	t.Setenv("POSSYNC_API_URL", "https://api.example.com")
	t.Setenv("POSSYNC_STORE_ID", "store-9")
	t.Setenv("POSSYNC_REGISTER_ID", "reg-3")
	t.Setenv("POSSYNC_SYNC_INTERVAL", "5m")
	t.Setenv("POSSYNC_PROBE_INTERVAL", "10s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != "/var/lib/possync" || cfg.APIURL != "https://api.example.com" {
		t.Errorf("paths not read: %+v", cfg)
	}
	if cfg.SyncInterval != 5*time.Minute || cfg.ProbeInterval != 10*time.Second {
		t.Errorf("intervals not read: %v / %v", cfg.SyncInterval, cfg.ProbeInterval)
	}

	reg := cfg.Registration()
	if reg.StoreID != "store-9" || reg.CashRegisterID != "reg-3" {
		t.Errorf("registration = %+v", reg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("POSSYNC_SYNC_INTERVAL", "sometimes")

	_, err := Load()
	if !apperrors.IsValidation(err) {
		t.Errorf("Load() = %v, want VALIDATION_ERROR", err)
	}
}

func TestValidateRequiresIdentity(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); !apperrors.IsValidation(err) {
		t.Errorf("Validate() = %v, want VALIDATION_ERROR", err)
	}

	cfg.StoreID = "store-1"
	if err := cfg.Validate(); !apperrors.IsValidation(err) {
		t.Errorf("Validate() without register = %v, want VALIDATION_ERROR", err)
	}

	cfg.RegisterID = "reg-1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
