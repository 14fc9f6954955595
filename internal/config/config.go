// Package config loads the terminal configuration from the environment.
package config

import (
	"os"
	"time"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
)

// Config holds everything the daemon needs to run.
type Config struct {
	DataDir       string
	APIURL        string
	StoreID       string
	RegisterID    string
	SyncInterval  time.Duration
	ProbeInterval time.Duration
}

// Load reads configuration from POSSYNC_* environment variables, applying
// defaults for everything except the register identity.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:    getEnv("POSSYNC_DATA_DIR", "./data"),
		APIURL:     getEnv("POSSYNC_API_URL", "http://localhost:8080"),
		StoreID:    os.Getenv("POSSYNC_STORE_ID"),
		RegisterID: os.Getenv("POSSYNC_REGISTER_ID"),
	}

	var err error
	if cfg.SyncInterval, err = getDuration("POSSYNC_SYNC_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = getDuration("POSSYNC_PROBE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	if c.StoreID == "" {
		return apperrors.Validation("POSSYNC_STORE_ID is required")
	}
	if c.RegisterID == "" {
		return apperrors.Validation("POSSYNC_REGISTER_ID is required")
	}
	return nil
}

// Registration returns the device identity carried by this config.
func (c *Config) Registration() models.Registration {
	return models.Registration{
		StoreID:        c.StoreID,
		CashRegisterID: c.RegisterID,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrValidation, "%s: invalid duration %q", key, value)
	}
	return d, nil
}
