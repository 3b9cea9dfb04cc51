// Manages server configuration stored in server_config.json.

package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zheng93775/house-keeper/internal/docstore"
)

const configFile = "server_config.json"

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
type ServerConfig struct {
	// JWTSecret is the secret used to sign session cookies.
	// Auto-generated if empty on first load.
	JWTSecret []byte `json:"jwt_secret"`

	// SessionDays is how long a login cookie stays valid.
	SessionDays int `json:"session_days"`

	// Quotas defines server-wide resource limits.
	Quotas Quotas `json:"quotas"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`
}

// SessionTTL returns SessionDays as a duration.
func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionDays) * 24 * time.Hour
}

// Quotas defines server-wide resource limits.
type Quotas struct {
	// MaxRequestBodyBytes limits the size of any JSON request body.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`

	// MaxImageBytes limits the size of one uploaded image.
	MaxImageBytes int64 `json:"max_image_bytes"`

	// MaxUsers limits total users on the server. 0 means unlimited.
	MaxUsers int `json:"max_users"`
}

// Validate checks that all quota values are usable.
func (q *Quotas) Validate() error {
	if q.MaxRequestBodyBytes <= 0 {
		return errors.New("max_request_body_bytes must be positive")
	}
	if q.MaxImageBytes <= 0 {
		return errors.New("max_image_bytes must be positive")
	}
	if q.MaxUsers < 0 {
		return errors.New("max_users must be non-negative")
	}
	return nil
}

// DefaultQuotas returns the default server-wide quotas.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxRequestBodyBytes: 4 * 1024 * 1024,  // 4 MiB, a house tree with long notes
		MaxImageBytes:       16 * 1024 * 1024, // 16 MiB, a phone photo
		MaxUsers:            0,
	}
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// AuthRatePerMin limits login attempts per client IP.
	// 0 means unlimited.
	AuthRatePerMin int `json:"auth_rate_per_min"`

	// WriteRatePerMin limits write operations (POST/PUT/DELETE) per user.
	// 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`

	// ReadRatePerMin limits authenticated read operations per user.
	// 0 means unlimited.
	ReadRatePerMin int `json:"read_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.AuthRatePerMin < 0 {
		return errors.New("auth_rate_per_min must be non-negative")
	}
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.ReadRatePerMin < 0 {
		return errors.New("read_rate_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		AuthRatePerMin:  5,    // 5 req/min for login
		WriteRatePerMin: 120,  // 120 req/min for writes
		ReadRatePerMin:  6000, // 6k req/min for reads
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if len(c.JWTSecret) == 0 {
		return errors.New("jwt_secret is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if c.SessionDays <= 0 {
		return errors.New("session_days must be positive")
	}
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// LoadServerConfig loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist.
// Auto-generates JWTSecret if empty.
func LoadServerConfig(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, configFile)

	cfg := ServerConfig{SessionDays: 30, Quotas: DefaultQuotas(), RateLimits: DefaultRateLimits()}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read server_config.json: %w", err)
		}
		// File doesn't exist, will create with defaults
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse server_config.json: %w", err)
		}
	}

	modified := false
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.JWTSecret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		modified = true
	}

	if modified || errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server_config.json: %w", err)
	}
	return &cfg, nil
}

// Save atomically replaces dataDir/server_config.json, readable by the
// owner only since it holds the JWT secret.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	store, err := docstore.New(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	if err := store.WriteJSONPerm(configFile, c, 0o600); err != nil {
		return fmt.Errorf("failed to write server_config.json: %w", err)
	}
	return nil
}
