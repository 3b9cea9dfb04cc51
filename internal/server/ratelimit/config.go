// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/zheng93775/house-keeper/internal/storage"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeUser uses authenticated user ID as the rate limit key.
	ScopeUser
)

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds rate limiters for different tiers.
type Config struct {
	Auth  Tier
	Write Tier
	Read  Tier
}

// NewConfig creates the tiers from the server configuration:
//   - Auth: login attempts, IP scope
//   - Write: POST/PUT/DELETE, user scope
//   - Read: authenticated GET, user scope
//
// A rate of 0 disables the tier.
func NewConfig(rl storage.RateLimits) *Config {
	return &Config{
		Auth: Tier{
			Name:    "auth",
			Limiter: NewLimiter(rl.AuthRatePerMin, time.Minute, rl.AuthRatePerMin),
			Scope:   ScopeIP,
		},
		Write: Tier{
			Name:    "write",
			Limiter: NewLimiter(rl.WriteRatePerMin, time.Minute, max(rl.WriteRatePerMin/6, 1)),
			Scope:   ScopeUser,
		},
		Read: Tier{
			Name:    "read",
			Limiter: NewLimiter(rl.ReadRatePerMin, time.Minute, max(rl.ReadRatePerMin/6, 1)),
			Scope:   ScopeUser,
		},
	}
}

// DefaultConfig creates a Config with storage.DefaultRateLimits.
func DefaultConfig() *Config {
	return NewConfig(storage.DefaultRateLimits())
}

// MatchUnauth returns the tier for unauthenticated requests.
// Returns nil for paths that should not be rate limited.
func (c *Config) MatchUnauth(method, path string) *Tier {
	if method == http.MethodPost && path == "/api/login" {
		return &c.Auth
	}
	return nil
}

// MatchAuth returns the tier for authenticated requests.
// Returns nil for paths that should not be rate limited.
func (c *Config) MatchAuth(method, path string) *Tier {
	if path == "/api/health" {
		return nil
	}
	switch method {
	case http.MethodGet:
		return &c.Read
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		// Logout only rotates a token.
		if strings.HasSuffix(path, "/logout") {
			return nil
		}
		return &c.Write
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	c.Auth.Limiter.Close()
	c.Write.Limiter.Close()
	c.Read.Limiter.Close()
}
