// Defines shared service dependencies for handlers.

package handlers

import (
	"github.com/zheng93775/house-keeper/internal/backup"
	"github.com/zheng93775/house-keeper/internal/storage"
)

// Services holds all service dependencies for handlers.
type Services struct {
	Users   *storage.UserService
	Houses  *storage.HouseService
	Images  *storage.ImageService
	Backup  *backup.Manager
	Archive *backup.Archive // may be nil
}

// Config holds configuration values needed by handlers.
type Config struct {
	storage.ServerConfig
	Version string
	// SecureCookies marks the session cookie Secure, for deployments behind
	// TLS.
	SecureCookies bool
}
