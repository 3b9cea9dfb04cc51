// Handles login, logout and the session cookie.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zheng93775/house-keeper/internal/models"
	"github.com/zheng93775/house-keeper/internal/server/dto"
	"github.com/zheng93775/house-keeper/internal/server/reqctx"
	"github.com/zheng93775/house-keeper/internal/storage"
)

// SessionCookie is the name of the cookie carrying the session JWT.
const SessionCookie = "token"

// AuthHandler handles authentication requests.
type AuthHandler struct {
	Svc *Services
	Cfg *Config
}

// Login verifies the credentials and sets the session cookie.
func (h *AuthHandler) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := h.Svc.Users.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			slog.WarnContext(ctx, "Login failed", "username", req.Username, "ip", reqctx.ClientIP(ctx), "country", reqctx.CountryCode(ctx))
		}
		return nil, apiError(err)
	}
	token, err := h.GenerateToken(user)
	if err != nil {
		return nil, dto.InternalWithError("Failed to generate token", err)
	}
	slog.InfoContext(ctx, "User logged in", "username", user.Username, "ip", reqctx.ClientIP(ctx), "country", reqctx.CountryCode(ctx))
	return &dto.LoginResponse{
		Username: user.Username,
		Cookie:   h.cookie(token, h.Cfg.SessionTTL()),
	}, nil
}

// Logout rotates the user token, invalidating every outstanding cookie, and
// clears the cookie.
func (h *AuthHandler) Logout(ctx context.Context, user *models.User, _ *dto.LogoutRequest) (*dto.LogoutResponse, error) {
	if err := h.Svc.Users.Logout(user.ID); err != nil {
		return nil, apiError(err)
	}
	return &dto.LogoutResponse{
		MessageResponse: dto.MessageResponse{Message: "Logged out"},
		Cookie:          h.cookie("", -1),
	}, nil
}

// GetMe returns the current user.
func (h *AuthHandler) GetMe(_ context.Context, user *models.User, _ *dto.GetMeRequest) (*dto.UserResponse, error) {
	return &dto.UserResponse{ID: user.ID, Username: user.Username}, nil
}

// GenerateToken signs a JWT for user. The sid claim is the user's current
// token, so rotating it revokes the JWT.
func (h *AuthHandler) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.ID,
		"sid": user.Token,
		"exp": now.Add(h.Cfg.SessionTTL()).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.Cfg.JWTSecret)
}

// cookie builds the session cookie. A negative ttl deletes it.
func (h *AuthHandler) cookie(value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}
