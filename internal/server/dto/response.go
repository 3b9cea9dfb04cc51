package dto

import (
	"net/http"

	"github.com/zheng93775/house-keeper/internal/models"
)

// Cookier is implemented by responses that set cookies.
type Cookier interface {
	Cookies() []*http.Cookie
}

// Statuser is implemented by responses with a status other than 200.
type Statuser interface {
	Status() int
}

// MessageResponse is a response carrying only a human readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// --- Auth ---

// LoginResponse is a response from logging in. The session is carried by
// the cookie.
type LoginResponse struct {
	Username string       `json:"username"`
	Cookie   *http.Cookie `json:"-"`
}

// Cookies implements Cookier.
func (r *LoginResponse) Cookies() []*http.Cookie {
	return []*http.Cookie{r.Cookie}
}

// LogoutResponse is a response from logging out.
type LogoutResponse struct {
	MessageResponse
	Cookie *http.Cookie `json:"-"`
}

// Cookies implements Cookier.
func (r *LogoutResponse) Cookies() []*http.Cookie {
	return []*http.Cookie{r.Cookie}
}

// UserResponse describes the current user.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// --- Houses ---

// ListHousesResponse lists the houses visible to a user.
type ListHousesResponse struct {
	UserID string         `json:"user_id"`
	Houses []models.House `json:"houses"`
}

// CreateHouseResponse is a response from creating a house.
type CreateHouseResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Status implements Statuser.
func (r *CreateHouseResponse) Status() int {
	return http.StatusCreated
}

// UpdateDetailResponse carries the new version token.
type UpdateDetailResponse struct {
	Version string `json:"version"`
}

// SearchResponse lists the areas matching a query.
type SearchResponse struct {
	Results []models.SearchHit `json:"results"`
}

// --- Images ---

// UploadImageResponse is a response from uploading an image.
//
// FileName carries the same value as Name for older web clients.
type UploadImageResponse struct {
	Name     string `json:"name"`
	FileName string `json:"file_name"`
}

// --- Maintenance ---

// BackupResponse reports a backup run.
type BackupResponse struct {
	Message string   `json:"message"`
	Copied  []string `json:"copied"`
	Skipped []string `json:"skipped"`
}

// HealthResponse reports the server status.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}
