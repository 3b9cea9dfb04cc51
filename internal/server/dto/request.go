package dto

import (
	"strings"

	"github.com/zheng93775/house-keeper/internal/models"
)

// --- Auth ---

// LoginRequest is a request to log in.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate validates the login request fields.
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return MissingField("username")
	}
	if r.Password == "" {
		return MissingField("password")
	}
	return nil
}

// LogoutRequest is a request to end the session.
type LogoutRequest struct{}

// Validate is a no-op for LogoutRequest.
func (r *LogoutRequest) Validate() error {
	return nil
}

// GetMeRequest is a request to get current user info.
type GetMeRequest struct{}

// Validate is a no-op for GetMeRequest.
func (r *GetMeRequest) Validate() error {
	return nil
}

// --- Houses ---

// ListHousesRequest is a request to list the houses of the current user.
type ListHousesRequest struct{}

// Validate is a no-op for ListHousesRequest.
func (r *ListHousesRequest) Validate() error {
	return nil
}

// CreateHouseRequest is a request to create a house.
type CreateHouseRequest struct {
	Name string `json:"name"`
}

// Validate validates the create house request fields.
func (r *CreateHouseRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return MissingField("name")
	}
	return nil
}

// DeleteHouseRequest is a request to delete a house.
type DeleteHouseRequest struct {
	ID string `path:"id"`
}

// Validate validates the delete house request fields.
func (r *DeleteHouseRequest) Validate() error {
	if r.ID == "" {
		return MissingField("id")
	}
	return nil
}

// SetMembersRequest replaces the members of a house.
type SetMembersRequest struct {
	ID        string   `path:"id"`
	Usernames []string `json:"usernames"`
}

// Validate validates the set members request fields.
func (r *SetMembersRequest) Validate() error {
	if r.ID == "" {
		return MissingField("id")
	}
	return nil
}

// GetDetailRequest is a request to read a house detail.
type GetDetailRequest struct {
	ID string `path:"id"`
}

// Validate validates the get detail request fields.
func (r *GetDetailRequest) Validate() error {
	if r.ID == "" {
		return MissingField("id")
	}
	return nil
}

// UpdateDetailRequest replaces the area tree of a house detail.
//
// Clients send back the whole detail they read; Name is accepted and ignored
// since the house name is fixed at creation.
type UpdateDetailRequest struct {
	ID      string        `path:"id"`
	Version string        `json:"version"`
	Name    string        `json:"name"`
	Items   []models.Area `json:"items"`
}

// Validate validates the update detail request fields.
func (r *UpdateDetailRequest) Validate() error {
	if r.ID == "" {
		return MissingField("id")
	}
	if r.Version == "" {
		return MissingField("version")
	}
	if r.Items == nil {
		return MissingField("items")
	}
	return nil
}

// SearchRequest searches the areas of a house.
type SearchRequest struct {
	ID    string `path:"id"`
	Query string `query:"q"`
}

// Validate validates the search request fields.
func (r *SearchRequest) Validate() error {
	if r.ID == "" {
		return MissingField("id")
	}
	if strings.TrimSpace(r.Query) == "" {
		return MissingField("q")
	}
	return nil
}

// --- Maintenance ---

// BackupRequest triggers a backup of every tracked document.
type BackupRequest struct{}

// Validate is a no-op for BackupRequest.
func (r *BackupRequest) Validate() error {
	return nil
}

// SchemaRequest asks for the JSON Schema of an on-disk document.
type SchemaRequest struct {
	Doc string `path:"doc"`
}

// Validate validates the schema request fields.
func (r *SchemaRequest) Validate() error {
	if r.Doc == "" {
		return MissingField("doc")
	}
	return nil
}

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}
