// Handles houses, their members and their detail tree.

package handlers

import (
	"context"
	"log/slog"

	"github.com/zheng93775/house-keeper/internal/models"
	"github.com/zheng93775/house-keeper/internal/server/dto"
)

// HouseHandler handles house requests.
type HouseHandler struct {
	Svc *Services
}

// ListHouses returns the houses the user created or is a member of.
func (h *HouseHandler) ListHouses(_ context.Context, user *models.User, _ *dto.ListHousesRequest) (*dto.ListHousesResponse, error) {
	houses, err := h.Svc.Houses.ListForUser(user.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &dto.ListHousesResponse{UserID: user.ID, Houses: houses}, nil
}

// CreateHouse creates a house owned by the user.
func (h *HouseHandler) CreateHouse(ctx context.Context, user *models.User, req *dto.CreateHouseRequest) (*dto.CreateHouseResponse, error) {
	house, err := h.Svc.Houses.Create(user.ID, req.Name)
	if err != nil {
		return nil, apiError(err)
	}
	slog.InfoContext(ctx, "House created", "house", house.ID, "user", user.Username)
	return &dto.CreateHouseResponse{ID: house.ID, Message: "House created successfully"}, nil
}

// DeleteHouse deletes a house the user created.
func (h *HouseHandler) DeleteHouse(ctx context.Context, user *models.User, req *dto.DeleteHouseRequest) (*dto.MessageResponse, error) {
	if err := h.Svc.Houses.Delete(user.ID, req.ID); err != nil {
		return nil, apiError(err)
	}
	slog.InfoContext(ctx, "House deleted", "house", req.ID, "user", user.Username)
	return &dto.MessageResponse{Message: "House deleted successfully"}, nil
}

// SetMembers replaces the members of a house the user created.
func (h *HouseHandler) SetMembers(_ context.Context, user *models.User, req *dto.SetMembersRequest) (*dto.MessageResponse, error) {
	if _, err := h.Svc.Houses.SetMembers(user.ID, req.ID, req.Usernames); err != nil {
		return nil, apiError(err)
	}
	return &dto.MessageResponse{Message: "House members updated successfully"}, nil
}

// GetDetail returns the detail tree and its version token.
func (h *HouseHandler) GetDetail(_ context.Context, user *models.User, req *dto.GetDetailRequest) (*models.HouseDetail, error) {
	d, err := h.Svc.Houses.Detail(user.ID, req.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return d, nil
}

// UpdateDetail replaces the detail tree if the version is current.
func (h *HouseHandler) UpdateDetail(ctx context.Context, user *models.User, req *dto.UpdateDetailRequest) (*dto.UpdateDetailResponse, error) {
	v, err := h.Svc.Houses.UpdateDetail(user.ID, req.ID, req.Version, req.Items)
	if err != nil {
		return nil, apiError(err)
	}
	slog.DebugContext(ctx, "House detail updated", "house", req.ID, "version", v)
	return &dto.UpdateDetailResponse{Version: v}, nil
}

// Search returns the areas whose name or content contain the query.
func (h *HouseHandler) Search(_ context.Context, user *models.User, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	hits, err := h.Svc.Houses.Search(user.ID, req.ID, req.Query)
	if err != nil {
		return nil, apiError(err)
	}
	return &dto.SearchResponse{Results: hits}, nil
}
