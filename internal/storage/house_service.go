// Manages houses, their membership and their versioned detail documents.

package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/models"
)

// HouseService handles house records in house.json and their details under
// house/<id>.json.
type HouseService struct {
	store  *docstore.Store
	houses *docstore.Collection[models.House]
	users  *UserService
}

// NewHouseService creates a house service, creating an empty house.json if
// the file is missing.
func NewHouseService(s *docstore.Store, users *UserService) (*HouseService, error) {
	c, err := docstore.NewCollection[models.House](s, "house.json")
	if err != nil {
		return nil, err
	}
	if err := c.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize house.json: %w", err)
	}
	return &HouseService{store: s, houses: c, users: users}, nil
}

// DetailPath returns the store path of a house detail document.
func DetailPath(houseID string) string {
	return "house/" + houseID + ".json"
}

// Create adds a house owned by creatorID and writes its empty detail.
func (s *HouseService) Create(creatorID, name string) (*models.House, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	h := models.House{
		ID:      uuid.NewString(),
		Name:    name,
		Creator: creatorID,
		Members: []models.HouseMember{},
	}
	if _, err := s.houses.Modify(func(rows []models.House) ([]models.House, error) {
		return append(rows, h), nil
	}); err != nil {
		return nil, err
	}
	detail := &models.HouseDetail{Name: name, Items: []models.Area{}}
	if _, err := docstore.CreateVersioned(s.store, DetailPath(h.ID), detail); err != nil {
		return nil, fmt.Errorf("failed to create detail of house %s: %w", h.ID, err)
	}
	return &h, nil
}

// Get returns a house by ID.
func (s *HouseService) Get(id string) (*models.House, error) {
	rows, err := s.houses.All()
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(rows, func(h models.House) bool { return h.ID == id })
	if i < 0 {
		return nil, ErrHouseNotFound
	}
	return &rows[i], nil
}

// List returns every house.
func (s *HouseService) List() ([]models.House, error) {
	return s.houses.All()
}

// ListForUser returns the houses userID created or is a member of.
func (s *HouseService) ListForUser(userID string) ([]models.House, error) {
	rows, err := s.houses.All()
	if err != nil {
		return nil, err
	}
	out := []models.House{}
	for _, h := range rows {
		if h.CanAccess(userID) {
			out = append(out, h)
		}
	}
	return out, nil
}

// Delete removes a house and its detail. Only the creator may delete.
func (s *HouseService) Delete(userID, id string) error {
	if _, err := s.houses.Modify(func(rows []models.House) ([]models.House, error) {
		i := slices.IndexFunc(rows, func(h models.House) bool { return h.ID == id })
		if i < 0 {
			return nil, ErrHouseNotFound
		}
		if !rows[i].IsCreator(userID) {
			return nil, ErrPermissionDenied
		}
		return slices.Delete(rows, i, i+1), nil
	}); err != nil {
		return err
	}
	// An update already past its version check finishes before the removal.
	unlock, err := s.store.Lock(DetailPath(id))
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.store.Delete(DetailPath(id)); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	return nil
}

// SetMembers replaces the member list with the users named in usernames.
// Unknown usernames are ignored. Only the creator may change members.
func (s *HouseService) SetMembers(userID, id string, usernames []string) (*models.House, error) {
	users, err := s.users.List()
	if err != nil {
		return nil, err
	}
	members := []models.HouseMember{}
	for _, name := range usernames {
		i := indexByUsername(users, name)
		if i < 0 {
			continue
		}
		if slices.ContainsFunc(members, func(m models.HouseMember) bool { return m.UserID == users[i].ID }) {
			continue
		}
		members = append(members, models.HouseMember{UserID: users[i].ID, Username: users[i].Username})
	}
	var out models.House
	if _, err := s.houses.Modify(func(rows []models.House) ([]models.House, error) {
		i := slices.IndexFunc(rows, func(h models.House) bool { return h.ID == id })
		if i < 0 {
			return nil, ErrHouseNotFound
		}
		if !rows[i].IsCreator(userID) {
			return nil, ErrPermissionDenied
		}
		creator := rows[i].Creator
		rows[i].Members = slices.DeleteFunc(members, func(m models.HouseMember) bool { return m.UserID == creator })
		out = rows[i]
		return rows, nil
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Detail returns the detail document of a house userID can access.
func (s *HouseService) Detail(userID, id string) (*models.HouseDetail, error) {
	if _, err := s.authorize(userID, id); err != nil {
		return nil, err
	}
	d, err := docstore.Read[models.HouseDetail](s.store, DetailPath(id))
	if err != nil {
		return nil, err
	}
	d.Normalize()
	return &d, nil
}

// UpdateDetail replaces the items of a house detail if version is still the
// stored one, and returns the new version. The name is kept.
func (s *HouseService) UpdateDetail(userID, id, version string, items []models.Area) (string, error) {
	if _, err := s.authorize(userID, id); err != nil {
		return "", err
	}
	return docstore.UpdateVersioned(s.store, DetailPath(id), version, func(d *models.HouseDetail) error {
		d.Items = items
		d.Normalize()
		return nil
	})
}

// Search returns the areas of a house whose name or content contains q.
func (s *HouseService) Search(userID, id, q string) ([]models.SearchHit, error) {
	d, err := s.Detail(userID, id)
	if err != nil {
		return nil, err
	}
	return d.Search(q), nil
}

// ReferencedImages returns the set of image names used by any house.
func (s *HouseService) ReferencedImages() (map[string]bool, error) {
	rows, err := s.houses.All()
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool)
	for _, h := range rows {
		d, err := docstore.Read[models.HouseDetail](s.store, DetailPath(h.ID))
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, name := range d.Images() {
			used[name] = true
		}
	}
	return used, nil
}

func (s *HouseService) authorize(userID, id string) (*models.House, error) {
	h, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !h.CanAccess(userID) {
		return nil, ErrPermissionDenied
	}
	return h, nil
}
