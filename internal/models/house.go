package models

import (
	"path"
	"strings"
)

// House is an inventory owned by its creator and shared with members.
type House struct {
	ID      string        `json:"id" jsonschema:"description=Unique house identifier (UUID)"`
	Name    string        `json:"name" jsonschema:"description=Display name"`
	Creator string        `json:"creator" jsonschema:"description=User ID of the creator"`
	Members []HouseMember `json:"members" jsonschema:"description=Users allowed to read and edit the detail"`
}

// HouseMember is a user granted access to a house.
type HouseMember struct {
	UserID   string `json:"user_id" jsonschema:"description=Member user ID"`
	Username string `json:"username" jsonschema:"description=Member login name at the time it was added"`
}

// IsCreator reports whether userID created the house.
func (h *House) IsCreator(userID string) bool {
	return h.Creator == userID
}

// CanAccess reports whether userID is the creator or a member.
func (h *House) CanAccess(userID string) bool {
	if h.Creator == userID {
		return true
	}
	for _, m := range h.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// HouseDetail is the versioned tree of areas of one house.
type HouseDetail struct {
	Version string `json:"version" jsonschema:"description=Opaque version token; changes on every write"`
	Name    string `json:"name" jsonschema:"description=House name at creation"`
	Items   []Area `json:"items" jsonschema:"description=Top level areas in display order"`
}

// GetVersion returns the version token.
func (d *HouseDetail) GetVersion() string { return d.Version }

// SetVersion replaces the version token.
func (d *HouseDetail) SetVersion(v string) { d.Version = v }

// Area is a room, piece of furniture or item. Areas nest without limit and
// child order is display order.
type Area struct {
	ID      string   `json:"id" jsonschema:"description=Area identifier, unique within the house"`
	Name    string   `json:"name" jsonschema:"description=Display name"`
	Content string   `json:"content" jsonschema:"description=Free form notes"`
	Images  []string `json:"images" jsonschema:"description=Image file names under images/"`
	Items   []Area   `json:"items" jsonschema:"description=Child areas in display order"`
}

// Normalize replaces nil slices with empty ones throughout the tree so the
// document serializes with [] instead of null.
func (d *HouseDetail) Normalize() {
	if d.Items == nil {
		d.Items = []Area{}
	}
	for i := range d.Items {
		d.Items[i].normalize()
	}
}

func (a *Area) normalize() {
	if a.Images == nil {
		a.Images = []string{}
	}
	if a.Items == nil {
		a.Items = []Area{}
	}
	for i := range a.Items {
		a.Items[i].normalize()
	}
}

// Walk calls fn for every area depth first, parents before children. path
// holds the names of the ancestors followed by the area's own name.
// Returning false from fn stops the walk.
func (d *HouseDetail) Walk(fn func(path []string, a *Area) bool) {
	var walk func(prefix []string, items []Area) bool
	walk = func(prefix []string, items []Area) bool {
		for i := range items {
			a := &items[i]
			p := append(prefix[:len(prefix):len(prefix)], a.Name)
			if !fn(p, a) || !walk(p, a.Items) {
				return false
			}
		}
		return true
	}
	walk(nil, d.Items)
}

// Images returns every image name referenced in the tree. References may be
// bare names or URLs like "/api/images/<name>"; only the name is returned.
func (d *HouseDetail) Images() []string {
	var out []string
	d.Walk(func(_ []string, a *Area) bool {
		for _, ref := range a.Images {
			if ref != "" {
				out = append(out, path.Base(ref))
			}
		}
		return true
	})
	return out
}

// SearchHit is an area matching a search keyword.
type SearchHit struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Search returns areas whose name or content contains keyword, matched
// case-sensitively. Path joins
// the house name and ancestor names with '/'. An empty keyword matches
// nothing.
func (d *HouseDetail) Search(keyword string) []SearchHit {
	keyword = strings.TrimSpace(keyword)
	hits := []SearchHit{}
	if keyword == "" {
		return hits
	}
	d.Walk(func(path []string, a *Area) bool {
		if strings.Contains(a.Name, keyword) || strings.Contains(a.Content, keyword) {
			hits = append(hits, SearchHit{
				ID:      a.ID,
				Path:    "/" + strings.Join(append([]string{d.Name}, path...), "/"),
				Name:    a.Name,
				Content: a.Content,
			})
		}
		return true
	})
	return hits
}
