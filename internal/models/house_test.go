package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func sampleDetail() *HouseDetail {
	return &HouseDetail{
		Version: "v1",
		Name:    "Home",
		Items: []Area{
			{ID: "k", Name: "Kitchen", Content: "fridge and oven", Items: []Area{
				{ID: "d", Name: "Drawer", Content: "knives", Images: []string{"a.jpg"}},
			}},
			{ID: "g", Name: "Garage", Content: "bike", Images: []string{"b.png", "/api/images/c.png"}},
		},
	}
}

func TestHouseDetail(t *testing.T) {
	t.Run("Walk", func(t *testing.T) {
		var got []string
		sampleDetail().Walk(func(path []string, a *Area) bool {
			got = append(got, a.ID)
			return true
		})
		want := []string{"k", "d", "g"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Walk order = %v, want %v", got, want)
		}
	})

	t.Run("WalkStop", func(t *testing.T) {
		n := 0
		sampleDetail().Walk(func(path []string, a *Area) bool {
			n++
			return a.ID != "k"
		})
		if n != 1 {
			t.Errorf("Walk visited %d areas after stop, want 1", n)
		}
	})

	t.Run("Search", func(t *testing.T) {
		d := sampleDetail()
		tests := []struct {
			keyword string
			want    []string
		}{
			{"knives", []string{"/Home/Kitchen/Drawer"}},
			{"Kitchen", []string{"/Home/Kitchen"}},
			{"e", []string{"/Home/Kitchen", "/Home/Kitchen/Drawer", "/Home/Garage"}},
			{"  bike ", []string{"/Home/Garage"}},
			{"kitchen", nil},
			{"", nil},
			{"absent", nil},
		}
		for _, tt := range tests {
			hits := d.Search(tt.keyword)
			if hits == nil {
				t.Fatalf("Search(%q) returned nil", tt.keyword)
			}
			var got []string
			for _, h := range hits {
				got = append(got, h.Path)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Search(%q) = %v, want %v", tt.keyword, got, tt.want)
			}
		}
	})

	t.Run("Images", func(t *testing.T) {
		got := sampleDetail().Images()
		want := []string{"a.jpg", "b.png", "c.png"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Images() = %v, want %v", got, want)
		}
	})

	t.Run("Normalize", func(t *testing.T) {
		d := &HouseDetail{Version: "v", Items: []Area{{ID: "a"}}}
		d.Normalize()
		data, err := json.Marshal(d)
		if err != nil {
			t.Fatal(err)
		}
		want := `{"version":"v","name":"","items":[{"id":"a","name":"","content":"","images":[],"items":[]}]}`
		if string(data) != want {
			t.Errorf("json = %s, want %s", data, want)
		}
	})
}

func TestHouseAccess(t *testing.T) {
	h := &House{ID: "h", Creator: "u1", Members: []HouseMember{{UserID: "u2", Username: "bob"}}}
	tests := []struct {
		user            string
		creator, access bool
	}{
		{"u1", true, true},
		{"u2", false, true},
		{"u3", false, false},
	}
	for _, tt := range tests {
		if got := h.IsCreator(tt.user); got != tt.creator {
			t.Errorf("IsCreator(%s) = %v, want %v", tt.user, got, tt.creator)
		}
		if got := h.CanAccess(tt.user); got != tt.access {
			t.Errorf("CanAccess(%s) = %v, want %v", tt.user, got, tt.access)
		}
	}
}
