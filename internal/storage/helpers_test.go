package storage

import (
	"testing"

	"github.com/zheng93775/house-keeper/internal/docstore"
)

func newTestServices(t *testing.T) (*docstore.Store, *UserService, *HouseService) {
	t.Helper()
	s, err := docstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	users, err := NewUserService(s, 0)
	if err != nil {
		t.Fatalf("NewUserService() error = %v", err)
	}
	houses, err := NewHouseService(s, users)
	if err != nil {
		t.Fatalf("NewHouseService() error = %v", err)
	}
	return s, users, houses
}
