package docstore

import (
	"fmt"

	"github.com/google/uuid"
)

// Versioned is a document carrying an opaque version token.
type Versioned interface {
	GetVersion() string
	SetVersion(v string)
}

// NewVersion returns a fresh version token.
//
// Tokens are random UUIDv4 strings; they are never parsed or compared for
// order, only for equality.
func NewVersion() string {
	return uuid.NewString()
}

// CreateVersioned writes doc at rel with a fresh version token, replacing any
// existing document. Returns the new version.
func CreateVersioned[T any, PT interface {
	*T
	Versioned
}](s *Store, rel string, doc PT) (string, error) {
	unlock, err := s.Lock(rel)
	if err != nil {
		return "", err
	}
	defer unlock()
	v := NewVersion()
	doc.SetVersion(v)
	if err := s.WriteJSON(rel, doc); err != nil {
		return "", err
	}
	return v, nil
}

// UpdateVersioned performs a compare-and-swap on the document at rel.
//
// The current document is read and its version compared with expected. On a
// match mutate is applied, a fresh version is assigned and the document is
// atomically persisted. On a mismatch ErrVersionMismatch is returned and
// nothing is written. An error from mutate aborts the update unchanged.
//
// The whole sequence holds the per-path lock, so two updates presenting the
// same token cannot both succeed within this process.
func UpdateVersioned[T any, PT interface {
	*T
	Versioned
}](s *Store, rel, expected string, mutate func(PT) error) (string, error) {
	unlock, err := s.Lock(rel)
	if err != nil {
		return "", err
	}
	defer unlock()

	cur := PT(new(T))
	if err := s.ReadJSON(rel, cur); err != nil {
		return "", err
	}
	if got := cur.GetVersion(); got != expected {
		versionConflicts.Inc()
		return "", fmt.Errorf("%w: %s has %q, expected %q", ErrVersionMismatch, rel, got, expected)
	}
	if mutate != nil {
		if err := mutate(cur); err != nil {
			return "", err
		}
	}
	v := NewVersion()
	cur.SetVersion(v)
	if err := s.WriteJSON(rel, cur); err != nil {
		return "", err
	}
	return v, nil
}
