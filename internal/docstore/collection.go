package docstore

import (
	"errors"
	"fmt"
)

// Collection is a JSON array of homogeneous records stored in a single file.
//
// Every call reads or rewrites the whole file. An absent or null file reads
// as an empty collection; an empty collection is always persisted as [].
type Collection[T any] struct {
	store *Store
	name  string
}

// NewCollection binds a Collection to the file name under the store root.
func NewCollection[T any](s *Store, name string) (*Collection[T], error) {
	if _, err := s.Path(name); err != nil {
		return nil, err
	}
	return &Collection[T]{store: s, name: name}, nil
}

// Name returns the relative file name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Init writes an empty array if the file does not exist yet.
func (c *Collection[T]) Init() error {
	unlock, err := c.store.Lock(c.name)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := c.store.Stat(c.name); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return c.store.WriteJSON(c.name, []T{})
}

// All returns every record.
func (c *Collection[T]) All() ([]T, error) {
	rows, err := Read[[]T](c.store, c.name)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// Replace atomically replaces all records.
//
// Replace does not take the collection lock; concurrent Replace calls are
// last-writer-wins. Use Modify for read-modify-write.
func (c *Collection[T]) Replace(rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	return c.store.WriteJSON(c.name, rows)
}

// Modify reads all records, passes them to fn, and persists the result.
//
// The collection lock is held for the whole span so concurrent Modify calls
// in this process are serialized. If fn returns an error nothing is written
// and the error is returned unchanged. Returns the persisted records.
func (c *Collection[T]) Modify(fn func(rows []T) ([]T, error)) ([]T, error) {
	unlock, err := c.store.Lock(c.name)
	if err != nil {
		return nil, err
	}
	defer unlock()
	rows, err := c.All()
	if err != nil {
		return nil, err
	}
	rows, err = fn(rows)
	if err != nil {
		return nil, err
	}
	if err := c.Replace(rows); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", c.name, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}
