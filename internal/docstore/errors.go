package docstore

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound is returned when the document file does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrVersionMismatch is returned by UpdateVersioned when the stored
	// version differs from the expected one.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrInvalidPath is returned for absolute paths or paths escaping the base directory.
	ErrInvalidPath = errors.New("invalid document path")
	// ErrTooLarge is returned by WriteFile when the content exceeds the limit.
	ErrTooLarge = errors.New("content too large")
)

// ParseError reports a document whose content is not valid JSON for the
// requested type, or a value that cannot be serialized.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FSError reports a file system failure (permission, disk, rename).
type FSError struct {
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
//
// A missing file also matches ErrNotFound so callers of Delete can treat it as
// success with a single errors.Is check.
func (e *FSError) Unwrap() []error {
	if errors.Is(e.Err, fs.ErrNotExist) {
		return []error{e.Err, ErrNotFound}
	}
	return []error{e.Err}
}
