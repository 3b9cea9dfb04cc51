// Implements the atomic read/write/delete primitives of the document store.

package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"
)

// beforeRename runs after the temporary file is complete and before it
// replaces the target. Tests override it to simulate a crash.
var beforeRename = func(tmpPath, dstPath string) error { return nil }

// Store is a JSON document store rooted at a base directory.
//
// Store is safe for concurrent use. It holds no document content between
// calls; two Store values on the same directory see each other's writes.
type Store struct {
	root  string
	locks pathLocks
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, &FSError{Op: "create", Path: root, Err: err}
	}
	return &Store{root: root}, nil
}

// Root returns the absolute base directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the absolute path for a relative document path.
//
// rel must be local: relative, non-empty, and not escaping the base directory
// once cleaned. Both '/' and the OS separator are accepted.
func (s *Store) Path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(clean) || clean == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(s.root, clean), nil
}

// ReadJSON decodes the document at rel into v.
func (s *Store) ReadJSON(rel string, v any) (err error) {
	defer observe("read", time.Now(), &err)
	full, err := s.Path(rel)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(full) //nolint:gosec // G304: path is confined to the store root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return &FSError{Op: "read", Path: rel, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ParseError{Path: rel, Err: err}
	}
	return nil
}

// Read returns the document at rel decoded as T.
func Read[T any](s *Store, rel string) (T, error) {
	var v T
	if err := s.ReadJSON(rel, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// WriteJSON atomically replaces the document at rel with v as indented JSON.
func (s *Store) WriteJSON(rel string, v any) error {
	return s.WriteJSONPerm(rel, v, 0o644)
}

// WriteJSONPerm is WriteJSON with an explicit file mode, for documents
// holding secrets.
func (s *Store) WriteJSONPerm(rel string, v any, perm fs.FileMode) (err error) {
	defer observe("write", time.Now(), &err)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &ParseError{Path: rel, Err: err}
	}
	return s.writeAtomic(rel, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Write atomically replaces the document at rel with v.
func Write[T any](s *Store, rel string, v T) error {
	return s.WriteJSON(rel, v)
}

// WriteFile atomically stores the raw content of r at rel.
//
// If maxBytes is positive and r yields more, nothing is written and
// ErrTooLarge is returned. Returns the number of bytes written.
func (s *Store) WriteFile(rel string, r io.Reader, maxBytes int64) (n int64, err error) {
	defer observe("write_file", time.Now(), &err)
	err = s.writeAtomic(rel, 0o644, func(w io.Writer) error {
		src := r
		if maxBytes > 0 {
			src = io.LimitReader(r, maxBytes+1)
		}
		n, err = io.Copy(w, src)
		if err != nil {
			return err
		}
		if maxBytes > 0 && n > maxBytes {
			return ErrTooLarge
		}
		return nil
	})
	return n, err
}

// Open opens the file at rel for reading.
func (s *Store) Open(rel string) (*os.File, error) {
	full, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full) //nolint:gosec // G304: path is confined to the store root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, &FSError{Op: "open", Path: rel, Err: err}
	}
	return f, nil
}

// Stat returns file information for rel.
func (s *Store) Stat(rel string) (fs.FileInfo, error) {
	full, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, &FSError{Op: "stat", Path: rel, Err: err}
	}
	return fi, nil
}

// Exists reports whether a file exists at rel.
func (s *Store) Exists(rel string) (bool, error) {
	if _, err := s.Stat(rel); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the file at rel.
//
// A missing file is reported as an *FSError that also matches ErrNotFound.
func (s *Store) Delete(rel string) (err error) {
	defer observe("delete", time.Now(), &err)
	full, err := s.Path(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return &FSError{Op: "delete", Path: rel, Err: err}
	}
	return nil
}

// List returns the sorted names of regular files directly under dir having
// the given suffix. Temporary files of in-flight writes are never listed. A
// missing directory yields an empty list.
func (s *Store) List(dir, suffix string) ([]string, error) {
	full := s.root
	if dir != "" && dir != "." {
		var err error
		if full, err = s.Path(dir); err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &FSError{Op: "list", Path: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasSuffix(name, tmpSuffix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Lock acquires the in-process lock for rel and returns its release func.
//
// Services use it to make a sequence of reads and writes on one document
// atomic with respect to Collection.Modify and UpdateVersioned.
func (s *Store) Lock(rel string) (func(), error) {
	full, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	return s.locks.lock(full), nil
}

const tmpSuffix = ".tmp"

// writeAtomic streams content into a temp file next to the target then
// renames it into place. The temp file is removed on every failure path.
func (s *Store) writeAtomic(rel string, perm fs.FileMode, write func(io.Writer) error) error {
	full, err := s.Path(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return &FSError{Op: "create directory for", Path: rel, Err: err}
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*"+tmpSuffix)
	if err != nil {
		return &FSError{Op: "create temp file for", Path: rel, Err: err}
	}
	tmpPath := f.Name()

	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		if errors.Is(err, ErrTooLarge) {
			return err
		}
		return &FSError{Op: "write", Path: rel, Err: err}
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return &FSError{Op: "chmod", Path: rel, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return &FSError{Op: "sync", Path: rel, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &FSError{Op: "close", Path: rel, Err: err}
	}
	if err := beforeRename(tmpPath, full); err != nil {
		return errors.Join(&FSError{Op: "replace", Path: rel, Err: err}, os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, full); err != nil {
		return errors.Join(&FSError{Op: "replace", Path: rel, Err: err}, os.Remove(tmpPath))
	}
	return syncDir(dir)
}

// syncDir flushes the directory entry so the rename survives a power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // G304: dir is derived from the store root
	if err != nil {
		return &FSError{Op: "open directory", Path: dir, Err: err}
	}
	err = d.Sync()
	if err2 := d.Close(); err == nil {
		err = err2
	}
	// Some file systems do not support syncing directories.
	if err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, errors.ErrUnsupported) {
		return &FSError{Op: "sync directory", Path: dir, Err: err}
	}
	return nil
}
