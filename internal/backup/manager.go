// Package backup keeps dated copies of the document store files.
//
// Each tracked file gets at most one snapshot per day, named
// <basename>.<YYYYMMDD> in a flat backup directory. A snapshot is taken only
// when the source changed after the latest snapshot, so calling Backup on
// every request is cheap. When the source changes again on the same day the
// day's snapshot is overwritten.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// dateLayout is fixed width and zero padded so string order is date order.
const dateLayout = "20060102"

// Error reports a failure backing up one file.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to back up %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Report summarizes a BackupAll run.
type Report struct {
	Copied  []string `json:"copied"`
	Skipped []string `json:"skipped"`
	// Files lists the snapshot names written into the backup directory.
	Files []string `json:"files"`
}

// Manager copies files from a source tree into a backup directory.
//
// Manager holds no state besides the two directories; it is safe for
// concurrent use as long as two goroutines do not back up the same file at
// the same time.
type Manager struct {
	sourceDir string
	backupDir string
	now       func() time.Time
	open      func(name string) (*os.File, error)
}

// New returns a Manager, creating backupDir if needed.
func New(sourceDir, backupDir string) (*Manager, error) {
	if sourceDir == "" || backupDir == "" {
		return nil, &Error{Path: backupDir, Err: errors.New("source and backup directories are required")}
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, &Error{Path: backupDir, Err: err}
	}
	return &Manager{sourceDir: sourceDir, backupDir: backupDir, now: time.Now, open: os.Open}, nil
}

// SourceDir returns the directory snapshots are taken from.
func (m *Manager) SourceDir() string {
	return m.sourceDir
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.backupDir
}

// Latest returns the path of the most recent snapshot of rel, or "" if none.
func (m *Manager) Latest(rel string) (string, error) {
	prefix := filepath.Base(rel) + "."
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return "", &Error{Path: rel, Err: err}
	}
	latest := ""
	for _, e := range entries {
		name := e.Name()
		date, ok := strings.CutPrefix(name, prefix)
		if !ok || !isDate(date) || !e.Type().IsRegular() {
			continue
		}
		if name > latest {
			latest = name
		}
	}
	if latest == "" {
		return "", nil
	}
	return filepath.Join(m.backupDir, latest), nil
}

// NeedsBackup reports whether rel exists and changed after its latest
// snapshot.
func (m *Manager) NeedsBackup(rel string) (bool, error) {
	src, err := m.sourcePath(rel)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &Error{Path: rel, Err: err}
	}
	latest, err := m.Latest(rel)
	if err != nil {
		return false, err
	}
	if latest == "" {
		return true, nil
	}
	bi, err := os.Stat(latest)
	if err != nil {
		return false, &Error{Path: rel, Err: err}
	}
	return fi.ModTime().After(bi.ModTime()), nil
}

// Backup snapshots rel if needed. A missing source is not an error.
// Returns whether a copy was made.
func (m *Manager) Backup(rel string) (bool, error) {
	name, err := m.backup(rel)
	return name != "", err
}

// BackupAll snapshots user.json, house.json and every house/*.json.
//
// Each file is handled independently; every failure is collected and
// returned joined, alongside the report for the files that succeeded.
func (m *Manager) BackupAll() (*Report, error) {
	files := []string{"user.json", "house.json"}
	var errs []error
	entries, err := os.ReadDir(filepath.Join(m.sourceDir, "house"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, &Error{Path: "house", Err: err})
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), ".") {
			files = append(files, "house/"+e.Name())
		}
	}
	r := &Report{Copied: []string{}, Skipped: []string{}, Files: []string{}}
	for _, rel := range files {
		name, err := m.backup(rel)
		switch {
		case err != nil:
			errs = append(errs, err)
		case name != "":
			r.Copied = append(r.Copied, rel)
			r.Files = append(r.Files, name)
		default:
			r.Skipped = append(r.Skipped, rel)
		}
	}
	if len(errs) == 0 {
		lastSuccess.SetToCurrentTime()
	}
	return r, errors.Join(errs...)
}

// backup returns the snapshot file name written, or "" when skipped.
func (m *Manager) backup(rel string) (string, error) {
	needed, err := m.NeedsBackup(rel)
	if err != nil {
		filesTotal.WithLabelValues("error").Inc()
		return "", err
	}
	if !needed {
		filesTotal.WithLabelValues("skipped").Inc()
		return "", nil
	}
	name := filepath.Base(rel) + "." + m.now().Format(dateLayout)
	if err := m.copy(rel, name); err != nil {
		filesTotal.WithLabelValues("error").Inc()
		return "", &Error{Path: rel, Err: err}
	}
	filesTotal.WithLabelValues("copied").Inc()
	slog.Debug("Backed up file", "path", rel, "backup", name)
	return name, nil
}

// copy writes the content of rel to name through a temp file and gives the
// snapshot the source modification time.
func (m *Manager) copy(rel, name string) error {
	src, err := m.sourcePath(rel)
	if err != nil {
		return err
	}
	in, err := m.open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(m.backupDir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil { //nolint:gosec // G302: backups are readable like the source
		_ = os.Remove(tmpPath)
		return err
	}
	// A source rewritten after this point gets a strictly later mtime.
	if err := os.Chtimes(tmpPath, fi.ModTime(), fi.ModTime()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(m.backupDir, name)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (m *Manager) sourcePath(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(clean) || clean == "." {
		return "", &Error{Path: rel, Err: errors.New("path escapes the source directory")}
	}
	return filepath.Join(m.sourceDir, clean), nil
}

func isDate(s string) bool {
	if len(s) != len(dateLayout) {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
