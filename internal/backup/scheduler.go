// Runs backups on a timer and when tracked files change.

package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Scheduler drives a Manager.
//
// It runs BackupAll on start and on every tick, and backs up a single tracked
// file shortly after the file system reports it changed. Snapshots written
// are committed to the Archive when one is set.
type Scheduler struct {
	Manager  *Manager
	Interval time.Duration
	// Debounce delays a change-triggered backup so a burst of writes to the
	// same file results in one copy.
	Debounce time.Duration
	Archive  *Archive
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Manager == nil {
		return errors.New("scheduler requires a manager")
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	debounce := s.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	src := s.Manager.SourceDir()
	for _, dir := range []string{src, filepath.Join(src, "house")} {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
			return err
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	s.runAll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if rel := trackedPath(src, event.Name); rel != "" {
				pending[rel] = struct{}{}
				timer.Reset(debounce)
			}
		case <-timer.C:
			var files []string
			for rel := range pending {
				name, err := s.Manager.backup(rel)
				if err != nil {
					slog.WarnContext(ctx, "Backup failed", "path", rel, "err", err)
				} else if name != "" {
					files = append(files, name)
				}
				delete(pending, rel)
			}
			s.commit(ctx, files)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching data directory", "err", err)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	r, err := s.Manager.BackupAll()
	if err != nil {
		slog.WarnContext(ctx, "Backup failed", "err", err)
	}
	if len(r.Files) > 0 {
		slog.InfoContext(ctx, "Backup completed", "copied", len(r.Copied), "skipped", len(r.Skipped))
	}
	s.commit(ctx, r.Files)
}

func (s *Scheduler) commit(ctx context.Context, files []string) {
	if s.Archive == nil || len(files) == 0 {
		return
	}
	msg := "backup " + time.Now().Format(time.DateTime)
	if err := s.Archive.Commit(msg, files); err != nil {
		slog.WarnContext(ctx, "Failed to commit backup archive", "err", err)
	}
}

// trackedPath maps an absolute file name to its store-relative path if it is
// one of the files BackupAll covers, or returns "".
func trackedPath(src, name string) string {
	rel, err := filepath.Rel(src, name)
	if err != nil {
		return ""
	}
	rel = filepath.ToSlash(rel)
	switch {
	case rel == "user.json", rel == "house.json":
		return rel
	case strings.HasPrefix(rel, "house/"):
		base := strings.TrimPrefix(rel, "house/")
		if !strings.Contains(base, "/") && strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".") {
			return rel
		}
	}
	return ""
}
