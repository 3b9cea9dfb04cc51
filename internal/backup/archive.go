// Records backup snapshots in a git repository.

package backup

import (
	"fmt"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Archive commits the backup directory into a git repository rooted at the
// same directory, so a day file that gets overwritten keeps its history.
type Archive struct {
	dir   string
	name  string
	email string
	repo  *gogit.Repository
	mu    sync.Mutex
}

// OpenArchive opens the repository at dir, initializing it if needed.
func OpenArchive(dir, name, email string) (*Archive, error) {
	if name == "" {
		name = "house-keeper"
	}
	if email == "" {
		email = "house-keeper@localhost"
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize backup archive: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Archive{dir: dir, name: name, email: email, repo: repo}, nil
}

// Commit stages files, relative to the backup directory, and commits them.
// Nothing is committed when files is empty or unchanged.
func (a *Archive) Commit(msg string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	w, err := a.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		if _, err := w.Add(f); err != nil {
			return fmt.Errorf("failed to stage %s: %w", f, err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	staged := false
	for _, f := range files {
		if c := status.File(f).Staging; c != gogit.Unmodified && c != gogit.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return nil
	}
	sig := &object.Signature{Name: a.name, Email: a.email, When: time.Now()}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	archiveCommits.Inc()
	return nil
}

// History returns the commit messages, newest first.
func (a *Archive) History() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	iter, err := a.repo.Log(&gogit.LogOptions{})
	if err != nil {
		// No commits yet.
		return nil, nil
	}
	defer iter.Close()
	var msgs []string
	err = iter.ForEach(func(c *object.Commit) error {
		msgs = append(msgs, c.Message)
		return nil
	})
	return msgs, err
}
