// Handles on-demand backups.

package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/zheng93775/house-keeper/internal/models"
	"github.com/zheng93775/house-keeper/internal/server/dto"
)

// BackupHandler handles backup requests.
type BackupHandler struct {
	Svc *Services
}

// Backup backs up every tracked document now.
func (h *BackupHandler) Backup(ctx context.Context, user *models.User, _ *dto.BackupRequest) (*dto.BackupResponse, error) {
	r, err := h.Svc.Backup.BackupAll()
	if h.Svc.Archive != nil && len(r.Files) > 0 {
		msg := "backup " + time.Now().Format(time.DateTime) + " by " + user.Username
		if err := h.Svc.Archive.Commit(msg, r.Files); err != nil {
			slog.WarnContext(ctx, "Failed to commit backup archive", "err", err)
		}
	}
	if err != nil {
		return nil, dto.Storage(err).WithDetail("copied", r.Copied)
	}
	slog.InfoContext(ctx, "Backup completed", "user", user.Username, "copied", len(r.Copied), "skipped", len(r.Skipped))
	return &dto.BackupResponse{
		Message: "Backup completed successfully",
		Copied:  r.Copied,
		Skipped: r.Skipped,
	}, nil
}
