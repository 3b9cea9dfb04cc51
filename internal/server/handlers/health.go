package handlers

import (
	"context"
	"runtime"
	"runtime/debug"

	"github.com/zheng93775/house-keeper/internal/server/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	Cfg *Config
}

// Health reports the server version.
func (h *HealthHandler) Health(_ context.Context, _ *dto.HealthRequest) (*dto.HealthResponse, error) {
	resp := &dto.HealthResponse{Status: "ok", Version: h.Cfg.Version, GoVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				resp.Revision = s.Value
			case "vcs.modified":
				resp.Dirty = s.Value == "true"
			}
		}
	}
	return resp, nil
}
