// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zheng93775/house-keeper/internal/server/dto"
	"github.com/zheng93775/house-keeper/internal/server/handlers"
	"github.com/zheng93775/house-keeper/internal/server/ipgeo"
	"github.com/zheng93775/house-keeper/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router.
// Serves API endpoints at /api/*, metrics at /metrics and, when staticDir
// is set, the web frontend at /.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, limiters *ratelimit.Config, staticDir string, geo *ipgeo.Checker) http.Handler {
	mux := &http.ServeMux{}
	authh := &handlers.AuthHandler{Svc: svc, Cfg: cfg}
	hh := &handlers.HouseHandler{Svc: svc}
	ih := &handlers.ImageHandler{Svc: svc, Cfg: cfg}
	bh := &handlers.BackupHandler{Svc: svc}
	sh := &handlers.SchemaHandler{}
	healthh := &handlers.HealthHandler{Cfg: cfg}

	// Public endpoints
	mux.Handle("GET /api/health", Wrap(healthh.Health, cfg, limiters))
	mux.Handle("GET /api/schema/{doc}", Wrap(sh.GetSchema, cfg, limiters))
	mux.Handle("POST /api/login", Wrap(authh.Login, cfg, limiters))

	// Session
	mux.Handle("POST /api/logout", WrapAuth(authh.Logout, svc, cfg, limiters))
	mux.Handle("GET /api/me", WrapAuth(authh.GetMe, svc, cfg, limiters))

	// Houses
	mux.Handle("GET /api/houses", WrapAuth(hh.ListHouses, svc, cfg, limiters))
	mux.Handle("POST /api/houses", WrapAuth(hh.CreateHouse, svc, cfg, limiters))
	mux.Handle("DELETE /api/houses/{id}", WrapAuth(hh.DeleteHouse, svc, cfg, limiters))
	mux.Handle("PUT /api/houses/{id}/members", WrapAuth(hh.SetMembers, svc, cfg, limiters))
	mux.Handle("GET /api/houses/{id}/detail", WrapAuth(hh.GetDetail, svc, cfg, limiters))
	mux.Handle("PUT /api/houses/{id}/detail", WrapAuth(hh.UpdateDetail, svc, cfg, limiters))
	mux.Handle("GET /api/houses/{id}/search", WrapAuth(hh.Search, svc, cfg, limiters))

	// Images
	mux.Handle("POST /api/images", WrapAuthRaw(ih.Upload, svc, cfg, limiters))
	mux.Handle("GET /api/images/{name}", WrapAuthRaw(ih.Serve, svc, cfg, limiters))

	// Maintenance
	mux.Handle("POST /api/backup", WrapAuth(bh.Backup, svc, cfg, limiters))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		apiErr := dto.NotFound("endpoint")
		writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), nil)
	})
	if staticDir != "" {
		mux.Handle("/", staticHandler(staticDir))
	}
	return loggingMiddleware(mux, geo)
}

// staticHandler serves the files of dir.
func staticHandler(dir string) http.Handler {
	fileServer := http.FileServerFS(os.DirFS(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}
