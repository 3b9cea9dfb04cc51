// Handles image upload and retrieval.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/zheng93775/house-keeper/internal/server/dto"
	"github.com/zheng93775/house-keeper/internal/server/reqctx"
)

// multipartOverhead is the room left for multipart headers on top of the
// image size limit.
const multipartOverhead = 64 << 10

// ImageHandler handles image requests.
type ImageHandler struct {
	Svc *Services
	Cfg *Config
}

// Upload stores the first "file" or "image" part of a multipart form.
// This is a raw http.HandlerFunc because it streams a multipart body.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.Cfg.Quotas.MaxImageBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.Quotas.MaxImageBytes+multipartOverhead)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeErrorResponse(w, dto.BadRequest("Expected a multipart form"))
		return
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeErrorResponse(w, dto.PayloadTooLarge(h.Cfg.Quotas.MaxImageBytes))
				return
			}
			writeErrorResponse(w, dto.MissingField("file"))
			return
		}
		if n := part.FormName(); n != "file" && n != "image" {
			_ = part.Close()
			continue
		}
		name, err := h.Svc.Images.Save(part.FileName(), part)
		_ = part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeErrorResponse(w, dto.PayloadTooLarge(h.Cfg.Quotas.MaxImageBytes))
				return
			}
			writeErrorResponse(w, err)
			return
		}
		user := reqctx.User(r.Context())
		slog.InfoContext(r.Context(), "Image uploaded", "name", name, "user", user.Username)
		writeJSON(w, http.StatusCreated, dto.UploadImageResponse{Name: name, FileName: name})
		return
	}
}

// Serve writes the image bytes.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	f, ct, err := h.Svc.Images.Open(r.PathValue("name"))
	if err != nil {
		writeErrorResponse(w, err)
		return
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		writeErrorResponse(w, err)
		return
	}
	w.Header().Set("Content-Type", ct)
	// Names are never reused.
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}
