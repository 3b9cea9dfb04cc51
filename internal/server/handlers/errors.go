// Maps storage errors to API errors and writes raw error responses.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/server/dto"
	"github.com/zheng93775/house-keeper/internal/storage"
)

// apiError converts a service error to a dto.APIError.
func apiError(err error) error {
	var apiErr *dto.APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, storage.ErrHouseNotFound):
		return dto.NotFound("house")
	case errors.Is(err, storage.ErrUserNotFound):
		return dto.NotFound("user")
	case errors.Is(err, storage.ErrImageNotFound):
		return dto.NotFound("image")
	case errors.Is(err, storage.ErrPermissionDenied):
		return dto.Forbidden("Permission denied")
	case errors.Is(err, storage.ErrInvalidCredentials):
		return dto.Unauthorized("Invalid username or password")
	case errors.Is(err, storage.ErrUserExists):
		return dto.Conflict("User already exists")
	case errors.Is(err, storage.ErrUnsupportedImage):
		return dto.BadRequest("Unsupported image type").Wrap(err)
	case errors.Is(err, storage.ErrQuotaExceeded):
		return dto.QuotaExceeded(err.Error())
	case errors.Is(err, docstore.ErrVersionMismatch):
		return dto.VersionMismatch()
	case errors.Is(err, docstore.ErrInvalidPath):
		return dto.BadRequest("Invalid path")
	case errors.Is(err, docstore.ErrNotFound):
		return dto.NotFound("document")
	default:
		return dto.Storage(err)
	}
}

// writeErrorResponse writes an error as a JSON response.
// Use this in raw http.HandlerFunc handlers that don't use server.Wrap.
func writeErrorResponse(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := dto.ErrorCodeInternal
	message := "internal error"
	var details map[string]any

	var apiErr *dto.APIError
	if errors.As(apiError(err), &apiErr) {
		statusCode = apiErr.StatusCode()
		errorCode = apiErr.Code()
		message = apiErr.Message()
		details = apiErr.Details()
	}
	if statusCode >= 500 {
		slog.Error("Request failed", "err", err, "code", errorCode)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: errorCode, Message: message},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}
