package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/server/dto"
	"github.com/zheng93775/house-keeper/internal/storage"
)

func TestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   dto.ErrorCode
	}{
		{"HouseNotFound", storage.ErrHouseNotFound, http.StatusNotFound, dto.ErrorCodeNotFound},
		{"ImageNotFound", fmt.Errorf("%w: x", storage.ErrImageNotFound), http.StatusNotFound, dto.ErrorCodeNotFound},
		{"Permission", storage.ErrPermissionDenied, http.StatusForbidden, dto.ErrorCodeForbidden},
		{"Credentials", storage.ErrInvalidCredentials, http.StatusUnauthorized, dto.ErrorCodeUnauthorized},
		{"UserExists", storage.ErrUserExists, http.StatusConflict, dto.ErrorCodeConflict},
		{"Unsupported", storage.ErrUnsupportedImage, http.StatusBadRequest, dto.ErrorCodeValidationFailed},
		{"Quota", storage.ErrQuotaExceeded, http.StatusRequestEntityTooLarge, dto.ErrorCodeQuotaExceeded},
		{"VersionMismatch", fmt.Errorf("house/h1.json: %w", docstore.ErrVersionMismatch), http.StatusConflict, dto.ErrorCodeVersionMismatch},
		{"DocNotFound", docstore.ErrNotFound, http.StatusNotFound, dto.ErrorCodeNotFound},
		{"Parse", &docstore.ParseError{Path: "user.json", Err: errors.New("bad json")}, http.StatusInternalServerError, dto.ErrorCodeStorageError},
		{"Other", errors.New("disk on fire"), http.StatusInternalServerError, dto.ErrorCodeStorageError},
		{"APIError", dto.BadRequest("x"), http.StatusBadRequest, dto.ErrorCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr *dto.APIError
			if !errors.As(apiError(tt.err), &apiErr) {
				t.Fatalf("apiError(%v) is not an APIError", tt.err)
			}
			if apiErr.StatusCode() != tt.status || apiErr.Code() != tt.code {
				t.Errorf("apiError(%v) = %d %s, want %d %s", tt.err, apiErr.StatusCode(), apiErr.Code(), tt.status, tt.code)
			}
		})
	}
	if apiError(nil) != nil {
		t.Error("apiError(nil) != nil")
	}
}

func TestWriteErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	writeErrorResponse(w, errors.New("/data/secret/path: permission denied"))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "/data/secret") {
		t.Errorf("body leaks the wrapped error: %s", body)
	}
	if !strings.Contains(body, `"STORAGE_ERROR"`) {
		t.Errorf("body = %s, want STORAGE_ERROR code", body)
	}
}
