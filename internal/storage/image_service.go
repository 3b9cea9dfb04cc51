// Stores uploaded images under images/ with generated names.

package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zheng93775/house-keeper/internal/docstore"
)

const imageDir = "images"

// imageTypes maps accepted file extensions to their content type.
var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ImageService stores images as images/<uuid>.<ext>, independent of the
// uploaded file name.
type ImageService struct {
	store    *docstore.Store
	maxBytes int64
}

// NewImageService creates an image service. maxBytes limits one image.
func NewImageService(s *docstore.Store, maxBytes int64) *ImageService {
	return &ImageService{store: s, maxBytes: maxBytes}
}

// Save stores the content of r and returns the generated image name. The
// extension is taken from filename.
func (s *ImageService) Save(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := imageTypes[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, ext)
	}
	name := uuid.NewString() + ext
	if _, err := s.store.WriteFile(imageDir+"/"+name, r, s.maxBytes); err != nil {
		if errors.Is(err, docstore.ErrTooLarge) {
			return "", fmt.Errorf("%w: image larger than %d bytes", ErrQuotaExceeded, s.maxBytes)
		}
		return "", err
	}
	return name, nil
}

// Open returns the image file and its content type.
func (s *ImageService) Open(name string) (*os.File, string, error) {
	ct, err := imageType(name)
	if err != nil {
		return nil, "", err
	}
	f, err := s.store.Open(imageDir + "/" + name)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, "", ErrImageNotFound
		}
		return nil, "", err
	}
	return f, ct, nil
}

// List returns the stored image names.
func (s *ImageService) List() ([]string, error) {
	names, err := s.store.List(imageDir, "")
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if _, err := imageType(n); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// GC deletes images not in used and older than grace, so uploads not yet
// saved into a house detail survive. Returns the deleted names.
func (s *ImageService) GC(used map[string]bool, grace time.Duration) ([]string, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-grace)
	var removed []string
	var errs []error
	for _, n := range names {
		if used[n] {
			continue
		}
		rel := imageDir + "/" + n
		fi, err := s.store.Stat(rel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if fi.ModTime().After(cutoff) {
			continue
		}
		if err := s.store.Delete(rel); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		slog.Info("Removed unreferenced image", "name", n)
		removed = append(removed, n)
	}
	return removed, errors.Join(errs...)
}

// imageType validates a stored image name and returns its content type.
func imageType(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrImageNotFound, name)
	}
	ct, ok := imageTypes[strings.ToLower(path.Ext(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, name)
	}
	return ct, nil
}
