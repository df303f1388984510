// Package file stores schedule images on the local disk. Images arrive base64 encoded, optionally as a
// data URL, and are referenced afterwards by the generated file name.
package file

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/internal/config"
	log "github.com/sirupsen/logrus"
)

var (
	ErrEmptyResource    = fmt.Errorf("image resource is empty: %w", apperr.ErrInvalidArgument)
	ErrInvalidEncoding  = fmt.Errorf("image resource is not valid base64: %w", apperr.ErrInvalidArgument)
	ErrNotAnImage       = fmt.Errorf("resource is not an image: %w", apperr.ErrInvalidArgument)
	ErrImageTooLarge    = fmt.Errorf("image exceeds the size limit: %w", apperr.ErrInvalidArgument)
	ErrInvalidReference = fmt.Errorf("invalid image reference: %w", apperr.ErrInvalidArgument)
)

type Service interface {
	// UploadImage stores the encoded image and returns its reference.
	UploadImage(ctx context.Context, resource string) (string, error)
	DeleteImage(ctx context.Context, reference string) error
}

type LocalStore struct {
	dir      string
	maxBytes int
}

func NewLocalStore(cfg config.Storage) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.ImageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory %s: %w", cfg.ImageDir, err)
	}
	return &LocalStore{dir: cfg.ImageDir, maxBytes: cfg.MaxImageBytes}, nil
}

func (s *LocalStore) UploadImage(ctx context.Context, resource string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := decodeResource(resource)
	if err != nil {
		return "", err
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return "", fmt.Errorf("%d bytes: %w", len(data), ErrImageTooLarge)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", fmt.Errorf("detected %s: %w", mime.String(), ErrNotAnImage)
	}

	reference := uuid.NewString() + mime.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, reference), data, 0o644); err != nil {
		log.Errorf("failed to write image %s: %v", reference, err)
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	log.Debugf("stored image %s (%s, %d bytes)", reference, mime.String(), len(data))
	return reference, nil
}

// DeleteImage removes a stored image. Deleting an image that is already gone succeeds.
func (s *LocalStore) DeleteImage(ctx context.Context, reference string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reference == "" || reference != filepath.Base(reference) || strings.HasPrefix(reference, ".") {
		return fmt.Errorf("%q: %w", reference, ErrInvalidReference)
	}
	err := os.Remove(filepath.Join(s.dir, reference))
	if errors.Is(err, os.ErrNotExist) {
		log.Warnf("image %s already deleted", reference)
		return nil
	}
	if err != nil {
		log.Errorf("failed to delete image %s: %v", reference, err)
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// Path returns where the image with the given reference is stored.
func (s *LocalStore) Path(reference string) string {
	return filepath.Join(s.dir, filepath.Base(reference))
}

func decodeResource(resource string) ([]byte, error) {
	resource = strings.TrimSpace(resource)
	if strings.HasPrefix(resource, "data:") {
		comma := strings.IndexByte(resource, ',')
		if comma < 0 || !strings.HasSuffix(resource[:comma], ";base64") {
			return nil, ErrInvalidEncoding
		}
		resource = resource[comma+1:]
	}
	if resource == "" {
		return nil, ErrEmptyResource
	}
	data, err := base64.StdEncoding.DecodeString(resource)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(resource)
	}
	if err != nil {
		return nil, errors.Join(ErrInvalidEncoding, err)
	}
	return data, nil
}
