package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petgroove/petgroove-api/internal/pkg/imaging"
	"github.com/petgroove/petgroove-api/internal/pkg/storage"
)

// Service normalizes pet photos and stores them
type Service struct {
	processor *imaging.Processor
	store     storage.Storage
}

// NewService creates upload service
func NewService(processor *imaging.Processor, store storage.Storage) *Service {
	return &Service{processor: processor, store: store}
}

// Result is the stored image
type Result struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Store processes the image and writes it under the user's prefix
func (s *Service) Store(ctx context.Context, userID uuid.UUID, filename string, reader io.Reader) (*Result, error) {
	processed, err := s.processor.Process(reader)
	if err != nil {
		return nil, ErrInvalidImage
	}

	key := fmt.Sprintf("pets/%s/%d%s", userID, time.Now().UnixNano(), extensionFor(processed.ContentType, filename))
	if err := s.store.Save(ctx, key, bytes.NewReader(processed.Data), processed.ContentType); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	return &Result{
		URL:    s.store.GetURL(key),
		Width:  processed.Width,
		Height: processed.Height,
	}, nil
}

// extensionFor keeps the normalized content type and stored extension
// in agreement regardless of what the client named the file.
func extensionFor(contentType, filename string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/jpeg":
		return ".jpg"
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	return ".jpg"
}
