package research

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayush/research-assistant/backend/internal/models"
)

// uploadPrefix is the object-key prefix for uploaded files.
const uploadPrefix = "uploads/"

// RegisterFile stores the bytes and records their metadata. The storage path
// is the object key, which the fallback backend reads excerpts from.
func (s *Service) RegisterFile(ctx context.Context, filename, contentType string, data []byte) (*models.UploadResponse, error) {
	id := uuid.NewString()
	ext := filepath.Ext(filename)
	key := uploadPrefix + id + ext

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detectMime(ext, data)
	}

	if err := s.blobs.Upload(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("store file bytes: %w", err)
	}

	meta := &models.File{
		ID:           id,
		OriginalName: filename,
		StoragePath:  key,
		MimeType:     contentType,
		Size:         int64(len(data)),
		UploadedAt:   s.now(),
	}
	if err := s.files.InsertFile(ctx, meta); err != nil {
		if rerr := s.blobs.Remove(ctx, key); rerr != nil {
			s.log.Warn("remove orphaned upload", zap.String("key", key), zap.Error(rerr))
		}
		return nil, fmt.Errorf("store file metadata: %w", err)
	}

	return &models.UploadResponse{FileID: id, Filename: filename}, nil
}

func detectMime(ext string, data []byte) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
