package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/logger"
)

// ArtifactService handles content-addressed storage of build artifacts
type ArtifactService struct {
	blobs ArtifactStore
	log   *logger.Logger
}

// NewArtifactService creates a new artifact service
func NewArtifactService(blobs ArtifactStore, log *logger.Logger) *ArtifactService {
	return &ArtifactService{
		blobs: blobs,
		log:   log,
	}
}

// StoreContent stores content and returns its CAS ID. Identical content
// dedupes to the existing blob.
func (s *ArtifactService) StoreContent(ctx context.Context, content []byte, mediaType string, createdBy *string) (string, error) {
	casID := s.ComputeHash(content)

	exists, err := s.blobs.Exists(ctx, casID)
	if err != nil {
		return "", fmt.Errorf("failed to check existence: %w", err)
	}
	if exists {
		s.log.Info("artifact already stored", "cas_id", casID)
		return casID, nil
	}

	blob := &models.ArtifactBlob{
		CasID:     casID,
		MediaType: mediaType,
		SizeBytes: int64(len(content)),
		Content:   content,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	if err := s.blobs.Create(ctx, blob); err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}

	s.log.Info("stored artifact", "cas_id", casID, "size_bytes", len(content))
	return casID, nil
}

// GetContent retrieves artifact content by CAS ID
func (s *ArtifactService) GetContent(ctx context.Context, casID string) ([]byte, error) {
	content, err := s.blobs.GetContentByID(ctx, casID)
	if err != nil {
		return nil, mapNotFound(err, "artifact", casID)
	}
	return content, nil
}

// GetBlob retrieves full artifact metadata
func (s *ArtifactService) GetBlob(ctx context.Context, casID string) (*models.ArtifactBlob, error) {
	blob, err := s.blobs.GetByID(ctx, casID)
	if err != nil {
		return nil, mapNotFound(err, "artifact", casID)
	}
	return blob, nil
}

// Exists checks whether content with this CAS ID is stored
func (s *ArtifactService) Exists(ctx context.Context, casID string) (bool, error) {
	return s.blobs.Exists(ctx, casID)
}

// ComputeHash computes the SHA-256 content address without storing
func (s *ArtifactService) ComputeHash(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf("sha256:%x", hash)
}
