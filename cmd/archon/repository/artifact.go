package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/db"
)

// ArtifactRepository handles database operations for content-addressed blobs
type ArtifactRepository struct {
	db *db.DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *db.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create inserts a blob. Duplicate content is a no-op thanks to the
// content-derived primary key.
func (r *ArtifactRepository) Create(ctx context.Context, blob *models.ArtifactBlob) error {
	query := `
		INSERT INTO artifact_blob (cas_id, media_type, size_bytes, content, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cas_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		blob.CasID,
		blob.MediaType,
		blob.SizeBytes,
		blob.Content,
		blob.CreatedBy,
		blob.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create artifact blob: %w", err)
	}

	return nil
}

// GetByID retrieves a blob by its CAS ID
func (r *ArtifactRepository) GetByID(ctx context.Context, casID string) (*models.ArtifactBlob, error) {
	query := `
		SELECT cas_id, media_type, size_bytes, content, created_by, created_at
		FROM artifact_blob
		WHERE cas_id = $1
	`

	blob := &models.ArtifactBlob{}
	err := r.db.QueryRow(ctx, query, casID).Scan(
		&blob.CasID,
		&blob.MediaType,
		&blob.SizeBytes,
		&blob.Content,
		&blob.CreatedBy,
		&blob.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", casID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact blob: %w", err)
	}

	return blob, nil
}

// Exists checks if a blob exists
func (r *ArtifactRepository) Exists(ctx context.Context, casID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM artifact_blob WHERE cas_id = $1)`

	var exists bool
	err := r.db.QueryRow(ctx, query, casID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check artifact existence: %w", err)
	}

	return exists, nil
}

// GetContentByID retrieves only the content of a blob
func (r *ArtifactRepository) GetContentByID(ctx context.Context, casID string) ([]byte, error) {
	query := `SELECT content FROM artifact_blob WHERE cas_id = $1`

	var content []byte
	err := r.db.QueryRow(ctx, query, casID).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", casID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact content: %w", err)
	}

	return content, nil
}
