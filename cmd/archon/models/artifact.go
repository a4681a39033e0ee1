package models

import "time"

// MediaTypeCanonicalSpec is the media type for build-stage artifacts
const MediaTypeCanonicalSpec = "application/vnd.archon.spec.canonical+json"

// ArtifactBlob is content-addressed storage for build artifacts.
// Maps to: artifact_blob table.
//
// CasID is "sha256:<hex>" of the content, so identical canonical specs
// dedupe to a single row.
type ArtifactBlob struct {
	CasID     string  `db:"cas_id" json:"cas_id"`
	MediaType string  `db:"media_type" json:"media_type"`
	SizeBytes int64   `db:"size_bytes" json:"size_bytes"`
	Content   []byte  `db:"content" json:"-"`
	CreatedBy *string `db:"created_by" json:"created_by,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
