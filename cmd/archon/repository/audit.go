package repository

import (
	"context"
	"fmt"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/db"
)

// AuditRepository handles database operations for audit records
type AuditRepository struct {
	db *db.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *db.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit record
func (r *AuditRepository) Create(ctx context.Context, record *models.AuditRecord) error {
	query := `
		INSERT INTO audit_record (id, action, entity_type, entity_id, user_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.Action,
		record.EntityType,
		record.EntityID,
		record.UserID,
		record.Details,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}

	return nil
}

// ListByEntity retrieves the audit trail for one entity, newest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditRecord, error) {
	query := `
		SELECT id, action, entity_type, entity_id, user_id, details, created_at
		FROM audit_record
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		record := &models.AuditRecord{}
		err := rows.Scan(
			&record.ID,
			&record.Action,
			&record.EntityType,
			&record.EntityID,
			&record.UserID,
			&record.Details,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return records, nil
}

// List retrieves recent audit records across all entities
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error) {
	query := `
		SELECT id, action, entity_type, entity_id, user_id, details, created_at
		FROM audit_record
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		record := &models.AuditRecord{}
		err := rows.Scan(
			&record.ID,
			&record.Action,
			&record.EntityType,
			&record.EntityID,
			&record.UserID,
			&record.Details,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return records, nil
}
