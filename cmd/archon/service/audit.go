package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/logger"
)

// AuditService reads the append-only audit trail
type AuditService struct {
	repo AuditStore
	log  *logger.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo AuditStore, log *logger.Logger) *AuditService {
	return &AuditService{repo: repo, log: log}
}

// ListForWorkflow returns the audit trail of one workflow, newest first
func (s *AuditService) ListForWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	records, err := s.repo.ListByEntity(ctx, "workflow", workflowID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	return records, nil
}

// List returns recent audit records across all entities
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	records, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	return records, nil
}

// writeAudit appends one audit record. Audit failures are logged but never
// fail the operation they describe.
func writeAudit(ctx context.Context, store AuditStore, log *logger.Logger, action, entityType, entityID string, userID *string, details map[string]interface{}) {
	var detailJSON json.RawMessage
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			log.Warn("failed to marshal audit details", "action", action, "error", err)
		} else {
			detailJSON = raw
		}
	}

	record := &models.AuditRecord{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Details:    detailJSON,
		CreatedAt:  time.Now(),
	}

	if err := store.Create(ctx, record); err != nil {
		log.Warn("failed to write audit record", "action", action, "entity_id", entityID, "error", err)
	}
}
