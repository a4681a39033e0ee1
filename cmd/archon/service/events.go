package service

import (
	"context"
	"time"

	"github.com/archonhq/archon/common/logger"
	rediscommon "github.com/archonhq/archon/common/redis"
)

// EventStream is the Redis stream domain events are appended to
const EventStream = "archon.events"

// Event types published by the services
const (
	EventWorkflowCreated    = "workflow.created"
	EventWorkflowMerged     = "workflow.merged"
	EventWorkflowRolledBack = "workflow.rolled_back"
	EventPipelineCompleted  = "pipeline.completed"
)

// Events publishes domain events onto a Redis stream. Publishing is
// best-effort: failures are logged, never surfaced, so a flaky stream
// cannot fail a write that already committed.
type Events struct {
	redis   *rediscommon.Client
	log     *logger.Logger
	enabled bool
}

// NewEvents creates an event publisher. A nil client or enabled=false
// turns publishing into a no-op.
func NewEvents(redis *rediscommon.Client, log *logger.Logger, enabled bool) *Events {
	return &Events{redis: redis, log: log, enabled: enabled}
}

// Publish appends one event entry to the stream
func (e *Events) Publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if !e.enabled || e.redis == nil {
		return
	}

	values := map[string]interface{}{
		"event":       eventType,
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range payload {
		values[k] = v
	}

	if _, err := e.redis.AddToStream(ctx, EventStream, values); err != nil {
		e.log.Warn("failed to publish event", "event", eventType, "error", err)
	}
}
