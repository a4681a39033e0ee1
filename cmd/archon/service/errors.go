package service

import (
	"errors"
	"fmt"

	"github.com/archonhq/archon/cmd/archon/repository"
	"github.com/archonhq/archon/common/merge"
	"github.com/archonhq/archon/common/ratelimit"
)

// NotFoundError reports a missing entity. Handlers map it to 404.
type NotFoundError struct {
	Resource string
	Ref      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Ref)
}

// ValidationError reports a request that parsed but is semantically
// invalid. Handlers map it to 422.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ConflictError reports a state conflict: a stale optimistic lock, active
// runs blocking a rollback, or a pipeline already holding the workflow
// lock. Handlers map it to 409.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// ForbiddenError reports an operation the caller may not perform, such as
// merging into a protected branch or rolling back without the editor role.
// Handlers map it to 403.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// MergeConflictError carries the unresolved conflicts of a rejected merge.
// Nothing is persisted when it is returned; callers resubmit with a
// conflict resolution. Handlers map it to 409 with the conflict list.
type MergeConflictError struct {
	Conflicts []merge.Conflict
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge has %d unresolved conflicts", len(e.Conflicts))
}

// RateLimitError reports an exhausted rate-limit window. Handlers map it
// to 429 with a Retry-After hint.
type RateLimitError struct {
	Tier              ratelimit.WorkflowTier
	Limit             int64
	CurrentCount      int64
	RetryAfterSeconds int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s tier allows %d requests/minute, retry after %d seconds",
		e.Tier, e.Limit, e.RetryAfterSeconds)
}

// mapNotFound converts the store's not-found sentinel into a typed
// NotFoundError; anything else passes through already wrapped.
func mapNotFound(err error, resource, ref string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Resource: resource, Ref: ref}
	}
	return err
}
