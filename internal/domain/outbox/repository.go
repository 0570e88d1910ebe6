package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for outbox records.
//
// Append must run inside the caller's transaction (via the tx-aware context)
// so the record and the business mutation commit atomically. Appending
// outside that transaction reintroduces the dual-write problem the outbox
// exists to prevent.
type Repository interface {
	Append(ctx context.Context, rec *Record) error
	// ClaimPending atomically flips up to limit due records (pending, or
	// processing but stale) to processing and returns them ordered by
	// (aggregate_id, created_at). Records claimed by another worker are
	// skipped.
	ClaimPending(ctx context.Context, limit int) ([]*Record, error)
	MarkSuccess(ctx context.Context, id uuid.UUID) error
	// MarkAttemptFailed increments the retry count and either requeues the
	// record as pending or, past its ceiling, parks it as failed.
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string) error
	// Requeue returns a claimed record to pending without charging a retry.
	// Used for records skipped to preserve per-aggregate ordering.
	Requeue(ctx context.Context, id uuid.UUID) error
	// CountByStatus is used by the operational alert path.
	CountByStatus(ctx context.Context, status Status) (int64, error)
}
