package queue

import (
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
)

// Status of an admission queue entry.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is one user's place in a coupon's admission queue. QueueNumber is
// assigned from a transactional per-coupon counter, so numbers are unique and
// gap-free and ordering them reproduces arrival order exactly.
type Entry struct {
	ID           uuid.UUID
	CouponID     uuid.UUID
	UserID       uuid.UUID
	QueueNumber  int64
	Status       Status
	FailedReason *string
	EnteredAt    time.Time
	ProcessedAt  *time.Time
}

func NewEntry(couponID, userID uuid.UUID, queueNumber int64) *Entry {
	return &Entry{
		ID:          uuid.New(),
		CouponID:    couponID,
		UserID:      userID,
		QueueNumber: queueNumber,
		Status:      StatusWaiting,
		EnteredAt:   time.Now(),
	}
}

// MarkProcessing claims the entry for a drain pass.
func (e *Entry) MarkProcessing() error {
	if e.Status != StatusWaiting {
		return domainErrors.ErrInvalidStateTransition
	}
	e.Status = StatusProcessing
	return nil
}

// MarkCompleted records a successful issuance.
func (e *Entry) MarkCompleted(now time.Time) error {
	if e.Status != StatusProcessing {
		return domainErrors.ErrInvalidStateTransition
	}
	e.Status = StatusCompleted
	e.ProcessedAt = &now
	return nil
}

// MarkFailed records why the entry could not be served.
func (e *Entry) MarkFailed(reason string, now time.Time) error {
	if e.Status != StatusProcessing && e.Status != StatusWaiting {
		return domainErrors.ErrInvalidStateTransition
	}
	e.Status = StatusFailed
	e.FailedReason = &reason
	e.ProcessedAt = &now
	return nil
}

// Terminal reports whether the entry will never change again.
func (e *Entry) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}
