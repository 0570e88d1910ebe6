package couponqueue

import (
	"context"

	"github.com/google/uuid"

	"github.com/hyunsookim/commerce/internal/domain/queue"
)

// QueueStatus is the answer to "where am I in line".
type QueueStatus struct {
	Entry *queue.Entry
	// EstimatedPosition is 1-based among waiting entries; zero once the
	// entry left the waiting state. It is an estimate: entries ahead can
	// fail and shrink the line between query and drain.
	EstimatedPosition int64
}

// QueueStatusUseCase answers queue position queries.
type QueueStatusUseCase struct {
	entries queue.Repository
}

func NewQueueStatusUseCase(entries queue.Repository) *QueueStatusUseCase {
	return &QueueStatusUseCase{entries: entries}
}

func (uc *QueueStatusUseCase) Execute(ctx context.Context, couponID, userID uuid.UUID) (*QueueStatus, error) {
	entry, err := uc.entries.GetByCouponAndUser(ctx, couponID, userID)
	if err != nil {
		return nil, err
	}

	status := &QueueStatus{Entry: entry}
	if entry.Status == queue.StatusWaiting {
		ahead, err := uc.entries.CountWaitingBefore(ctx, couponID, entry.QueueNumber)
		if err != nil {
			return nil, err
		}
		status.EstimatedPosition = ahead + 1
	}
	return status, nil
}
