package couponqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hyunsookim/commerce/internal/application/couponqueue"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/queue"
	"github.com/hyunsookim/commerce/internal/testutil"
)

func TestQueueStatusUseCase_Execute_WaitingPosition(t *testing.T) {
	entries := testutil.NewMockQueueRepository()
	uc := couponqueue.NewQueueStatusUseCase(entries)
	couponID := uuid.New()

	// Numbers 1..4; number 2 already completed, so number 4 has two ahead.
	var fourth *queue.Entry
	for n := int64(1); n <= 4; n++ {
		e := queue.NewEntry(couponID, uuid.New(), n)
		if n == 2 {
			e.Status = queue.StatusCompleted
		}
		entries.AddEntry(e)
		if n == 4 {
			fourth = e
		}
	}

	status, err := uc.Execute(context.Background(), couponID, fourth.UserID)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if status.Entry.QueueNumber != 4 {
		t.Errorf("queue number = %d, want 4", status.Entry.QueueNumber)
	}
	if status.EstimatedPosition != 3 {
		t.Errorf("estimated position = %d, want 3", status.EstimatedPosition)
	}
}

func TestQueueStatusUseCase_Execute_TerminalEntryHasNoPosition(t *testing.T) {
	entries := testutil.NewMockQueueRepository()
	uc := couponqueue.NewQueueStatusUseCase(entries)

	e := queue.NewEntry(uuid.New(), uuid.New(), 7)
	e.Status = queue.StatusProcessing
	if err := e.MarkCompleted(time.Now()); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	entries.AddEntry(e)

	status, err := uc.Execute(context.Background(), e.CouponID, e.UserID)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if status.EstimatedPosition != 0 {
		t.Errorf("estimated position = %d for completed entry, want 0", status.EstimatedPosition)
	}
}

func TestQueueStatusUseCase_Execute_NotInQueue(t *testing.T) {
	entries := testutil.NewMockQueueRepository()
	uc := couponqueue.NewQueueStatusUseCase(entries)

	_, err := uc.Execute(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, domainErrors.ErrQueueEntryNotFound) {
		t.Errorf("Execute() error = %v, want ErrQueueEntryNotFound", err)
	}
}
