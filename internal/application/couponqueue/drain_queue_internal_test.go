package couponqueue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/domain/coupon"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/queue"
	"github.com/hyunsookim/commerce/internal/infrastructure/config"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
	"github.com/hyunsookim/commerce/internal/testutil"
)

// The Redis lock is only touched by DrainCoupon, so serving entries is
// exercised directly with a nil client.
type drainFixture struct {
	coupons *testutil.MockCouponRepository
	entries *testutil.MockQueueRepository
	outbox  *testutil.MockOutboxRepository
	s       *DrainScheduler
}

func newDrainFixture() *drainFixture {
	coupons := testutil.NewMockCouponRepository()
	entries := testutil.NewMockQueueRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	cfg := &config.QueueConfig{
		DrainInterval:  time.Second,
		DrainBatchSize: 100,
		LockTTL:        5 * time.Second,
	}
	s := NewDrainScheduler(
		coupons, entries, outboxRepo,
		testutil.NewMockTransactionManager(), nil, cfg, zerolog.Nop(), metrics,
	)
	return &drainFixture{coupons: coupons, entries: entries, outbox: outboxRepo, s: s}
}

func seedQueue(t *testing.T, f *drainFixture, totalCount, waiting int) (*coupon.Coupon, []*queue.Entry) {
	t.Helper()
	c := &coupon.Coupon{
		ID:            uuid.New(),
		Name:          "flash sale",
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: 500,
		TotalCount:    totalCount,
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	f.coupons.AddCoupon(c)

	all := make([]*queue.Entry, 0, waiting)
	for n := 1; n <= waiting; n++ {
		e := queue.NewEntry(c.ID, uuid.New(), int64(n))
		f.entries.AddEntry(e)
		all = append(all, e)
	}
	return c, all
}

func drainClaimed(t *testing.T, f *drainFixture, couponID uuid.UUID) {
	t.Helper()
	if err := f.s.drainBatch(context.Background(), couponID, nil); err != nil {
		t.Fatalf("drain batch: %v", err)
	}
}

func TestDrainScheduler_ServesInQueueOrder(t *testing.T) {
	f := newDrainFixture()
	c, entries := seedQueue(t, f, 10, 3)

	drainClaimed(t, f, c.ID)

	for _, e := range entries {
		if got := f.entries.GetEntry(e.ID).Status; got != queue.StatusCompleted {
			t.Errorf("entry %d status = %s, want completed", e.QueueNumber, got)
		}
	}

	// One CouponIssued and one QueueProcessed per entry, interleaved by serve
	// order. QueueProcessed numbers must come out 1, 2, 3.
	var numbers []int64
	for _, r := range f.outbox.Appended() {
		if r.EventType != event.TypeQueueProcessed {
			continue
		}
		decoded, err := r.Envelope().Decode()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		numbers = append(numbers, decoded.(event.QueueProcessed).QueueNumber)
	}
	if len(numbers) != 3 {
		t.Fatalf("got %d QUEUE_PROCESSED events, want 3", len(numbers))
	}
	for i, n := range numbers {
		if n != int64(i+1) {
			t.Fatalf("processed order = %v, want [1 2 3]", numbers)
		}
	}
}

func TestDrainScheduler_ExhaustionFailsRemainder(t *testing.T) {
	f := newDrainFixture()
	c, entries := seedQueue(t, f, 2, 5)

	drainClaimed(t, f, c.ID)

	for _, e := range entries[:2] {
		if got := f.entries.GetEntry(e.ID).Status; got != queue.StatusCompleted {
			t.Errorf("entry %d status = %s, want completed", e.QueueNumber, got)
		}
	}
	for _, e := range entries[2:] {
		got := f.entries.GetEntry(e.ID)
		if got.Status != queue.StatusFailed {
			t.Errorf("entry %d status = %s, want failed", e.QueueNumber, got.Status)
		}
		if got.FailedReason == nil || *got.FailedReason == "" {
			t.Errorf("entry %d has no failure reason", e.QueueNumber)
		}
	}

	var issued, failed int
	for _, typ := range f.outbox.AppendedTypes() {
		switch typ {
		case event.TypeCouponIssued:
			issued++
		case event.TypeCouponIssueFailed:
			failed++
		}
	}
	if issued != 2 || failed != 3 {
		t.Errorf("issued/failed events = %d/%d, want 2/3", issued, failed)
	}
}

func TestDrainScheduler_BatchLeavesRemainderWaiting(t *testing.T) {
	f := newDrainFixture()
	f.s.batchSize = 2
	c, entries := seedQueue(t, f, 10, 5)

	drainClaimed(t, f, c.ID)

	for _, e := range entries[:2] {
		if got := f.entries.GetEntry(e.ID).Status; got != queue.StatusCompleted {
			t.Errorf("entry %d status = %s, want completed", e.QueueNumber, got)
		}
	}
	waiting, err := f.entries.CountByStatus(context.Background(), c.ID, queue.StatusWaiting)
	if err != nil {
		t.Fatalf("count waiting: %v", err)
	}
	if waiting != 3 {
		t.Errorf("waiting after batch = %d, want 3", waiting)
	}
}

func TestDrainScheduler_IssuedCountStopsAtTotal(t *testing.T) {
	f := newDrainFixture()
	c, _ := seedQueue(t, f, 3, 5)

	drainClaimed(t, f, c.ID)

	got, err := f.coupons.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get coupon: %v", err)
	}
	if got.IssuedCount != 3 {
		t.Errorf("issued count = %d, want 3", got.IssuedCount)
	}
}
