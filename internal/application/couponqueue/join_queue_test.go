package couponqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/application/couponqueue"
	"github.com/hyunsookim/commerce/internal/domain/coupon"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/queue"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
	"github.com/hyunsookim/commerce/internal/testutil"
)

type joinQueueFixture struct {
	coupons *testutil.MockCouponRepository
	entries *testutil.MockQueueRepository
	outbox  *testutil.MockOutboxRepository
	uc      *couponqueue.JoinQueueUseCase
}

func newJoinQueueFixture() *joinQueueFixture {
	coupons := testutil.NewMockCouponRepository()
	entries := testutil.NewMockQueueRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	uc := couponqueue.NewJoinQueueUseCase(
		coupons, entries, outboxRepo,
		testutil.NewMockTransactionManager(), zerolog.Nop(), metrics,
	)
	return &joinQueueFixture{coupons: coupons, entries: entries, outbox: outboxRepo, uc: uc}
}

func issuableCoupon() *coupon.Coupon {
	return &coupon.Coupon{
		ID:            uuid.New(),
		Name:          "launch",
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: 1000,
		TotalCount:    5,
		ExpiresAt:     time.Now().Add(time.Hour),
	}
}

func TestJoinQueueUseCase_Execute_AssignsSequentialNumbers(t *testing.T) {
	f := newJoinQueueFixture()
	c := issuableCoupon()
	f.coupons.AddCoupon(c)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		entry, err := f.uc.Execute(ctx, c.ID, uuid.New())
		if err != nil {
			t.Fatalf("join %d: %v", want, err)
		}
		if entry.QueueNumber != want {
			t.Errorf("queue number = %d, want %d", entry.QueueNumber, want)
		}
		if entry.Status != queue.StatusWaiting {
			t.Errorf("status = %s, want waiting", entry.Status)
		}
	}

	// Each join commits a QUEUE_ENTERED and a COUPON_ISSUE_REQUESTED pair.
	types := f.outbox.AppendedTypes()
	if len(types) != 6 {
		t.Fatalf("appended %d events, want 6", len(types))
	}
	for i := 0; i < len(types); i += 2 {
		if types[i] != event.TypeQueueEntered || types[i+1] != event.TypeCouponIssueRequested {
			t.Fatalf("events %d,%d = %s,%s, want QUEUE_ENTERED,COUPON_ISSUE_REQUESTED",
				i, i+1, types[i], types[i+1])
		}
	}
}

func TestJoinQueueUseCase_Execute_EmitsIssueRequestForEntry(t *testing.T) {
	f := newJoinQueueFixture()
	c := issuableCoupon()
	f.coupons.AddCoupon(c)
	userID := uuid.New()

	entry, err := f.uc.Execute(context.Background(), c.ID, userID)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var req *event.CouponIssueRequested
	for _, r := range f.outbox.Appended() {
		if r.EventType != event.TypeCouponIssueRequested {
			continue
		}
		decoded, err := r.Envelope().Decode()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		ev := decoded.(event.CouponIssueRequested)
		req = &ev
	}
	if req == nil {
		t.Fatal("no COUPON_ISSUE_REQUESTED appended")
	}
	// The request id is the entry id, so the drain's CouponIssued and
	// CouponIssueFailed events settle this exact request.
	if req.RequestID != entry.ID.String() {
		t.Errorf("request id = %s, want entry id %s", req.RequestID, entry.ID)
	}
	if req.CouponID != c.ID || req.UserID != userID {
		t.Errorf("request coupon/user = %s/%s, want %s/%s", req.CouponID, req.UserID, c.ID, userID)
	}
}

func TestJoinQueueUseCase_Execute_HolderOfCouponRejected(t *testing.T) {
	f := newJoinQueueFixture()
	c := issuableCoupon()
	f.coupons.AddCoupon(c)
	userID := uuid.New()
	f.coupons.AddUserCoupon(coupon.NewUserCoupon(userID, c.ID))

	_, err := f.uc.Execute(context.Background(), c.ID, userID)
	if !errors.Is(err, domainErrors.ErrCouponAlreadyIssued) {
		t.Errorf("Execute() error = %v, want ErrCouponAlreadyIssued", err)
	}
	if n := len(f.outbox.Appended()); n != 0 {
		t.Errorf("appended %d events for rejected join, want 0", n)
	}
}

func TestJoinQueueUseCase_Execute_DuplicateJoin(t *testing.T) {
	f := newJoinQueueFixture()
	c := issuableCoupon()
	f.coupons.AddCoupon(c)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.uc.Execute(ctx, c.ID, userID); err != nil {
		t.Fatalf("first join: %v", err)
	}
	_, err := f.uc.Execute(ctx, c.ID, userID)
	if !errors.Is(err, domainErrors.ErrAlreadyInQueue) {
		t.Errorf("second join error = %v, want ErrAlreadyInQueue", err)
	}
}

func TestJoinQueueUseCase_Execute_ExhaustedCouponRejected(t *testing.T) {
	f := newJoinQueueFixture()
	c := issuableCoupon()
	c.IssuedCount = c.TotalCount
	f.coupons.AddCoupon(c)

	_, err := f.uc.Execute(context.Background(), c.ID, uuid.New())
	if !errors.Is(err, domainErrors.ErrCouponExhausted) {
		t.Errorf("Execute() error = %v, want ErrCouponExhausted", err)
	}
	if n := len(f.outbox.Appended()); n != 0 {
		t.Errorf("appended %d events for rejected join, want 0", n)
	}
}

func TestJoinQueueUseCase_Execute_ExpiredCouponRejected(t *testing.T) {
	f := newJoinQueueFixture()
	c := issuableCoupon()
	c.ExpiresAt = time.Now().Add(-time.Minute)
	f.coupons.AddCoupon(c)

	_, err := f.uc.Execute(context.Background(), c.ID, uuid.New())
	if !errors.Is(err, domainErrors.ErrCouponExhausted) {
		t.Errorf("Execute() error = %v, want ErrCouponExhausted", err)
	}
}

func TestJoinQueueUseCase_Execute_UnknownCoupon(t *testing.T) {
	f := newJoinQueueFixture()

	_, err := f.uc.Execute(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, domainErrors.ErrCouponNotFound) {
		t.Errorf("Execute() error = %v, want ErrCouponNotFound", err)
	}
}
