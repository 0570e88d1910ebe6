package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/application/relay"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/infrastructure/config"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
	"github.com/hyunsookim/commerce/internal/testutil"
)

func testRelayConfig() *config.RelayConfig {
	return &config.RelayConfig{
		PollInterval:            time.Second,
		BatchSize:               50,
		MaxRetries:              3,
		StaleAfter:              2 * time.Minute,
		CircuitBreakerThreshold: 100,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

func newRelay(repo outbox.Repository, pub relay.Publisher) *relay.Relay {
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	return relay.New(repo, pub, testRelayConfig(), zerolog.Nop(), metrics)
}

func appendRecord(t *testing.T, repo *testutil.MockOutboxRepository, e event.Event) *outbox.Record {
	t.Helper()
	env, err := event.Wrap(e)
	if err != nil {
		t.Fatalf("wrap event: %v", err)
	}
	rec := outbox.NewRecord(env)
	if err := repo.Append(context.Background(), rec); err != nil {
		t.Fatalf("append record: %v", err)
	}
	return rec
}

func TestRelay_ProcessBatch_PublishesInOrder(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()

	orderID := uuid.New()
	appendRecord(t, repo, event.OrderCreated{OrderID: orderID, TotalAmount: 100, FinalAmount: 100})
	appendRecord(t, repo, event.StockReserved{OrderID: orderID, ReservationID: uuid.New()})

	r := newRelay(repo, pub)
	if err := r.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	published := pub.Published()
	if len(published) != 2 {
		t.Fatalf("published %d events, want 2", len(published))
	}
	if published[0].Type != event.TypeOrderCreated || published[1].Type != event.TypeStockReserved {
		t.Errorf("published out of order: %s, %s", published[0].Type, published[1].Type)
	}

	for _, rec := range repo.Appended() {
		if rec.Status != outbox.StatusSuccess {
			t.Errorf("record %s status = %s, want success", rec.EventType, rec.Status)
		}
	}
}

func TestRelay_ProcessBatch_FailureBlocksAggregate(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()

	orderID := uuid.New()
	otherOrderID := uuid.New()
	first := appendRecord(t, repo, event.OrderCreated{OrderID: orderID, TotalAmount: 100, FinalAmount: 100})
	second := appendRecord(t, repo, event.StockReserved{OrderID: orderID, ReservationID: uuid.New()})
	other := appendRecord(t, repo, event.OrderCreated{OrderID: otherOrderID, TotalAmount: 200, FinalAmount: 200})

	var published []event.Envelope
	pub.PublishEnvelopeFunc = func(ctx context.Context, env event.Envelope) error {
		if env.EventID == first.EventID {
			return errors.New("broker unavailable")
		}
		published = append(published, env)
		return nil
	}

	r := newRelay(repo, pub)
	if err := r.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	// The failed record is charged a retry; the one behind it on the same
	// aggregate is requeued without one so it cannot overtake.
	if first.Status != outbox.StatusPending || first.RetryCount != 1 {
		t.Errorf("first record status=%s retries=%d, want pending/1", first.Status, first.RetryCount)
	}
	if second.Status != outbox.StatusPending || second.RetryCount != 0 {
		t.Errorf("second record status=%s retries=%d, want pending/0", second.Status, second.RetryCount)
	}

	// The unrelated aggregate still goes out.
	if other.Status != outbox.StatusSuccess {
		t.Errorf("other aggregate status = %s, want success", other.Status)
	}
	if len(published) != 1 || published[0].EventID != other.EventID {
		t.Errorf("published = %v, want only the unrelated aggregate", published)
	}
}

func TestRelay_ProcessBatch_RetrySucceeds(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()

	rec := appendRecord(t, repo, event.OrderConfirmed{OrderID: uuid.New()})

	attempts := 0
	pub.PublishEnvelopeFunc = func(ctx context.Context, env event.Envelope) error {
		attempts++
		if attempts == 1 {
			return errors.New("broker unavailable")
		}
		return nil
	}

	r := newRelay(repo, pub)
	ctx := context.Background()

	if err := r.ProcessBatch(ctx); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if rec.Status != outbox.StatusPending {
		t.Fatalf("record status = %s after failed attempt, want pending", rec.Status)
	}

	if err := r.ProcessBatch(ctx); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if rec.Status != outbox.StatusSuccess {
		t.Errorf("record status = %s after retry, want success", rec.Status)
	}
	if rec.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", rec.RetryCount)
	}
}

func TestRelay_ProcessBatch_ExhaustedRecordParksFailed(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()
	pub.PublishEnvelopeFunc = func(ctx context.Context, env event.Envelope) error {
		return errors.New("broker unavailable")
	}

	rec := appendRecord(t, repo, event.OrderConfirmed{OrderID: uuid.New()})

	r := newRelay(repo, pub)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := r.ProcessBatch(ctx); err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
	}

	if rec.Status != outbox.StatusFailed {
		t.Errorf("record status = %s after exhausting retries, want failed", rec.Status)
	}

	// A parked record is never claimed again.
	pub.PublishEnvelopeFunc = nil
	if err := r.ProcessBatch(ctx); err != nil {
		t.Fatalf("final batch: %v", err)
	}
	if len(pub.Published()) != 0 {
		t.Errorf("parked record was republished")
	}
}
