package saga_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hyunsookim/commerce/internal/application/saga"
	"github.com/hyunsookim/commerce/internal/domain/account"
	"github.com/hyunsookim/commerce/internal/domain/coupon"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/product"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
	"github.com/hyunsookim/commerce/internal/testutil"
)

// freshMarker always reports the event as unseen. Participant failure paths
// run two transactions against the same marker; the real marker's first write
// rolls back with the failed reservation, which in-memory mocks cannot mimic.
func freshMarker() *testutil.MockProcessedMarker {
	m := testutil.NewMockProcessedMarker()
	m.MarkProcessedFunc = func(ctx context.Context, group string, eventID uuid.UUID) (bool, error) {
		return true, nil
	}
	return m
}

func orderCreated(orderID, userID uuid.UUID, amount int64, userCouponID *uuid.UUID) event.OrderCreated {
	return event.OrderCreated{
		OrderID:      orderID,
		UserID:       userID,
		Items:        []event.OrderItem{{ProductID: uuid.New(), Quantity: 2, UnitPrice: amount / 2}},
		TotalAmount:  amount,
		FinalAmount:  amount,
		UserCouponID: userCouponID,
	}
}

// --- Stock participant ---

func TestStockParticipant_Reserve(t *testing.T) {
	products := testutil.NewMockProductRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewStockParticipant("stock-service", products, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	productID := uuid.New()
	products.AddProduct(&product.Product{ID: productID, Name: "widget", Price: 1000, Stock: 10})

	orderID := uuid.New()
	ev := event.OrderCreated{
		OrderID:     orderID,
		UserID:      uuid.New(),
		Items:       []event.OrderItem{{ProductID: productID, Quantity: 3, UnitPrice: 1000}},
		TotalAmount: 3000,
		FinalAmount: 3000,
	}
	if err := p.HandleEnvelope(context.Background(), wrap(t, ev)); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	if got := products.GetProduct(productID).Stock; got != 7 {
		t.Errorf("stock = %d, want 7", got)
	}

	types := outboxRepo.AppendedTypes()
	if len(types) != 1 || types[0] != event.TypeStockReserved {
		t.Fatalf("appended = %v, want one STOCK_RESERVED", types)
	}

	res, err := products.GetReservationByOrderID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("reservation not recorded: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Quantity != 3 {
		t.Errorf("reservation items = %v", res.Items)
	}
}

func TestStockParticipant_InsufficientStock_ReportsFailure(t *testing.T) {
	products := testutil.NewMockProductRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewStockParticipant("stock-service", products, outboxRepo,
		freshMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	productID := uuid.New()
	products.AddProduct(&product.Product{ID: productID, Name: "widget", Price: 1000, Stock: 1})

	ev := event.OrderCreated{
		OrderID:     uuid.New(),
		UserID:      uuid.New(),
		Items:       []event.OrderItem{{ProductID: productID, Quantity: 5, UnitPrice: 1000}},
		TotalAmount: 5000,
		FinalAmount: 5000,
	}
	if err := p.HandleEnvelope(context.Background(), wrap(t, ev)); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	types := outboxRepo.AppendedTypes()
	if len(types) != 1 || types[0] != event.TypeStockReservationFailed {
		t.Errorf("appended = %v, want one STOCK_RESERVATION_FAILED", types)
	}
	if got := products.GetProduct(productID).Stock; got != 1 {
		t.Errorf("stock = %d, want untouched 1", got)
	}
}

func TestStockParticipant_Compensate(t *testing.T) {
	products := testutil.NewMockProductRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewStockParticipant("stock-service", products, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	productID := uuid.New()
	products.AddProduct(&product.Product{ID: productID, Name: "widget", Price: 1000, Stock: 7})

	orderID := uuid.New()
	res := product.NewReservation(orderID, []product.ReservationItem{{ProductID: productID, Quantity: 3}})
	if err := products.CreateReservation(context.Background(), res); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	failed := event.OrderFailed{
		OrderID:        orderID,
		Reason:         "insufficient balance",
		CompletedSteps: []string{event.StepStock},
	}
	if err := p.HandleEnvelope(context.Background(), wrap(t, failed)); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	if got := products.GetProduct(productID).Stock; got != 10 {
		t.Errorf("stock = %d, want restored 10", got)
	}

	// Redelivery finds the reservation released and does nothing.
	if err := p.HandleEnvelope(context.Background(), wrap(t, failed)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := products.GetProduct(productID).Stock; got != 10 {
		t.Errorf("stock = %d after redelivery, want 10", got)
	}
}

func TestStockParticipant_Finalize_RemovesReservation(t *testing.T) {
	products := testutil.NewMockProductRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewStockParticipant("stock-service", products, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	productID := uuid.New()
	products.AddProduct(&product.Product{ID: productID, Name: "widget", Price: 1000, Stock: 7})

	orderID := uuid.New()
	res := product.NewReservation(orderID, []product.ReservationItem{{ProductID: productID, Quantity: 3}})
	if err := products.CreateReservation(context.Background(), res); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	confirmed := event.OrderConfirmed{
		OrderID: orderID,
		Steps:   event.StepSnapshot{StockReservationID: &res.ID},
	}
	if err := p.HandleEnvelope(context.Background(), wrap(t, confirmed)); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	if _, err := products.GetReservationByOrderID(context.Background(), orderID); !errors.Is(err, domainErrors.ErrReservationNotFound) {
		t.Errorf("reservation lookup after finalize = %v, want ErrReservationNotFound", err)
	}

	// A late OrderFailed must find nothing to restore.
	failed := event.OrderFailed{
		OrderID:        orderID,
		Reason:         "out-of-order redelivery",
		CompletedSteps: []string{event.StepStock},
	}
	if err := p.HandleEnvelope(context.Background(), wrap(t, failed)); err != nil {
		t.Fatalf("late compensation: %v", err)
	}
	if got := products.GetProduct(productID).Stock; got != 7 {
		t.Errorf("stock = %d after finalize and late compensation, want 7", got)
	}
}

func TestStockParticipant_Finalize_FallsBackToOrderLookup(t *testing.T) {
	products := testutil.NewMockProductRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewStockParticipant("stock-service", products, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	orderID := uuid.New()
	res := product.NewReservation(orderID, []product.ReservationItem{{ProductID: uuid.New(), Quantity: 1}})
	if err := products.CreateReservation(context.Background(), res); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	// No reservation id in the snapshot; the order id locates it.
	if err := p.HandleEnvelope(context.Background(), wrap(t, event.OrderConfirmed{OrderID: orderID})); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}
	if _, err := products.GetReservationByOrderID(context.Background(), orderID); !errors.Is(err, domainErrors.ErrReservationNotFound) {
		t.Errorf("reservation lookup after finalize = %v, want ErrReservationNotFound", err)
	}

	// A confirmation for an order with no reservation at all is a no-op.
	if err := p.HandleEnvelope(context.Background(), wrap(t, event.OrderConfirmed{OrderID: uuid.New()})); err != nil {
		t.Fatalf("finalize without reservation: %v", err)
	}
}

func TestStockParticipant_Compensate_SkipsWhenStepNotCompleted(t *testing.T) {
	products := testutil.NewMockProductRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewStockParticipant("stock-service", products, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	productID := uuid.New()
	products.AddProduct(&product.Product{ID: productID, Name: "widget", Price: 1000, Stock: 7})

	failed := event.OrderFailed{
		OrderID:        uuid.New(),
		Reason:         "stock refused",
		CompletedSteps: nil,
	}
	if err := p.HandleEnvelope(context.Background(), wrap(t, failed)); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}
	if got := products.GetProduct(productID).Stock; got != 7 {
		t.Errorf("stock = %d, want untouched 7", got)
	}
}

// --- Payment participant ---

func TestPaymentParticipant_ChargeAndRefund(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewPaymentParticipant("payment-service", accounts, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	userID := uuid.New()
	accounts.AddAccount(&account.Account{ID: uuid.New(), UserID: userID, Balance: 10000})

	orderID := uuid.New()
	ctx := context.Background()
	if err := p.HandleEnvelope(ctx, wrap(t, orderCreated(orderID, userID, 4000, nil))); err != nil {
		t.Fatalf("charge: %v", err)
	}

	if got := accounts.GetAccount(userID).Balance; got != 6000 {
		t.Fatalf("balance = %d after charge, want 6000", got)
	}
	types := outboxRepo.AppendedTypes()
	if len(types) != 1 || types[0] != event.TypePaymentCompleted {
		t.Fatalf("appended = %v, want one PAYMENT_COMPLETED", types)
	}

	failed := event.OrderFailed{
		OrderID:        orderID,
		Reason:         "coupon refused",
		CompletedSteps: []string{event.StepStock, event.StepPayment},
	}
	if err := p.HandleEnvelope(ctx, wrap(t, failed)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := accounts.GetAccount(userID).Balance; got != 10000 {
		t.Errorf("balance = %d after refund, want 10000", got)
	}

	// A second OrderFailed finds the payment already refunded.
	if err := p.HandleEnvelope(ctx, wrap(t, failed)); err != nil {
		t.Fatalf("redelivered refund: %v", err)
	}
	if got := accounts.GetAccount(userID).Balance; got != 10000 {
		t.Errorf("balance = %d after redelivered refund, want 10000", got)
	}
}

func TestPaymentParticipant_Settle_LeavesBalanceUntouched(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewPaymentParticipant("payment-service", accounts, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	userID := uuid.New()
	accounts.AddAccount(&account.Account{ID: uuid.New(), UserID: userID, Balance: 10000})

	orderID := uuid.New()
	ctx := context.Background()
	if err := p.HandleEnvelope(ctx, wrap(t, orderCreated(orderID, userID, 4000, nil))); err != nil {
		t.Fatalf("charge: %v", err)
	}

	if err := p.HandleEnvelope(ctx, wrap(t, event.OrderConfirmed{OrderID: orderID})); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if got := accounts.GetAccount(userID).Balance; got != 6000 {
		t.Errorf("balance = %d after settle, want 6000", got)
	}
	// The charge event is the only emission; settling adds nothing.
	if types := outboxRepo.AppendedTypes(); len(types) != 1 {
		t.Errorf("appended = %v, want only the charge event", types)
	}
}

func TestPaymentParticipant_InsufficientBalance_ReportsFailure(t *testing.T) {
	accounts := testutil.NewMockAccountRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewPaymentParticipant("payment-service", accounts, outboxRepo,
		freshMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	userID := uuid.New()
	accounts.AddAccount(&account.Account{ID: uuid.New(), UserID: userID, Balance: 100})

	if err := p.HandleEnvelope(context.Background(), wrap(t, orderCreated(uuid.New(), userID, 4000, nil))); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	types := outboxRepo.AppendedTypes()
	if len(types) != 1 || types[0] != event.TypePaymentFailed {
		t.Errorf("appended = %v, want one PAYMENT_FAILED", types)
	}
	if got := accounts.GetAccount(userID).Balance; got != 100 {
		t.Errorf("balance = %d, want untouched 100", got)
	}
}

// --- Coupon participant ---

func TestCouponParticipant_NoCoupon_PassesImmediately(t *testing.T) {
	coupons := testutil.NewMockCouponRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewCouponParticipant("coupon-service", coupons, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	if err := p.HandleEnvelope(context.Background(), wrap(t, orderCreated(uuid.New(), uuid.New(), 1000, nil))); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	types := outboxRepo.AppendedTypes()
	if len(types) != 1 || types[0] != event.TypeCouponUsed {
		t.Errorf("appended = %v, want one COUPON_USED", types)
	}
}

func TestCouponParticipant_UseAndRestore(t *testing.T) {
	coupons := testutil.NewMockCouponRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewCouponParticipant("coupon-service", coupons, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	userID := uuid.New()
	uc := coupon.NewUserCoupon(userID, uuid.New())
	coupons.AddUserCoupon(uc)

	orderID := uuid.New()
	ctx := context.Background()
	if err := p.HandleEnvelope(ctx, wrap(t, orderCreated(orderID, userID, 2000, &uc.ID))); err != nil {
		t.Fatalf("use: %v", err)
	}

	got := coupons.GetUserCoupon(uc.ID)
	if got.Status != coupon.UserCouponUsed {
		t.Fatalf("coupon status = %s, want used", got.Status)
	}
	if got.UsedOrderID == nil || *got.UsedOrderID != orderID {
		t.Fatalf("used order = %v, want %s", got.UsedOrderID, orderID)
	}

	failed := event.OrderFailed{
		OrderID:        orderID,
		Reason:         "insufficient stock",
		CompletedSteps: []string{event.StepPayment, event.StepCoupon},
	}
	if err := p.HandleEnvelope(ctx, wrap(t, failed)); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got = coupons.GetUserCoupon(uc.ID)
	if got.Status != coupon.UserCouponUnused {
		t.Errorf("coupon status = %s after restore, want unused", got.Status)
	}
	if got.UsedOrderID != nil {
		t.Errorf("used order = %v after restore, want nil", got.UsedOrderID)
	}
}

func TestCouponParticipant_Confirm_KeepsCouponUsed(t *testing.T) {
	coupons := testutil.NewMockCouponRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewCouponParticipant("coupon-service", coupons, outboxRepo,
		testutil.NewMockProcessedMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	userID := uuid.New()
	uc := coupon.NewUserCoupon(userID, uuid.New())
	coupons.AddUserCoupon(uc)

	orderID := uuid.New()
	ctx := context.Background()
	if err := p.HandleEnvelope(ctx, wrap(t, orderCreated(orderID, userID, 2000, &uc.ID))); err != nil {
		t.Fatalf("use: %v", err)
	}

	confirmed := event.OrderConfirmed{
		OrderID: orderID,
		Steps:   event.StepSnapshot{UserCouponID: &uc.ID},
	}
	if err := p.HandleEnvelope(ctx, wrap(t, confirmed)); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	got := coupons.GetUserCoupon(uc.ID)
	if got.Status != coupon.UserCouponUsed {
		t.Errorf("coupon status = %s after confirm, want used", got.Status)
	}
	if got.UsedOrderID == nil || *got.UsedOrderID != orderID {
		t.Errorf("used order = %v after confirm, want %s", got.UsedOrderID, orderID)
	}
}

func TestCouponParticipant_WrongOwner_ReportsFailure(t *testing.T) {
	coupons := testutil.NewMockCouponRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	p := saga.NewCouponParticipant("coupon-service", coupons, outboxRepo,
		freshMarker(), testutil.NewMockTransactionManager(), zerolog.Nop(), metrics)

	uc := coupon.NewUserCoupon(uuid.New(), uuid.New())
	coupons.AddUserCoupon(uc)

	// Order placed by someone who does not hold the coupon.
	if err := p.HandleEnvelope(context.Background(), wrap(t, orderCreated(uuid.New(), uuid.New(), 2000, &uc.ID))); err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}

	types := outboxRepo.AppendedTypes()
	if len(types) != 1 || types[0] != event.TypeCouponUsageFailed {
		t.Errorf("appended = %v, want one COUPON_USAGE_FAILED", types)
	}
	if coupons.GetUserCoupon(uc.ID).Status != coupon.UserCouponUnused {
		t.Errorf("coupon consumed by non-owner order")
	}
}
