package order_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/order"
)

func newTestOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.New(uuid.New(), []order.Item{
		{ProductID: uuid.New(), Quantity: 2, UnitPrice: 1500},
	}, 3000, 0, nil)
	require.NoError(t, err)
	return o
}

func TestNew(t *testing.T) {
	userID := uuid.New()
	couponID := uuid.New()

	o, err := order.New(userID, []order.Item{
		{ProductID: uuid.New(), Quantity: 1, UnitPrice: 10000},
	}, 10000, 1000, &couponID)
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, int64(10000), o.TotalAmount)
	assert.Equal(t, int64(1000), o.DiscountAmount)
	assert.Equal(t, int64(9000), o.FinalAmount)
	assert.Equal(t, order.StepPending, o.Steps.Stock)
	assert.Equal(t, order.StepPending, o.Steps.Payment)
	assert.Equal(t, order.StepPending, o.Steps.Coupon)
	assert.False(t, o.IsTerminal())
}

func TestNew_Invalid(t *testing.T) {
	userID := uuid.New()
	item := order.Item{ProductID: uuid.New(), Quantity: 1, UnitPrice: 100}

	_, err := order.New(userID, nil, 100, 0, nil)
	assert.Error(t, err)

	_, err = order.New(userID, []order.Item{item}, 0, 0, nil)
	assert.Error(t, err)

	// Discount cannot exceed the total.
	_, err = order.New(userID, []order.Item{item}, 100, 200, nil)
	assert.Error(t, err)
}

func TestOrder_Confirm(t *testing.T) {
	o := newTestOrder(t)

	// Cannot confirm before all steps succeed.
	err := o.Confirm()
	assert.Error(t, err)

	o.Steps.MarkStockReserved(uuid.New())
	o.Steps.MarkPaymentCompleted(uuid.New())
	o.Steps.MarkCouponUsed(nil)
	require.True(t, o.Steps.AllCompleted())

	require.NoError(t, o.Confirm())
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.True(t, o.IsTerminal())

	// Terminal orders refuse further transitions.
	assert.Error(t, o.Confirm())
	assert.Error(t, o.Fail("too late"))
}

func TestOrder_Fail(t *testing.T) {
	o := newTestOrder(t)

	require.NoError(t, o.Fail("insufficient balance"))
	assert.Equal(t, order.StatusFailed, o.Status)
	assert.True(t, o.IsTerminal())
	require.NotNil(t, o.FailureReason)
	assert.Equal(t, "insufficient balance", *o.FailureReason)

	assert.Error(t, o.Fail("again"))
}

func TestStepStatus_CompletedSteps_FixedOrder(t *testing.T) {
	s := order.NewStepStatus()
	assert.Empty(t, s.CompletedSteps())

	// Completion order is payment, coupon, stock; the snapshot still lists
	// steps in the fixed STOCK, PAYMENT, COUPON order.
	s.MarkPaymentCompleted(uuid.New())
	s.MarkCouponUsed(nil)
	s.MarkStockReserved(uuid.New())

	assert.Equal(t, []string{event.StepStock, event.StepPayment, event.StepCoupon}, s.CompletedSteps())
}

func TestStepStatus_CompletedSteps_Partial(t *testing.T) {
	s := order.NewStepStatus()
	s.MarkStockReserved(uuid.New())
	s.MarkStepFailed(event.StepPayment, "insufficient balance")

	assert.Equal(t, []string{event.StepStock}, s.CompletedSteps())
	assert.Equal(t, order.StepFailed, s.Payment)
	require.NotNil(t, s.FailedStep)
	assert.Equal(t, event.StepPayment, *s.FailedStep)
}

func TestStepStatus_Snapshot(t *testing.T) {
	reservationID := uuid.New()
	paymentID := uuid.New()

	s := order.NewStepStatus()
	s.MarkStockReserved(reservationID)
	s.MarkPaymentCompleted(paymentID)
	s.MarkCouponUsed(nil)

	snap := s.Snapshot()
	require.NotNil(t, snap.StockReservationID)
	assert.Equal(t, reservationID, *snap.StockReservationID)
	require.NotNil(t, snap.PaymentID)
	assert.Equal(t, paymentID, *snap.PaymentID)
	assert.Nil(t, snap.UserCouponID)
}
