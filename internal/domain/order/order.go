package order

import (
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
)

// Status of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	// StatusFailed is terminal and reachable only through the saga's failure
	// path, once the compensation instruction has been durably recorded.
	StatusFailed Status = "failed"
)

// StepResult is the outcome of a single saga step.
type StepResult string

const (
	StepPending StepResult = "pending"
	StepSuccess StepResult = "success"
	StepFailed  StepResult = "failed"
)

// StepStatus tracks the three concurrent saga steps of one order, plus the
// resource ids each successful step produced. The successful-step snapshot is
// the authoritative compensation instruction on failure.
type StepStatus struct {
	Stock   StepResult
	Payment StepResult
	Coupon  StepResult

	StockReservationID *uuid.UUID
	PaymentID          *uuid.UUID
	UserCouponID       *uuid.UUID

	FailedStep    *string
	FailureReason *string
}

// NewStepStatus returns a step status with all steps pending.
func NewStepStatus() StepStatus {
	return StepStatus{Stock: StepPending, Payment: StepPending, Coupon: StepPending}
}

func (s *StepStatus) MarkStockReserved(reservationID uuid.UUID) {
	s.Stock = StepSuccess
	s.StockReservationID = &reservationID
}

func (s *StepStatus) MarkPaymentCompleted(paymentID uuid.UUID) {
	s.Payment = StepSuccess
	s.PaymentID = &paymentID
}

func (s *StepStatus) MarkCouponUsed(userCouponID *uuid.UUID) {
	s.Coupon = StepSuccess
	s.UserCouponID = userCouponID
}

func (s *StepStatus) MarkStepFailed(step, reason string) {
	switch step {
	case event.StepStock:
		s.Stock = StepFailed
	case event.StepPayment:
		s.Payment = StepFailed
	case event.StepCoupon:
		s.Coupon = StepFailed
	}
	s.FailedStep = &step
	s.FailureReason = &reason
}

// AllCompleted reports whether every step has succeeded.
func (s StepStatus) AllCompleted() bool {
	return s.Stock == StepSuccess && s.Payment == StepSuccess && s.Coupon == StepSuccess
}

// CompletedSteps lists the steps that have succeeded so far, in the fixed
// STOCK, PAYMENT, COUPON order. On failure this snapshot decides which
// participants must compensate.
func (s StepStatus) CompletedSteps() []string {
	steps := make([]string, 0, 3)
	if s.Stock == StepSuccess {
		steps = append(steps, event.StepStock)
	}
	if s.Payment == StepSuccess {
		steps = append(steps, event.StepPayment)
	}
	if s.Coupon == StepSuccess {
		steps = append(steps, event.StepCoupon)
	}
	return steps
}

// Snapshot exposes the per-step resource ids for the OrderConfirmed payload.
func (s StepStatus) Snapshot() event.StepSnapshot {
	return event.StepSnapshot{
		StockReservationID: s.StockReservationID,
		PaymentID:          s.PaymentID,
		UserCouponID:       s.UserCouponID,
	}
}

// Item is a single order line. UnitPrice is in the smallest currency unit.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice int64
}

// Order is the checkout aggregate.
type Order struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Items          []Item
	TotalAmount    int64
	DiscountAmount int64
	FinalAmount    int64
	UserCouponID   *uuid.UUID
	Status         Status
	Steps          StepStatus
	FailureReason  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New creates a pending order. Amounts are computed by the caller so the
// aggregate stays free of catalog lookups.
func New(userID uuid.UUID, items []Item, totalAmount, discountAmount int64, userCouponID *uuid.UUID) (*Order, error) {
	if len(items) == 0 {
		return nil, domainErrors.ErrEmptyOrder
	}
	if totalAmount <= 0 || discountAmount < 0 || discountAmount > totalAmount {
		return nil, domainErrors.ErrInvalidInput
	}
	now := time.Now()
	return &Order{
		ID:             uuid.New(),
		UserID:         userID,
		Items:          items,
		TotalAmount:    totalAmount,
		DiscountAmount: discountAmount,
		FinalAmount:    totalAmount - discountAmount,
		UserCouponID:   userCouponID,
		Status:         StatusPending,
		Steps:          NewStepStatus(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsTerminal reports whether the saga for this order has ended.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusConfirmed, StatusCancelled, StatusFailed, StatusDelivered:
		return true
	}
	return false
}

// Confirm transitions the order to confirmed once all steps succeeded.
func (o *Order) Confirm() error {
	if o.Status != StatusPending {
		return domainErrors.NewDomainError(
			"order_not_pending",
			"cannot confirm order in status "+string(o.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	if !o.Steps.AllCompleted() {
		return domainErrors.NewDomainError(
			"steps_incomplete",
			"cannot confirm order before all saga steps succeed",
			domainErrors.ErrInvalidStateTransition,
		)
	}
	o.Status = StatusConfirmed
	o.UpdatedAt = time.Now()
	return nil
}

// Fail transitions the order to its terminal failed state.
func (o *Order) Fail(reason string) error {
	if o.Status != StatusPending {
		return domainErrors.NewDomainError(
			"order_not_pending",
			"cannot fail order in status "+string(o.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	o.Status = StatusFailed
	o.FailureReason = &reason
	o.UpdatedAt = time.Now()
	return nil
}

// EventItems converts the order lines to their wire representation.
func (o *Order) EventItems() []event.OrderItem {
	items := make([]event.OrderItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = event.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return items
}
