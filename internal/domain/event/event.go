// Package event defines the domain events exchanged between saga participants
// as a closed set. Every event crossing a process boundary is one of the types
// below, wrapped in an Envelope; consumers dispatch with an exhaustive switch
// in Decode rather than open-ended polymorphism.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies an event variant.
type Type string

const (
	TypeOrderCreated           Type = "ORDER_CREATED"
	TypeStockReserved          Type = "STOCK_RESERVED"
	TypeStockReservationFailed Type = "STOCK_RESERVATION_FAILED"
	TypePaymentCompleted       Type = "PAYMENT_COMPLETED"
	TypePaymentFailed          Type = "PAYMENT_FAILED"
	TypeCouponUsed             Type = "COUPON_USED"
	TypeCouponUsageFailed      Type = "COUPON_USAGE_FAILED"
	TypeOrderConfirmed         Type = "ORDER_CONFIRMED"
	TypeOrderFailed            Type = "ORDER_FAILED"
	TypeQueueEntered           Type = "QUEUE_ENTERED"
	TypeQueueProcessed         Type = "QUEUE_PROCESSED"
	TypeCouponIssueRequested   Type = "COUPON_ISSUE_REQUESTED"
	TypeCouponIssued           Type = "COUPON_ISSUED"
	TypeCouponIssueFailed      Type = "COUPON_ISSUE_FAILED"
)

// Saga step names. These appear in OrderFailed.CompletedSteps and are the
// wire-level compensation instruction, so they must stay stable.
const (
	StepStock   = "STOCK"
	StepPayment = "PAYMENT"
	StepCoupon  = "COUPON"
)

// Event is implemented by every variant in this package.
type Event interface {
	EventType() Type
	// AggregateID is the partition key: events sharing it are delivered in
	// publication order.
	AggregateID() string
}

// OrderItem is a single line of an order as carried on the wire.
type OrderItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
}

// OrderCreated starts the checkout saga. Each participant reserves its
// resource in reaction to it.
type OrderCreated struct {
	OrderID        uuid.UUID  `json:"order_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Items          []OrderItem `json:"items"`
	TotalAmount    int64      `json:"total_amount"`
	DiscountAmount int64      `json:"discount_amount"`
	FinalAmount    int64      `json:"final_amount"`
	UserCouponID   *uuid.UUID `json:"user_coupon_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type StockReserved struct {
	OrderID       uuid.UUID `json:"order_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
}

type StockReservationFailed struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type PaymentCompleted struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    int64     `json:"amount"`
}

type PaymentFailed struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type CouponUsed struct {
	OrderID      uuid.UUID  `json:"order_id"`
	UserCouponID *uuid.UUID `json:"user_coupon_id,omitempty"`
}

type CouponUsageFailed struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

// StepSnapshot carries the per-step resource ids on OrderConfirmed so each
// participant can finalize the reservation it owns.
type StepSnapshot struct {
	StockReservationID *uuid.UUID `json:"stock_reservation_id,omitempty"`
	PaymentID          *uuid.UUID `json:"payment_id,omitempty"`
	UserCouponID       *uuid.UUID `json:"user_coupon_id,omitempty"`
}

type OrderConfirmed struct {
	OrderID uuid.UUID    `json:"order_id"`
	Steps   StepSnapshot `json:"steps"`
}

// OrderFailed is the compensation instruction: participants named in
// CompletedSteps undo their reservation, all others do nothing.
type OrderFailed struct {
	OrderID        uuid.UUID `json:"order_id"`
	Reason         string    `json:"reason"`
	CompletedSteps []string  `json:"completed_steps"`
}

type QueueEntered struct {
	CouponID    uuid.UUID `json:"coupon_id"`
	UserID      uuid.UUID `json:"user_id"`
	QueueNumber int64     `json:"queue_number"`
	EnteredAt   time.Time `json:"entered_at"`
}

type QueueProcessed struct {
	CouponID    uuid.UUID `json:"coupon_id"`
	UserID      uuid.UUID `json:"user_id"`
	QueueNumber int64     `json:"queue_number"`
	ProcessedAt time.Time `json:"processed_at"`
}

type CouponIssueRequested struct {
	RequestID   string    `json:"request_id"`
	CouponID    uuid.UUID `json:"coupon_id"`
	UserID      uuid.UUID `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type CouponIssued struct {
	RequestID    string    `json:"request_id"`
	UserCouponID uuid.UUID `json:"user_coupon_id"`
	CouponID     uuid.UUID `json:"coupon_id"`
	UserID       uuid.UUID `json:"user_id"`
	IssuedAt     time.Time `json:"issued_at"`
}

type CouponIssueFailed struct {
	RequestID string    `json:"request_id"`
	CouponID  uuid.UUID `json:"coupon_id"`
	UserID    uuid.UUID `json:"user_id"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

func (e OrderCreated) EventType() Type           { return TypeOrderCreated }
func (e StockReserved) EventType() Type          { return TypeStockReserved }
func (e StockReservationFailed) EventType() Type { return TypeStockReservationFailed }
func (e PaymentCompleted) EventType() Type       { return TypePaymentCompleted }
func (e PaymentFailed) EventType() Type          { return TypePaymentFailed }
func (e CouponUsed) EventType() Type             { return TypeCouponUsed }
func (e CouponUsageFailed) EventType() Type      { return TypeCouponUsageFailed }
func (e OrderConfirmed) EventType() Type         { return TypeOrderConfirmed }
func (e OrderFailed) EventType() Type            { return TypeOrderFailed }
func (e QueueEntered) EventType() Type           { return TypeQueueEntered }
func (e QueueProcessed) EventType() Type         { return TypeQueueProcessed }
func (e CouponIssueRequested) EventType() Type   { return TypeCouponIssueRequested }
func (e CouponIssued) EventType() Type           { return TypeCouponIssued }
func (e CouponIssueFailed) EventType() Type      { return TypeCouponIssueFailed }

func (e OrderCreated) AggregateID() string           { return e.OrderID.String() }
func (e StockReserved) AggregateID() string          { return e.OrderID.String() }
func (e StockReservationFailed) AggregateID() string { return e.OrderID.String() }
func (e PaymentCompleted) AggregateID() string       { return e.OrderID.String() }
func (e PaymentFailed) AggregateID() string          { return e.OrderID.String() }
func (e CouponUsed) AggregateID() string             { return e.OrderID.String() }
func (e CouponUsageFailed) AggregateID() string      { return e.OrderID.String() }
func (e OrderConfirmed) AggregateID() string         { return e.OrderID.String() }
func (e OrderFailed) AggregateID() string            { return e.OrderID.String() }
func (e QueueEntered) AggregateID() string           { return e.CouponID.String() }
func (e QueueProcessed) AggregateID() string         { return e.CouponID.String() }
func (e CouponIssueRequested) AggregateID() string   { return e.CouponID.String() }
func (e CouponIssued) AggregateID() string           { return e.CouponID.String() }
func (e CouponIssueFailed) AggregateID() string      { return e.CouponID.String() }

// Envelope is the wire frame around every event.
type Envelope struct {
	EventID     uuid.UUID       `json:"event_id"`
	Type        Type            `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Wrap serializes e into an envelope with a fresh event id.
func Wrap(e Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", e.EventType(), err)
	}
	return Envelope{
		EventID:     uuid.New(),
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}, nil
}

// Decode unmarshals the envelope payload into its concrete variant.
func (env Envelope) Decode() (Event, error) {
	var e Event
	var err error
	switch env.Type {
	case TypeOrderCreated:
		e, err = decodeAs[OrderCreated](env)
	case TypeStockReserved:
		e, err = decodeAs[StockReserved](env)
	case TypeStockReservationFailed:
		e, err = decodeAs[StockReservationFailed](env)
	case TypePaymentCompleted:
		e, err = decodeAs[PaymentCompleted](env)
	case TypePaymentFailed:
		e, err = decodeAs[PaymentFailed](env)
	case TypeCouponUsed:
		e, err = decodeAs[CouponUsed](env)
	case TypeCouponUsageFailed:
		e, err = decodeAs[CouponUsageFailed](env)
	case TypeOrderConfirmed:
		e, err = decodeAs[OrderConfirmed](env)
	case TypeOrderFailed:
		e, err = decodeAs[OrderFailed](env)
	case TypeQueueEntered:
		e, err = decodeAs[QueueEntered](env)
	case TypeQueueProcessed:
		e, err = decodeAs[QueueProcessed](env)
	case TypeCouponIssueRequested:
		e, err = decodeAs[CouponIssueRequested](env)
	case TypeCouponIssued:
		e, err = decodeAs[CouponIssued](env)
	case TypeCouponIssueFailed:
		e, err = decodeAs[CouponIssueFailed](env)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	return e, err
}

func decodeAs[T Event](env Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return v, nil
}

// Topic maps an event type to its channel topic. One topic per type, keyed by
// the aggregate id, matches the per-key ordering contract consumers rely on.
func Topic(t Type) string {
	switch t {
	case TypeOrderCreated:
		return "order.created"
	case TypeStockReserved:
		return "stock.reserved"
	case TypeStockReservationFailed:
		return "stock.reservation.failed"
	case TypePaymentCompleted:
		return "payment.completed"
	case TypePaymentFailed:
		return "payment.failed"
	case TypeCouponUsed:
		return "coupon.used"
	case TypeCouponUsageFailed:
		return "coupon.usage.failed"
	case TypeOrderConfirmed:
		return "order.confirmed"
	case TypeOrderFailed:
		return "order.failed"
	case TypeQueueEntered:
		return "queue.entered"
	case TypeQueueProcessed:
		return "queue.processed"
	case TypeCouponIssueRequested:
		return "coupon.issue.requested"
	case TypeCouponIssued:
		return "coupon.issued"
	case TypeCouponIssueFailed:
		return "coupon.issue.failed"
	default:
		return "events.unknown"
	}
}
