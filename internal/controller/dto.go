package controller

import (
	"time"

	"github.com/hyunsookim/commerce/internal/application/couponqueue"
	"github.com/hyunsookim/commerce/internal/domain/order"
)

// --- Request DTOs ---
// DTOs keep HTTP/JSON concerns (string ids, validation tags) out of the
// domain. Amounts are integers in the smallest currency unit.

// OrderItemRequest is one requested order line.
type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// PlaceOrderRequest holds the checkout input.
type PlaceOrderRequest struct {
	UserID       string             `json:"user_id" validate:"required,uuid"`
	Items        []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	UserCouponID *string            `json:"user_coupon_id,omitempty" validate:"omitempty,uuid"`
}

// JoinQueueRequest holds the coupon queue join input.
type JoinQueueRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// --- Response DTOs ---

type OrderItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type StepStatusResponse struct {
	Stock         string  `json:"stock"`
	Payment       string  `json:"payment"`
	Coupon        string  `json:"coupon"`
	FailedStep    *string `json:"failed_step,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
}

type OrderResponse struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	Items          []OrderItemResponse `json:"items"`
	TotalAmount    int64               `json:"total_amount"`
	DiscountAmount int64               `json:"discount_amount"`
	FinalAmount    int64               `json:"final_amount"`
	UserCouponID   *string             `json:"user_coupon_id,omitempty"`
	Status         string              `json:"status"`
	Steps          StepStatusResponse  `json:"steps"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type QueueStatusResponse struct {
	CouponID          string     `json:"coupon_id"`
	UserID            string     `json:"user_id"`
	QueueNumber       int64      `json:"queue_number"`
	Status            string     `json:"status"`
	EstimatedPosition int64      `json:"estimated_position,omitempty"`
	FailedReason      *string    `json:"failed_reason,omitempty"`
	EnteredAt         time.Time  `json:"entered_at"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
}

type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromOrder converts a domain order to API response.
func FromOrder(o *order.Order) *OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ProductID: it.ProductID.String(),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}

	var userCouponID *string
	if o.UserCouponID != nil {
		s := o.UserCouponID.String()
		userCouponID = &s
	}

	return &OrderResponse{
		ID:             o.ID.String(),
		UserID:         o.UserID.String(),
		Items:          items,
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		FinalAmount:    o.FinalAmount,
		UserCouponID:   userCouponID,
		Status:         string(o.Status),
		Steps: StepStatusResponse{
			Stock:         string(o.Steps.Stock),
			Payment:       string(o.Steps.Payment),
			Coupon:        string(o.Steps.Coupon),
			FailedStep:    o.Steps.FailedStep,
			FailureReason: o.FailureReason,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// FromQueueStatus converts a queue status answer to API response.
func FromQueueStatus(s *couponqueue.QueueStatus) *QueueStatusResponse {
	e := s.Entry
	return &QueueStatusResponse{
		CouponID:          e.CouponID.String(),
		UserID:            e.UserID.String(),
		QueueNumber:       e.QueueNumber,
		Status:            string(e.Status),
		EstimatedPosition: s.EstimatedPosition,
		FailedReason:      e.FailedReason,
		EnteredAt:         e.EnteredAt,
		ProcessedAt:       e.ProcessedAt,
	}
}
