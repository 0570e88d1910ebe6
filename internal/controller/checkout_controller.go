package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hyunsookim/commerce/internal/application/checkout"
)

type CheckoutController struct {
	placeOrder *checkout.PlaceOrderUseCase
	getOrder   *checkout.GetOrderUseCase
}

func NewCheckoutController(placeOrder *checkout.PlaceOrderUseCase, getOrder *checkout.GetOrderUseCase) *CheckoutController {
	return &CheckoutController{placeOrder: placeOrder, getOrder: getOrder}
}

// PlaceOrder accepts a checkout request. The 202 is deliberate: the order is
// recorded but stock, payment, and coupon settle asynchronously; clients poll
// GET /orders/{id} for the outcome.
func (h *CheckoutController) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, _ := uuid.Parse(req.UserID)
	items := make([]checkout.ItemInput, len(req.Items))
	for i, it := range req.Items {
		productID, _ := uuid.Parse(it.ProductID)
		items[i] = checkout.ItemInput{ProductID: productID, Quantity: it.Quantity}
	}

	var userCouponID *uuid.UUID
	if req.UserCouponID != nil {
		id, _ := uuid.Parse(*req.UserCouponID)
		userCouponID = &id
	}

	o, err := h.placeOrder.Execute(r.Context(), checkout.PlaceOrderInput{
		UserID:       userID,
		Items:        items,
		UserCouponID: userCouponID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, FromOrder(o))
}

func (h *CheckoutController) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order id", Code: "invalid_id"})
		return
	}

	o, err := h.getOrder.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o))
}

func (h *CheckoutController) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user id", Code: "invalid_id"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	orders, err := h.getOrder.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*OrderResponse, len(orders))
	for i, o := range orders {
		resp[i] = FromOrder(o)
	}
	writeJSON(w, http.StatusOK, resp)
}
