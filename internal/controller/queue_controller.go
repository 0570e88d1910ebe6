package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hyunsookim/commerce/internal/application/couponqueue"
)

type QueueController struct {
	joinQueue   *couponqueue.JoinQueueUseCase
	queueStatus *couponqueue.QueueStatusUseCase
}

func NewQueueController(joinQueue *couponqueue.JoinQueueUseCase, queueStatus *couponqueue.QueueStatusUseCase) *QueueController {
	return &QueueController{joinQueue: joinQueue, queueStatus: queueStatus}
}

// Join puts the caller in the coupon's admission queue. 202: issuance happens
// in the background drain, strictly in queue order.
func (h *QueueController) Join(w http.ResponseWriter, r *http.Request) {
	couponID, err := uuid.Parse(chi.URLParam(r, "couponId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid coupon id", Code: "invalid_id"})
		return
	}

	var req JoinQueueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := uuid.Parse(req.UserID)

	entry, err := h.joinQueue.Execute(r.Context(), couponID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	status, err := h.queueStatus.Execute(r.Context(), couponID, userID)
	if err != nil {
		// The entry committed; fall back to the bare entry.
		status = &couponqueue.QueueStatus{Entry: entry}
	}
	writeJSON(w, http.StatusAccepted, FromQueueStatus(status))
}

func (h *QueueController) Status(w http.ResponseWriter, r *http.Request) {
	couponID, err := uuid.Parse(chi.URLParam(r, "couponId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid coupon id", Code: "invalid_id"})
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user id", Code: "invalid_id"})
		return
	}

	status, err := h.queueStatus.Execute(r.Context(), couponID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromQueueStatus(status))
}
