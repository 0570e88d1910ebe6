package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hyunsookim/commerce/internal/domain/account"
)

type AccountController struct {
	accounts account.Repository
}

func NewAccountController(accounts account.Repository) *AccountController {
	return &AccountController{accounts: accounts}
}

func (h *AccountController) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user id", Code: "invalid_id"})
		return
	}

	a, err := h.accounts.GetByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		UserID:  a.UserID.String(),
		Balance: a.Balance,
	})
}
