package handler

import (
	"log/slog"
	"net/http"

	"github.com/dangerclosesec/coursehub/internal/service"
)

type CheckoutHandler struct {
	checkout *service.CheckoutService
	logger   *slog.Logger
}

func NewCheckoutHandler(checkout *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, logger: logger}
}

func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input service.CheckoutInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	res, err := h.checkout.CreateCheckoutSession(r.Context(), actorFromRequest(r), input)
	if err != nil {
		handleServiceError(w, r, h.logger, "checkout session failed", err)
		return
	}
	respondWithData(w, http.StatusCreated, res)
}
