package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/payments"
	"github.com/dangerclosesec/coursehub/internal/service"
	chmw "github.com/go-chi/chi/v5/middleware"
)

// WebhookHandler is the single Stripe webhook endpoint.
type WebhookHandler struct {
	verifier  *payments.WebhookVerifier
	purchases *service.PurchaseService
	logger    *slog.Logger
}

func NewWebhookHandler(verifier *payments.WebhookVerifier, purchases *service.PurchaseService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, purchases: purchases, logger: logger}
}

type WebhookResponse struct {
	BaseResponse
	Received bool                     `json:"received"`
	Result   *service.ReconcileResult `json:"result,omitempty"`
}

// HandleStripe verifies the signature, then hands the event to the purchase
// service. A 5xx asks Stripe to redeliver; bad signatures get a 400 so they
// are not retried.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	evt, err := h.verifier.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentsDisabled):
			respondWithError(w, http.StatusServiceUnavailable, "Webhooks are not configured")
		case errors.Is(err, domain.ErrInvalidSignature):
			h.logger.WarnContext(r.Context(), "rejected stripe webhook", "error", err, "requestID", chmw.GetReqID(r.Context()))
			respondWithError(w, http.StatusBadRequest, "Invalid signature")
		default:
			respondWithError(w, http.StatusBadRequest, "Invalid payload")
		}
		return
	}

	result, err := h.purchases.HandleEvent(r.Context(), evt)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stripe webhook failed",
			"event_id", evt.ID,
			"type", evt.Type,
			"error", err,
			"requestID", chmw.GetReqID(r.Context()),
		)
		respondWithError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	respondWithJSON(w, http.StatusOK, WebhookResponse{
		BaseResponse: BaseResponse{Ok: true},
		Received:     true,
		Result:       result,
	})
}
