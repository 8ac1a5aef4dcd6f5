package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tradeshop/api/internal/platform/httpx"
	"github.com/tradeshop/api/internal/services"
)

const (
	maxWebhookBodySize    = 64 * 1024
	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookHandlers receives asynchronous payment gateway callbacks.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes registers the /webhooks endpoints. Signatures are verified by the payment service.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

type webhookAckResponse struct {
	Received         bool   `json:"received"`
	Paid             bool   `json:"paid"`
	Purpose          string `json:"purpose,omitempty"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	payload, err := httpx.ReadBody(r, maxWebhookBodySize)
	switch {
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook body is required", http.StatusBadRequest))
		return
	}
	signature := strings.TrimSpace(r.Header.Get(stripeSignatureHeader))
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "missing Stripe-Signature header", http.StatusBadRequest))
		return
	}

	result, err := h.payments.HandleStripeWebhook(ctx, payload, signature)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAckResponse{
		Received:         true,
		Paid:             result.Paid,
		Purpose:          string(result.Purpose),
		AlreadyProcessed: result.AlreadyProcessed,
	})
}
