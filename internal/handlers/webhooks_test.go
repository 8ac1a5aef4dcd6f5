package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/services"
)

func postStripeWebhook(t *testing.T, pay services.PaymentService, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/webhooks", NewWebhookHandlers(pay).Routes)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(stripeSignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestStripeWebhookPassesRawPayload(t *testing.T) {
	pay := &stubPaymentService{result: services.PaymentVerificationResult{Paid: true, Purpose: payments.PurposeRepayDues}}
	body := `{"type":"checkout.session.completed"}`

	rr := postStripeWebhook(t, pay, body, "t=1,v1=abc")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if string(pay.payload) != body || pay.signature != "t=1,v1=abc" {
		t.Fatalf("unexpected delivery %q %q", pay.payload, pay.signature)
	}
	var resp webhookAckResponse
	decodeBody(t, rr, &resp)
	if !resp.Received || !resp.Paid || resp.Purpose != "repay-dues" {
		t.Fatalf("unexpected ack %+v", resp)
	}
}

func TestStripeWebhookRejectsBadDeliveries(t *testing.T) {
	pay := &stubPaymentService{}
	if rr := postStripeWebhook(t, pay, `{}`, ""); rr.Code != http.StatusBadRequest || errorCodeOf(t, rr) != "invalid_signature" {
		t.Fatalf("expected invalid_signature without header, got %d", rr.Code)
	}
	if rr := postStripeWebhook(t, pay, "", "t=1,v1=abc"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rr.Code)
	}

	pay.err = fmt.Errorf("%w: mismatch", payments.ErrWebhookSignature)
	if rr := postStripeWebhook(t, pay, `{}`, "t=1,v1=bad"); rr.Code != http.StatusBadRequest || errorCodeOf(t, rr) != "invalid_signature" {
		t.Fatalf("expected invalid_signature, got %d", rr.Code)
	}

	big := strings.Repeat("x", maxWebhookBodySize+1)
	if rr := postStripeWebhook(t, pay, big, "t=1,v1=abc"); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}
