package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
)

type fakeStripeSessions struct {
	created *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeStripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = params
	return f.session, f.err
}

func (f *fakeStripeSessions) Get(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.session, f.err
}

func TestStripeGatewayCreatesCheckoutSession(t *testing.T) {
	fake := &fakeStripeSessions{session: &stripe.CheckoutSession{ID: "cs_123", URL: "https://checkout.stripe.com/cs_123"}}
	gw, err := NewStripeGateway(StripeConfig{
		SuccessURL: "https://shop.example.com/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://shop.example.com/cancel",
		sessions:   fake,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	res, err := gw.Process(context.Background(), Request{
		Amount:  decimal.RequireFromString("76.00"),
		UserID:  "user-1",
		OrderID: "ord_1",
		Purpose: PurposeOrder,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.RequiresAction || res.PaymentURL == "" || res.TransactionID != "cs_123" {
		t.Fatalf("unexpected result %+v", res)
	}
	params := fake.created
	if got := *params.LineItems[0].PriceData.UnitAmount; got != 7600 {
		t.Fatalf("expected 7600 cents, got %d", got)
	}
	if params.Metadata["orderId"] != "ord_1" || params.Metadata["type"] != "order" {
		t.Fatalf("unexpected metadata %#v", params.Metadata)
	}
	if !strings.HasSuffix(*params.SuccessURL, "&gateway=STRIPE") || !strings.HasSuffix(*params.CancelURL, "?gateway=STRIPE") {
		t.Fatalf("unexpected return urls %s %s", *params.SuccessURL, *params.CancelURL)
	}
}

func TestStripeGatewayVerifyReadsMetadata(t *testing.T) {
	fake := &fakeStripeSessions{session: &stripe.CheckoutSession{
		ID:            "cs_9",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   2500,
		Metadata:      map[string]string{"type": "repay-dues", "userId": "user-9"},
	}}
	gw, err := NewStripeGateway(StripeConfig{SuccessURL: "https://s", CancelURL: "https://c", sessions: fake})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	v, err := gw.Verify(context.Background(), "cs_9")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Paid || v.Purpose != PurposeRepayDues || v.UserID != "user-9" || !v.Amount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected verification %+v", v)
	}
}

func TestStripeParseWebhookRejectsBadSignature(t *testing.T) {
	gw, err := NewStripeGateway(StripeConfig{SuccessURL: "https://s", CancelURL: "https://c", WebhookSecret: "whsec_test", sessions: &fakeStripeSessions{}})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if _, _, err := gw.ParseWebhook([]byte(`{}`), "t=1,v1=deadbeef"); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestPayPalGatewayCreateAndCapture(t *testing.T) {
	var captured bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/checkout/orders":
			body, _ := io.ReadAll(r.Body)
			var in paypalCreateOrder
			if err := json.Unmarshal(body, &in); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if in.PurchaseUnits[0].Amount.Value != "40.50" {
				t.Errorf("unexpected amount %s", in.PurchaseUnits[0].Amount.Value)
			}
			_, _ = io.WriteString(w, `{"id":"PP-1","status":"CREATED","links":[{"rel":"approve","href":"https://paypal/approve"}]}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v2/checkout/orders/PP-1":
			_, _ = io.WriteString(w, `{"id":"PP-1","status":"APPROVED","purchase_units":[{"reference_id":"ord_7","custom_id":"user-7","description":"order","amount":{"currency_code":"USD","value":"40.50"}}]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/v2/checkout/orders/PP-1/capture":
			captured = true
			_, _ = io.WriteString(w, `{"id":"PP-1","status":"COMPLETED"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gw, err := NewPayPalGateway(PayPalConfig{
		BaseURL:    srv.URL,
		SuccessURL: "https://s",
		CancelURL:  "https://c",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	res, err := gw.Process(context.Background(), Request{Amount: decimal.RequireFromString("40.5"), UserID: "user-7", OrderID: "ord_7", Purpose: PurposeOrder})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.PaymentURL != "https://paypal/approve" || !res.RequiresAction {
		t.Fatalf("unexpected result %+v", res)
	}

	inspected, err := gw.Inspect(context.Background(), "PP-1")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if captured || inspected.Paid || inspected.UserID != "user-7" {
		t.Fatalf("inspection must leave the order uncaptured, got %+v captured=%v", inspected, captured)
	}

	v, err := gw.Verify(context.Background(), "PP-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !captured {
		t.Fatalf("expected approved order to be captured")
	}
	if !v.Paid || v.OrderID != "ord_7" || v.UserID != "user-7" {
		t.Fatalf("unexpected verification %+v", v)
	}
}

func TestAuthorizeNetGatewayApprovedAndDeclined(t *testing.T) {
	approve := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"authCaptureTransaction"`) {
			t.Errorf("expected auth-capture transaction, got %s", body)
		}
		if approve {
			_, _ = io.WriteString(w, "\xef\xbb\xbf"+`{"transactionResponse":{"responseCode":"1","transId":"6000","accountNumber":"XXXX1111","accountType":"Visa"},"messages":{"resultCode":"Ok","message":[{"code":"I00001","text":"Successful."}]}}`)
			return
		}
		_, _ = io.WriteString(w, `{"transactionResponse":{"responseCode":"2","errors":[{"errorCode":"2","errorText":"This transaction has been declined."}]},"messages":{"resultCode":"Error","message":[{"code":"E00027","text":"The transaction was unsuccessful."}]}}`)
	}))
	defer srv.Close()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	gw, err := NewAuthorizeNetGateway(AuthorizeNetConfig{
		LoginID:        "login",
		TransactionKey: "key",
		Endpoint:       srv.URL,
		HTTPClient:     srv.Client(),
		Clock:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	req := Request{Amount: decimal.NewFromInt(75), UserID: "user-1", OrderID: "ord_1", Card: &Card{Number: "4111 1111 1111 1111", ExpirationDate: "1225", Code: "123"}}
	res, err := gw.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Success || res.RequiresAction || res.TransactionID != "6000" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Card == nil || res.Card.Last4 != "1111" || res.Card.Brand != "Visa" {
		t.Fatalf("unexpected card summary %+v", res.Card)
	}

	approve = false
	res, err = gw.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("declined charge should not error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected declined result")
	}

	if _, err := gw.Process(context.Background(), Request{Amount: decimal.NewFromInt(1)}); err != ErrCardRequired {
		t.Fatalf("expected ErrCardRequired, got %v", err)
	}
}
