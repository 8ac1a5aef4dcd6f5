package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/tradeshop/api/internal/domain"
)

const stripeCheckoutCompleted = "checkout.session.completed"

// ErrWebhookSignature is returned when a Stripe webhook payload fails signature verification.
var ErrWebhookSignature = errors.New("stripe: invalid webhook signature")

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig configures the Stripe checkout gateway.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	AccountID     string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Backends      *stripe.Backends
	Logger        Logger

	sessions stripeSessionAPI
}

// StripeGateway creates hosted checkout sessions and reconciles them.
type StripeGateway struct {
	sessions      stripeSessionAPI
	webhookSecret string
	account       string
	currency      string
	successURL    string
	cancelURL     string
	logger        Logger
}

// NewStripeGateway constructs the Stripe adapter.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	sessions := cfg.sessions
	if sessions == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" || strings.TrimSpace(cfg.CancelURL) == "" {
		return nil, errors.New("stripe: success and cancel urls are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{
		sessions:      sessions,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		account:       strings.TrimSpace(cfg.AccountID),
		currency:      strings.ToLower(defaultString(cfg.Currency, "usd")),
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		cancelURL:     strings.TrimSpace(cfg.CancelURL),
		logger:        logger,
	}, nil
}

// Process creates a checkout session. The customer completes payment on Stripe's hosted page.
func (g *StripeGateway) Process(ctx context.Context, req Request) (Result, error) {
	if g == nil {
		return Result{}, errors.New("stripe: gateway is nil")
	}
	currency := strings.ToLower(defaultString(req.Currency, g.currency))
	name := defaultString(req.Description, "Payment")

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(returnURL(g.successURL, domain.GatewayStripe)),
		CancelURL:          stripe.String(returnURL(g.cancelURL, domain.GatewayStripe)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(MinorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}},
	}
	params.Context = ctx
	meta := req.Metadata()
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	session, err := g.sessions.New(params)
	if err != nil {
		return Result{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	g.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"userId":    req.UserID,
		"orderId":   req.OrderID,
		"purpose":   string(req.Purpose),
	})

	return Result{
		Success:        true,
		RequiresAction: true,
		TransactionID:  session.ID,
		PaymentURL:     session.URL,
	}, nil
}

// Verify re-reads a checkout session.
func (g *StripeGateway) Verify(ctx context.Context, sessionID string) (Verification, error) {
	if g == nil {
		return Verification{}, errors.New("stripe: gateway is nil")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	session, err := g.sessions.Get(sessionID, params)
	if err != nil {
		return Verification{}, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}
	return stripeVerification(session), nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts a completed checkout session.
// ok is false for event types that need no reconciliation.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (Verification, bool, error) {
	if g == nil || g.webhookSecret == "" {
		return Verification{}, false, errors.New("stripe: webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Verification{}, false, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}
	if string(event.Type) != stripeCheckoutCompleted || event.Data == nil {
		return Verification{}, false, nil
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return Verification{}, false, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	return stripeVerification(&session), true, nil
}

func stripeVerification(session *stripe.CheckoutSession) Verification {
	if session == nil {
		return Verification{}
	}
	meta := session.Metadata
	return Verification{
		Paid:          session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		TransactionID: session.ID,
		Purpose:       parsePurpose(meta["type"]),
		OrderID:       strings.TrimSpace(meta["orderId"]),
		UserID:        strings.TrimSpace(meta["userId"]),
		Amount:        FromMinorUnits(session.AmountTotal),
	}
}

// returnURL appends the gateway selector so the storefront can call verify-payment.
func returnURL(base string, gateway domain.PaymentGateway) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "gateway=" + string(gateway)
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
