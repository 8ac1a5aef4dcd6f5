package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	domain "github.com/tradeshop/api/internal/domain"
)

const (
	defaultPayPalBaseURL = "https://api-m.paypal.com"
	paypalStatusApproved  = "APPROVED"
	paypalStatusCompleted = "COMPLETED"
	paypalResponseLimit   = 1 << 20
)

// PayPalConfig configures the PayPal Orders v2 gateway.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Currency     string
	SuccessURL   string
	CancelURL    string
	Timeout      time.Duration
	Logger       Logger

	// HTTPClient overrides the OAuth2 client, mainly for tests.
	HTTPClient *http.Client
}

// PayPalGateway creates PayPal orders for buyer approval and captures them on verification.
type PayPalGateway struct {
	client     *http.Client
	baseURL    string
	currency   string
	successURL string
	cancelURL  string
	logger     Logger
}

// NewPayPalGateway constructs the PayPal adapter authenticated with client credentials.
func NewPayPalGateway(cfg PayPalConfig) (*PayPalGateway, error) {
	baseURL := strings.TrimRight(defaultString(cfg.BaseURL, defaultPayPalBaseURL), "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
			return nil, errors.New("paypal: client id and secret are required")
		}
		creds := clientcredentials.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			TokenURL:     baseURL + "/v1/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: creds.TokenSource(context.Background()),
				Base:   http.DefaultTransport,
			},
		}
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" || strings.TrimSpace(cfg.CancelURL) == "" {
		return nil, errors.New("paypal: success and cancel urls are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PayPalGateway{
		client:     httpClient,
		baseURL:    baseURL,
		currency:   strings.ToUpper(defaultString(cfg.Currency, "USD")),
		successURL: strings.TrimSpace(cfg.SuccessURL),
		cancelURL:  strings.TrimSpace(cfg.CancelURL),
		logger:     logger,
	}, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string        `json:"reference_id,omitempty"`
	CustomID    string        `json:"custom_id,omitempty"`
	Description string        `json:"description,omitempty"`
	Amount      *paypalAmount `json:"amount,omitempty"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
	Links         []paypalLink         `json:"links"`
}

type paypalCreateOrder struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext map[string]string    `json:"application_context"`
}

// Process creates a PayPal order. The buyer approves it on PayPal before it can be captured.
func (g *PayPalGateway) Process(ctx context.Context, req Request) (Result, error) {
	if g == nil {
		return Result{}, errors.New("paypal: gateway is nil")
	}
	reference := req.OrderID
	if reference == "" {
		reference = string(req.Purpose)
	}
	body := paypalCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: reference,
			CustomID:    req.UserID,
			Description: string(req.Purpose),
			Amount: &paypalAmount{
				CurrencyCode: strings.ToUpper(defaultString(req.Currency, g.currency)),
				Value:        req.Amount.StringFixed(2),
			},
		}},
		ApplicationContext: map[string]string{
			"return_url": returnURL(g.successURL, domain.GatewayPayPal),
			"cancel_url": returnURL(g.cancelURL, domain.GatewayPayPal),
		},
	}
	var order paypalOrder
	if err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", req.IdempotencyKey, body, &order); err != nil {
		return Result{}, fmt.Errorf("paypal: create order: %w", err)
	}
	approve := ""
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			approve = link.Href
			break
		}
	}
	if approve == "" {
		return Result{}, errors.New("paypal: approval link missing")
	}
	g.logger(ctx, "payments.paypal.order.created", map[string]any{
		"paypalOrderId": order.ID,
		"userId":        req.UserID,
		"orderId":       req.OrderID,
	})
	return Result{
		Success:        true,
		RequiresAction: true,
		TransactionID:  order.ID,
		PaymentURL:     approve,
	}, nil
}

// Inspect reads the PayPal order without capturing it.
func (g *PayPalGateway) Inspect(ctx context.Context, paypalOrderID string) (Verification, error) {
	order, err := g.getOrder(ctx, paypalOrderID)
	if err != nil {
		return Verification{}, err
	}
	return paypalVerification(order), nil
}

// Verify reads the PayPal order and captures it when the buyer has approved it.
func (g *PayPalGateway) Verify(ctx context.Context, paypalOrderID string) (Verification, error) {
	order, err := g.getOrder(ctx, paypalOrderID)
	if err != nil {
		return Verification{}, err
	}
	if order.Status == paypalStatusApproved {
		var captured paypalOrder
		if err := g.do(ctx, http.MethodPost, "/v2/checkout/orders/"+paypalOrderID+"/capture", "capture-"+paypalOrderID, struct{}{}, &captured); err != nil {
			return Verification{}, fmt.Errorf("paypal: capture order: %w", err)
		}
		g.logger(ctx, "payments.paypal.order.captured", map[string]any{
			"paypalOrderId": paypalOrderID,
			"status":        captured.Status,
		})
		order.Status = captured.Status
	}
	return paypalVerification(order), nil
}

func (g *PayPalGateway) getOrder(ctx context.Context, paypalOrderID string) (paypalOrder, error) {
	if g == nil {
		return paypalOrder{}, errors.New("paypal: gateway is nil")
	}
	var order paypalOrder
	if err := g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+paypalOrderID, "", nil, &order); err != nil {
		return paypalOrder{}, fmt.Errorf("paypal: get order: %w", err)
	}
	return order, nil
}

func paypalVerification(order paypalOrder) Verification {
	v := Verification{
		Paid:          order.Status == paypalStatusCompleted,
		TransactionID: order.ID,
		Purpose:       PurposeOrder,
	}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		v.Purpose = parsePurpose(unit.Description)
		v.UserID = unit.CustomID
		if v.Purpose == PurposeOrder {
			v.OrderID = unit.ReferenceID
		}
		if unit.Amount != nil {
			if amount, err := decimal.NewFromString(unit.Amount.Value); err == nil {
				v.Amount = amount
			}
		}
	}
	return v
}

func (g *PayPalGateway) do(ctx context.Context, method, path, requestID string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, paypalResponseLimit))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
