package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/observability"
)

// Purpose tags what a payment settles; it travels in gateway metadata and drives reconciliation.
type Purpose string

const (
	PurposeOrder     Purpose = "order"
	PurposeRepayDues Purpose = "repay-dues"
)

const (
	outcomeSuccess  = "success"
	outcomeRedirect = "redirect"
	outcomeDeclined = "declined"
	outcomeError    = "error"
)

var (
	// ErrUnsupportedGateway is returned when no adapter is registered for the selected gateway.
	ErrUnsupportedGateway = errors.New("payments: unsupported gateway")
	// ErrPaymentFailed wraps any gateway or SDK failure. Callers surface it as a bad request.
	ErrPaymentFailed = errors.New("payments: payment processing failed")
	// ErrCardRequired is returned when a direct charge is attempted without card details.
	ErrCardRequired = errors.New("payments: card details are required")
)

// Card carries raw card fields for direct-capture gateways. It is never persisted.
type Card struct {
	Number         string
	ExpirationDate string
	Code           string
}

// Request describes a single charge attempt.
type Request struct {
	Amount         decimal.Decimal
	Currency       string
	UserID         string
	OrderID        string
	Purpose        Purpose
	Description    string
	Card           *Card
	IdempotencyKey string
}

// Metadata flattens the request identity into gateway metadata.
func (r Request) Metadata() map[string]string {
	meta := map[string]string{
		"userId": r.UserID,
		"type":   string(r.Purpose),
	}
	if r.OrderID != "" {
		meta["orderId"] = r.OrderID
	}
	return meta
}

// Result is the normalised gateway response.
type Result struct {
	Success        bool
	RequiresAction bool
	TransactionID  string
	PaymentURL     string
	// Card is set by direct-capture gateways after a successful charge.
	Card *domain.CardSummary
}

// Verification is the reconciled state of an out-of-band payment.
type Verification struct {
	Paid          bool
	TransactionID string
	Purpose       Purpose
	OrderID       string
	UserID        string
	Amount        decimal.Decimal
}

// Gateway charges a payment backend.
type Gateway interface {
	Process(ctx context.Context, req Request) (Result, error)
}

// Verifier re-reads an out-of-band payment by its gateway transaction id. Verify may settle the
// payment on the gateway side.
type Verifier interface {
	Verify(ctx context.Context, transactionID string) (Verification, error)
}

// Inspector reads a payment without changing it. Verifiers whose Verify has no side effects
// need not implement it.
type Inspector interface {
	Inspect(ctx context.Context, transactionID string) (Verification, error)
}

// Logger records gateway events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Dispatcher routes charges to the adapter registered for a gateway.
type Dispatcher struct {
	gateways map[domain.PaymentGateway]Gateway
	metrics  *observability.Metrics
	logger   Logger
}

// DispatcherOption configures optional dispatcher behaviour.
type DispatcherOption func(*Dispatcher)

// WithMetrics records dispatch outcomes.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLogger sets the dispatcher event logger.
func WithLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher registers gateway adapters. The wallet pseudo-gateway is settled by the caller and cannot be registered.
func NewDispatcher(gateways map[domain.PaymentGateway]Gateway, opts ...DispatcherOption) (*Dispatcher, error) {
	registered := make(map[domain.PaymentGateway]Gateway, len(gateways))
	for key, gw := range gateways {
		normalized := domain.PaymentGateway(strings.ToUpper(strings.TrimSpace(string(key))))
		if !normalized.Valid() || normalized == domain.GatewayWallet || gw == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration %q", key)
		}
		registered[normalized] = gw
	}
	d := &Dispatcher{
		gateways: registered,
		logger:   func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Supports reports whether an adapter is registered for gateway.
func (d *Dispatcher) Supports(gateway domain.PaymentGateway) bool {
	if d == nil {
		return false
	}
	_, ok := d.gateways[gateway]
	return ok
}

// Process charges through the selected gateway. Adapter errors are wrapped with ErrPaymentFailed;
// a declined direct charge returns a result with Success=false and no error.
func (d *Dispatcher) Process(ctx context.Context, gateway domain.PaymentGateway, req Request) (Result, error) {
	if d == nil {
		return Result{}, ErrUnsupportedGateway
	}
	gw, ok := d.gateways[gateway]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedGateway, gateway)
	}
	if !req.Amount.IsPositive() {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrPaymentFailed)
	}

	result, err := gw.Process(ctx, req)
	if err != nil {
		d.metrics.PaymentOutcome(string(gateway), outcomeError)
		d.logger(ctx, "payments.dispatch.error", map[string]any{
			"gateway": string(gateway),
			"userId":  req.UserID,
			"orderId": req.OrderID,
			"error":   err.Error(),
		})
		if errors.Is(err, ErrPaymentFailed) || errors.Is(err, ErrCardRequired) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	outcome := outcomeDeclined
	switch {
	case result.RequiresAction:
		outcome = outcomeRedirect
	case result.Success:
		outcome = outcomeSuccess
	}
	d.metrics.PaymentOutcome(string(gateway), outcome)
	d.logger(ctx, "payments.dispatch."+outcome, map[string]any{
		"gateway":       string(gateway),
		"userId":        req.UserID,
		"orderId":       req.OrderID,
		"purpose":       string(req.Purpose),
		"transactionId": result.TransactionID,
	})
	return result, nil
}

// Verify reconciles an out-of-band payment when the gateway adapter supports it.
func (d *Dispatcher) Verify(ctx context.Context, gateway domain.PaymentGateway, transactionID string) (Verification, error) {
	return d.lookup(ctx, gateway, transactionID, false)
}

// Inspect reads an out-of-band payment without capturing or otherwise settling it.
func (d *Dispatcher) Inspect(ctx context.Context, gateway domain.PaymentGateway, transactionID string) (Verification, error) {
	return d.lookup(ctx, gateway, transactionID, true)
}

func (d *Dispatcher) lookup(ctx context.Context, gateway domain.PaymentGateway, transactionID string, readOnly bool) (Verification, error) {
	if d == nil {
		return Verification{}, ErrUnsupportedGateway
	}
	gw, ok := d.gateways[gateway]
	if !ok {
		return Verification{}, fmt.Errorf("%w: %s", ErrUnsupportedGateway, gateway)
	}
	verifier, ok := gw.(Verifier)
	if !ok {
		return Verification{}, fmt.Errorf("%w: %s does not support verification", ErrUnsupportedGateway, gateway)
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return Verification{}, fmt.Errorf("%w: transaction id is required", ErrPaymentFailed)
	}
	read := verifier.Verify
	if inspector, ok := gw.(Inspector); ok && readOnly {
		read = inspector.Inspect
	}
	v, err := read(ctx, transactionID)
	if err != nil {
		d.metrics.PaymentOutcome(string(gateway), outcomeError)
		if errors.Is(err, ErrPaymentFailed) {
			return Verification{}, err
		}
		return Verification{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	return v, nil
}

// MinorUnits converts a decimal amount to integer cents.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts integer cents to a decimal amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func parsePurpose(value string) Purpose {
	if Purpose(strings.TrimSpace(value)) == PurposeRepayDues {
		return PurposeRepayDues
	}
	return PurposeOrder
}
