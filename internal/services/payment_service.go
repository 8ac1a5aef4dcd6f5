package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/platform/observability"
)

var (
	// ErrPaymentInvalidInput signals a malformed reconciliation request.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentForbidden indicates the caller does not own the payment.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentNotCompleted indicates the gateway has not settled the payment yet.
	ErrPaymentNotCompleted = errors.New("payment: not completed")
	// ErrPaymentServiceMissing indicates the service was wired without its collaborators.
	ErrPaymentServiceMissing = errors.New("payment: dependencies not configured")
)

// PaymentServiceDeps bundles collaborators used to reconcile out-of-band payments.
type PaymentServiceDeps struct {
	Payments PaymentDispatcher
	Stripe   StripeWebhookParser
	Orders   OrderService
	Wallets  WalletService
	Metrics  *observability.Metrics
	Logger   Logger
}

type paymentService struct {
	payments PaymentDispatcher
	stripe   StripeWebhookParser
	orders   OrderService
	wallets  WalletService
	metrics  *observability.Metrics
	logger   Logger
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires payment reconciliation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil || deps.Orders == nil || deps.Wallets == nil {
		return nil, ErrPaymentServiceMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &paymentService{
		payments: deps.Payments,
		stripe:   deps.Stripe,
		orders:   deps.Orders,
		wallets:  deps.Wallets,
		metrics:  deps.Metrics,
		logger:   logger,
	}, nil
}

// VerifyPayment re-reads a redirect payment from its gateway and applies it according to the
// purpose carried in the payment metadata.
func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (PaymentVerificationResult, error) {
	txnID := strings.TrimSpace(cmd.TransactionID)
	if txnID == "" {
		return PaymentVerificationResult{}, fmt.Errorf("%w: transaction id is required", ErrPaymentInvalidInput)
	}
	gateway := domain.PaymentGateway(strings.ToUpper(strings.TrimSpace(string(cmd.Gateway))))
	if !gateway.Valid() || gateway == domain.GatewayWallet {
		return PaymentVerificationResult{}, fmt.Errorf("%w: unsupported gateway %q", ErrPaymentInvalidInput, cmd.Gateway)
	}
	if !s.payments.Supports(gateway) {
		return PaymentVerificationResult{}, fmt.Errorf("%w: %s", payments.ErrUnsupportedGateway, gateway)
	}

	if !cmd.ActorIsAdmin {
		// Verify may capture; ownership is checked on a read-only lookup first.
		inspected, err := s.payments.Inspect(ctx, gateway, txnID)
		if err != nil {
			return PaymentVerificationResult{}, err
		}
		if inspected.UserID != "" && inspected.UserID != strings.TrimSpace(cmd.ActorID) {
			s.logger(ctx, "payment.verify.forbidden", map[string]any{"gateway": string(gateway), "transactionId": txnID})
			return PaymentVerificationResult{}, ErrPaymentForbidden
		}
	}

	verification, err := s.payments.Verify(ctx, gateway, txnID)
	if err != nil {
		return PaymentVerificationResult{}, err
	}
	if verification.TransactionID == "" {
		verification.TransactionID = txnID
	}
	if !verification.Paid {
		s.logger(ctx, "payment.verify.unpaid", map[string]any{"gateway": string(gateway), "transactionId": txnID})
		return PaymentVerificationResult{Purpose: verification.Purpose}, fmt.Errorf("%w: %s", ErrPaymentNotCompleted, txnID)
	}
	return s.apply(ctx, gateway, verification, "verify")
}

// HandleStripeWebhook applies a signed checkout.session.completed delivery. Other event types
// are acknowledged without effect.
func (s *paymentService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (PaymentVerificationResult, error) {
	if s.stripe == nil {
		return PaymentVerificationResult{}, fmt.Errorf("%w: %s", payments.ErrUnsupportedGateway, domain.GatewayStripe)
	}
	verification, ok, err := s.stripe.ParseWebhook(payload, signature)
	if err != nil {
		return PaymentVerificationResult{}, err
	}
	if !ok {
		return PaymentVerificationResult{}, nil
	}
	if !verification.Paid {
		s.logger(ctx, "payment.webhook.unpaid", map[string]any{"transactionId": verification.TransactionID})
		return PaymentVerificationResult{Purpose: verification.Purpose}, nil
	}
	return s.apply(ctx, domain.GatewayStripe, verification, "webhook")
}

func (s *paymentService) apply(ctx context.Context, gateway domain.PaymentGateway, v payments.Verification, source string) (PaymentVerificationResult, error) {
	switch v.Purpose {
	case payments.PurposeRepayDues:
		if v.UserID == "" {
			return PaymentVerificationResult{}, fmt.Errorf("%w: repayment is missing its user", ErrPaymentInvalidInput)
		}
		settled, err := s.wallets.SettleRepayment(ctx, SettleRepaymentCommand{
			UserID:        v.UserID,
			Gateway:       gateway,
			TransactionID: v.TransactionID,
			Amount:        v.Amount,
		})
		if err != nil {
			return PaymentVerificationResult{}, err
		}
		s.logger(ctx, "payment.reconciled", map[string]any{
			"source":        source,
			"purpose":       string(v.Purpose),
			"transactionId": v.TransactionID,
			"already":       settled.AlreadySettled,
		})
		s.metrics.PaymentOutcome(string(gateway), "reconciled")
		wallet := settled.Wallet
		return PaymentVerificationResult{Paid: true, Purpose: v.Purpose, Wallet: &wallet, AlreadyProcessed: settled.AlreadySettled}, nil

	case payments.PurposeOrder:
		if v.OrderID == "" {
			return PaymentVerificationResult{}, fmt.Errorf("%w: payment is missing its order", ErrPaymentInvalidInput)
		}
		confirmed, err := s.orders.ConfirmPayment(ctx, ConfirmPaymentCommand{
			OrderID:       v.OrderID,
			TransactionID: v.TransactionID,
			ActorID:       source,
			Verified:      true,
		})
		if err != nil {
			return PaymentVerificationResult{}, err
		}
		s.logger(ctx, "payment.reconciled", map[string]any{
			"source":        source,
			"purpose":       string(v.Purpose),
			"orderId":       v.OrderID,
			"transactionId": v.TransactionID,
			"already":       confirmed.AlreadyConfirmed,
		})
		s.metrics.PaymentOutcome(string(gateway), "reconciled")
		order := confirmed.Order
		return PaymentVerificationResult{Paid: true, Purpose: v.Purpose, Order: &order, AlreadyProcessed: confirmed.AlreadyConfirmed}, nil

	default:
		return PaymentVerificationResult{}, fmt.Errorf("%w: unknown payment purpose %q", ErrPaymentInvalidInput, v.Purpose)
	}
}
