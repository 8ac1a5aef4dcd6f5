package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/platform/observability"
	"github.com/tradeshop/api/internal/repositories"
)

const transactionIDPrefix = "txn_"

var (
	// ErrWalletInvalidInput signals a malformed wallet request.
	ErrWalletInvalidInput = errors.New("wallet: invalid input")
	// ErrWalletNotFound indicates the user has no wallet.
	ErrWalletNotFound = errors.New("wallet: not found")
	// ErrWalletInsufficientBalance indicates a debit larger than the spendable balance.
	ErrWalletInsufficientBalance = errors.New("wallet: insufficient balance")
	// ErrWalletConflict indicates a guarded wallet update lost a race or a ledger entry already exists.
	ErrWalletConflict = errors.New("wallet: conflict")
	// ErrWalletRepositoryMissing indicates the service was wired without storage.
	ErrWalletRepositoryMissing = errors.New("wallet: repository not configured")
)

// WalletServiceDeps bundles collaborators required by the wallet ledger.
type WalletServiceDeps struct {
	Users        repositories.UserRepository
	Wallets      repositories.WalletRepository
	Transactions repositories.TransactionRepository
	Cards        repositories.CardRepository
	Payments     PaymentDispatcher
	Notifier     Notifier
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	IDGenerator  func() string
	Metrics      *observability.Metrics
	Logger       Logger
}

type walletService struct {
	users        repositories.UserRepository
	wallets      repositories.WalletRepository
	transactions repositories.TransactionRepository
	cards        repositories.CardRepository
	payments     PaymentDispatcher
	notifier     Notifier
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	metrics      *observability.Metrics
	logger       Logger
}

var _ WalletService = (*walletService)(nil)

// NewWalletService wires the wallet ledger.
func NewWalletService(deps WalletServiceDeps) (WalletService, error) {
	if deps.Users == nil || deps.Wallets == nil || deps.Transactions == nil {
		return nil, ErrWalletRepositoryMissing
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &walletService{
		users:        deps.Users,
		wallets:      deps.Wallets,
		transactions: deps.Transactions,
		cards:        deps.Cards,
		payments:     deps.Payments,
		notifier:     deps.Notifier,
		unitOfWork:   unit,
		clock:        utcClock(deps.Clock),
		newID:        defaultIDGenerator(deps.IDGenerator),
		metrics:      deps.Metrics,
		logger:       logger,
	}, nil
}

func (s *walletService) Get(ctx context.Context, userID string) (Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Wallet{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	wallet, err := s.wallets.FindByUserID(ctx, userID)
	if err != nil {
		return Wallet{}, s.mapRepositoryError(err)
	}
	return wallet, nil
}

// Credit adds to the spendable balance only; credit due is untouched.
func (s *walletService) Credit(ctx context.Context, cmd CreditWalletCommand) (Wallet, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Wallet{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	if !cmd.Amount.IsPositive() {
		return Wallet{}, fmt.Errorf("%w: amount must be positive", ErrWalletInvalidInput)
	}
	amount := domain.RoundMoney(cmd.Amount)
	description := sanitizeText(cmd.Description)
	if description == "" {
		description = "Credited by admin"
	}

	var wallet Wallet
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.wallets.LockByUserID(txCtx, userID); err != nil {
			return err
		}
		updated, err := s.wallets.Adjust(txCtx, userID, amount, decimal.Zero, s.clock())
		if err != nil {
			return err
		}
		wallet = updated
		return s.appendLedger(txCtx, userID, domain.TransactionCreditAdded, amount, description, domain.PaymentMethodAdmin, "")
	})
	if err != nil {
		return Wallet{}, s.mapRepositoryError(err)
	}
	s.metrics.WalletMutation(string(domain.TransactionCreditAdded))
	s.logger(ctx, "wallet.credit", map[string]any{"userId": userID, "amount": amount.StringFixed(2), "actor": cmd.ActorID})
	s.notifyBalance(ctx, wallet, amount)
	return wallet, nil
}

// SetBalance overrides the balance and records the difference as a credit or a withdrawal.
func (s *walletService) SetBalance(ctx context.Context, cmd SetBalanceCommand) (Wallet, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Wallet{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	if cmd.Balance.IsNegative() {
		return Wallet{}, fmt.Errorf("%w: balance must not be negative", ErrWalletInvalidInput)
	}
	target := domain.RoundMoney(cmd.Balance)
	actor := firstNonEmpty(sanitizeText(cmd.ActorName), cmd.ActorID, "admin")

	var (
		wallet Wallet
		delta  decimal.Decimal
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.wallets.LockByUserID(txCtx, userID)
		if err != nil {
			return err
		}
		delta = target.Sub(current.Balance)
		if delta.IsZero() {
			wallet = current
			return nil
		}
		updated, err := s.wallets.Set(txCtx, userID, target, current.CreditDue, s.clock())
		if err != nil {
			return err
		}
		wallet = updated
		if delta.IsPositive() {
			return s.appendLedger(txCtx, userID, domain.TransactionCreditAdded, delta, "Credited by admin: "+actor, domain.PaymentMethodAdmin, "")
		}
		return s.appendLedger(txCtx, userID, domain.TransactionWithdrawal, delta.Abs(), "Debited by admin: "+actor, domain.PaymentMethodAdmin, "")
	})
	if err != nil {
		return Wallet{}, s.mapRepositoryError(err)
	}
	if delta.IsZero() {
		return wallet, nil
	}
	kind := domain.TransactionCreditAdded
	if delta.IsNegative() {
		kind = domain.TransactionWithdrawal
	}
	s.metrics.WalletMutation(string(kind))
	s.logger(ctx, "wallet.balance.set", map[string]any{"userId": userID, "delta": delta.StringFixed(2), "actor": actor})
	s.notifyBalance(ctx, wallet, delta)
	return wallet, nil
}

// ClearDue zeroes the credit due immediately and then sends the user a payment request for the cleared amount.
func (s *walletService) ClearDue(ctx context.Context, cmd ClearDueCommand) (Wallet, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Wallet{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	var (
		wallet  Wallet
		cleared decimal.Decimal
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.wallets.LockByUserID(txCtx, userID)
		if err != nil {
			return err
		}
		cleared = current.CreditDue
		if !cleared.IsPositive() {
			wallet = current
			return nil
		}
		updated, err := s.wallets.Set(txCtx, userID, current.Balance, decimal.Zero, s.clock())
		if err != nil {
			return err
		}
		wallet = updated
		return s.appendLedger(txCtx, userID, domain.TransactionCreditRepayment, cleared, "Credit due cleared by admin", domain.PaymentMethodAdmin, "")
	})
	if err != nil {
		return Wallet{}, s.mapRepositoryError(err)
	}
	if !cleared.IsPositive() {
		return wallet, nil
	}
	s.metrics.WalletMutation(string(domain.TransactionCreditRepayment))
	s.logger(ctx, "wallet.due.cleared", map[string]any{"userId": userID, "amount": cleared.StringFixed(2), "actor": cmd.ActorID})
	if s.notifier != nil {
		if user, err := s.users.FindByID(ctx, userID); err == nil {
			s.notifier.PaymentRequested(ctx, user, cleared)
		} else {
			s.logger(ctx, "wallet.notify.user_lookup_failed", map[string]any{"userId": userID, "error": err.Error()})
		}
	}
	return wallet, nil
}

// RepayDues charges the user through a gateway. Redirect gateways return a payment URL and are
// settled later by SettleRepayment; direct-capture gateways settle immediately.
func (s *walletService) RepayDues(ctx context.Context, cmd RepayDuesCommand) (RepayDuesResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return RepayDuesResult{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	if !cmd.Amount.IsPositive() {
		return RepayDuesResult{}, fmt.Errorf("%w: amount must be positive", ErrWalletInvalidInput)
	}
	if cmd.Gateway == domain.GatewayWallet || !cmd.Gateway.Valid() {
		return RepayDuesResult{}, fmt.Errorf("%w: unsupported gateway %q", ErrWalletInvalidInput, cmd.Gateway)
	}
	if s.payments == nil {
		return RepayDuesResult{}, fmt.Errorf("%w: %s", payments.ErrUnsupportedGateway, cmd.Gateway)
	}
	amount := domain.RoundMoney(cmd.Amount)

	wallet, err := s.wallets.FindByUserID(ctx, userID)
	if err != nil {
		return RepayDuesResult{}, s.mapRepositoryError(err)
	}
	if amount.GreaterThan(wallet.CreditDue) {
		return RepayDuesResult{}, fmt.Errorf("%w: amount exceeds credit due", ErrWalletInvalidInput)
	}

	result, err := s.payments.Process(ctx, cmd.Gateway, payments.Request{
		Amount:      amount,
		UserID:      userID,
		Purpose:     payments.PurposeRepayDues,
		Description: "Credit due repayment",
		Card:        cmd.Card,
	})
	if err != nil {
		return RepayDuesResult{}, err
	}
	if result.RequiresAction {
		s.logger(ctx, "wallet.repay.redirect", map[string]any{"userId": userID, "gateway": string(cmd.Gateway), "transactionId": result.TransactionID})
		return RepayDuesResult{Wallet: wallet, RequiresAction: true, PaymentURL: result.PaymentURL, TransactionID: result.TransactionID}, nil
	}
	if !result.Success {
		return RepayDuesResult{}, fmt.Errorf("%w: payment declined", payments.ErrPaymentFailed)
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.wallets.LockByUserID(txCtx, userID); err != nil {
			return err
		}
		updated, err := s.wallets.Adjust(txCtx, userID, decimal.Zero, amount.Neg(), s.clock())
		if err != nil {
			return err
		}
		wallet = updated
		method := domain.PaymentMethodForGateway(cmd.Gateway)
		if err := s.appendLedger(txCtx, userID, domain.TransactionCreditRepayment, amount, "Credit due repayment", method, result.TransactionID); err != nil {
			return err
		}
		if result.Card != nil && s.cards != nil {
			return s.cards.Upsert(txCtx, *result.Card)
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, "wallet.repay.settle_failed", map[string]any{
			"userId":        userID,
			"transactionId": result.TransactionID,
			"error":         err.Error(),
		})
		return RepayDuesResult{}, s.mapRepositoryError(err)
	}
	s.metrics.WalletMutation(string(domain.TransactionCreditRepayment))
	s.logger(ctx, "wallet.repay.captured", map[string]any{"userId": userID, "amount": amount.StringFixed(2), "transactionId": result.TransactionID})
	return RepayDuesResult{Wallet: wallet, TransactionID: result.TransactionID}, nil
}

// SettleRepayment reduces the credit due by the gateway-confirmed amount and records the payment.
// The reduction stops at zero when dues shrank after checkout. The gateway transaction id makes
// the call idempotent.
func (s *walletService) SettleRepayment(ctx context.Context, cmd SettleRepaymentCommand) (SettleRepaymentResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	txnID := strings.TrimSpace(cmd.TransactionID)
	if userID == "" || txnID == "" {
		return SettleRepaymentResult{}, fmt.Errorf("%w: user id and transaction id are required", ErrWalletInvalidInput)
	}
	amount := domain.RoundMoney(cmd.Amount)
	if !amount.IsPositive() {
		return SettleRepaymentResult{}, fmt.Errorf("%w: amount must be positive", ErrWalletInvalidInput)
	}
	var result SettleRepaymentResult
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.wallets.LockByUserID(txCtx, userID)
		if err != nil {
			return err
		}
		if _, err := s.transactions.FindByPaymentTransactionID(txCtx, txnID); err == nil {
			result = SettleRepaymentResult{Wallet: current, AlreadySettled: true}
			return nil
		} else if !isRepoNotFound(err) {
			return err
		}
		reduction := decimal.Min(amount, current.CreditDue)
		updated, err := s.wallets.Adjust(txCtx, userID, decimal.Zero, reduction.Neg(), s.clock())
		if err != nil {
			return err
		}
		result = SettleRepaymentResult{Wallet: updated}
		method := domain.PaymentMethodForGateway(cmd.Gateway)
		return s.appendLedger(txCtx, userID, domain.TransactionCreditRepayment, amount, "Credit due repayment", method, txnID)
	})
	if err != nil {
		return SettleRepaymentResult{}, s.mapRepositoryError(err)
	}
	if !result.AlreadySettled {
		s.metrics.WalletMutation(string(domain.TransactionCreditRepayment))
		s.logger(ctx, "wallet.repay.settled", map[string]any{"userId": userID, "transactionId": txnID, "gateway": string(cmd.Gateway)})
	}
	return result, nil
}

func (s *walletService) Transactions(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[Transaction], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[Transaction]{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	page, err := s.transactions.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[Transaction]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *walletService) appendLedger(ctx context.Context, userID string, kind domain.TransactionType, amount decimal.Decimal, description string, method domain.PaymentMethod, paymentTxnID string) error {
	return s.transactions.Insert(ctx, domain.Transaction{
		ID:                   transactionIDPrefix + s.newID(),
		UserID:               userID,
		Type:                 kind,
		Amount:               amount,
		Description:          description,
		PaymentMethod:        method,
		PaymentTransactionID: paymentTxnID,
		CreatedAt:            s.clock(),
	})
}

func (s *walletService) notifyBalance(ctx context.Context, wallet Wallet, delta decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.FindByID(ctx, wallet.UserID)
	if err != nil {
		s.logger(ctx, "wallet.notify.user_lookup_failed", map[string]any{"userId": wallet.UserID, "error": err.Error()})
		return
	}
	s.notifier.WalletBalanceChanged(ctx, wallet, user, delta)
}

func (s *walletService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrWalletInvalidInput) || errors.Is(err, payments.ErrPaymentFailed) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrWalletNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrWalletConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("wallet: repository unavailable: %w", err)
		}
	}
	return err
}
