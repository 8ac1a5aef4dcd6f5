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

const (
	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"

	defaultStaleAfter = 24 * time.Hour
	defaultSweepBatch = 200

	maxOrderItems    = 100
	maxItemQuantity  = 10000
	maxNotesLength   = 2000
	insufficientFund = "Insufficient wallet balance"
)

var (
	// ErrOrderInvalidInput signals a malformed order request or a rejected coupon.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates a missing order or a missing referenced user, product or variant.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller may not act on the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidTransition indicates a status change not allowed by the lifecycle.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates the order changed concurrently.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderRepositoryMissing indicates the service was wired without storage.
	ErrOrderRepositoryMissing = errors.New("order: repository not configured")
)

// OrderServiceDeps bundles collaborators required by the order assembler and lifecycle.
type OrderServiceDeps struct {
	Users        repositories.UserRepository
	Products     repositories.ProductRepository
	Orders       repositories.OrderRepository
	Wallets      repositories.WalletRepository
	Transactions repositories.TransactionRepository
	Cards        repositories.CardRepository
	Coupons      CouponService
	Payments     PaymentDispatcher
	Notifier     Notifier
	Shipping     domain.ShippingPolicy
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	IDGenerator  func() string
	Metrics      *observability.Metrics
	Logger       Logger
	Currency     string
	StaleAfter   time.Duration
	SweepBatch   int
}

type orderService struct {
	users        repositories.UserRepository
	products     repositories.ProductRepository
	orders       repositories.OrderRepository
	wallets      repositories.WalletRepository
	transactions repositories.TransactionRepository
	cards        repositories.CardRepository
	coupons      CouponService
	payments     PaymentDispatcher
	notifier     Notifier
	shipping     domain.ShippingPolicy
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	metrics      *observability.Metrics
	logger       Logger
	currency     string
	staleAfter   time.Duration
	sweepBatch   int
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires the order assembler, payment confirmation and lifecycle operations.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Users == nil || deps.Products == nil || deps.Orders == nil || deps.Wallets == nil || deps.Transactions == nil {
		return nil, ErrOrderRepositoryMissing
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service: coupon service is required")
	}
	shipping := deps.Shipping
	if shipping == nil {
		policy, err := domain.NewShippingPolicy(domain.DefaultShippingRule())
		if err != nil {
			return nil, err
		}
		shipping = policy
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	staleAfter := deps.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := deps.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &orderService{
		users:        deps.Users,
		products:     deps.Products,
		orders:       deps.Orders,
		wallets:      deps.Wallets,
		transactions: deps.Transactions,
		cards:        deps.Cards,
		coupons:      deps.Coupons,
		payments:     deps.Payments,
		notifier:     deps.Notifier,
		shipping:     shipping,
		unitOfWork:   unit,
		clock:        utcClock(deps.Clock),
		newID:        defaultIDGenerator(deps.IDGenerator),
		metrics:      deps.Metrics,
		logger:       logger,
		currency:     strings.ToUpper(strings.TrimSpace(deps.Currency)),
		staleAfter:   staleAfter,
		sweepBatch:   batch,
	}, nil
}

// Create assembles the order from current catalog prices, persists it as PAYMENT_PENDING and
// dispatches payment. Wallet orders settle inside the same transaction; a failed external
// payment leaves the order PAYMENT_PENDING for the sweep.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error) {
	cmd, err := s.normalizeCreate(cmd)
	if err != nil {
		return OrderResult{}, err
	}

	var (
		order Order
		user  User
	)
	settledInline := false
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.users.FindByID(txCtx, cmd.UserID)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: user %s", ErrOrderNotFound, cmd.UserID)
			}
			return err
		}

		order, err = s.assemble(txCtx, cmd, user)
		if err != nil {
			return err
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return err
		}

		if cmd.Gateway != domain.GatewayWallet && order.Total.IsPositive() {
			return nil
		}
		if cmd.Gateway == domain.GatewayWallet && order.Total.IsPositive() {
			if err := s.debitWallet(txCtx, order); err != nil {
				return err
			}
		}
		confirmed, err := s.markConfirmed(txCtx, order, "")
		if err != nil {
			return err
		}
		order = confirmed
		if err := s.recordCouponUsage(txCtx, order, true); err != nil {
			return err
		}
		settledInline = true
		return nil
	})
	if err != nil {
		return OrderResult{}, s.mapRepositoryError(err)
	}

	s.metrics.OrderEvent("created", string(order.Status))
	s.logger(ctx, "order.created", map[string]any{
		"orderId": order.ID,
		"userId":  order.UserID,
		"gateway": string(order.Gateway),
		"total":   order.Total.StringFixed(2),
	})

	if settledInline {
		s.metrics.OrderEvent("confirmed", string(order.Status))
		s.notifyPlaced(ctx, order, user)
		return OrderResult{Order: order}, nil
	}
	return s.dispatchPayment(ctx, order, user, cmd.Card)
}

func (s *orderService) normalizeCreate(cmd CreateOrderCommand) (CreateOrderCommand, error) {
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	if cmd.UserID == "" {
		return cmd, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return cmd, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) > maxOrderItems {
		return cmd, fmt.Errorf("%w: too many items", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.VariantID = strings.TrimSpace(item.VariantID)
		if item.ProductID == "" {
			return cmd, fmt.Errorf("%w: items[%d].productId is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 || item.Quantity > maxItemQuantity {
			return cmd, fmt.Errorf("%w: items[%d].quantity must be between 1 and %d", ErrOrderInvalidInput, i, maxItemQuantity)
		}
		cmd.Items[i] = item
	}

	cmd.Gateway = domain.PaymentGateway(strings.ToUpper(strings.TrimSpace(string(cmd.Gateway))))
	if !cmd.Gateway.Valid() {
		return cmd, fmt.Errorf("%w: unsupported payment gateway %q", ErrOrderInvalidInput, cmd.Gateway)
	}
	if cmd.Gateway != domain.GatewayWallet && (s.payments == nil || !s.payments.Supports(cmd.Gateway)) {
		return cmd, fmt.Errorf("%w: payment gateway %s is not configured", ErrOrderInvalidInput, cmd.Gateway)
	}
	if cmd.Gateway == domain.GatewayAuthorizeNet && (cmd.Card == nil || strings.TrimSpace(cmd.Card.Number) == "") {
		return cmd, fmt.Errorf("%w: card details are required", ErrOrderInvalidInput)
	}

	addr := cmd.ShippingAddress
	addr.Street = sanitizeText(addr.Street)
	addr.City = sanitizeText(addr.City)
	addr.State = sanitizeText(addr.State)
	addr.Country = sanitizeText(addr.Country)
	addr.ZipCode = sanitizeText(addr.ZipCode)
	addr.Phone = sanitizeText(addr.Phone)
	if !cmd.StoreCollection && (addr.Street == "" || addr.City == "" || addr.Country == "") {
		return cmd, fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	}
	cmd.ShippingAddress = addr

	cmd.Notes = sanitizeText(cmd.Notes)
	if len(cmd.Notes) > maxNotesLength {
		return cmd, fmt.Errorf("%w: notes are too long", ErrOrderInvalidInput)
	}
	cmd.CouponCode = normalizeCouponCode(cmd.CouponCode)
	return cmd, nil
}

// assemble prices every line, applies shipping and the coupon, and returns the unsaved order.
func (s *orderService) assemble(ctx context.Context, cmd CreateOrderCommand, user User) (Order, error) {
	ids := make([]string, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		ids = append(ids, item.ProductID)
	}
	found, err := s.products.FindByIDs(ctx, normalizeIDs(ids))
	if err != nil {
		return Order{}, err
	}
	products := make(map[string]domain.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}

	now := s.clock()
	orderID := orderIDPrefix + s.newID()
	items := make([]domain.OrderItem, 0, len(cmd.Items))
	subtotal := decimal.Zero
	for _, input := range cmd.Items {
		product, ok := products[input.ProductID]
		if !ok {
			return Order{}, fmt.Errorf("%w: product %s", ErrOrderNotFound, input.ProductID)
		}
		if product.Status != domain.ProductStatusActive {
			return Order{}, fmt.Errorf("%w: product %s is not available", ErrOrderInvalidInput, product.ID)
		}
		var variant *domain.ProductVariant
		if input.VariantID != "" {
			for i := range product.Variants {
				if product.Variants[i].ID == input.VariantID {
					variant = &product.Variants[i]
					break
				}
			}
			if variant == nil {
				return Order{}, fmt.Errorf("%w: variant %s", ErrOrderNotFound, input.VariantID)
			}
		}

		unit := domain.ResolveUnitPrice(product, variant, user.Role, input.Quantity)
		line := domain.LineTotal(unit, input.Quantity)
		subtotal = subtotal.Add(line)

		item := domain.OrderItem{
			ID:          orderItemIDPrefix + s.newID(),
			OrderID:     orderID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    input.Quantity,
			UnitPrice:   unit,
			LineTotal:   line,
		}
		if variant != nil {
			variantID := variant.ID
			item.VariantID = &variantID
			item.SKU = variant.SKU
			if variant.Name != "" {
				item.ProductName = product.Name + " - " + variant.Name
			}
		}
		items = append(items, item)
	}
	subtotal = domain.RoundMoney(subtotal)
	shipping := domain.RoundMoney(s.shipping(subtotal, cmd.StoreCollection))

	order := Order{
		ID:              orderID,
		UserID:          user.ID,
		Items:           items,
		Status:          domain.OrderStatusPaymentPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Gateway:         cmd.Gateway,
		Subtotal:        subtotal,
		ShippingCost:    shipping,
		DiscountAmount:  decimal.Zero,
		ShippingAddress: cmd.ShippingAddress,
		StoreCollection: cmd.StoreCollection,
		Notes:           cmd.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if cmd.CouponCode != "" {
		result, err := s.coupons.Evaluate(ctx, cmd.CouponCode, subtotal, user)
		if err != nil {
			return Order{}, err
		}
		if !result.Valid || result.Coupon == nil {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderInvalidInput, result.Message)
		}
		couponID := result.Coupon.ID
		order.CouponID = &couponID
		order.CouponCode = result.Coupon.Code
		order.DiscountAmount = domain.RoundMoney(result.Discount)
	}

	order.Total = domain.OrderTotal(order.Subtotal, order.ShippingCost, order.DiscountAmount)
	return order, nil
}

// debitWallet draws the order total from the balance and books the same amount as credit due.
func (s *orderService) debitWallet(ctx context.Context, order Order) error {
	wallet, err := s.wallets.LockByUserID(ctx, order.UserID)
	if err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: %s", ErrWalletInsufficientBalance, insufficientFund)
		}
		return err
	}
	if wallet.Balance.LessThan(order.Total) {
		return fmt.Errorf("%w: %s", ErrWalletInsufficientBalance, insufficientFund)
	}
	now := s.clock()
	if _, err := s.wallets.Adjust(ctx, order.UserID, order.Total.Neg(), order.Total, now); err != nil {
		if isRepoConflict(err) {
			return fmt.Errorf("%w: %s", ErrWalletInsufficientBalance, insufficientFund)
		}
		return err
	}
	if err := s.transactions.Insert(ctx, domain.Transaction{
		ID:                   transactionIDPrefix + s.newID(),
		UserID:               order.UserID,
		Type:                 domain.TransactionWithdrawal,
		Amount:               order.Total,
		Description:          "Payment for order " + order.ID,
		PaymentMethod:        domain.PaymentMethodWallet,
		PaymentTransactionID: order.ID,
		CreatedAt:            now,
	}); err != nil {
		return err
	}
	s.metrics.WalletMutation(string(domain.TransactionWithdrawal))
	return nil
}

func (s *orderService) markConfirmed(ctx context.Context, order Order, reference string) (Order, error) {
	expected := order.Status
	now := s.clock()
	order.Status = domain.OrderStatusConfirmed
	order.PaymentStatus = domain.PaymentStatusCompleted
	if reference != "" {
		order.PaymentReference = reference
	}
	order.ConfirmedAt = &now
	order.UpdatedAt = now
	if err := s.orders.UpdateIfStatus(ctx, order, expected); err != nil {
		return Order{}, err
	}
	return order, nil
}

// recordCouponUsage redeems the order's coupon. When strict is false a cap reached between
// checkout and payment is logged instead of failing, since the payment already happened.
func (s *orderService) recordCouponUsage(ctx context.Context, order Order, strict bool) error {
	if order.CouponID == nil {
		return nil
	}
	err := s.coupons.RecordUsage(ctx, RecordCouponUsageCommand{
		CouponID:       *order.CouponID,
		UserID:         order.UserID,
		OrderID:        order.ID,
		DiscountAmount: order.DiscountAmount,
		OrderAmount:    order.Subtotal,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCouponExhausted) {
		if strict {
			return fmt.Errorf("%w: %s", ErrOrderInvalidInput, couponMsgUsageExceeded)
		}
		s.logger(ctx, "order.coupon.cap_exceeded", map[string]any{
			"orderId":  order.ID,
			"couponId": *order.CouponID,
		})
		return nil
	}
	return err
}

func (s *orderService) dispatchPayment(ctx context.Context, order Order, user User, card *payments.Card) (OrderResult, error) {
	result, err := s.payments.Process(ctx, order.Gateway, payments.Request{
		Amount:         order.Total,
		Currency:       s.currency,
		UserID:         order.UserID,
		OrderID:        order.ID,
		Purpose:        payments.PurposeOrder,
		Description:    "Order " + order.ID,
		Card:           card,
		IdempotencyKey: order.ID,
	})
	if err != nil {
		s.logger(ctx, "order.payment.failed", map[string]any{"orderId": order.ID, "gateway": string(order.Gateway), "error": err.Error()})
		return OrderResult{}, err
	}

	if result.RequiresAction {
		pending := order
		pending.PaymentReference = result.TransactionID
		if order.Gateway == domain.GatewayStripe {
			pending.CheckoutSessionID = result.TransactionID
		}
		pending.UpdatedAt = s.clock()
		if err := s.orders.UpdateIfStatus(ctx, pending, domain.OrderStatusPaymentPending); err != nil {
			s.logger(ctx, "order.payment.reference_not_saved", map[string]any{"orderId": order.ID, "error": err.Error()})
		} else {
			order = pending
		}
		s.metrics.OrderEvent("payment_redirect", string(order.Status))
		return OrderResult{Order: order, RequiresAction: true, PaymentURL: result.PaymentURL}, nil
	}
	if !result.Success {
		s.logger(ctx, "order.payment.declined", map[string]any{"orderId": order.ID, "gateway": string(order.Gateway)})
		return OrderResult{}, fmt.Errorf("%w: payment declined", payments.ErrPaymentFailed)
	}

	confirmed, _, err := s.settle(ctx, order.ID, result.TransactionID, result.Card)
	if err != nil {
		s.logger(ctx, "order.payment.settle_failed", map[string]any{
			"orderId":       order.ID,
			"transactionId": result.TransactionID,
			"error":         err.Error(),
		})
		return OrderResult{}, err
	}
	s.notifyPlaced(ctx, confirmed, user)
	return OrderResult{Order: confirmed}, nil
}

// settle confirms a paid order, records its coupon usage and stores the card summary.
// An order that is already paid is returned unchanged with already=true.
func (s *orderService) settle(ctx context.Context, orderID, reference string, card *domain.CardSummary) (Order, bool, error) {
	var (
		order   Order
		already bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if current.Paid() {
			order, already = current, true
			return nil
		}
		if !domain.CanTransitionOrder(current.Status, domain.OrderStatusConfirmed) {
			return fmt.Errorf("%w: order is %s", ErrOrderInvalidTransition, current.Status)
		}
		confirmed, err := s.markConfirmed(txCtx, current, reference)
		if err != nil {
			return err
		}
		order = confirmed
		if err := s.recordCouponUsage(txCtx, order, false); err != nil {
			return err
		}
		if card != nil && s.cards != nil {
			summary := *card
			summary.UserID = order.UserID
			summary.UpdatedAt = s.clock()
			return s.cards.Upsert(txCtx, summary)
		}
		return nil
	})
	if err != nil {
		return Order{}, false, s.mapRepositoryError(err)
	}
	if !already {
		s.metrics.OrderEvent("confirmed", string(order.Status))
		s.logger(ctx, "order.confirmed", map[string]any{"orderId": order.ID, "reference": reference})
	}
	return order, already, nil
}

// ConfirmPayment confirms an externally paid order. Administrators confirm manually; owners
// need the gateway to report the payment as completed.
func (s *orderService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ConfirmPaymentResult{}, s.mapRepositoryError(err)
	}
	if !cmd.ActorIsAdmin && !cmd.Verified && order.UserID != strings.TrimSpace(cmd.ActorID) {
		return ConfirmPaymentResult{}, ErrOrderForbidden
	}
	if order.Paid() {
		return ConfirmPaymentResult{Order: order, AlreadyConfirmed: true}, nil
	}
	if order.Gateway == domain.GatewayWallet {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: wallet orders are settled at checkout", ErrOrderInvalidInput)
	}

	reference := firstNonEmpty(strings.TrimSpace(cmd.TransactionID), order.PaymentReference)
	if !cmd.ActorIsAdmin && !cmd.Verified {
		lookup := order.PaymentReference
		if order.Gateway == domain.GatewayStripe {
			lookup = firstNonEmpty(order.CheckoutSessionID, order.PaymentReference)
		}
		if lookup == "" || s.payments == nil {
			return ConfirmPaymentResult{}, fmt.Errorf("%w: no payment to verify", ErrOrderInvalidInput)
		}
		verification, err := s.payments.Verify(ctx, order.Gateway, lookup)
		if err != nil {
			return ConfirmPaymentResult{}, err
		}
		if !verification.Paid || (verification.OrderID != "" && verification.OrderID != order.ID) {
			return ConfirmPaymentResult{}, fmt.Errorf("%w: payment not completed", payments.ErrPaymentFailed)
		}
		reference = firstNonEmpty(verification.TransactionID, reference)
	}

	confirmed, already, err := s.settle(ctx, order.ID, reference, nil)
	if err != nil {
		return ConfirmPaymentResult{}, err
	}
	if !already {
		s.logger(ctx, "order.payment.confirmed", map[string]any{
			"orderId":  order.ID,
			"actor":    cmd.ActorID,
			"admin":    cmd.ActorIsAdmin,
			"verified": cmd.Verified,
		})
		if user, err := s.users.FindByID(ctx, confirmed.UserID); err == nil {
			s.notifyPlaced(ctx, confirmed, user)
		} else {
			s.logger(ctx, "order.notify.user_lookup_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	}
	return ConfirmPaymentResult{Order: confirmed, AlreadyConfirmed: already}, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	if from, to := filter.Total.From, filter.Total.To; from != nil && to != nil && from.GreaterThan(*to) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: total range is inverted", ErrOrderInvalidInput)
	}
	if from, to := filter.CreatedAt.From, filter.CreatedAt.To; from != nil && to != nil && from.After(*to) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: date range is inverted", ErrOrderInvalidInput)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Status:     filter.Status,
		Total:      filter.Total,
		CreatedAt:  filter.CreatedAt,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// AdminUpdate applies an administrator's fulfilment update and notifies the customer of status changes.
func (s *orderService) AdminUpdate(ctx context.Context, cmd AdminUpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Status == nil && cmd.TrackingNumber == nil && cmd.AdminNotes == nil {
		return Order{}, fmt.Errorf("%w: nothing to update", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	previous := order.Status

	if cmd.Status != nil {
		target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(string(*cmd.Status))))
		if !domain.AdminSettable(target) {
			return Order{}, fmt.Errorf("%w: status %q cannot be set manually", ErrOrderInvalidInput, target)
		}
		if !domain.CanTransitionOrder(previous, target) {
			return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, previous, target)
		}
		order.Status = target
	}
	if cmd.TrackingNumber != nil {
		order.TrackingNumber = sanitizeText(*cmd.TrackingNumber)
	}
	if cmd.AdminNotes != nil {
		notes := sanitizeText(*cmd.AdminNotes)
		if len(notes) > maxNotesLength {
			return Order{}, fmt.Errorf("%w: admin notes are too long", ErrOrderInvalidInput)
		}
		order.AdminNotes = notes
	}
	order.UpdatedAt = s.clock()

	if err := s.orders.UpdateIfStatus(ctx, order, previous); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.admin.updated", map[string]any{
		"orderId":  order.ID,
		"actor":    cmd.ActorID,
		"previous": string(previous),
		"status":   string(order.Status),
	})
	if order.Status != previous {
		s.metrics.OrderEvent("status_changed", string(order.Status))
		if s.notifier != nil {
			if user, err := s.users.FindByID(ctx, order.UserID); err == nil {
				s.notifier.OrderStatusChanged(ctx, order, user, previous)
			} else {
				s.logger(ctx, "order.notify.user_lookup_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
			}
		}
	}
	return order, nil
}

// SweepStale fails PAYMENT_PENDING orders older than the staleness window. Each order is
// updated in its own transaction; failures are logged and the sweep continues.
func (s *orderService) SweepStale(ctx context.Context) (SweepReport, error) {
	cutoff := s.clock().Add(-s.staleAfter)
	stale, err := s.orders.ListStale(ctx, domain.OrderStatusPaymentPending, cutoff, s.sweepBatch)
	if err != nil {
		return SweepReport{}, s.mapRepositoryError(err)
	}
	report := SweepReport{Scanned: len(stale)}
	for _, order := range stale {
		if err := ctx.Err(); err != nil {
			s.logger(ctx, "order.sweep.cancelled", map[string]any{"processed": report.Failed + report.Errors})
			break
		}
		err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
			order.Status = domain.OrderStatusFailed
			order.PaymentStatus = domain.PaymentStatusFailed
			order.UpdatedAt = s.clock()
			return s.orders.UpdateIfStatus(txCtx, order, domain.OrderStatusPaymentPending)
		})
		switch {
		case err == nil:
			report.Failed++
		case isRepoConflict(err):
			s.logger(ctx, "order.sweep.skipped", map[string]any{"orderId": order.ID})
		default:
			report.Errors++
			s.logger(ctx, "order.sweep.error", map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	}
	s.metrics.SweepOutcome("failed", report.Failed)
	s.metrics.SweepOutcome("error", report.Errors)
	s.logger(ctx, "order.sweep.completed", map[string]any{
		"cutoff":  cutoff,
		"scanned": report.Scanned,
		"failed":  report.Failed,
		"errors":  report.Errors,
	})
	return report, nil
}

func (s *orderService) notifyPlaced(ctx context.Context, order Order, user User) {
	if s.notifier == nil {
		return
	}
	s.notifier.OrderPlaced(ctx, order, user)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrOrderInvalidInput),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrOrderInvalidTransition),
		errors.Is(err, ErrWalletInsufficientBalance),
		errors.Is(err, ErrCouponInvalidInput),
		errors.Is(err, payments.ErrPaymentFailed):
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}
