package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/payments"
	"github.com/tradeshop/api/internal/repositories"
)

var orderNow = time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)

type orderFixture struct {
	svc          OrderService
	users        *memoryUsers
	products     *memoryProducts
	orders       *memoryOrders
	wallets      *memoryWallets
	transactions *memoryTransactions
	cards        *memoryCards
	coupons      *memoryCoupons
	usage        *memoryCouponUsage
	dispatcher   *stubDispatcher
	notifier     *recordingNotifier
}

type orderFixtureOptions struct {
	shipping domain.ShippingPolicy
	wallets  []domain.Wallet
	coupons  []domain.Coupon
	orders   []domain.Order
}

func newOrderFixture(t *testing.T, opts orderFixtureOptions) orderFixture {
	t.Helper()
	caseSize := 10
	f := orderFixture{
		users: newMemoryUsers(
			domain.User{ID: "u-buyer", Email: "buyer@example.com", Role: domain.RoleUser},
			domain.User{ID: "u-contractor", Email: "pro@example.com", Role: domain.RoleContractor},
		),
		products: newMemoryProducts(
			domain.Product{
				ID: "prd_bolts", Name: "Bolts", Status: domain.ProductStatusActive,
				BasePrice: dec("12"), CaseSize: &caseSize,
				Variants: []domain.ProductVariant{{
					ID: "var_m8", ProductID: "prd_bolts", Name: "M8", SKU: "B-M8",
					Price: dec("10"), ContractorPrice: dec("8"),
				}},
			},
			domain.Product{ID: "prd_drill", Name: "Drill", Status: domain.ProductStatusActive, BasePrice: dec("75")},
			domain.Product{ID: "prd_draft", Name: "Prototype", Status: domain.ProductStatusDraft, BasePrice: dec("5")},
		),
		orders:       newMemoryOrders(opts.orders...),
		wallets:      newMemoryWallets(opts.wallets...),
		transactions: &memoryTransactions{},
		cards:        &memoryCards{},
		coupons:      newMemoryCoupons(opts.coupons...),
		usage:        &memoryCouponUsage{},
		dispatcher:   &stubDispatcher{},
		notifier:     &recordingNotifier{},
	}
	unit := &recordingUnitOfWork{}
	coupons, err := NewCouponService(CouponServiceDeps{
		Coupons:    f.coupons,
		Usage:      f.usage,
		Users:      f.users,
		UnitOfWork: unit,
		Clock:      fixedClock(orderNow),
	})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}
	shipping := opts.shipping
	if shipping == nil {
		shipping = domain.FreeShipping()
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Users:        f.users,
		Products:     f.products,
		Orders:       f.orders,
		Wallets:      f.wallets,
		Transactions: f.transactions,
		Cards:        f.cards,
		Coupons:      coupons,
		Payments:     f.dispatcher,
		Notifier:     f.notifier,
		Shipping:     shipping,
		UnitOfWork:   unit,
		Clock:        fixedClock(orderNow),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func drillOrder(userID string, gateway domain.PaymentGateway) CreateOrderCommand {
	return CreateOrderCommand{
		UserID:          userID,
		Items:           []OrderItemInput{{ProductID: "prd_drill", Quantity: 1}},
		ShippingAddress: domain.ShippingAddress{Street: "1 Main St", City: "Austin", Country: "US", ZipCode: "73301"},
		Gateway:         gateway,
	}
}

func TestOrderCreateAppliesContractorCasePrice(t *testing.T) {
	f := newOrderFixture(t, orderFixtureOptions{
		wallets: []domain.Wallet{{UserID: "u-contractor", Balance: dec("500")}},
	})

	result, err := f.svc.Create(context.Background(), CreateOrderCommand{
		UserID:          "u-contractor",
		Items:           []OrderItemInput{{ProductID: "prd_bolts", VariantID: "var_m8", Quantity: 10}},
		StoreCollection: true,
		Gateway:         domain.GatewayWallet,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(result.Order.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(result.Order.Items))
	}
	item := result.Order.Items[0]
	if !item.UnitPrice.Equal(dec("7.60")) || !item.LineTotal.Equal(dec("76.00")) {
		t.Fatalf("expected 7.60 x 10 = 76.00, got %s / %s", item.UnitPrice, item.LineTotal)
	}
	if item.SKU != "B-M8" || item.VariantID == nil || *item.VariantID != "var_m8" {
		t.Fatalf("expected variant snapshot on item, got %+v", item)
	}
}

func TestOrderCreateWalletInsufficientBalance(t *testing.T) {
	f := newOrderFixture(t, orderFixtureOptions{
		wallets: []domain.Wallet{{UserID: "u-buyer", Balance: dec("50"), CreditDue: dec("0")}},
	})

	_, err := f.svc.Create(context.Background(), drillOrder("u-buyer", domain.GatewayWallet))
	if !errors.Is(err, ErrWalletInsufficientBalance) || !strings.Contains(err.Error(), "Insufficient wallet balance") {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	wallet, _ := f.wallets.FindByUserID(context.Background(), "u-buyer")
	if !wallet.Balance.Equal(dec("50")) || !wallet.CreditDue.IsZero() {
		t.Fatalf("wallet must be unchanged, got %+v", wallet)
	}
	if len(f.transactions.items) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(f.transactions.items))
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("expected no notifications, got %v", f.notifier.kinds())
	}
}

func TestOrderCreateWalletDebitsBalanceAndRaisesDue(t *testing.T) {
	f := newOrderFixture(t, orderFixtureOptions{
		wallets: []domain.Wallet{{UserID: "u-buyer", Balance: dec("100"), CreditDue: dec("10")}},
	})

	result, err := f.svc.Create(context.Background(), drillOrder("u-buyer", domain.GatewayWallet))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	order := result.Order
	if order.Status != domain.OrderStatusConfirmed || order.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("expected CONFIRMED/COMPLETED, got %s/%s", order.Status, order.PaymentStatus)
	}
	if result.RequiresAction || result.PaymentURL != "" {
		t.Fatalf("wallet orders never redirect")
	}
	wallet, _ := f.wallets.FindByUserID(context.Background(), "u-buyer")
	if !wallet.Balance.Equal(dec("25")) || !wallet.CreditDue.Equal(dec("85")) {
		t.Fatalf("expected balance 25 and due 85, got %s / %s", wallet.Balance, wallet.CreditDue)
	}
	withdrawals := f.transactions.byType(domain.TransactionWithdrawal)
	if len(withdrawals) != 1 || !withdrawals[0].Amount.Equal(dec("75")) {
		t.Fatalf("expected one withdrawal of 75, got %+v", withdrawals)
	}
	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected stored order confirmed, got %s", stored.Status)
	}
	if kinds := f.notifier.kinds(); len(kinds) != 1 || kinds[0] != "placed" {
		t.Fatalf("expected placed notification, got %v", kinds)
	}
	if len(f.dispatcher.requests) != 0 {
		t.Fatalf("wallet orders must not reach the dispatcher")
	}
}

func TestOrderTotalMatchesComponents(t *testing.T) {
	coupon := publicFixedCoupon()
	f := newOrderFixture(t, orderFixtureOptions{
		shipping: domain.PercentageShipping(dec("0.05"), dec("10"), dec("2500")),
		wallets:  []domain.Wallet{{UserID: "u-buyer", Balance: dec("1000")}},
		coupons:  []domain.Coupon{coupon},
	})
	cmd := drillOrder("u-buyer", domain.GatewayWallet)
	cmd.Items = append(cmd.Items, OrderItemInput{ProductID: "prd_bolts", VariantID: "var_m8", Quantity: 3})
	cmd.CouponCode = "save15"

	result, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	stored, err := f.svc.Get(context.Background(), result.Order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.Subtotal.Equal(dec("105")) || !stored.ShippingCost.Equal(dec("10")) || !stored.DiscountAmount.Equal(dec("15")) {
		t.Fatalf("unexpected components %s / %s / %s", stored.Subtotal, stored.ShippingCost, stored.DiscountAmount)
	}
	if !stored.Total.Equal(stored.Subtotal.Add(stored.ShippingCost).Sub(stored.DiscountAmount)) {
		t.Fatalf("total %s does not match components", stored.Total)
	}
	if stored.CouponCode != "SAVE15" || stored.CouponID == nil {
		t.Fatalf("expected coupon reference on order, got %+v", stored)
	}
	if f.usage.count() != 1 || f.coupons.raw(coupon.ID).UsageCount != 1 {
		t.Fatalf("expected coupon usage recorded once")
	}
}

func TestOrderCreateRejectsInvalidCoupon(t *testing.T) {
	coupon := publicFixedCoupon()
	coupon.MinimumOrderAmount = decPtr("500")
	f := newOrderFixture(t, orderFixtureOptions{
		wallets: []domain.Wallet{{UserID: "u-buyer", Balance: dec("1000")}},
		coupons: []domain.Coupon{coupon},
	})
	cmd := drillOrder("u-buyer", domain.GatewayWallet)
	cmd.CouponCode = "SAVE15"

	_, err := f.svc.Create(context.Background(), cmd)
	if !errors.Is(err, ErrOrderInvalidInput) || !strings.Contains(err.Error(), "Minimum order amount of $500.00 required") {
		t.Fatalf("expected coupon rejection, got %v", err)
	}
	wallet, _ := f.wallets.FindByUserID(context.Background(), "u-buyer")
	if !wallet.Balance.Equal(dec("1000")) {
		t.Fatalf("wallet must be unchanged")
	}
}

func TestOrderCreateMissingReferences(t *testing.T) {
	f := newOrderFixture(t, orderFixtureOptions{})
	cases := []struct {
		name string
		cmd  CreateOrderCommand
		want error
	}{
		{"unknown user", drillOrder("u-ghost", domain.GatewayStripe), ErrOrderNotFound},
		{"unknown product", CreateOrderCommand{
			UserID: "u-buyer", Items: []OrderItemInput{{ProductID: "prd_missing", Quantity: 1}},
			StoreCollection: true, Gateway: domain.GatewayStripe,
		}, ErrOrderNotFound},
		{"unknown variant", CreateOrderCommand{
			UserID: "u-buyer", Items: []OrderItemInput{{ProductID: "prd_bolts", VariantID: "var_x", Quantity: 1}},
			StoreCollection: true, Gateway: domain.GatewayStripe,
		}, ErrOrderNotFound},
		{"draft product", CreateOrderCommand{
			UserID: "u-buyer", Items: []OrderItemInput{{ProductID: "prd_draft", Quantity: 1}},
			StoreCollection: true, Gateway: domain.GatewayStripe,
		}, ErrOrderInvalidInput},
		{"zero quantity", CreateOrderCommand{
			UserID: "u-buyer", Items: []OrderItemInput{{ProductID: "prd_drill", Quantity: 0}},
			StoreCollection: true, Gateway: domain.GatewayStripe,
		}, ErrOrderInvalidInput},
		{"unknown gateway", drillOrder("u-buyer", "BITCOIN"), ErrOrderInvalidInput},
		{"card required", drillOrder("u-buyer", domain.GatewayAuthorizeNet), ErrOrderInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Create(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(f.dispatcher.requests) != 0 {
		t.Fatalf("no payment should be attempted")
	}
}

func TestOrderCreateStripeRedirectThenConfirm(t *testing.T) {
	f := newOrderFixture(t, orderFixtureOptions{coupons: []domain.Coupon{publicFixedCoupon()}})
	f.dispatcher.processFn = func(_ context.Context, gateway domain.PaymentGateway, req payments.Request) (payments.Result, error) {
		if gateway != domain.GatewayStripe || req.Purpose != payments.PurposeOrder || req.OrderID == "" {
			t.Fatalf("unexpected dispatch %s %+v", gateway, req)
		}
		if !req.Amount.Equal(dec("60")) {
			t.Fatalf("expected discounted amount 60, got %s", req.Amount)
		}
		return payments.Result{Success: true, RequiresAction: true, TransactionID: "cs_1", PaymentURL: "https://checkout.test/cs_1"}, nil
	}
	cmd := drillOrder("u-buyer", domain.GatewayStripe)
	cmd.CouponCode = "SAVE15"

	result, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !result.RequiresAction || result.PaymentURL != "https://checkout.test/cs_1" {
		t.Fatalf("expected redirect, got %+v", result)
	}
	stored, _ := f.orders.FindByID(context.Background(), result.Order.ID)
	if stored.Status != domain.OrderStatusPaymentPending || stored.CheckoutSessionID != "cs_1" {
		t.Fatalf("expected pending order with session id, got %+v", stored)
	}
	if f.usage.count() != 0 {
		t.Fatalf("coupon usage must wait for payment")
	}

	f.dispatcher.verifyFn = func(_ context.Context, gateway domain.PaymentGateway, id string) (payments.Verification, error) {
		if gateway != domain.GatewayStripe || id != "cs_1" {
			t.Fatalf("unexpected verify %s %s", gateway, id)
		}
		return payments.Verification{Paid: true, TransactionID: "pi_1", OrderID: stored.ID, Purpose: payments.PurposeOrder}, nil
	}
	for i := 0; i < 2; i++ {
		confirmed, err := f.svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: stored.ID, ActorID: "u-buyer"})
		if err != nil {
			t.Fatalf("ConfirmPayment #%d: %v", i+1, err)
		}
		if confirmed.AlreadyConfirmed != (i == 1) {
			t.Fatalf("call %d: unexpected AlreadyConfirmed=%v", i+1, confirmed.AlreadyConfirmed)
		}
		if confirmed.Order.Status != domain.OrderStatusConfirmed || !confirmed.Order.Paid() {
			t.Fatalf("expected confirmed order, got %+v", confirmed.Order)
		}
	}
	if f.usage.count() != 1 || f.coupons.raw("cpn_1").UsageCount != 1 {
		t.Fatalf("expected exactly one redemption, got rows=%d count=%d", f.usage.count(), f.coupons.raw("cpn_1").UsageCount)
	}
	if kinds := f.notifier.kinds(); len(kinds) != 1 || kinds[0] != "placed" {
		t.Fatalf("expected a single confirmation notification, got %v", kinds)
	}
}

func TestOrderConfirmPaymentRequiresCompletedPayment(t *testing.T) {
	pending := domain.Order{
		ID: "ord_p", UserID: "u-buyer", Gateway: domain.GatewayPayPal,
		Status: domain.OrderStatusPaymentPending, PaymentStatus: domain.PaymentStatusPending,
		PaymentReference: "pp-1", Total: dec("20"), CreatedAt: orderNow,
	}
	f := newOrderFixture(t, orderFixtureOptions{orders: []domain.Order{pending}})
	f.dispatcher.verifyFn = func(context.Context, domain.PaymentGateway, string) (payments.Verification, error) {
		return payments.Verification{Paid: false}, nil
	}

	if _, err := f.svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "ord_p", ActorID: "u-other"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for another user, got %v", err)
	}
	if _, err := f.svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "ord_p", ActorID: "u-buyer"}); !errors.Is(err, payments.ErrPaymentFailed) {
		t.Fatalf("expected unpaid verification to fail, got %v", err)
	}

	result, err := f.svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{OrderID: "ord_p", ActorID: "admin", ActorIsAdmin: true})
	if err != nil {
		t.Fatalf("admin ConfirmPayment: %v", err)
	}
	if result.Order.Status != domain.OrderStatusConfirmed || result.Order.PaymentReference != "pp-1" {
		t.Fatalf("unexpected admin confirmation %+v", result.Order)
	}
}

func TestOrderCreateAuthorizeNetCapture(t *testing.T) {
	f := newOrderFixture(t, orderFixtureOptions{})
	f.dispatcher.processFn = func(_ context.Context, _ domain.PaymentGateway, req payments.Request) (payments.Result, error) {
		if req.Card == nil || req.Card.Number != "4111111111111111" {
			t.Fatalf("card not forwarded: %+v", req.Card)
		}
		return payments.Result{Success: true, TransactionID: "anet-1", Card: &domain.CardSummary{Brand: "Visa", Last4: "1111"}}, nil
	}
	cmd := drillOrder("u-buyer", domain.GatewayAuthorizeNet)
	cmd.Card = &payments.Card{Number: "4111111111111111", ExpirationDate: "2030-01", Code: "123"}

	result, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.RequiresAction || result.Order.Status != domain.OrderStatusConfirmed || result.Order.PaymentReference != "anet-1" {
		t.Fatalf("expected captured order, got %+v", result)
	}
	card, err := f.cards.FindByUserID(context.Background(), "u-buyer")
	if err != nil || card.Last4 != "1111" {
		t.Fatalf("expected stored card, got %+v %v", card, err)
	}
}

func TestOrderCreateDeclinedPaymentLeavesOrderPending(t *testing.T) {
	f := newOrderFixture(t, orderFixtureOptions{})
	f.dispatcher.processFn = func(context.Context, domain.PaymentGateway, payments.Request) (payments.Result, error) {
		return payments.Result{}, payments.ErrPaymentFailed
	}
	_, err := f.svc.Create(context.Background(), drillOrder("u-buyer", domain.GatewayPayPal))
	if !errors.Is(err, payments.ErrPaymentFailed) {
		t.Fatalf("expected payment failure, got %v", err)
	}
	page, _ := f.orders.List(context.Background(), repositories.OrderListFilter{})
	if len(page.Items) != 1 || page.Items[0].Status != domain.OrderStatusPaymentPending {
		t.Fatalf("expected order left PAYMENT_PENDING, got %+v", page.Items)
	}
}

func TestOrderAdminUpdate(t *testing.T) {
	confirmed := domain.Order{ID: "ord_c", UserID: "u-buyer", Status: domain.OrderStatusConfirmed, PaymentStatus: domain.PaymentStatusCompleted, CreatedAt: orderNow}
	delivered := domain.Order{ID: "ord_d", UserID: "u-buyer", Status: domain.OrderStatusDelivered, PaymentStatus: domain.PaymentStatusCompleted, CreatedAt: orderNow}
	f := newOrderFixture(t, orderFixtureOptions{orders: []domain.Order{confirmed, delivered}})

	shipped := domain.OrderStatusShipped
	tracking := " 1Z999 "
	updated, err := f.svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{OrderID: "ord_c", Status: &shipped, TrackingNumber: &tracking, ActorID: "admin"})
	if err != nil {
		t.Fatalf("AdminUpdate: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped || updated.TrackingNumber != "1Z999" {
		t.Fatalf("unexpected order %+v", updated)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].kind != "status" || f.notifier.sent[0].status != domain.OrderStatusShipped {
		t.Fatalf("expected status notification, got %+v", f.notifier.sent)
	}

	notes := "<script>x</script>checked"
	if _, err := f.svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{OrderID: "ord_c", AdminNotes: &notes}); err != nil {
		t.Fatalf("AdminUpdate notes: %v", err)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("notes-only update must not notify")
	}

	confirmedStatus := domain.OrderStatusConfirmed
	if _, err := f.svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{OrderID: "ord_c", Status: &confirmedStatus}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected payment states to be rejected, got %v", err)
	}
	processing := domain.OrderStatusProcessing
	if _, err := f.svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{OrderID: "ord_d", Status: &processing}); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestOrderSweepFailsOnlyStaleOrdersAndContinues(t *testing.T) {
	stale := domain.Order{ID: "ord_stale", UserID: "u-buyer", Status: domain.OrderStatusPaymentPending, CreatedAt: orderNow.Add(-25 * time.Hour)}
	broken := domain.Order{ID: "ord_broken", UserID: "u-buyer", Status: domain.OrderStatusPaymentPending, CreatedAt: orderNow.Add(-48 * time.Hour)}
	fresh := domain.Order{ID: "ord_fresh", UserID: "u-buyer", Status: domain.OrderStatusPaymentPending, CreatedAt: orderNow.Add(-time.Hour)}
	paid := domain.Order{ID: "ord_paid", UserID: "u-buyer", Status: domain.OrderStatusConfirmed, CreatedAt: orderNow.Add(-72 * time.Hour)}
	f := newOrderFixture(t, orderFixtureOptions{orders: []domain.Order{stale, broken, fresh, paid}})
	f.orders.updateErr = map[string]error{"ord_broken": testRepoError{unavailable: true}}

	report, err := f.svc.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if report.Scanned != 2 || report.Failed != 1 || report.Errors != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	check := map[string]domain.OrderStatus{
		"ord_stale":  domain.OrderStatusFailed,
		"ord_broken": domain.OrderStatusPaymentPending,
		"ord_fresh":  domain.OrderStatusPaymentPending,
		"ord_paid":   domain.OrderStatusConfirmed,
	}
	for id, want := range check {
		got, _ := f.orders.FindByID(context.Background(), id)
		if got.Status != want {
			t.Fatalf("%s: expected %s, got %s", id, want, got.Status)
		}
	}
}

func TestOrderListRejectsInvertedRange(t *testing.T) {
	f := newOrderFixture(t, orderFixtureOptions{})
	from, to := dec("100"), dec("10")
	_, err := f.svc.List(context.Background(), OrderListFilter{Total: domain.RangeQuery[decimal.Decimal]{From: &from, To: &to}})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
