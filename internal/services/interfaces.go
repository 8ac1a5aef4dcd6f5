package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/payments"
)

// Aliases keep handler and service signatures short.
type (
	User        = domain.User
	Wallet      = domain.Wallet
	Transaction = domain.Transaction
	Product     = domain.Product
	Variant     = domain.ProductVariant
	Category    = domain.Category
	Order       = domain.Order
	Coupon      = domain.Coupon
	AdminEmail  = domain.AdminEmail

	SystemHealthReport = domain.SystemHealthReport
	DashboardStats     = domain.DashboardStats
)

// Logger records a structured service event.
type Logger func(ctx context.Context, event string, fields map[string]any)

// PaymentDispatcher is the subset of payments.Dispatcher used by services.
type PaymentDispatcher interface {
	Supports(gateway domain.PaymentGateway) bool
	Process(ctx context.Context, gateway domain.PaymentGateway, req payments.Request) (payments.Result, error)
	Verify(ctx context.Context, gateway domain.PaymentGateway, transactionID string) (payments.Verification, error)
	Inspect(ctx context.Context, gateway domain.PaymentGateway, transactionID string) (payments.Verification, error)
}

// StripeWebhookParser verifies and decodes Stripe webhook deliveries.
type StripeWebhookParser interface {
	ParseWebhook(payload []byte, signature string) (payments.Verification, bool, error)
}

// CouponService validates, administers and redeems coupons.
type CouponService interface {
	Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, error)
	// Evaluate runs the validation rules for an already loaded user without touching usage counters.
	Evaluate(ctx context.Context, code string, orderAmount decimal.Decimal, user User) (CouponValidation, error)
	Eligible(ctx context.Context, userID string) ([]Coupon, error)
	Create(ctx context.Context, cmd CreateCouponCommand) (Coupon, error)
	Update(ctx context.Context, cmd UpdateCouponCommand) (Coupon, error)
	Get(ctx context.Context, couponID string) (Coupon, error)
	List(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error)
	Delete(ctx context.Context, couponID string) error
	Stats(ctx context.Context, couponID string) (CouponStats, error)
	// RecordUsage is idempotent per (coupon, order).
	RecordUsage(ctx context.Context, cmd RecordCouponUsageCommand) error
}

// OrderService assembles, confirms and administers orders.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error)
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	AdminUpdate(ctx context.Context, cmd AdminUpdateOrderCommand) (Order, error)
	SweepStale(ctx context.Context) (SweepReport, error)
}

// WalletService owns balance and credit-due mutations and the ledger.
type WalletService interface {
	Get(ctx context.Context, userID string) (Wallet, error)
	Credit(ctx context.Context, cmd CreditWalletCommand) (Wallet, error)
	SetBalance(ctx context.Context, cmd SetBalanceCommand) (Wallet, error)
	ClearDue(ctx context.Context, cmd ClearDueCommand) (Wallet, error)
	RepayDues(ctx context.Context, cmd RepayDuesCommand) (RepayDuesResult, error)
	// SettleRepayment applies an externally confirmed repayment once per gateway transaction id.
	SettleRepayment(ctx context.Context, cmd SettleRepaymentCommand) (SettleRepaymentResult, error)
	Transactions(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[Transaction], error)
}

// PaymentService reconciles out-of-band payments into orders and wallets.
type PaymentService interface {
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (PaymentVerificationResult, error)
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (PaymentVerificationResult, error)
}

// CatalogService manages products, variants and categories.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	DeleteProduct(ctx context.Context, productID string) error
	AddVariant(ctx context.Context, cmd AddVariantCommand) (Variant, error)
	UpdateVariant(ctx context.Context, cmd UpdateVariantCommand) (Variant, error)
	// RemoveVariant soft-deletes a variant; orders placed against it keep their frozen items.
	RemoveVariant(ctx context.Context, productID, variantID string) error
	SignImageUpload(ctx context.Context, cmd SignImageUploadCommand) (SignedUpload, error)
	AddProductImage(ctx context.Context, productID, objectPath string) (Product, error)

	CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	GetCategory(ctx context.Context, categoryID string) (CategoryDetail, error)
	ListCategories(ctx context.Context) ([]Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
}

// UserService provisions and administers users.
type UserService interface {
	// EnsureUser returns the stored user, creating it together with an empty wallet on first sight.
	EnsureUser(ctx context.Context, cmd EnsureUserCommand) (User, error)
	Get(ctx context.Context, userID string) (User, error)
	List(ctx context.Context, filter UserListFilter) (domain.CursorPage[User], error)
	AdminUpdate(ctx context.Context, cmd AdminUpdateUserCommand) (User, error)
	// Delete removes the sign-in account and anonymises the stored profile. Orders and wallet
	// history stay attached to the user id.
	Delete(ctx context.Context, userID string) error
	ListAdminEmails(ctx context.Context) ([]AdminEmail, error)
	AddAdminEmail(ctx context.Context, email string) (AdminEmail, error)
	DeleteAdminEmail(ctx context.Context, id string) error
}

// IdentityDeleter removes sign-in accounts. Deleting an unknown account is not an error.
type IdentityDeleter interface {
	DeleteUser(ctx context.Context, uid string) error
}

// Notifier produces customer and admin notification messages.
type Notifier interface {
	OrderPlaced(ctx context.Context, order Order, user User)
	OrderStatusChanged(ctx context.Context, order Order, user User, previous domain.OrderStatus)
	WalletBalanceChanged(ctx context.Context, wallet Wallet, user User, delta decimal.Decimal)
	PaymentRequested(ctx context.Context, user User, amount decimal.Decimal)
}

// AnalyticsService summarises store activity for administrators.
type AnalyticsService interface {
	Dashboard(ctx context.Context) (DashboardStats, error)
}

// SystemService exposes operational metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// ValidateCouponCommand previews a coupon for the caller without recording usage.
type ValidateCouponCommand struct {
	Code        string
	OrderAmount decimal.Decimal
	UserID      string
}

// CouponValidation is the outcome of a coupon check. Invalid coupons are results, not errors.
type CouponValidation struct {
	Valid    bool
	Coupon   *Coupon
	Discount decimal.Decimal
	Message  string
}

// CreateCouponCommand carries a new coupon definition.
type CreateCouponCommand struct {
	Code                  string
	Name                  string
	Description           string
	Type                  domain.CouponType
	Value                 decimal.Decimal
	EligibilityType       domain.CouponEligibilityType
	EligibleRoles         []domain.UserRole
	EligibleUserIDs       []string
	ValidFrom             *time.Time
	ValidUntil            *time.Time
	MaxUsage              *int
	MaxUsagePerUser       *int
	MinimumOrderAmount    *decimal.Decimal
	MaximumDiscountAmount *decimal.Decimal
	Active                *bool
	ActorID               string
}

// UpdateCouponCommand patches a coupon; nil fields are left unchanged.
type UpdateCouponCommand struct {
	CouponID              string
	Code                  *string
	Name                  *string
	Description           *string
	Type                  *domain.CouponType
	Value                 *decimal.Decimal
	EligibilityType       *domain.CouponEligibilityType
	EligibleRoles         *[]domain.UserRole
	EligibleUserIDs       *[]string
	ValidFrom             *time.Time
	ValidUntil            *time.Time
	MaxUsage              *int
	MaxUsagePerUser       *int
	MinimumOrderAmount    *decimal.Decimal
	MaximumDiscountAmount *decimal.Decimal
	Active                *bool
}

// CouponListFilter narrows admin coupon listings.
type CouponListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// CouponStats summarises redemptions of one coupon.
type CouponStats struct {
	Coupon             Coupon
	TotalUsage         int
	UniqueUsers        int
	TotalDiscountGiven decimal.Decimal
}

// RecordCouponUsageCommand registers one redemption after a payment succeeded.
type RecordCouponUsageCommand struct {
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	OrderAmount    decimal.Decimal
}

// OrderItemInput is one requested line.
type OrderItemInput struct {
	ProductID string
	VariantID string
	Quantity  int
}

// CreateOrderCommand places an order and dispatches its payment.
type CreateOrderCommand struct {
	UserID          string
	Items           []OrderItemInput
	ShippingAddress domain.ShippingAddress
	StoreCollection bool
	CouponCode      string
	Notes           string
	Gateway         domain.PaymentGateway
	Card            *payments.Card
}

// OrderResult is returned by order creation. PaymentURL is set when the buyer must complete payment elsewhere.
type OrderResult struct {
	Order          Order
	RequiresAction bool
	PaymentURL     string
}

// ConfirmPaymentCommand marks an externally paid order confirmed.
type ConfirmPaymentCommand struct {
	OrderID       string
	TransactionID string
	ActorID       string
	ActorIsAdmin  bool
	// Verified is set by reconciliation paths that already checked the gateway.
	Verified bool
}

// ConfirmPaymentResult reports whether the call changed the order.
type ConfirmPaymentResult struct {
	Order            Order
	AlreadyConfirmed bool
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Total      domain.RangeQuery[decimal.Decimal]
	CreatedAt  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// AdminUpdateOrderCommand is an administrator's fulfilment update.
type AdminUpdateOrderCommand struct {
	OrderID        string
	Status         *domain.OrderStatus
	TrackingNumber *string
	AdminNotes     *string
	ActorID        string
}

// SweepReport summarises one stale-order sweep.
type SweepReport struct {
	Scanned int
	Failed  int
	Errors  int
}

// CreditWalletCommand adds funds to a wallet balance.
type CreditWalletCommand struct {
	UserID      string
	Amount      decimal.Decimal
	Description string
	ActorID     string
}

// SetBalanceCommand overrides a wallet balance.
type SetBalanceCommand struct {
	UserID    string
	Balance   decimal.Decimal
	ActorID   string
	ActorName string
}

// ClearDueCommand zeroes the outstanding credit due.
type ClearDueCommand struct {
	UserID  string
	ActorID string
}

// RepayDuesCommand pays back part or all of the credit due.
type RepayDuesCommand struct {
	UserID  string
	Amount  decimal.Decimal
	Gateway domain.PaymentGateway
	Card    *payments.Card
}

// RepayDuesResult carries either the settled wallet or a redirect.
type RepayDuesResult struct {
	Wallet         Wallet
	RequiresAction bool
	PaymentURL     string
	TransactionID  string
}

// SettleRepaymentCommand applies a repayment confirmed by a gateway.
type SettleRepaymentCommand struct {
	UserID        string
	Gateway       domain.PaymentGateway
	TransactionID string
	Amount        decimal.Decimal
}

// SettleRepaymentResult reports whether the repayment was applied by this call.
type SettleRepaymentResult struct {
	Wallet         Wallet
	AlreadySettled bool
}

// VerifyPaymentCommand asks a gateway for the state of an out-of-band payment.
type VerifyPaymentCommand struct {
	TransactionID string
	Gateway       domain.PaymentGateway
	ActorID       string
	ActorIsAdmin  bool
}

// PaymentVerificationResult describes the reconciled payment.
type PaymentVerificationResult struct {
	Paid             bool
	Purpose          payments.Purpose
	Order            *Order
	Wallet           *Wallet
	AlreadyProcessed bool
}

// UpsertProductCommand creates or patches a product. On update nil fields are left unchanged.
type UpsertProductCommand struct {
	ProductID    string
	Name         *string
	Description  *string
	Status       *domain.ProductStatus
	BasePrice    *decimal.Decimal
	ShippingCost *decimal.Decimal
	CaseSize     *int
	CategoryID   *string
	Images       *[]string
	Variants     []VariantInput
}

// VariantInput describes a variant with its four price tiers.
type VariantInput struct {
	Name             string
	SKU              string
	Price            decimal.Decimal
	DealerPrice      decimal.Decimal
	DistributorPrice decimal.Decimal
	ContractorPrice  decimal.Decimal
	Images           []string
}

// AddVariantCommand appends a variant to an existing product.
type AddVariantCommand struct {
	ProductID string
	Variant   VariantInput
}

// UpdateVariantCommand patches a variant. Nil fields are left unchanged.
type UpdateVariantCommand struct {
	ProductID        string
	VariantID        string
	Name             *string
	SKU              *string
	Price            *decimal.Decimal
	DealerPrice      *decimal.Decimal
	DistributorPrice *decimal.Decimal
	ContractorPrice  *decimal.Decimal
	Images           *[]string
}

// ProductListFilter narrows product listings. Public callers only see ACTIVE products.
type ProductListFilter struct {
	Status     *domain.ProductStatus
	CategoryID string
	Search     string
	Public     bool
	Pagination domain.Pagination
}

// SignImageUploadCommand requests a signed upload URL for a product image.
type SignImageUploadCommand struct {
	ProductID   string
	FileName    string
	ContentType string
	Size        int64
	MD5         string
}

// SignedUpload is a pre-signed object upload target.
type SignedUpload struct {
	URL        string
	Method     string
	Headers    map[string]string
	ObjectPath string
	ExpiresAt  time.Time
}

// UpsertCategoryCommand creates or patches a category.
type UpsertCategoryCommand struct {
	CategoryID  string
	Name        *string
	Description *string
	Image       *string
	ParentID    *string
	Index       *int
}

// CategoryDetail is a category with its direct children.
type CategoryDetail struct {
	Category Category
	Children []Category
}

// EnsureUserCommand carries identity claims for first-sight provisioning.
type EnsureUserCommand struct {
	UserID string
	Email  string
	Name   string
	Phone  string
}

// UserListFilter narrows admin user listings.
type UserListFilter struct {
	Role       *domain.UserRole
	Approved   *bool
	Pagination domain.Pagination
}

// AdminUpdateUserCommand approves a user or changes its role.
type AdminUpdateUserCommand struct {
	UserID   string
	Role     *domain.UserRole
	Approved *bool
	Name     *string
	Phone    *string
}

// NotificationKind names a notification template.
type NotificationKind string

const (
	NotificationOrderConfirmation NotificationKind = "order.confirmation"
	NotificationOrderNewAdmin     NotificationKind = "order.new_admin"
	NotificationOrderStatus       NotificationKind = "order.status_update"
	NotificationOrderDelivered    NotificationKind = "order.delivered"
	NotificationWalletBalance     NotificationKind = "wallet.balance_update"
	NotificationPaymentRequest    NotificationKind = "wallet.payment_request"
)

// NotificationMessage is a rendered message handed to the delivery queue.
type NotificationMessage struct {
	ID         string            `json:"id"`
	Kind       NotificationKind  `json:"kind"`
	Recipients []string          `json:"recipients"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	UserID     string            `json:"userId,omitempty"`
	OrderID    string            `json:"orderId,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// NotificationPublisher enqueues notification messages for delivery.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}
