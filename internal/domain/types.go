package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard offset-token paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage is a page of results with an opaque token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// UserRole drives role-tiered pricing, coupon eligibility and admin access.
type UserRole string

const (
	RoleUser        UserRole = "USER"
	RoleDealer      UserRole = "DEALER"
	RoleDistributor UserRole = "DISTRIBUTOR"
	RoleContractor  UserRole = "CONTRACTOR"
	RoleAdmin       UserRole = "ADMIN"
)

var knownRoles = map[UserRole]struct{}{
	RoleUser:        {},
	RoleDealer:      {},
	RoleDistributor: {},
	RoleContractor:  {},
	RoleAdmin:       {},
}

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// User is keyed by the identity provider subject; it is never generated locally.
type User struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	Role      UserRole
	Approved  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Wallet holds spendable funds and the credit owed back after wallet purchases.
type Wallet struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	CreditDue decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductStatus enumerates catalog visibility states.
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusInactive ProductStatus = "INACTIVE"
)

// Product is a catalog item priced through its variants.
type Product struct {
	ID           string
	Name         string
	Description  string
	Status       ProductStatus
	BasePrice    decimal.Decimal
	ShippingCost decimal.Decimal
	CaseSize     *int
	CategoryID   string
	Images       []string
	Variants     []ProductVariant
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// ProductVariant carries the four role price tiers.
type ProductVariant struct {
	ID               string
	ProductID        string
	Name             string
	SKU              string
	Price            decimal.Decimal
	DealerPrice      decimal.Decimal
	DistributorPrice decimal.Decimal
	ContractorPrice  decimal.Decimal
	Images           []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Category is a node of the category tree; ParentID references another category by id.
type Category struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Image       string
	ParentID    *string
	Index       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusRefunded       OrderStatus = "REFUNDED"
	OrderStatusFailed         OrderStatus = "FAILED"
)

// PaymentStatus tracks settlement of an order independently of fulfilment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// PaymentGateway selects the backend used to settle an order or a repayment.
type PaymentGateway string

const (
	GatewayStripe       PaymentGateway = "STRIPE"
	GatewayPayPal       PaymentGateway = "PAYPAL"
	GatewayAuthorizeNet PaymentGateway = "AUTHORIZE_NET"
	GatewayWallet       PaymentGateway = "WALLET"
)

// Valid reports whether the gateway is supported.
func (g PaymentGateway) Valid() bool {
	switch g {
	case GatewayStripe, GatewayPayPal, GatewayAuthorizeNet, GatewayWallet:
		return true
	}
	return false
}

// ShippingAddress is snapshotted onto the order and never references the user profile.
type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	ZipCode string `json:"zipCode"`
	Phone   string `json:"phone"`
}

// Order is a placed order with frozen line items.
type Order struct {
	ID                string
	UserID            string
	Items             []OrderItem
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	Gateway           PaymentGateway
	Subtotal          decimal.Decimal
	ShippingCost      decimal.Decimal
	DiscountAmount    decimal.Decimal
	Total             decimal.Decimal
	CouponID          *string
	CouponCode        string
	ShippingAddress   ShippingAddress
	StoreCollection   bool
	PaymentReference  string
	CheckoutSessionID string
	TrackingNumber    string
	Notes             string
	AdminNotes        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ConfirmedAt       *time.Time
	DeletedAt         *time.Time
}

// OrderItem stores the unit price resolved at assembly time.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	VariantID   *string
	ProductName string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// CouponType selects how the coupon value is interpreted.
type CouponType string

const (
	CouponTypePercentage  CouponType = "PERCENTAGE"
	CouponTypeFixedAmount CouponType = "FIXED_AMOUNT"
)

// CouponEligibilityType classifies which users may redeem a coupon.
type CouponEligibilityType string

const (
	EligibilityPublic        CouponEligibilityType = "PUBLIC"
	EligibilityUserRole      CouponEligibilityType = "USER_ROLE"
	EligibilitySpecificUsers CouponEligibilityType = "SPECIFIC_USERS"
)

// Coupon is a discount code. Nil caps mean unlimited.
type Coupon struct {
	ID                    string
	Code                  string
	Name                  string
	Description           string
	Type                  CouponType
	Value                 decimal.Decimal
	EligibilityType       CouponEligibilityType
	EligibleRoles         []UserRole
	EligibleUserIDs       []string
	ValidFrom             *time.Time
	ValidUntil            *time.Time
	UsageCount            int
	MaxUsage              *int
	MaxUsagePerUser       *int
	MinimumOrderAmount    *decimal.Decimal
	MaximumDiscountAmount *decimal.Decimal
	Active                bool
	CreatedBy             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             *time.Time
}

// CouponUsage records one redemption tied to a paid order.
type CouponUsage struct {
	ID             string
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	OrderAmount    decimal.Decimal
	UsedAt         time.Time
}

// CouponUsageStats aggregates redemptions of a coupon.
type CouponUsageStats struct {
	TotalUsage         int
	UniqueUsers        int
	TotalDiscountGiven decimal.Decimal
}

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	TransactionDeposit         TransactionType = "DEPOSIT"
	TransactionWithdrawal      TransactionType = "WITHDRAWAL"
	TransactionCreditAdded     TransactionType = "CREDIT_ADDED"
	TransactionCreditRepayment TransactionType = "CREDIT_REPAYMENT"
)

// PaymentMethod records which backend moved the money behind a transaction.
type PaymentMethod string

const (
	PaymentMethodNone         PaymentMethod = ""
	PaymentMethodStripe       PaymentMethod = "STRIPE"
	PaymentMethodPayPal       PaymentMethod = "PAYPAL"
	PaymentMethodAuthorizeNet PaymentMethod = "AUTHORIZE_NET"
	PaymentMethodAdmin        PaymentMethod = "ADMIN"
	PaymentMethodWallet       PaymentMethod = "WALLET"
)

// PaymentMethodForGateway maps a gateway selector onto the ledger payment method.
func PaymentMethodForGateway(g PaymentGateway) PaymentMethod {
	switch g {
	case GatewayStripe:
		return PaymentMethodStripe
	case GatewayPayPal:
		return PaymentMethodPayPal
	case GatewayAuthorizeNet:
		return PaymentMethodAuthorizeNet
	case GatewayWallet:
		return PaymentMethodWallet
	}
	return PaymentMethodNone
}

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID                   string
	UserID               string
	Type                 TransactionType
	Amount               decimal.Decimal
	Description          string
	PaymentMethod        PaymentMethod
	PaymentTransactionID string
	CreatedAt            time.Time
}

// CardSummary is the last card a user charged directly. Card numbers and security codes are never stored.
type CardSummary struct {
	UserID         string
	Brand          string
	Last4          string
	ExpirationDate string
	UpdatedAt      time.Time
}

// AdminEmail is a recipient of admin notifications.
type AdminEmail struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck is the outcome of a single dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for readiness endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// OrderRevenue is the slice of an order the dashboard aggregates.
type OrderRevenue struct {
	CreatedAt     time.Time
	PaymentStatus PaymentStatus
	Total         decimal.Decimal
}

// DailyOrderStats counts orders created on one UTC day and the revenue of those that were paid.
type DailyOrderStats struct {
	Date    string
	Orders  int
	Revenue decimal.Decimal
}

// DashboardStats summarises store activity for administrators.
type DashboardStats struct {
	TotalOrders   int64
	PendingOrders int64
	TotalProducts int64
	ActiveUsers   int64
	TodayRevenue  decimal.Decimal
	Daily         []DailyOrderStats
	GeneratedAt   time.Time
}
