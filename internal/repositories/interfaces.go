package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Wallets() WalletRepository
	Transactions() TransactionRepository
	Cards() CardRepository
	Products() ProductRepository
	Categories() CategoryRepository
	Orders() OrderRepository
	Coupons() CouponRepository
	CouponUsage() CouponUsageRepository
	AdminEmails() AdminEmailRepository
	Dashboard() DashboardRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Repositories called with the context passed to fn participate in the transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserListFilter narrows admin user listings.
type UserListFilter struct {
	Role       *domain.UserRole
	Approved   *bool
	Pagination domain.Pagination
}

// UserRepository persists user profiles keyed by identity subject.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByIDs(ctx context.Context, userIDs []string) ([]domain.User, error)
	List(ctx context.Context, filter UserListFilter) (domain.CursorPage[domain.User], error)
}

// WalletRepository stores one wallet per user.
type WalletRepository interface {
	Insert(ctx context.Context, wallet domain.Wallet) error
	FindByUserID(ctx context.Context, userID string) (domain.Wallet, error)
	// LockByUserID reads the wallet with a row lock held until the surrounding transaction ends.
	LockByUserID(ctx context.Context, userID string) (domain.Wallet, error)
	// Adjust applies deltas atomically. It reports a conflict when either figure would become negative.
	Adjust(ctx context.Context, userID string, balanceDelta, creditDueDelta decimal.Decimal, at time.Time) (domain.Wallet, error)
	Set(ctx context.Context, userID string, balance, creditDue decimal.Decimal, at time.Time) (domain.Wallet, error)
}

// TransactionRepository appends immutable ledger entries.
type TransactionRepository interface {
	Insert(ctx context.Context, txn domain.Transaction) error
	FindByPaymentTransactionID(ctx context.Context, paymentTransactionID string) (domain.Transaction, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Transaction], error)
}

// CardRepository keeps the last-used card summary per user.
type CardRepository interface {
	Upsert(ctx context.Context, card domain.CardSummary) error
	FindByUserID(ctx context.Context, userID string) (domain.CardSummary, error)
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	Status     *domain.ProductStatus
	CategoryID string
	Search     string
	Pagination domain.Pagination
}

// ProductRepository persists products together with their variants.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	InsertVariant(ctx context.Context, variant domain.ProductVariant) error
	UpdateVariant(ctx context.Context, variant domain.ProductVariant) error
	SoftDeleteVariant(ctx context.Context, productID, variantID string, deletedAt time.Time) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error
}

// CategoryRepository persists the category tree.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	// SlugExists ignores soft-deleted rows and the category identified by excludeID.
	SlugExists(ctx context.Context, slug string, excludeID string) (bool, error)
	List(ctx context.Context) ([]domain.Category, error)
	ListChildren(ctx context.Context, parentID string) ([]domain.Category, error)
	SoftDelete(ctx context.Context, categoryID string, deletedAt time.Time) error
}

// OrderListFilter narrows order listings. Range bounds are inclusive.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Total      domain.RangeQuery[decimal.Decimal]
	CreatedAt  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// OrderRepository persists orders and their frozen items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateIfStatus saves mutable order fields only when the stored status equals expected;
	// it reports a conflict otherwise.
	UpdateIfStatus(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListStale(ctx context.Context, status domain.OrderStatus, createdBefore time.Time, limit int) ([]domain.Order, error)
}

// CouponListFilter narrows admin coupon listings.
type CouponListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// CouponRepository persists coupons. Soft-deleted rows are invisible to lookups.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	// LockByID reads the coupon with a row lock held until the surrounding transaction ends.
	LockByID(ctx context.Context, couponID string) (domain.Coupon, error)
	IncrementUsage(ctx context.Context, couponID string, at time.Time) error
	List(ctx context.Context, filter CouponListFilter) (domain.CursorPage[domain.Coupon], error)
	ListActive(ctx context.Context) ([]domain.Coupon, error)
	SoftDelete(ctx context.Context, couponID string, deletedAt time.Time) error
}

// CouponUsageRepository stores redemptions; (coupon, order) is unique.
type CouponUsageRepository interface {
	Insert(ctx context.Context, usage domain.CouponUsage) error
	ExistsForOrder(ctx context.Context, couponID, orderID string) (bool, error)
	CountByUser(ctx context.Context, couponID, userID string) (int, error)
	Stats(ctx context.Context, couponID string) (domain.CouponUsageStats, error)
}

// AdminEmailRepository stores admin notification recipients.
type AdminEmailRepository interface {
	Insert(ctx context.Context, email domain.AdminEmail) error
	List(ctx context.Context) ([]domain.AdminEmail, error)
	Delete(ctx context.Context, id string) error
}

// HealthRepository evaluates infrastructure dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// DashboardRepository answers the aggregate queries behind the admin dashboard.
type DashboardRepository interface {
	// CountOrders counts orders in any of statuses, or all orders when none are given.
	CountOrders(ctx context.Context, statuses ...domain.OrderStatus) (int64, error)
	CountProducts(ctx context.Context) (int64, error)
	CountApprovedUsers(ctx context.Context) (int64, error)
	OrderTotalsSince(ctx context.Context, since time.Time) ([]domain.OrderRevenue, error)
}
