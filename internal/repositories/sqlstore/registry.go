package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tradeshop/api/internal/platform/database"
	"github.com/tradeshop/api/internal/repositories"
)

// Registry implements repositories.Registry on top of a gorm connection.
type Registry struct {
	db  *gorm.DB
	uow *database.UnitOfWork

	users        *UserRepository
	wallets      *WalletRepository
	transactions *TransactionRepository
	cards        *CardRepository
	products     *ProductRepository
	categories   *CategoryRepository
	orders       *OrderRepository
	coupons      *CouponRepository
	couponUsage  *CouponUsageRepository
	adminEmails  *AdminEmailRepository
	dashboard    *DashboardRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository against db.
func NewRegistry(db *gorm.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("sqlstore: database is required")
	}
	return &Registry{
		db:           db,
		uow:          database.NewUnitOfWork(db),
		users:        &UserRepository{db: db},
		wallets:      &WalletRepository{db: db},
		transactions: &TransactionRepository{db: db},
		cards:        &CardRepository{db: db},
		products:     &ProductRepository{db: db},
		categories:   &CategoryRepository{db: db},
		orders:       &OrderRepository{db: db},
		coupons:      &CouponRepository{db: db},
		couponUsage:  &CouponUsageRepository{db: db},
		adminEmails:  &AdminEmailRepository{db: db},
		dashboard:    &DashboardRepository{db: db},
	}, nil
}

// Migrate creates or updates the schema for every model.
func (r *Registry) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// Ping verifies the connection is usable.
func (r *Registry) Ping(ctx context.Context) error {
	return database.Ping(ctx, r.db)
}

func (r *Registry) Close(context.Context) error { return database.Close(r.db) }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) Users() repositories.UserRepository               { return r.users }
func (r *Registry) Wallets() repositories.WalletRepository           { return r.wallets }
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }
func (r *Registry) Cards() repositories.CardRepository               { return r.cards }
func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) Categories() repositories.CategoryRepository      { return r.categories }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Coupons() repositories.CouponRepository           { return r.coupons }
func (r *Registry) CouponUsage() repositories.CouponUsageRepository  { return r.couponUsage }
func (r *Registry) AdminEmails() repositories.AdminEmailRepository   { return r.adminEmails }
func (r *Registry) Dashboard() repositories.DashboardRepository      { return r.dashboard }
