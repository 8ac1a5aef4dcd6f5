package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/tradeshop/api/internal/domain"
)

type userModel struct {
	ID        string `gorm:"primaryKey;size:128"`
	Email     string `gorm:"size:320;index"`
	Name      string `gorm:"size:255"`
	Phone     string `gorm:"size:64"`
	Role      string `gorm:"size:32;index;not null"`
	Approved  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userModel) TableName() string { return "users" }

type walletModel struct {
	ID        string          `gorm:"primaryKey;size:40"`
	UserID    string          `gorm:"size:128;uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	CreditDue decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
	User      *userModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (walletModel) TableName() string { return "wallets" }

type transactionModel struct {
	ID                   string          `gorm:"primaryKey;size:40"`
	UserID               string          `gorm:"size:128;index;not null"`
	Type                 string          `gorm:"size:32;not null"`
	Amount               decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Description          string          `gorm:"size:512"`
	PaymentMethod        string          `gorm:"size:32"`
	PaymentTransactionID string          `gorm:"size:255;index"`
	CreatedAt            time.Time       `gorm:"index"`
}

func (transactionModel) TableName() string { return "transactions" }

type cardModel struct {
	UserID         string `gorm:"primaryKey;size:128"`
	Brand          string `gorm:"size:32"`
	Last4          string `gorm:"size:4"`
	ExpirationDate string `gorm:"size:16"`
	UpdatedAt      time.Time
}

func (cardModel) TableName() string { return "card_summaries" }

type productModel struct {
	ID           string          `gorm:"primaryKey;size:40"`
	Name         string          `gorm:"size:255;not null"`
	Description  string          `gorm:"type:text"`
	Status       string          `gorm:"size:16;index;not null"`
	BasePrice    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	ShippingCost decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	CaseSize     *int
	CategoryID   string                      `gorm:"size:40;index"`
	Images       datatypes.JSONSlice[string] `gorm:"type:json"`
	Variants     []variantModel              `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (productModel) TableName() string { return "products" }

type variantModel struct {
	ID               string                      `gorm:"primaryKey;size:40"`
	ProductID        string                      `gorm:"size:40;index;not null"`
	Name             string                      `gorm:"size:255"`
	SKU              *string                     `gorm:"size:128;uniqueIndex"`
	Price            decimal.Decimal             `gorm:"type:decimal(14,2);not null;default:0"`
	DealerPrice      decimal.Decimal             `gorm:"type:decimal(14,2);not null;default:0"`
	DistributorPrice decimal.Decimal             `gorm:"type:decimal(14,2);not null;default:0"`
	ContractorPrice  decimal.Decimal             `gorm:"type:decimal(14,2);not null;default:0"`
	Images           datatypes.JSONSlice[string] `gorm:"type:json"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (variantModel) TableName() string { return "product_variants" }

type categoryModel struct {
	ID          string  `gorm:"primaryKey;size:40"`
	Name        string  `gorm:"size:255;not null"`
	Slug        string  `gorm:"size:255;index;not null"`
	Description string  `gorm:"type:text"`
	Image       string  `gorm:"size:1024"`
	ParentID    *string `gorm:"size:40;index"`
	Index       int     `gorm:"column:sort_index;not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (categoryModel) TableName() string { return "categories" }

type orderModel struct {
	ID                string                                   `gorm:"primaryKey;size:40"`
	UserID            string                                   `gorm:"size:128;index;not null"`
	Status            string                                   `gorm:"size:24;index:idx_orders_status_created;not null"`
	PaymentStatus     string                                   `gorm:"size:16;not null"`
	Gateway           string                                   `gorm:"size:24;not null"`
	Subtotal          decimal.Decimal                          `gorm:"type:decimal(14,2);not null"`
	ShippingCost      decimal.Decimal                          `gorm:"type:decimal(14,2);not null"`
	DiscountAmount    decimal.Decimal                          `gorm:"type:decimal(14,2);not null;default:0"`
	Total             decimal.Decimal                          `gorm:"type:decimal(14,2);not null"`
	CouponID          *string                                  `gorm:"size:40;index"`
	CouponCode        string                                   `gorm:"size:96"`
	ShippingAddress   datatypes.JSONType[domain.ShippingAddress] `gorm:"type:json"`
	StoreCollection   bool                                     `gorm:"not null;default:false"`
	PaymentReference  string                                   `gorm:"size:255"`
	CheckoutSessionID string                                   `gorm:"size:255;index"`
	TrackingNumber    string                                   `gorm:"size:128"`
	Notes             string                                   `gorm:"type:text"`
	AdminNotes        string                                   `gorm:"type:text"`
	Items             []orderItemModel                         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time                                `gorm:"index:idx_orders_status_created"`
	UpdatedAt         time.Time
	ConfirmedAt       *time.Time
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID          string          `gorm:"primaryKey;size:40"`
	OrderID     string          `gorm:"size:40;index;not null"`
	ProductID   string          `gorm:"size:40;index;not null"`
	VariantID   *string         `gorm:"size:40"`
	ProductName string          `gorm:"size:255"`
	SKU         string          `gorm:"size:128"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(14,2);not null"`
}

func (orderItemModel) TableName() string { return "order_items" }

type couponModel struct {
	ID                    string                      `gorm:"primaryKey;size:40"`
	Code                  string                      `gorm:"size:96;uniqueIndex;not null"`
	Name                  string                      `gorm:"size:255"`
	Description           string                      `gorm:"type:text"`
	Type                  string                      `gorm:"size:16;not null"`
	Value                 decimal.Decimal             `gorm:"type:decimal(14,2);not null"`
	EligibilityType       string                      `gorm:"size:24;not null"`
	EligibleRoles         datatypes.JSONSlice[string] `gorm:"type:json"`
	EligibleUserIDs       datatypes.JSONSlice[string] `gorm:"type:json"`
	ValidFrom             *time.Time
	ValidUntil            *time.Time
	UsageCount            int              `gorm:"not null;default:0"`
	MaxUsage              *int
	MaxUsagePerUser       *int
	MinimumOrderAmount    *decimal.Decimal `gorm:"type:decimal(14,2)"`
	MaximumDiscountAmount *decimal.Decimal `gorm:"type:decimal(14,2)"`
	Active                bool             `gorm:"not null;default:true"`
	CreatedBy             string           `gorm:"size:128"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             gorm.DeletedAt `gorm:"index"`
}

func (couponModel) TableName() string { return "coupons" }

type couponUsageModel struct {
	ID             string          `gorm:"primaryKey;size:40"`
	CouponID       string          `gorm:"size:40;uniqueIndex:idx_coupon_usage_order;index:idx_coupon_usage_user;not null"`
	UserID         string          `gorm:"size:128;index:idx_coupon_usage_user;not null"`
	OrderID        string          `gorm:"size:40;uniqueIndex:idx_coupon_usage_order;not null"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	OrderAmount    decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	UsedAt         time.Time
}

func (couponUsageModel) TableName() string { return "coupon_usages" }

type adminEmailModel struct {
	ID        string `gorm:"primaryKey;size:40"`
	Email     string `gorm:"size:320;uniqueIndex;not null"`
	CreatedAt time.Time
}

func (adminEmailModel) TableName() string { return "admin_emails" }

func allModels() []any {
	return []any{
		&userModel{},
		&walletModel{},
		&transactionModel{},
		&cardModel{},
		&categoryModel{},
		&productModel{},
		&variantModel{},
		&orderModel{},
		&orderItemModel{},
		&couponModel{},
		&couponUsageModel{},
		&adminEmailModel{},
	}
}
