package sqlstore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/database"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/repositories"
)

var couponMutableColumns = []string{
	"code", "name", "description", "type", "value", "eligibility_type", "eligible_roles",
	"eligible_user_ids", "valid_from", "valid_until", "max_usage", "max_usage_per_user",
	"minimum_order_amount", "maximum_discount_amount", "active", "updated_at",
}

// CouponRepository stores coupons.
type CouponRepository struct {
	db *gorm.DB
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	model := toCouponModel(coupon)
	return database.WrapError("coupons.insert", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	model := toCouponModel(coupon)
	res := database.Conn(ctx, r.db).Model(&couponModel{}).Where("id = ?", coupon.ID).
		Select(couponMutableColumns).Updates(&model)
	if res.Error != nil {
		return database.WrapError("coupons.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("coupons.update")
	}
	return nil
}

func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	return takeCoupon("coupons.find", database.Conn(ctx, r.db).Where("id = ?", couponID))
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return takeCoupon("coupons.find_code", database.Conn(ctx, r.db).Where("code = ?", code))
}

func (r *CouponRepository) LockByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	query := database.Conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", couponID)
	return takeCoupon("coupons.lock", query)
}

func takeCoupon(op string, query *gorm.DB) (domain.Coupon, error) {
	var model couponModel
	if err := query.Take(&model).Error; err != nil {
		return domain.Coupon{}, database.WrapError(op, err)
	}
	return model.toDomain(), nil
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string, at time.Time) error {
	res := database.Conn(ctx, r.db).Model(&couponModel{}).Where("id = ?", couponID).
		UpdateColumns(map[string]any{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  at,
		})
	if res.Error != nil {
		return database.WrapError("coupons.increment", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("coupons.increment")
	}
	return nil
}

func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	limit, offset, err := pagination.Window(filter.Pagination.PageSize, filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}
	query := database.Conn(ctx, r.db).Model(&couponModel{})
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	var models []couponModel
	if err := query.Order("created_at DESC").Order("id").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return domain.CursorPage[domain.Coupon]{}, database.WrapError("coupons.list", err)
	}
	page := domain.CursorPage[domain.Coupon]{Items: make([]domain.Coupon, 0, len(models))}
	for _, m := range models {
		page.Items = append(page.Items, m.toDomain())
	}
	page.NextPageToken = pagination.NextToken(offset, limit, len(models))
	return page, nil
}

func (r *CouponRepository) ListActive(ctx context.Context) ([]domain.Coupon, error) {
	var models []couponModel
	if err := database.Conn(ctx, r.db).Where("active = ?", true).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, database.WrapError("coupons.list_active", err)
	}
	out := make([]domain.Coupon, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// SoftDelete marks the coupon deleted; callers rename the code first so it can be reused.
func (r *CouponRepository) SoftDelete(ctx context.Context, couponID string, deletedAt time.Time) error {
	res := database.Conn(ctx, r.db).Model(&couponModel{}).Where("id = ?", couponID).
		UpdateColumns(map[string]any{"deleted_at": deletedAt, "active": false})
	if res.Error != nil {
		return database.WrapError("coupons.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("coupons.delete")
	}
	return nil
}

// CouponUsageRepository stores coupon redemptions.
type CouponUsageRepository struct {
	db *gorm.DB
}

func (r *CouponUsageRepository) Insert(ctx context.Context, usage domain.CouponUsage) error {
	model := couponUsageModel{
		ID:             usage.ID,
		CouponID:       usage.CouponID,
		UserID:         usage.UserID,
		OrderID:        usage.OrderID,
		DiscountAmount: usage.DiscountAmount,
		OrderAmount:    usage.OrderAmount,
		UsedAt:         usage.UsedAt,
	}
	return database.WrapError("coupon_usage.insert", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *CouponUsageRepository) ExistsForOrder(ctx context.Context, couponID, orderID string) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&couponUsageModel{}).
		Where("coupon_id = ? AND order_id = ?", couponID, orderID).Count(&count).Error
	if err != nil {
		return false, database.WrapError("coupon_usage.exists", err)
	}
	return count > 0, nil
}

func (r *CouponUsageRepository) CountByUser(ctx context.Context, couponID, userID string) (int, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&couponUsageModel{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).Count(&count).Error
	if err != nil {
		return 0, database.WrapError("coupon_usage.count", err)
	}
	return int(count), nil
}

func (r *CouponUsageRepository) Stats(ctx context.Context, couponID string) (domain.CouponUsageStats, error) {
	var row struct {
		TotalUsage  int64
		UniqueUsers int64
		TotalGiven  decimal.NullDecimal
	}
	err := database.Conn(ctx, r.db).Model(&couponUsageModel{}).
		Select("COUNT(*) AS total_usage, COUNT(DISTINCT user_id) AS unique_users, SUM(discount_amount) AS total_given").
		Where("coupon_id = ?", couponID).
		Scan(&row).Error
	if err != nil {
		return domain.CouponUsageStats{}, database.WrapError("coupon_usage.stats", err)
	}
	stats := domain.CouponUsageStats{
		TotalUsage:         int(row.TotalUsage),
		UniqueUsers:        int(row.UniqueUsers),
		TotalDiscountGiven: decimal.Zero,
	}
	if row.TotalGiven.Valid {
		stats.TotalDiscountGiven = row.TotalGiven.Decimal
	}
	return stats, nil
}
