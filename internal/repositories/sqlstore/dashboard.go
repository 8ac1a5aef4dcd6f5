package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/database"
)

// DashboardRepository runs read-only aggregates for the admin dashboard. Soft-deleted rows are
// excluded by the models' DeletedAt scopes.
type DashboardRepository struct {
	db *gorm.DB
}

func (r *DashboardRepository) CountOrders(ctx context.Context, statuses ...domain.OrderStatus) (int64, error) {
	query := database.Conn(ctx, r.db).Model(&orderModel{})
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		query = query.Where("status IN ?", values)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, database.WrapError("dashboard.count_orders", err)
	}
	return total, nil
}

func (r *DashboardRepository) CountProducts(ctx context.Context) (int64, error) {
	var total int64
	if err := database.Conn(ctx, r.db).Model(&productModel{}).Count(&total).Error; err != nil {
		return 0, database.WrapError("dashboard.count_products", err)
	}
	return total, nil
}

func (r *DashboardRepository) CountApprovedUsers(ctx context.Context) (int64, error) {
	var total int64
	if err := database.Conn(ctx, r.db).Model(&userModel{}).Where("approved = ?", true).Count(&total).Error; err != nil {
		return 0, database.WrapError("dashboard.count_users", err)
	}
	return total, nil
}

func (r *DashboardRepository) OrderTotalsSince(ctx context.Context, since time.Time) ([]domain.OrderRevenue, error) {
	var rows []orderModel
	err := database.Conn(ctx, r.db).Model(&orderModel{}).
		Select("created_at", "payment_status", "total").
		Where("created_at >= ?", since).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, database.WrapError("dashboard.order_totals", err)
	}
	out := make([]domain.OrderRevenue, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.OrderRevenue{
			CreatedAt:     row.CreatedAt.UTC(),
			PaymentStatus: domain.PaymentStatus(row.PaymentStatus),
			Total:         row.Total,
		})
	}
	return out, nil
}
