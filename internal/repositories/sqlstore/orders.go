package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/database"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/repositories"
)

// OrderRepository stores orders with their frozen items.
type OrderRepository struct {
	db *gorm.DB
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	model := toOrderModel(order)
	return database.WrapError("orders.insert", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var model orderModel
	if err := database.Conn(ctx, r.db).Preload("Items").Where("id = ?", orderID).Take(&model).Error; err != nil {
		return domain.Order{}, database.WrapError("orders.find", err)
	}
	return model.toDomain(), nil
}

func (r *OrderRepository) UpdateIfStatus(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	res := database.Conn(ctx, r.db).Model(&orderModel{}).
		Where("id = ? AND status = ?", order.ID, string(expected)).
		Updates(map[string]any{
			"status":              string(order.Status),
			"payment_status":      string(order.PaymentStatus),
			"payment_reference":   order.PaymentReference,
			"checkout_session_id": order.CheckoutSessionID,
			"tracking_number":     order.TrackingNumber,
			"notes":               order.Notes,
			"admin_notes":         order.AdminNotes,
			"confirmed_at":        order.ConfirmedAt,
			"updated_at":          order.UpdatedAt,
		})
	if res.Error != nil {
		return database.WrapError("orders.update", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, order.ID); err != nil {
			return err
		}
		return database.WrapError("orders.update", database.ErrGuardFailed)
	}
	return nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	limit, offset, err := pagination.Window(filter.Pagination.PageSize, filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	query := database.Conn(ctx, r.db).Model(&orderModel{}).Preload("Items")
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.Total.From != nil {
		query = query.Where("total >= ?", *filter.Total.From)
	}
	if filter.Total.To != nil {
		query = query.Where("total <= ?", *filter.Total.To)
	}
	if filter.CreatedAt.From != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAt.From)
	}
	if filter.CreatedAt.To != nil {
		query = query.Where("created_at <= ?", *filter.CreatedAt.To)
	}
	var models []orderModel
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return domain.CursorPage[domain.Order]{}, database.WrapError("orders.list", err)
	}
	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(models))}
	for _, m := range models {
		page.Items = append(page.Items, m.toDomain())
	}
	page.NextPageToken = pagination.NextToken(offset, limit, len(models))
	return page, nil
}

func (r *OrderRepository) ListStale(ctx context.Context, status domain.OrderStatus, createdBefore time.Time, limit int) ([]domain.Order, error) {
	query := database.Conn(ctx, r.db).Preload("Items").
		Where("status = ? AND created_at < ?", string(status), createdBefore).
		Order("created_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []orderModel
	if err := query.Find(&models).Error; err != nil {
		return nil, database.WrapError("orders.list_stale", err)
	}
	out := make([]domain.Order, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}
