package sqlstore

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/tradeshop/api/internal/domain"
)

func deletedAtPtr(d gorm.DeletedAt) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time.UTC()
	return &t
}

func stringsOrEmpty(values []string) datatypes.JSONSlice[string] {
	if values == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](append([]string(nil), values...))
}

func toUserModel(u domain.User) userModel {
	return userModel{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      string(u.Role),
		Approved:  u.Approved,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (m userModel) toDomain() domain.User {
	return domain.User{
		ID:        m.ID,
		Email:     m.Email,
		Name:      m.Name,
		Phone:     m.Phone,
		Role:      domain.UserRole(m.Role),
		Approved:  m.Approved,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func (m walletModel) toDomain() domain.Wallet {
	return domain.Wallet{
		ID:        m.ID,
		UserID:    m.UserID,
		Balance:   m.Balance,
		CreditDue: m.CreditDue,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func toTransactionModel(t domain.Transaction) transactionModel {
	return transactionModel{
		ID:                   t.ID,
		UserID:               t.UserID,
		Type:                 string(t.Type),
		Amount:               t.Amount,
		Description:          t.Description,
		PaymentMethod:        string(t.PaymentMethod),
		PaymentTransactionID: t.PaymentTransactionID,
		CreatedAt:            t.CreatedAt,
	}
}

func (m transactionModel) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:                   m.ID,
		UserID:               m.UserID,
		Type:                 domain.TransactionType(m.Type),
		Amount:               m.Amount,
		Description:          m.Description,
		PaymentMethod:        domain.PaymentMethod(m.PaymentMethod),
		PaymentTransactionID: m.PaymentTransactionID,
		CreatedAt:            m.CreatedAt.UTC(),
	}
}

func toVariantModel(v domain.ProductVariant) variantModel {
	return variantModel{
		ID:               v.ID,
		ProductID:        v.ProductID,
		Name:             v.Name,
		SKU:              nullableString(v.SKU),
		Price:            v.Price,
		DealerPrice:      v.DealerPrice,
		DistributorPrice: v.DistributorPrice,
		ContractorPrice:  v.ContractorPrice,
		Images:           stringsOrEmpty(v.Images),
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

func (m variantModel) toDomain() domain.ProductVariant {
	return domain.ProductVariant{
		ID:               m.ID,
		ProductID:        m.ProductID,
		Name:             m.Name,
		SKU:              derefString(m.SKU),
		Price:            m.Price,
		DealerPrice:      m.DealerPrice,
		DistributorPrice: m.DistributorPrice,
		ContractorPrice:  m.ContractorPrice,
		Images:           []string(m.Images),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func toProductModel(p domain.Product) productModel {
	return productModel{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Status:       string(p.Status),
		BasePrice:    p.BasePrice,
		ShippingCost: p.ShippingCost,
		CaseSize:     p.CaseSize,
		CategoryID:   p.CategoryID,
		Images:       stringsOrEmpty(p.Images),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (m productModel) toDomain() domain.Product {
	variants := make([]domain.ProductVariant, 0, len(m.Variants))
	for _, v := range m.Variants {
		variants = append(variants, v.toDomain())
	}
	return domain.Product{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		Status:       domain.ProductStatus(m.Status),
		BasePrice:    m.BasePrice,
		ShippingCost: m.ShippingCost,
		CaseSize:     m.CaseSize,
		CategoryID:   m.CategoryID,
		Images:       []string(m.Images),
		Variants:     variants,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
		DeletedAt:    deletedAtPtr(m.DeletedAt),
	}
}

func toCategoryModel(c domain.Category) categoryModel {
	return categoryModel{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Image:       c.Image,
		ParentID:    c.ParentID,
		Index:       c.Index,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (m categoryModel) toDomain() domain.Category {
	return domain.Category{
		ID:          m.ID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		Image:       m.Image,
		ParentID:    m.ParentID,
		Index:       m.Index,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
		DeletedAt:   deletedAtPtr(m.DeletedAt),
	}
}

func toOrderModel(o domain.Order) orderModel {
	items := make([]orderItemModel, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemModel{
			ID:          item.ID,
			OrderID:     o.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		})
	}
	return orderModel{
		ID:                o.ID,
		UserID:            o.UserID,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		Gateway:           string(o.Gateway),
		Subtotal:          o.Subtotal,
		ShippingCost:      o.ShippingCost,
		DiscountAmount:    o.DiscountAmount,
		Total:             o.Total,
		CouponID:          o.CouponID,
		CouponCode:        o.CouponCode,
		ShippingAddress:   datatypes.NewJSONType(o.ShippingAddress),
		StoreCollection:   o.StoreCollection,
		PaymentReference:  o.PaymentReference,
		CheckoutSessionID: o.CheckoutSessionID,
		TrackingNumber:    o.TrackingNumber,
		Notes:             o.Notes,
		AdminNotes:        o.AdminNotes,
		Items:             items,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		ConfirmedAt:       o.ConfirmedAt,
	}
}

func (m orderModel) toDomain() domain.Order {
	items := make([]domain.OrderItem, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, domain.OrderItem{
			ID:          item.ID,
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		})
	}
	return domain.Order{
		ID:                m.ID,
		UserID:            m.UserID,
		Items:             items,
		Status:            domain.OrderStatus(m.Status),
		PaymentStatus:     domain.PaymentStatus(m.PaymentStatus),
		Gateway:           domain.PaymentGateway(m.Gateway),
		Subtotal:          m.Subtotal,
		ShippingCost:      m.ShippingCost,
		DiscountAmount:    m.DiscountAmount,
		Total:             m.Total,
		CouponID:          m.CouponID,
		CouponCode:        m.CouponCode,
		ShippingAddress:   m.ShippingAddress.Data(),
		StoreCollection:   m.StoreCollection,
		PaymentReference:  m.PaymentReference,
		CheckoutSessionID: m.CheckoutSessionID,
		TrackingNumber:    m.TrackingNumber,
		Notes:             m.Notes,
		AdminNotes:        m.AdminNotes,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
		ConfirmedAt:       m.ConfirmedAt,
		DeletedAt:         deletedAtPtr(m.DeletedAt),
	}
}

func toCouponModel(c domain.Coupon) couponModel {
	roles := make([]string, 0, len(c.EligibleRoles))
	for _, role := range c.EligibleRoles {
		roles = append(roles, string(role))
	}
	return couponModel{
		ID:                    c.ID,
		Code:                  c.Code,
		Name:                  c.Name,
		Description:           c.Description,
		Type:                  string(c.Type),
		Value:                 c.Value,
		EligibilityType:       string(c.EligibilityType),
		EligibleRoles:         stringsOrEmpty(roles),
		EligibleUserIDs:       stringsOrEmpty(c.EligibleUserIDs),
		ValidFrom:             c.ValidFrom,
		ValidUntil:            c.ValidUntil,
		UsageCount:            c.UsageCount,
		MaxUsage:              c.MaxUsage,
		MaxUsagePerUser:       c.MaxUsagePerUser,
		MinimumOrderAmount:    c.MinimumOrderAmount,
		MaximumDiscountAmount: c.MaximumDiscountAmount,
		Active:                c.Active,
		CreatedBy:             c.CreatedBy,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func (m couponModel) toDomain() domain.Coupon {
	roles := make([]domain.UserRole, 0, len(m.EligibleRoles))
	for _, role := range m.EligibleRoles {
		roles = append(roles, domain.UserRole(role))
	}
	return domain.Coupon{
		ID:                    m.ID,
		Code:                  m.Code,
		Name:                  m.Name,
		Description:           m.Description,
		Type:                  domain.CouponType(m.Type),
		Value:                 m.Value,
		EligibilityType:       domain.CouponEligibilityType(m.EligibilityType),
		EligibleRoles:         roles,
		EligibleUserIDs:       []string(m.EligibleUserIDs),
		ValidFrom:             m.ValidFrom,
		ValidUntil:            m.ValidUntil,
		UsageCount:            m.UsageCount,
		MaxUsage:              m.MaxUsage,
		MaxUsagePerUser:       m.MaxUsagePerUser,
		MinimumOrderAmount:    m.MinimumOrderAmount,
		MaximumDiscountAmount: m.MaximumDiscountAmount,
		Active:                m.Active,
		CreatedBy:             m.CreatedBy,
		CreatedAt:             m.CreatedAt.UTC(),
		UpdatedAt:             m.UpdatedAt.UTC(),
		DeletedAt:             deletedAtPtr(m.DeletedAt),
	}
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
