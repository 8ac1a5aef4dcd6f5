package sqlstore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/database"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/repositories"
)

// ProductRepository stores products and their variants.
type ProductRepository struct {
	db *gorm.DB
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	model := toProductModel(product)
	for _, v := range product.Variants {
		variant := toVariantModel(v)
		variant.ProductID = product.ID
		model.Variants = append(model.Variants, variant)
	}
	return database.WrapError("products.insert", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	model := toProductModel(product)
	res := database.Conn(ctx, r.db).Model(&productModel{}).Where("id = ?", product.ID).
		Select("name", "description", "status", "base_price", "shipping_cost", "case_size", "category_id", "images", "updated_at").
		Omit(clause.Associations).
		Updates(&model)
	if res.Error != nil {
		return database.WrapError("products.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("products.update")
	}
	return nil
}

func (r *ProductRepository) InsertVariant(ctx context.Context, variant domain.ProductVariant) error {
	model := toVariantModel(variant)
	return database.WrapError("products.insert_variant", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *ProductRepository) UpdateVariant(ctx context.Context, variant domain.ProductVariant) error {
	model := toVariantModel(variant)
	res := database.Conn(ctx, r.db).Model(&variantModel{}).
		Where("id = ? AND product_id = ?", variant.ID, variant.ProductID).
		Select("name", "sku", "price", "dealer_price", "distributor_price", "contractor_price", "images", "updated_at").
		Updates(&model)
	if res.Error != nil {
		return database.WrapError("products.update_variant", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("products.update_variant")
	}
	return nil
}

// SoftDeleteVariant clears the SKU so it can be reused by a replacement variant.
func (r *ProductRepository) SoftDeleteVariant(ctx context.Context, productID, variantID string, deletedAt time.Time) error {
	res := database.Conn(ctx, r.db).Model(&variantModel{}).
		Where("id = ? AND product_id = ?", variantID, productID).
		Updates(map[string]any{"sku": nil, "deleted_at": deletedAt, "updated_at": deletedAt})
	if res.Error != nil {
		return database.WrapError("products.delete_variant", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("products.delete_variant")
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var model productModel
	err := database.Conn(ctx, r.db).Preload("Variants", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at")
	}).Where("id = ?", productID).Take(&model).Error
	if err != nil {
		return domain.Product{}, database.WrapError("products.find", err)
	}
	return model.toDomain(), nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var models []productModel
	if err := database.Conn(ctx, r.db).Preload("Variants").Where("id IN ?", productIDs).Find(&models).Error; err != nil {
		return nil, database.WrapError("products.find_many", err)
	}
	out := make([]domain.Product, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	limit, offset, err := pagination.Window(filter.Pagination.PageSize, filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	query := database.Conn(ctx, r.db).Model(&productModel{}).Preload("Variants")
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.CategoryID != "" {
		query = query.Where("category_id = ?", filter.CategoryID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	var models []productModel
	if err := query.Order("created_at DESC").Order("id").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return domain.CursorPage[domain.Product]{}, database.WrapError("products.list", err)
	}
	page := domain.CursorPage[domain.Product]{Items: make([]domain.Product, 0, len(models))}
	for _, m := range models {
		page.Items = append(page.Items, m.toDomain())
	}
	page.NextPageToken = pagination.NextToken(offset, limit, len(models))
	return page, nil
}

func (r *ProductRepository) SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error {
	res := database.Conn(ctx, r.db).Model(&productModel{}).Where("id = ?", productID).Update("deleted_at", deletedAt)
	if res.Error != nil {
		return database.WrapError("products.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("products.delete")
	}
	return nil
}

// CategoryRepository stores categories.
type CategoryRepository struct {
	db *gorm.DB
}

func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	model := toCategoryModel(category)
	return database.WrapError("categories.insert", database.Conn(ctx, r.db).Create(&model).Error)
}

func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	model := toCategoryModel(category)
	res := database.Conn(ctx, r.db).Model(&categoryModel{}).Where("id = ?", category.ID).
		Select("name", "slug", "description", "image", "parent_id", "sort_index", "updated_at").
		Updates(&model)
	if res.Error != nil {
		return database.WrapError("categories.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("categories.update")
	}
	return nil
}

func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	var model categoryModel
	if err := database.Conn(ctx, r.db).Where("id = ?", categoryID).Take(&model).Error; err != nil {
		return domain.Category{}, database.WrapError("categories.find", err)
	}
	return model.toDomain(), nil
}

func (r *CategoryRepository) SlugExists(ctx context.Context, slug string, excludeID string) (bool, error) {
	var count int64
	query := database.Conn(ctx, r.db).Model(&categoryModel{}).Where("slug = ?", slug)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, database.WrapError("categories.slug_exists", err)
	}
	return count > 0, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	var models []categoryModel
	if err := database.Conn(ctx, r.db).Order("sort_index").Order("name").Find(&models).Error; err != nil {
		return nil, database.WrapError("categories.list", err)
	}
	return categoriesToDomain(models), nil
}

func (r *CategoryRepository) ListChildren(ctx context.Context, parentID string) ([]domain.Category, error) {
	var models []categoryModel
	err := database.Conn(ctx, r.db).Where("parent_id = ?", parentID).Order("sort_index").Order("name").Find(&models).Error
	if err != nil {
		return nil, database.WrapError("categories.children", err)
	}
	return categoriesToDomain(models), nil
}

func (r *CategoryRepository) SoftDelete(ctx context.Context, categoryID string, deletedAt time.Time) error {
	res := database.Conn(ctx, r.db).Model(&categoryModel{}).Where("id = ?", categoryID).Update("deleted_at", deletedAt)
	if res.Error != nil {
		return database.WrapError("categories.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NotFound("categories.delete")
	}
	return nil
}

func categoriesToDomain(models []categoryModel) []domain.Category {
	out := make([]domain.Category, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out
}
