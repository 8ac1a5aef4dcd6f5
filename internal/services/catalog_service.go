package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/storage"
	"github.com/tradeshop/api/internal/repositories"
)

const (
	productIDPrefix  = "prd_"
	variantIDPrefix  = "var_"
	categoryIDPrefix = "cat_"

	maxProductNameLength  = 200
	maxDescriptionLength  = 10000
	maxCategoryNameLength = 120
	maxSlugAttempts       = 50
	defaultMaxImageSize   = 10 << 20
	defaultPublicBaseURL  = "https://storage.googleapis.com/"
)

var (
	// ErrCatalogInvalidInput signals malformed catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates a missing product, variant or category.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a duplicate or a delete blocked by dependants.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogRepositoryMissing indicates the service was wired without storage.
	ErrCatalogRepositoryMissing = errors.New("catalog: repository not configured")
	// ErrCatalogStorageUnavailable indicates image uploads are not configured.
	ErrCatalogStorageUnavailable = errors.New("catalog: image storage not configured")
)

var defaultImageContentTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// ImageUploadSigner issues signed upload URLs.
type ImageUploadSigner interface {
	SignUpload(ctx context.Context, bucket, object string, opts storage.UploadOptions) (storage.SignedUpload, error)
}

// ObjectChecker reports whether an uploaded object exists.
type ObjectChecker interface {
	Exists(ctx context.Context, bucket, object string) (bool, error)
}

// CatalogServiceDeps bundles collaborators required by the catalog service.
type CatalogServiceDeps struct {
	Products      repositories.ProductRepository
	Categories    repositories.CategoryRepository
	Uploads       ImageUploadSigner
	Objects       ObjectChecker
	Bucket        string
	PublicBaseURL string
	MaxImageSize  int64
	UnitOfWork    repositories.UnitOfWork
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        Logger
}

type catalogService struct {
	products      repositories.ProductRepository
	categories    repositories.CategoryRepository
	uploads       ImageUploadSigner
	objects       ObjectChecker
	bucket        string
	publicBaseURL string
	maxImageSize  int64
	unitOfWork    repositories.UnitOfWork
	clock         func() time.Time
	newID         func() string
	logger        Logger
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService wires product and category administration.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil || deps.Categories == nil {
		return nil, ErrCatalogRepositoryMissing
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	bucket := strings.TrimSpace(deps.Bucket)
	base := strings.TrimSpace(deps.PublicBaseURL)
	if base == "" && bucket != "" {
		base = defaultPublicBaseURL + bucket
	}
	maxSize := deps.MaxImageSize
	if maxSize <= 0 {
		maxSize = defaultMaxImageSize
	}
	return &catalogService{
		products:      deps.Products,
		categories:    deps.Categories,
		uploads:       deps.Uploads,
		objects:       deps.Objects,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		maxImageSize:  maxSize,
		unitOfWork:    unit,
		clock:         utcClock(deps.Clock),
		newID:         defaultIDGenerator(deps.IDGenerator),
		logger:        logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	now := s.clock()
	product := Product{
		ID:           productIDPrefix + s.newID(),
		Status:       domain.ProductStatusDraft,
		BasePrice:    decimal.Zero,
		ShippingCost: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.applyProductPatch(&product, cmd)

	seen := map[string]struct{}{}
	for i, input := range cmd.Variants {
		variant, err := s.buildVariant(product.ID, input, now)
		if err != nil {
			return Product{}, fmt.Errorf("%w: variants[%d]: %v", ErrCatalogInvalidInput, i, err)
		}
		if variant.SKU != "" {
			if _, dup := seen[variant.SKU]; dup {
				return Product{}, fmt.Errorf("%w: duplicate sku %q", ErrCatalogInvalidInput, variant.SKU)
			}
			seen[variant.SKU] = struct{}{}
		}
		product.Variants = append(product.Variants, variant)
	}

	if err := s.validateProduct(ctx, product); err != nil {
		return Product{}, err
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.created", map[string]any{"productId": product.ID, "status": string(product.Status)})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if len(cmd.Variants) > 0 {
		return Product{}, fmt.Errorf("%w: variants are added individually", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.applyProductPatch(&product, cmd)
	product.UpdatedAt = s.clock()
	if err := s.validateProduct(ctx, product); err != nil {
		return Product{}, err
	}
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.updated", map[string]any{"productId": product.ID, "status": string(product.Status)})
	return product, nil
}

func (s *catalogService) applyProductPatch(product *Product, cmd UpsertProductCommand) {
	if cmd.Name != nil {
		product.Name = sanitizeText(*cmd.Name)
	}
	if cmd.Description != nil {
		product.Description = sanitizeText(*cmd.Description)
	}
	if cmd.Status != nil {
		product.Status = domain.ProductStatus(strings.ToUpper(strings.TrimSpace(string(*cmd.Status))))
	}
	if cmd.BasePrice != nil {
		product.BasePrice = domain.RoundMoney(*cmd.BasePrice)
	}
	if cmd.ShippingCost != nil {
		product.ShippingCost = domain.RoundMoney(*cmd.ShippingCost)
	}
	if cmd.CaseSize != nil {
		if *cmd.CaseSize == 0 {
			product.CaseSize = nil
		} else {
			size := *cmd.CaseSize
			product.CaseSize = &size
		}
	}
	if cmd.CategoryID != nil {
		product.CategoryID = strings.TrimSpace(*cmd.CategoryID)
	}
	if cmd.Images != nil {
		product.Images = cleanImageList(*cmd.Images)
	}
}

// validateProduct checks field ranges. An ACTIVE product needs at least one variant, at least one
// image and a usable price.
func (s *catalogService) validateProduct(ctx context.Context, product Product) error {
	switch {
	case product.Name == "":
		return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	case len(product.Name) > maxProductNameLength:
		return fmt.Errorf("%w: name is too long", ErrCatalogInvalidInput)
	case len(product.Description) > maxDescriptionLength:
		return fmt.Errorf("%w: description is too long", ErrCatalogInvalidInput)
	case product.BasePrice.IsNegative():
		return fmt.Errorf("%w: basePrice must not be negative", ErrCatalogInvalidInput)
	case product.ShippingCost.IsNegative():
		return fmt.Errorf("%w: shippingCost must not be negative", ErrCatalogInvalidInput)
	case product.CaseSize != nil && *product.CaseSize < 1:
		return fmt.Errorf("%w: caseSize must be at least 1", ErrCatalogInvalidInput)
	}
	switch product.Status {
	case domain.ProductStatusDraft, domain.ProductStatusInactive:
	case domain.ProductStatusActive:
		switch {
		case len(product.Variants) == 0:
			return fmt.Errorf("%w: an active product needs at least one variant", ErrCatalogInvalidInput)
		case !hasImage(product):
			return fmt.Errorf("%w: an active product needs at least one image", ErrCatalogInvalidInput)
		case !hasUsablePrice(product):
			return fmt.Errorf("%w: an active product needs a base price or a priced variant", ErrCatalogInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrCatalogInvalidInput, product.Status)
	}
	if product.CategoryID != "" {
		if _, err := s.categories.FindByID(ctx, product.CategoryID); err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: category %s does not exist", ErrCatalogInvalidInput, product.CategoryID)
			}
			return s.mapRepositoryError(err)
		}
	}
	return nil
}

func hasImage(product Product) bool {
	if len(product.Images) > 0 {
		return true
	}
	for _, v := range product.Variants {
		if len(v.Images) > 0 {
			return true
		}
	}
	return false
}

func hasUsablePrice(product Product) bool {
	if product.BasePrice.IsPositive() {
		return true
	}
	for _, v := range product.Variants {
		if v.Price.IsPositive() {
			return true
		}
	}
	return false
}

func (s *catalogService) buildVariant(productID string, input VariantInput, now time.Time) (Variant, error) {
	variant := Variant{
		ID:               variantIDPrefix + s.newID(),
		ProductID:        productID,
		Name:             sanitizeText(input.Name),
		SKU:              strings.ToUpper(strings.TrimSpace(input.SKU)),
		Price:            domain.RoundMoney(input.Price),
		DealerPrice:      domain.RoundMoney(input.DealerPrice),
		DistributorPrice: domain.RoundMoney(input.DistributorPrice),
		ContractorPrice:  domain.RoundMoney(input.ContractorPrice),
		Images:           cleanImageList(input.Images),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := checkVariant(variant); err != nil {
		return Variant{}, err
	}
	return variant, nil
}

func checkVariant(variant Variant) error {
	if variant.Name == "" {
		return errors.New("name is required")
	}
	for label, price := range map[string]decimal.Decimal{
		"price":            variant.Price,
		"dealerPrice":      variant.DealerPrice,
		"distributorPrice": variant.DistributorPrice,
		"contractorPrice":  variant.ContractorPrice,
	} {
		if price.IsNegative() {
			return fmt.Errorf("%s must not be negative", label)
		}
	}
	return nil
}

func variantIndex(product Product, variantID string) int {
	for i := range product.Variants {
		if product.Variants[i].ID == variantID {
			return i
		}
	}
	return -1
}

func skuTaken(product Product, sku, ownID string) bool {
	if sku == "" {
		return false
	}
	for _, existing := range product.Variants {
		if existing.ID != ownID && existing.SKU == sku {
			return true
		}
	}
	return false
}

// GetProduct hides products that are not ACTIVE unless includeInactive is set.
func (s *catalogService) GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if !includeInactive && product.Status != domain.ProductStatusActive {
		return Product{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, productID)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	repoFilter := repositories.ProductListFilter{
		CategoryID: strings.TrimSpace(filter.CategoryID),
		Search:     sanitizeText(filter.Search),
		Pagination: filter.Pagination,
	}
	switch {
	case filter.Public:
		active := domain.ProductStatusActive
		repoFilter.Status = &active
	case filter.Status != nil:
		status := domain.ProductStatus(strings.ToUpper(string(*filter.Status)))
		if !validProductStatus(status) {
			return domain.CursorPage[Product]{}, fmt.Errorf("%w: unknown status %q", ErrCatalogInvalidInput, status)
		}
		repoFilter.Status = &status
	}
	page, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func validProductStatus(status domain.ProductStatus) bool {
	switch status {
	case domain.ProductStatusDraft, domain.ProductStatusActive, domain.ProductStatusInactive:
		return true
	}
	return false
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.SoftDelete(ctx, productID, s.clock()); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) AddVariant(ctx context.Context, cmd AddVariantCommand) (Variant, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Variant{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	var variant Variant
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return err
		}
		built, err := s.buildVariant(product.ID, cmd.Variant, s.clock())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
		if skuTaken(product, built.SKU, "") {
			return fmt.Errorf("%w: sku %q already exists on this product", ErrCatalogConflict, built.SKU)
		}
		variant = built
		return s.products.InsertVariant(txCtx, variant)
	})
	if err != nil {
		return Variant{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.variant.created", map[string]any{"productId": productID, "variantId": variant.ID})
	return variant, nil
}

// UpdateVariant corrects a variant's name, SKU, prices or images. Price changes apply to orders
// placed afterwards; existing order items keep their frozen prices. An ACTIVE product must still
// pass the activation guard after the change.
func (s *catalogService) UpdateVariant(ctx context.Context, cmd UpdateVariantCommand) (Variant, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	variantID := strings.TrimSpace(cmd.VariantID)
	if productID == "" || variantID == "" {
		return Variant{}, fmt.Errorf("%w: product id and variant id are required", ErrCatalogInvalidInput)
	}
	var variant Variant
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return err
		}
		idx := variantIndex(product, variantID)
		if idx < 0 {
			return fmt.Errorf("%w: variant %s", ErrCatalogNotFound, variantID)
		}
		updated := product.Variants[idx]
		applyVariantPatch(&updated, cmd)
		if err := checkVariant(updated); err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
		if skuTaken(product, updated.SKU, updated.ID) {
			return fmt.Errorf("%w: sku %q already exists on this product", ErrCatalogConflict, updated.SKU)
		}
		updated.UpdatedAt = s.clock()
		product.Variants = append([]Variant(nil), product.Variants...)
		product.Variants[idx] = updated
		if product.Status == domain.ProductStatusActive {
			if err := s.validateProduct(txCtx, product); err != nil {
				return err
			}
		}
		variant = updated
		return s.products.UpdateVariant(txCtx, updated)
	})
	if err != nil {
		return Variant{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.variant.updated", map[string]any{"productId": productID, "variantId": variantID})
	return variant, nil
}

func applyVariantPatch(variant *Variant, cmd UpdateVariantCommand) {
	if cmd.Name != nil {
		variant.Name = sanitizeText(*cmd.Name)
	}
	if cmd.SKU != nil {
		variant.SKU = strings.ToUpper(strings.TrimSpace(*cmd.SKU))
	}
	for _, field := range []struct {
		src *decimal.Decimal
		dst *decimal.Decimal
	}{
		{cmd.Price, &variant.Price},
		{cmd.DealerPrice, &variant.DealerPrice},
		{cmd.DistributorPrice, &variant.DistributorPrice},
		{cmd.ContractorPrice, &variant.ContractorPrice},
	} {
		if field.src != nil {
			*field.dst = domain.RoundMoney(*field.src)
		}
	}
	if cmd.Images != nil {
		variant.Images = cleanImageList(*cmd.Images)
	}
}

// RemoveVariant refuses to strip an ACTIVE product below the activation guard; deactivate it first.
func (s *catalogService) RemoveVariant(ctx context.Context, productID, variantID string) error {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" || variantID == "" {
		return fmt.Errorf("%w: product id and variant id are required", ErrCatalogInvalidInput)
	}
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return err
		}
		idx := variantIndex(product, variantID)
		if idx < 0 {
			return fmt.Errorf("%w: variant %s", ErrCatalogNotFound, variantID)
		}
		if product.Status == domain.ProductStatusActive {
			remaining := product
			remaining.Variants = append(append([]Variant(nil), product.Variants[:idx]...), product.Variants[idx+1:]...)
			if err := s.validateProduct(txCtx, remaining); err != nil {
				return err
			}
		}
		return s.products.SoftDeleteVariant(txCtx, productID, variantID, s.clock())
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.variant.removed", map[string]any{"productId": productID, "variantId": variantID})
	return nil
}

// SignImageUpload issues a signed URL for uploading one product image.
func (s *catalogService) SignImageUpload(ctx context.Context, cmd SignImageUploadCommand) (SignedUpload, error) {
	if s.uploads == nil || s.bucket == "" {
		return SignedUpload{}, ErrCatalogStorageUnavailable
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return SignedUpload{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if cmd.Size <= 0 || cmd.Size > s.maxImageSize {
		return SignedUpload{}, fmt.Errorf("%w: size must be between 1 and %d bytes", ErrCatalogInvalidInput, s.maxImageSize)
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return SignedUpload{}, s.mapRepositoryError(err)
	}

	objectPath, err := storage.BuildObjectPath(storage.PurposeProductImage, storage.PathParams{
		ProductID: productID,
		UploadID:  s.newID(),
		FileName:  cleanFileName(cmd.FileName),
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	signed, err := s.uploads.SignUpload(ctx, s.bucket, objectPath, storage.UploadOptions{
		ContentType:         cmd.ContentType,
		ContentMD5:          cmd.MD5,
		AllowedContentTypes: defaultImageContentTypes,
		Size:                cmd.Size,
		MaxSize:             s.maxImageSize,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidUpload) {
			return SignedUpload{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
		return SignedUpload{}, err
	}
	s.logger(ctx, "catalog.image.upload_signed", map[string]any{"productId": productID, "object": objectPath})
	return SignedUpload{
		URL:        signed.URL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		ObjectPath: objectPath,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}

// AddProductImage attaches an uploaded object to the product's image list.
func (s *catalogService) AddProductImage(ctx context.Context, productID, objectPath string) (Product, error) {
	productID = strings.TrimSpace(productID)
	objectPath = strings.TrimSpace(objectPath)
	if !storage.BelongsToProduct(productID, objectPath) {
		return Product{}, fmt.Errorf("%w: object does not belong to product", ErrCatalogInvalidInput)
	}
	if s.objects != nil {
		exists, err := s.objects.Exists(ctx, s.bucket, objectPath)
		if err != nil {
			return Product{}, err
		}
		if !exists {
			return Product{}, fmt.Errorf("%w: object %s has not been uploaded", ErrCatalogInvalidInput, objectPath)
		}
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	url := s.publicBaseURL + "/" + objectPath
	for _, existing := range product.Images {
		if existing == url {
			return product, nil
		}
	}
	product.Images = append(product.Images, url)
	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if cmd.Name == nil {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	now := s.clock()
	category := Category{ID: categoryIDPrefix + s.newID(), CreatedAt: now, UpdatedAt: now}
	applyCategoryPatch(&category, cmd)
	if err := s.validateCategory(ctx, category); err != nil {
		return Category{}, err
	}
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		slug, err := s.uniqueSlug(txCtx, category.Name, category.ID)
		if err != nil {
			return err
		}
		category.Slug = slug
		return s.categories.Insert(txCtx, category)
	})
	if err != nil {
		return Category{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.category.created", map[string]any{"categoryId": category.ID, "slug": category.Slug})
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	var category Category
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.categories.FindByID(txCtx, categoryID)
		if err != nil {
			return err
		}
		previousName := current.Name
		applyCategoryPatch(&current, cmd)
		current.UpdatedAt = s.clock()
		if err := s.validateCategory(txCtx, current); err != nil {
			return err
		}
		if current.Name != previousName {
			slug, err := s.uniqueSlug(txCtx, current.Name, current.ID)
			if err != nil {
				return err
			}
			current.Slug = slug
		}
		category = current
		return s.categories.Update(txCtx, current)
	})
	if err != nil {
		return Category{}, s.mapRepositoryError(err)
	}
	return category, nil
}

func applyCategoryPatch(category *Category, cmd UpsertCategoryCommand) {
	if cmd.Name != nil {
		category.Name = sanitizeText(*cmd.Name)
	}
	if cmd.Description != nil {
		category.Description = sanitizeText(*cmd.Description)
	}
	if cmd.Image != nil {
		category.Image = strings.TrimSpace(*cmd.Image)
	}
	if cmd.ParentID != nil {
		parent := strings.TrimSpace(*cmd.ParentID)
		if parent == "" {
			category.ParentID = nil
		} else {
			category.ParentID = &parent
		}
	}
	if cmd.Index != nil {
		category.Index = *cmd.Index
	}
}

// validateCategory rejects unknown parents and parent chains that would loop back to the category.
func (s *catalogService) validateCategory(ctx context.Context, category Category) error {
	if category.Name == "" {
		return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if len(category.Name) > maxCategoryNameLength {
		return fmt.Errorf("%w: name is too long", ErrCatalogInvalidInput)
	}
	if category.Index < 0 {
		return fmt.Errorf("%w: index must not be negative", ErrCatalogInvalidInput)
	}
	visited := map[string]struct{}{category.ID: {}}
	for parentID := category.ParentID; parentID != nil; {
		if _, loop := visited[*parentID]; loop {
			return fmt.Errorf("%w: category cannot be its own ancestor", ErrCatalogInvalidInput)
		}
		visited[*parentID] = struct{}{}
		parent, err := s.categories.FindByID(ctx, *parentID)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: parent category %s does not exist", ErrCatalogInvalidInput, *parentID)
			}
			return err
		}
		parentID = parent.ParentID
	}
	return nil
}

// uniqueSlug derives a slug from name, suffixing -2, -3, ... until it is free.
func (s *catalogService) uniqueSlug(ctx context.Context, name, ownID string) (string, error) {
	base := slugify(name)
	candidate := base
	for attempt := 2; attempt <= maxSlugAttempts+1; attempt++ {
		taken, err := s.categories.SlugExists(ctx, candidate, ownID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(attempt)
	}
	return "", fmt.Errorf("%w: could not derive a unique slug for %q", ErrCatalogConflict, name)
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func slugify(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "category"
	}
	return slug
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID string) (CategoryDetail, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return CategoryDetail{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return CategoryDetail{}, s.mapRepositoryError(err)
	}
	children, err := s.categories.ListChildren(ctx, categoryID)
	if err != nil {
		return CategoryDetail{}, s.mapRepositoryError(err)
	}
	return CategoryDetail{Category: category, Children: children}, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return categories, nil
}

// DeleteCategory refuses to delete a category that still has subcategories or products.
func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.categories.FindByID(txCtx, categoryID); err != nil {
			return err
		}
		children, err := s.categories.ListChildren(txCtx, categoryID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: category has subcategories", ErrCatalogConflict)
		}
		products, err := s.products.List(txCtx, repositories.ProductListFilter{
			CategoryID: categoryID,
			Pagination: domain.Pagination{PageSize: 1},
		})
		if err != nil {
			return err
		}
		if len(products.Items) > 0 {
			return fmt.Errorf("%w: category still has products", ErrCatalogConflict)
		}
		return s.categories.SoftDelete(txCtx, categoryID, s.clock())
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.category.deleted", map[string]any{"categoryId": categoryID})
	return nil
}

func cleanImageList(images []string) []string {
	out := make([]string, 0, len(images))
	seen := make(map[string]struct{}, len(images))
	for _, img := range images {
		img = strings.TrimSpace(img)
		if img == "" {
			continue
		}
		if _, dup := seen[img]; dup {
			continue
		}
		seen[img] = struct{}{}
		out = append(out, img)
	}
	return out
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCatalogInvalidInput) || errors.Is(err, ErrCatalogConflict) || errors.Is(err, ErrCatalogNotFound) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}
