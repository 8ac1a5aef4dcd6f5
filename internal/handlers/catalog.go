package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/tradeshop/api/internal/domain"
	"github.com/tradeshop/api/internal/platform/httpx"
	"github.com/tradeshop/api/internal/platform/pagination"
	"github.com/tradeshop/api/internal/services"
)

const maxCatalogBodySize = 128 * 1024

var productPageOptions = pagination.Options{DefaultPageSize: 24, MaxPageSize: 100}

// CatalogHandlers exposes the public storefront and catalog administration.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// ProductRoutes registers the public /products endpoints.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listPublicProducts)
	r.Get("/{productID}", h.getPublicProduct)
}

// CategoryRoutes registers the public /categories endpoints.
func (h *CatalogHandlers) CategoryRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
	r.Get("/{categoryID}", h.getCategory)
}

// AdminRoutes registers catalog administration under /admin. Callers apply authentication.
func (h *CatalogHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/products", func(pr chi.Router) {
		pr.Get("/", h.listAdminProducts)
		pr.Post("/", h.createProduct)
		pr.Get("/{productID}", h.getAdminProduct)
		pr.Patch("/{productID}", h.updateProduct)
		pr.Delete("/{productID}", h.deleteProduct)
		pr.Post("/{productID}/variants", h.addVariant)
		pr.Patch("/{productID}/variants/{variantID}", h.updateVariant)
		pr.Delete("/{productID}/variants/{variantID}", h.removeVariant)
		pr.Post("/{productID}/images:signed-upload", h.signImageUpload)
		pr.Post("/{productID}/images", h.addProductImage)
	})
	r.Route("/categories", func(cr chi.Router) {
		cr.Post("/", h.createCategory)
		cr.Patch("/{categoryID}", h.updateCategory)
		cr.Delete("/{categoryID}", h.deleteCategory)
	})
}

func (h *CatalogHandlers) listPublicProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, false)
}

func (h *CatalogHandlers) listAdminProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, true)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request, admin bool) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	params, ok := parsePage(w, r, productPageOptions)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := services.ProductListFilter{
		CategoryID: strings.TrimSpace(query.Get("category_id")),
		Search:     strings.TrimSpace(query.Get("q")),
		Public:     !admin,
		Pagination: toPagination(params),
	}
	if admin {
		if raw := strings.TrimSpace(query.Get("status")); raw != "" {
			status, err := parseProductStatus(raw)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
				return
			}
			filter.Status = &status
		}
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	items := make([]productPayload, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, buildProductPayload(p, admin))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *CatalogHandlers) getPublicProduct(w http.ResponseWriter, r *http.Request) {
	h.getProduct(w, r, false)
}

func (h *CatalogHandlers) getAdminProduct(w http.ResponseWriter, r *http.Request) {
	h.getProduct(w, r, true)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request, admin bool) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"), admin)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product, admin)})
}

type variantRequest struct {
	Name             string          `json:"name"`
	SKU              string          `json:"sku"`
	Price            decimal.Decimal `json:"price"`
	DealerPrice      decimal.Decimal `json:"dealer_price"`
	DistributorPrice decimal.Decimal `json:"distributor_price"`
	ContractorPrice  decimal.Decimal `json:"contractor_price"`
	Images           []string        `json:"images"`
}

func (v variantRequest) toInput() services.VariantInput {
	return services.VariantInput{
		Name:             v.Name,
		SKU:              v.SKU,
		Price:            v.Price,
		DealerPrice:      v.DealerPrice,
		DistributorPrice: v.DistributorPrice,
		ContractorPrice:  v.ContractorPrice,
		Images:           v.Images,
	}
}

type productRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Status       *string          `json:"status"`
	BasePrice    *decimal.Decimal `json:"base_price"`
	ShippingCost *decimal.Decimal `json:"shipping_cost"`
	CaseSize     *int             `json:"case_size"`
	CategoryID   *string          `json:"category_id"`
	Images       *[]string        `json:"images"`
	Variants     []variantRequest `json:"variants"`
}

func (req productRequest) toCommand(productID string) (services.UpsertProductCommand, error) {
	cmd := services.UpsertProductCommand{
		ProductID:    productID,
		Name:         req.Name,
		Description:  req.Description,
		BasePrice:    req.BasePrice,
		ShippingCost: req.ShippingCost,
		CaseSize:     req.CaseSize,
		CategoryID:   req.CategoryID,
		Images:       req.Images,
	}
	if req.Status != nil {
		status, err := parseProductStatus(*req.Status)
		if err != nil {
			return services.UpsertProductCommand{}, err
		}
		cmd.Status = &status
	}
	for _, v := range req.Variants {
		cmd.Variants = append(cmd.Variants, v.toInput())
	}
	return cmd, nil
}

func (h *CatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.upsertProduct(w, r, "")
}

func (h *CatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	h.upsertProduct(w, r, productID)
}

func (h *CatalogHandlers) upsertProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req productRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req, false) {
		return
	}
	cmd, err := req.toCommand(productID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var (
		product services.Product
		status  = http.StatusOK
	)
	if productID == "" {
		product, err = h.catalog.CreateProduct(ctx, cmd)
		status = http.StatusCreated
	} else {
		product, err = h.catalog.UpdateProduct(ctx, cmd)
	}
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, productResponse{Product: buildProductPayload(product, true)})
}

func (h *CatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) addVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req variantRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req, false) {
		return
	}
	variant, err := h.catalog.AddVariant(ctx, services.AddVariantCommand{
		ProductID: chi.URLParam(r, "productID"),
		Variant:   req.toInput(),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, variantResponse{Variant: buildVariantPayload(variant, true)})
}

type variantPatchRequest struct {
	Name             *string          `json:"name"`
	SKU              *string          `json:"sku"`
	Price            *decimal.Decimal `json:"price"`
	DealerPrice      *decimal.Decimal `json:"dealer_price"`
	DistributorPrice *decimal.Decimal `json:"distributor_price"`
	ContractorPrice  *decimal.Decimal `json:"contractor_price"`
	Images           *[]string        `json:"images"`
}

func (h *CatalogHandlers) updateVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req variantPatchRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req, false) {
		return
	}
	variant, err := h.catalog.UpdateVariant(ctx, services.UpdateVariantCommand{
		ProductID:        chi.URLParam(r, "productID"),
		VariantID:        chi.URLParam(r, "variantID"),
		Name:             req.Name,
		SKU:              req.SKU,
		Price:            req.Price,
		DealerPrice:      req.DealerPrice,
		DistributorPrice: req.DistributorPrice,
		ContractorPrice:  req.ContractorPrice,
		Images:           req.Images,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, variantResponse{Variant: buildVariantPayload(variant, true)})
}

func (h *CatalogHandlers) removeVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.RemoveVariant(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "variantID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	MD5         string `json:"md5"`
}

type signedUploadResponse struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ObjectPath string            `json:"object_path"`
	ExpiresAt  string            `json:"expires_at"`
}

func (h *CatalogHandlers) signImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req signUploadRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req, false) {
		return
	}
	upload, err := h.catalog.SignImageUpload(ctx, services.SignImageUploadCommand{
		ProductID:   chi.URLParam(r, "productID"),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        req.Size,
		MD5:         req.MD5,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, signedUploadResponse{
		URL:        upload.URL,
		Method:     upload.Method,
		Headers:    upload.Headers,
		ObjectPath: upload.ObjectPath,
		ExpiresAt:  formatTime(upload.ExpiresAt),
	})
}

type addImageRequest struct {
	ObjectPath string `json:"object_path"`
}

func (h *CatalogHandlers) addProductImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req addImageRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req, false) {
		return
	}
	product, err := h.catalog.AddProductImage(ctx, chi.URLParam(r, "productID"), req.ObjectPath)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product, true)})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	items := make([]categoryPayload, 0, len(categories))
	for _, c := range categories {
		items = append(items, buildCategoryPayload(c))
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{Items: items})
}

func (h *CatalogHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	detail, err := h.catalog.GetCategory(ctx, chi.URLParam(r, "categoryID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	resp := categoryDetailResponse{
		Category: buildCategoryPayload(detail.Category),
		Children: make([]categoryPayload, 0, len(detail.Children)),
	}
	for _, child := range detail.Children {
		resp.Children = append(resp.Children, buildCategoryPayload(child))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type categoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	ParentID    *string `json:"parent_id"`
	Index       *int    `json:"index"`
}

func (h *CatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	h.upsertCategory(w, r, "")
}

func (h *CatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := strings.TrimSpace(chi.URLParam(r, "categoryID"))
	if categoryID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "category id is required", http.StatusBadRequest))
		return
	}
	h.upsertCategory(w, r, categoryID)
}

func (h *CatalogHandlers) upsertCategory(w http.ResponseWriter, r *http.Request, categoryID string) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req categoryRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req, false) {
		return
	}
	cmd := services.UpsertCategoryCommand{
		CategoryID:  categoryID,
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		ParentID:    req.ParentID,
		Index:       req.Index,
	}

	var (
		category services.Category
		err      error
		status   = http.StatusOK
	)
	if categoryID == "" {
		category, err = h.catalog.CreateCategory(ctx, cmd)
		status = http.StatusCreated
	} else {
		category, err = h.catalog.UpdateCategory(ctx, cmd)
	}
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *CatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Status       string           `json:"status"`
	BasePrice    string           `json:"base_price"`
	ShippingCost string           `json:"shipping_cost"`
	CaseSize     *int             `json:"case_size,omitempty"`
	CategoryID   string           `json:"category_id,omitempty"`
	Images       []string         `json:"images"`
	Variants     []variantPayload `json:"variants"`
	CreatedAt    string           `json:"created_at,omitempty"`
	UpdatedAt    string           `json:"updated_at,omitempty"`
}

type variantResponse struct {
	Variant variantPayload `json:"variant"`
}

type variantPayload struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	SKU              string   `json:"sku,omitempty"`
	Price            string   `json:"price"`
	DealerPrice      string   `json:"dealer_price,omitempty"`
	DistributorPrice string   `json:"distributor_price,omitempty"`
	ContractorPrice  string   `json:"contractor_price,omitempty"`
	Images           []string `json:"images"`
}

// buildProductPayload exposes trade price tiers to admins only.
func buildProductPayload(p services.Product, admin bool) productPayload {
	payload := productPayload{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Status:       string(p.Status),
		BasePrice:    formatMoney(p.BasePrice),
		ShippingCost: formatMoney(p.ShippingCost),
		CaseSize:     p.CaseSize,
		CategoryID:   p.CategoryID,
		Images:       cloneStrings(p.Images),
		Variants:     make([]variantPayload, 0, len(p.Variants)),
	}
	if admin {
		payload.CreatedAt = formatTime(p.CreatedAt)
		payload.UpdatedAt = formatTime(p.UpdatedAt)
	}
	for _, v := range p.Variants {
		payload.Variants = append(payload.Variants, buildVariantPayload(v, admin))
	}
	return payload
}

func buildVariantPayload(v services.Variant, admin bool) variantPayload {
	payload := variantPayload{
		ID:     v.ID,
		Name:   v.Name,
		SKU:    v.SKU,
		Price:  formatMoney(v.Price),
		Images: cloneStrings(v.Images),
	}
	if admin {
		payload.DealerPrice = formatMoney(v.DealerPrice)
		payload.DistributorPrice = formatMoney(v.DistributorPrice)
		payload.ContractorPrice = formatMoney(v.ContractorPrice)
	}
	return payload
}

type categoryListResponse struct {
	Items []categoryPayload `json:"items"`
}

type categoryResponse struct {
	Category categoryPayload `json:"category"`
}

type categoryDetailResponse struct {
	Category categoryPayload   `json:"category"`
	Children []categoryPayload `json:"children"`
}

type categoryPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	Index       int    `json:"index"`
}

func buildCategoryPayload(c services.Category) categoryPayload {
	payload := categoryPayload{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Image:       c.Image,
		Index:       c.Index,
	}
	if c.ParentID != nil {
		payload.ParentID = *c.ParentID
	}
	return payload
}

func parseProductStatus(raw string) (domain.ProductStatus, error) {
	status := domain.ProductStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case domain.ProductStatusDraft, domain.ProductStatusActive, domain.ProductStatusInactive:
		return status, nil
	}
	return "", fmt.Errorf("unknown product status %q", raw)
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogStorageUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "image storage unavailable", http.StatusServiceUnavailable))
	default:
		writeFallbackError(ctx, w, "catalog_error", err)
	}
}
