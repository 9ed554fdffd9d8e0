package transport

import (
	"net/http"
	"time"

	"catalog-service/internal/domain"
	"catalog-service/internal/middleware"
	"catalog-service/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateProductRequest represents the product creation payload. Price
// accepts either a JSON number or a numeric string; it is parsed as a
// fixed-point decimal.
type CreateProductRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	CategoryID  string          `json:"category_id" validate:"required,uuid"`
	Price       decimal.Decimal `json:"price"`
	Attributes  map[string]any  `json:"attributes"`
}

// UpdateProductRequest represents a partial product update. Omitted fields
// are left unchanged; a present attributes object replaces the stored one.
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1"`
	Description *string          `json:"description"`
	CategoryID  *string          `json:"category_id" validate:"omitempty,uuid"`
	Price       *decimal.Decimal `json:"price"`
	Attributes  map[string]any   `json:"attributes"`
}

// ProductResponse represents a product in API responses.
type ProductResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CategoryID  string         `json:"category_id"`
	Price       string         `json:"price"`
	Attributes  map[string]any `json:"attributes"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// ProductListResponse is one page of products plus the pagination window
// and the total size of the filtered set.
type ProductListResponse struct {
	Items      []ProductResponse `json:"items"`
	TotalCount int               `json:"total_count"`
	Offset     int               `json:"offset"`
	Limit      int               `json:"limit"`
}

func toProductResponse(product *domain.Product) ProductResponse {
	return ProductResponse{
		ID:          product.ID.String(),
		Name:        product.Name,
		Description: product.Description,
		CategoryID:  product.CategoryID.String(),
		Price:       product.Price.StringFixed(2),
		Attributes:  product.Attributes,
		CreatedAt:   product.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   product.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toProductListResponse(page *service.ProductPage) ProductListResponse {
	items := make([]ProductResponse, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, toProductResponse(product))
	}
	return ProductListResponse{
		Items:      items,
		TotalCount: page.TotalCount,
		Offset:     page.Offset,
		Limit:      page.Limit,
	}
}

// ProductHandler handles HTTP requests for product operations.
type ProductHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(catalog service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers all product routes.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/search", h.Search)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// Create handles product creation.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product creation validation failed", zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category_id")
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), service.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  categoryID,
		Price:       req.Price,
		Attributes:  req.Attributes,
	})
	if err != nil {
		h.logger.Debug("Product creation failed", zap.Error(err))
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("category_id", product.CategoryID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, toProductResponse(product))
}

// Get handles fetching a single product.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProductResponse(product))
}

// Update handles partial product updates.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	var req UpdateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product update validation failed", zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.UpdateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Attributes:  req.Attributes,
	}
	if req.CategoryID != nil {
		categoryID, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		input.CategoryID = &categoryID
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, input)
	if err != nil {
		h.logger.Debug("Product update failed", zap.Error(err))
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Product updated", zap.String("product_id", product.ID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, toProductResponse(product))
}

// Delete handles product deletion.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		h.logger.Debug("Product deletion failed", zap.Error(err))
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Product deleted", zap.String("product_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// List handles filtered product listing with pagination.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := h.parseQuery(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	page, err := h.catalog.ListProducts(r.Context(), query)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProductListResponse(page))
}

// Search handles ranked product search with the same filters as List. The
// q parameter carries the free-text query.
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	query, err := h.parseQuery(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	page, err := h.catalog.SearchProducts(r.Context(), r.URL.Query().Get("q"), query)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProductListResponse(page))
}

func (h *ProductHandler) parseQuery(r *http.Request) (service.ProductQuery, error) {
	page, err := parsePage(r)
	if err != nil {
		return service.ProductQuery{}, err
	}

	filter, err := parseProductFilter(r)
	if err != nil {
		return service.ProductQuery{}, err
	}

	return service.ProductQuery{Filter: filter, Page: &page}, nil
}
