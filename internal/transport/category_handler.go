package transport

import (
	"net/http"
	"strconv"
	"time"

	"catalog-service/internal/middleware"
	"catalog-service/internal/service"

	"catalog-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateCategoryRequest represents the category creation payload.
type CreateCategoryRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id" validate:"omitempty,uuid"`
}

// UpdateCategoryRequest represents a partial category update. Omitted
// fields are left unchanged; reparent_to_root moves the category to the
// root level.
type UpdateCategoryRequest struct {
	Name           *string `json:"name" validate:"omitempty,min=1"`
	Description    *string `json:"description"`
	ParentID       *string `json:"parent_id" validate:"omitempty,uuid"`
	ReparentToRoot bool    `json:"reparent_to_root"`
}

// CategoryResponse represents a category in API responses.
type CategoryResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	Path        string  `json:"path"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// CategoryWithChildrenResponse pairs a category with its direct children.
type CategoryWithChildrenResponse struct {
	CategoryResponse
	Children []CategoryResponse `json:"children"`
}

func toCategoryResponse(category *domain.Category) CategoryResponse {
	resp := CategoryResponse{
		ID:          category.ID.String(),
		Name:        category.Name,
		Description: category.Description,
		Path:        category.Path,
		CreatedAt:   category.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   category.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if category.ParentID != nil {
		parentID := category.ParentID.String()
		resp.ParentID = &parentID
	}
	return resp
}

func toCategoryResponses(categories []*domain.Category) []CategoryResponse {
	responses := make([]CategoryResponse, 0, len(categories))
	for _, category := range categories {
		responses = append(responses, toCategoryResponse(category))
	}
	return responses
}

// CategoryHandler handles HTTP requests for category operations.
type CategoryHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(catalog service.CatalogService, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers all category routes.
func (h *CategoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/categories", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/children", h.GetWithChildren)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// Create handles category creation.
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Category creation validation failed", zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.CreateCategoryInput{
		Name:        req.Name,
		Description: req.Description,
	}
	if req.ParentID != nil {
		parentID, err := uuid.Parse(*req.ParentID)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid parent_id")
			return
		}
		input.ParentID = &parentID
	}

	category, err := h.catalog.CreateCategory(r.Context(), input)
	if err != nil {
		h.logger.Debug("Category creation failed", zap.Error(err))
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Category created",
		zap.String("category_id", category.ID.String()),
		zap.String("path", category.Path),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, toCategoryResponse(category))
}

// List handles category listing. Without parent_id it returns root
// categories; with parent_id it returns that category's direct children.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	var parentID *uuid.UUID
	if raw := r.URL.Query().Get("parent_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid parent_id")
			return
		}
		parentID = &id
	}

	categories, err := h.catalog.ListCategories(r.Context(), parentID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toCategoryResponses(categories))
}

// Get handles fetching a single category.
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	category, err := h.catalog.GetCategory(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toCategoryResponse(category))
}

// GetWithChildren handles fetching a category with its direct children.
func (h *CategoryHandler) GetWithChildren(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	result, err := h.catalog.GetCategoryWithChildren(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	response := CategoryWithChildrenResponse{
		CategoryResponse: toCategoryResponse(result.Category),
		Children:         toCategoryResponses(result.Children),
	}
	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// Update handles partial category updates, including reparenting.
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	var req UpdateCategoryRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Category update validation failed", zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.UpdateCategoryInput{
		Name:           req.Name,
		Description:    req.Description,
		ReparentToRoot: req.ReparentToRoot,
	}
	if req.ParentID != nil {
		parentID, err := uuid.Parse(*req.ParentID)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid parent_id")
			return
		}
		input.ParentID = &parentID
	}

	category, err := h.catalog.UpdateCategory(r.Context(), id, input)
	if err != nil {
		h.logger.Debug("Category update failed", zap.Error(err))
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Category updated",
		zap.String("category_id", category.ID.String()),
		zap.String("path", category.Path),
	)
	middleware.RespondWithJSON(w, http.StatusOK, toCategoryResponse(category))
}

// Delete handles category deletion. Pass cascade=true to delete the whole
// subtree; referencing products block deletion either way.
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	cascade := false
	if raw := r.URL.Query().Get("cascade"); raw != "" {
		cascade, err = strconv.ParseBool(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid cascade flag")
			return
		}
	}

	if err := h.catalog.DeleteCategory(r.Context(), id, cascade); err != nil {
		h.logger.Debug("Category deletion failed", zap.Error(err))
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Category deleted", zap.String("category_id", id.String()), zap.Bool("cascade", cascade))
	w.WriteHeader(http.StatusNoContent)
}
