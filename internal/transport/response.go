package transport

import (
	"net/http"
	"strconv"

	"catalog-service/internal/domain"
	"catalog-service/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// respondServiceError maps the catalog error taxonomy onto HTTP statuses:
// NotFound → 404, Validation → 400, Conflict → 409, anything else → 500.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case domain.IsNotFound(err):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case domain.IsValidation(err):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case domain.IsConflict(err):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("Unexpected catalog error", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseIDParam parses the {id} chi URL parameter as a UUID.
func parseIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.NewValidation("id", "must be a valid UUID")
	}
	return id, nil
}

// parsePage reads limit/offset query parameters, defaulting each absent
// parameter individually so an explicit limit=0 is kept and rejected by
// the service via Page.Validate rather than silently becoming the default.
func parsePage(r *http.Request) (domain.Page, error) {
	page := domain.DefaultPage()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Page{}, domain.NewValidation("limit", "must be an integer")
		}
		page.Limit = limit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Page{}, domain.NewValidation("offset", "must be an integer")
		}
		page.Offset = offset
	}

	return page, nil
}

// parseProductFilter reads the shared product filter query parameters:
// category_id, include_descendants, min_price, max_price.
func parseProductFilter(r *http.Request) (domain.ProductFilter, error) {
	filter := domain.ProductFilter{}
	query := r.URL.Query()

	if raw := query.Get("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, domain.NewValidation("category_id", "must be a valid UUID")
		}
		filter.CategoryID = &id
	}

	if raw := query.Get("include_descendants"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, domain.NewValidation("include_descendants", "must be a boolean")
		}
		filter.IncludeDescendants = include
	}

	if raw := query.Get("min_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, domain.NewValidation("min_price", "must be a decimal number")
		}
		filter.MinPrice = &price
	}

	if raw := query.Get("max_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, domain.NewValidation("max_price", "must be a decimal number")
		}
		filter.MaxPrice = &price
	}

	return filter, nil
}
