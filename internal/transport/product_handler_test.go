package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-service/internal/domain"
	"catalog-service/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newProductRouter(stub *stubCatalog) chi.Router {
	router := chi.NewRouter()
	NewProductHandler(stub, zap.NewNop()).RegisterRoutes(router)
	return router
}

func sampleProduct(name, price string) *domain.Product {
	now := time.Now().UTC()
	return &domain.Product{
		ID:         uuid.New(),
		Name:       name,
		CategoryID: uuid.New(),
		Price:      decimal.RequireFromString(price),
		Attributes: map[string]any{"color": "blue"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestProductCreate(t *testing.T) {
	categoryID := uuid.New()
	var gotInput service.CreateProductInput
	stub := &stubCatalog{
		createProduct: func(ctx context.Context, input service.CreateProductInput) (*domain.Product, error) {
			gotInput = input
			return sampleProduct(input.Name, "999.00"), nil
		},
	}
	router := newProductRouter(stub)

	body := bytes.NewBufferString(`{
		"name": "iPhone 15",
		"description": "Blue, 128GB",
		"category_id": "` + categoryID.String() + `",
		"price": "999.00",
		"attributes": {"color": "blue", "storage_gb": 128}
	}`)
	req := httptest.NewRequest("POST", "/api/products", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", w.Code, w.Body.String())
	}
	if gotInput.CategoryID != categoryID {
		t.Errorf("category_id = %s", gotInput.CategoryID)
	}
	if !gotInput.Price.Equal(decimal.RequireFromString("999.00")) {
		t.Errorf("price = %s", gotInput.Price)
	}
	if gotInput.Attributes["color"] != "blue" {
		t.Errorf("attributes = %v", gotInput.Attributes)
	}

	var resp ProductResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Price != "999.00" {
		t.Errorf("rendered price = %q, want fixed two decimals", resp.Price)
	}
}

func TestProductCreateAcceptsNumericPrice(t *testing.T) {
	categoryID := uuid.New()
	var gotPrice decimal.Decimal
	stub := &stubCatalog{
		createProduct: func(ctx context.Context, input service.CreateProductInput) (*domain.Product, error) {
			gotPrice = input.Price
			return sampleProduct(input.Name, "19.99"), nil
		},
	}
	router := newProductRouter(stub)

	body := bytes.NewBufferString(`{"name":"Case","category_id":"` + categoryID.String() + `","price":19.99}`)
	req := httptest.NewRequest("POST", "/api/products", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", w.Code, w.Body.String())
	}
	if !gotPrice.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("price = %s, want 19.99", gotPrice)
	}
}

func TestProductCreateValidation(t *testing.T) {
	router := newProductRouter(&stubCatalog{})

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"category_id":"` + uuid.NewString() + `","price":"1.00"}`},
		{"missing category", `{"name":"Case","price":"1.00"}`},
		{"malformed category", `{"name":"Case","category_id":"nope","price":"1.00"}`},
		{"malformed body", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/products", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestProductListQueryParsing(t *testing.T) {
	categoryID := uuid.New()
	var gotQuery service.ProductQuery
	stub := &stubCatalog{
		listProducts: func(ctx context.Context, query service.ProductQuery) (*service.ProductPage, error) {
			gotQuery = query
			return &service.ProductPage{Items: []*domain.Product{}, Offset: query.Page.Offset, Limit: query.Page.Limit}, nil
		},
	}
	router := newProductRouter(stub)

	url := "/api/products?category_id=" + categoryID.String() +
		"&include_descendants=true&min_price=10.00&max_price=99.95&limit=25&offset=50"
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	if gotQuery.Filter.CategoryID == nil || *gotQuery.Filter.CategoryID != categoryID {
		t.Errorf("category_id = %v", gotQuery.Filter.CategoryID)
	}
	if !gotQuery.Filter.IncludeDescendants {
		t.Error("include_descendants not forwarded")
	}
	if gotQuery.Filter.MinPrice == nil || !gotQuery.Filter.MinPrice.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("min_price = %v", gotQuery.Filter.MinPrice)
	}
	if gotQuery.Filter.MaxPrice == nil || !gotQuery.Filter.MaxPrice.Equal(decimal.RequireFromString("99.95")) {
		t.Errorf("max_price = %v", gotQuery.Filter.MaxPrice)
	}
	if gotQuery.Page.Limit != 25 || gotQuery.Page.Offset != 50 {
		t.Errorf("page = %+v", gotQuery.Page)
	}
}

func TestProductListDefaultsAndBadParams(t *testing.T) {
	var gotQuery service.ProductQuery
	stub := &stubCatalog{
		listProducts: func(ctx context.Context, query service.ProductQuery) (*service.ProductPage, error) {
			gotQuery = query
			return &service.ProductPage{Items: []*domain.Product{}}, nil
		},
	}
	router := newProductRouter(stub)

	req := httptest.NewRequest("GET", "/api/products", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if gotQuery.Page.Limit != domain.DefaultPageLimit || gotQuery.Page.Offset != 0 {
		t.Errorf("default page = %+v", gotQuery.Page)
	}

	for _, url := range []string{
		"/api/products?limit=abc",
		"/api/products?offset=abc",
		"/api/products?category_id=nope",
		"/api/products?include_descendants=perhaps",
		"/api/products?min_price=cheap",
	} {
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, w.Code)
		}
	}
}

func TestProductListExplicitZeroLimitForwarded(t *testing.T) {
	var gotQuery service.ProductQuery
	stub := &stubCatalog{
		listProducts: func(ctx context.Context, query service.ProductQuery) (*service.ProductPage, error) {
			gotQuery = query
			return nil, domain.NewValidation("limit", "must be between 1 and 100")
		},
	}
	router := newProductRouter(stub)

	// limit=0 is an explicit out-of-range value, not an absent parameter:
	// it must reach the service untouched and come back as 400.
	req := httptest.NewRequest("GET", "/api/products?limit=0", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if gotQuery.Page == nil || gotQuery.Page.Limit != 0 {
		t.Errorf("page = %+v, want explicit limit 0", gotQuery.Page)
	}
}

func TestProductSearchForwardsQuery(t *testing.T) {
	var gotText string
	stub := &stubCatalog{
		searchProducts: func(ctx context.Context, text string, query service.ProductQuery) (*service.ProductPage, error) {
			gotText = text
			return &service.ProductPage{
				Items:      []*domain.Product{sampleProduct("iPhone 15", "999.00")},
				TotalCount: 1,
				Limit:      query.Page.Limit,
			}, nil
		},
	}
	router := newProductRouter(stub)

	req := httptest.NewRequest("GET", "/api/products/search?q=iPhone+Blue", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotText != "iPhone Blue" {
		t.Errorf("q = %q", gotText)
	}

	var resp ProductListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.TotalCount != 1 || len(resp.Items) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestProductUpdateForwardsPartialFields(t *testing.T) {
	id := uuid.New()
	var gotInput service.UpdateProductInput
	stub := &stubCatalog{
		updateProduct: func(ctx context.Context, id uuid.UUID, input service.UpdateProductInput) (*domain.Product, error) {
			gotInput = input
			return sampleProduct("iPhone 15", "899.00"), nil
		},
	}
	router := newProductRouter(stub)

	body := bytes.NewBufferString(`{"price":"899.00"}`)
	req := httptest.NewRequest("PUT", "/api/products/"+id.String(), body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	if gotInput.Name != nil || gotInput.Description != nil || gotInput.CategoryID != nil {
		t.Errorf("unexpected fields set: %+v", gotInput)
	}
	if gotInput.Price == nil || !gotInput.Price.Equal(decimal.RequireFromString("899.00")) {
		t.Errorf("price = %v", gotInput.Price)
	}
}

func TestProductDelete(t *testing.T) {
	id := uuid.New()
	stub := &stubCatalog{
		deleteProduct: func(ctx context.Context, got uuid.UUID) error {
			if got != id {
				t.Errorf("id = %s, want %s", got, id)
			}
			return nil
		},
	}
	router := newProductRouter(stub)

	req := httptest.NewRequest("DELETE", "/api/products/"+id.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	// A repeat delete surfaces the service's not-found as 404.
	stub.deleteProduct = func(ctx context.Context, got uuid.UUID) error {
		return domain.NewNotFound("product", got.String())
	}
	req = httptest.NewRequest("DELETE", "/api/products/"+id.String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestProductGet(t *testing.T) {
	product := sampleProduct("iPhone 15", "999.00")
	stub := &stubCatalog{
		getProduct: func(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
			return product, nil
		},
	}
	router := newProductRouter(stub)

	req := httptest.NewRequest("GET", "/api/products/"+product.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp ProductResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.ID != product.ID.String() || resp.Price != "999.00" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Attributes["color"] != "blue" {
		t.Errorf("attributes = %v", resp.Attributes)
	}
}
