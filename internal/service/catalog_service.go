package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"catalog-service/internal/domain"
	"catalog-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateCategoryInput carries the fields for a new category.
type CreateCategoryInput struct {
	Name        string
	Description string
	ParentID    *uuid.UUID
}

// UpdateCategoryInput carries a partial category update. Nil fields are
// left unchanged. Setting ParentID moves the category under that parent;
// ReparentToRoot moves it to the root level instead.
type UpdateCategoryInput struct {
	Name           *string
	Description    *string
	ParentID       *uuid.UUID
	ReparentToRoot bool
}

// CreateProductInput carries the fields for a new product.
type CreateProductInput struct {
	Name        string
	Description string
	CategoryID  uuid.UUID
	Price       decimal.Decimal
	Attributes  map[string]any
}

// UpdateProductInput carries a partial product update. Nil fields are left
// unchanged; a non-nil Attributes map replaces the stored attributes.
type UpdateProductInput struct {
	Name        *string
	Description *string
	CategoryID  *uuid.UUID
	Price       *decimal.Decimal
	Attributes  map[string]any
}

// ProductQuery combines the shared product filter with pagination. A nil
// Page means the caller did not paginate and gets the default window; an
// explicit Page is validated as given.
type ProductQuery struct {
	Filter domain.ProductFilter
	Page   *domain.Page
}

// ProductPage is one window of a filtered product set. TotalCount always
// reflects the unpaginated set so callers can compute total pages.
type ProductPage struct {
	Items      []*domain.Product
	TotalCount int
	Offset     int
	Limit      int
}

// CategoryWithChildren pairs a category with its direct children in name
// order.
type CategoryWithChildren struct {
	Category *domain.Category
	Children []*domain.Category
}

// CatalogService is the facade the API layer calls. It composes the
// category and product stores with the search engine, owns transaction
// boundaries for multi-row operations, and enforces the cross-entity
// invariants neither store can enforce alone.
type CatalogService interface {
	CreateCategory(ctx context.Context, input CreateCategoryInput) (*domain.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	GetCategoryWithChildren(ctx context.Context, id uuid.UUID) (*CategoryWithChildren, error)
	ListCategories(ctx context.Context, parentID *uuid.UUID) ([]*domain.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID, cascade bool) error

	CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListProducts(ctx context.Context, query ProductQuery) (*ProductPage, error)
	SearchProducts(ctx context.Context, text string, query ProductQuery) (*ProductPage, error)
}

type catalogService struct {
	tx         repository.TxRunner
	categories repository.CategoryRepository
	products   repository.ProductRepository
	search     repository.ProductSearcher
}

// NewCatalogService creates a new instance of CatalogService.
func NewCatalogService(
	tx repository.TxRunner,
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	search repository.ProductSearcher,
) CatalogService {
	return &catalogService{
		tx:         tx,
		categories: categories,
		products:   products,
		search:     search,
	}
}

// validateCategoryName rejects blank names and names containing the path
// separator. Allowing "/" would make a single name span two materialized
// path segments and break every prefix-based subtree query.
func validateCategoryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewValidation("name", "must not be empty")
	}
	if strings.Contains(name, "/") {
		return domain.NewValidation("name", "must not contain '/'")
	}
	return nil
}

// CreateCategory creates a category, computing its materialized path from
// the parent's path.
func (s *catalogService) CreateCategory(ctx context.Context, input CreateCategoryInput) (*domain.Category, error) {
	if err := validateCategoryName(input.Name); err != nil {
		return nil, err
	}

	var created *domain.Category
	err := s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		repo := s.categories.WithTx(tx)

		parentPath := ""
		if input.ParentID != nil {
			// Row-locked so a concurrent reparent of the parent cannot
			// commit a different path after we read it.
			parent, err := repo.FindByIDForUpdate(ctx, *input.ParentID)
			if err != nil {
				return err
			}
			parentPath = parent.Path
		}

		exists, err := repo.SiblingExists(ctx, input.ParentID, input.Name, uuid.Nil)
		if err != nil {
			return err
		}
		if exists {
			return domain.NewConflict("category", fmt.Sprintf("name %q already exists under the same parent", input.Name))
		}

		now := time.Now().UTC()
		category := &domain.Category{
			ID:          uuid.New(),
			Name:        input.Name,
			Description: input.Description,
			ParentID:    input.ParentID,
			Path:        domain.ChildPath(parentPath, input.Name),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := repo.Insert(ctx, category); err != nil {
			return err
		}

		created = category
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetCategory retrieves a category by ID.
func (s *catalogService) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return s.categories.FindByID(ctx, id)
}

// GetCategoryWithChildren retrieves a category along with its direct
// children ordered by name.
func (s *catalogService) GetCategoryWithChildren(ctx context.Context, id uuid.UUID) (*CategoryWithChildren, error) {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	children, err := s.categories.ListChildren(ctx, id)
	if err != nil {
		return nil, err
	}

	return &CategoryWithChildren{Category: category, Children: children}, nil
}

// ListCategories lists root categories when parentID is nil, otherwise the
// direct children of parentID. Ordering is by name ascending.
func (s *catalogService) ListCategories(ctx context.Context, parentID *uuid.UUID) ([]*domain.Category, error) {
	if parentID == nil {
		return s.categories.ListRoots(ctx)
	}

	if _, err := s.categories.FindByID(ctx, *parentID); err != nil {
		return nil, err
	}
	return s.categories.ListChildren(ctx, *parentID)
}

// UpdateCategory applies a partial update. A name or parent change
// recomputes the materialized path of the category and every descendant,
// depth-first, inside one transaction with the subtree locked.
func (s *catalogService) UpdateCategory(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*domain.Category, error) {
	if input.Name != nil {
		if err := validateCategoryName(*input.Name); err != nil {
			return nil, err
		}
	}

	var updated *domain.Category
	err := s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		repo := s.categories.WithTx(tx)

		category, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		oldPath := category.Path

		// Serialize against concurrent reparents of an overlapping subtree.
		if err := repo.LockSubtree(ctx, oldPath); err != nil {
			return err
		}

		if input.Name != nil {
			category.Name = *input.Name
		}
		if input.Description != nil {
			category.Description = *input.Description
		}

		// The parent path always comes from the parent row itself, never
		// from slicing the category's own path string.
		parentPath := ""
		switch {
		case input.ParentID != nil:
			if *input.ParentID == id {
				return domain.NewConflict("category", "cannot be its own parent")
			}
			// Row-locked so the new parent cannot be reparented under us
			// (or anywhere else) between this read and our path write.
			parent, err := repo.FindByIDForUpdate(ctx, *input.ParentID)
			if err != nil {
				return err
			}
			if parent.Path == oldPath || strings.HasPrefix(parent.Path, oldPath+"/") {
				return domain.NewConflict("category", "cannot be moved under its own descendant")
			}
			category.ParentID = input.ParentID
			parentPath = parent.Path
		case input.ReparentToRoot:
			category.ParentID = nil
		default:
			if category.ParentID != nil {
				parent, err := repo.FindByID(ctx, *category.ParentID)
				if err != nil {
					return err
				}
				parentPath = parent.Path
			}
		}

		exists, err := repo.SiblingExists(ctx, category.ParentID, category.Name, category.ID)
		if err != nil {
			return err
		}
		if exists {
			return domain.NewConflict("category", fmt.Sprintf("name %q already exists under the same parent", category.Name))
		}

		category.Path = domain.ChildPath(parentPath, category.Name)
		category.UpdatedAt = time.Now().UTC()

		if err := repo.Update(ctx, category); err != nil {
			return err
		}

		if category.Path != oldPath {
			if err := rebuildDescendantPaths(ctx, repo, category, oldPath); err != nil {
				return err
			}
		}

		updated = category
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// rebuildDescendantPaths recomputes the materialized path of every
// descendant of root as a pure function of the ancestor chain, walking
// depth-first from the moved node. The root row has already been rewritten
// with its new path, so the subtree query under oldPath matches only
// descendants.
func rebuildDescendantPaths(ctx context.Context, repo repository.CategoryRepository, root *domain.Category, oldPath string) error {
	descendants, err := repo.ListSubtree(ctx, oldPath)
	if err != nil {
		return err
	}

	byParent := make(map[uuid.UUID][]*domain.Category, len(descendants))
	for _, c := range descendants {
		if c.ID == root.ID || c.ParentID == nil {
			continue
		}
		byParent[*c.ParentID] = append(byParent[*c.ParentID], c)
	}

	now := time.Now().UTC()
	var walk func(parent *domain.Category) error
	walk = func(parent *domain.Category) error {
		for _, child := range byParent[parent.ID] {
			child.Path = domain.ChildPath(parent.Path, child.Name)
			if err := repo.UpdatePath(ctx, child.ID, child.Path, now); err != nil {
				return err
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	return walk(root)
}

// DeleteCategory deletes a category. Without cascade it fails while child
// categories exist; with cascade the whole subtree is removed children
// before parents in one transaction. Products referencing the category
// (or, under cascade, any category in the subtree) block deletion
// regardless of the cascade flag.
func (s *catalogService) DeleteCategory(ctx context.Context, id uuid.UUID, cascade bool) error {
	return s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		categories := s.categories.WithTx(tx)
		products := s.products.WithTx(tx)

		category, err := categories.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if err := categories.LockSubtree(ctx, category.Path); err != nil {
			return err
		}

		hasChildren, err := categories.HasChildren(ctx, id)
		if err != nil {
			return err
		}
		if hasChildren && !cascade {
			return domain.NewConflict("category", "has child categories")
		}

		var referencing int
		if cascade {
			referencing, err = products.CountBySubtree(ctx, category.Path)
		} else {
			referencing, err = products.CountByCategory(ctx, id)
		}
		if err != nil {
			return err
		}
		if referencing > 0 {
			return domain.NewConflict("category", fmt.Sprintf("%d products still reference it", referencing))
		}

		if !cascade {
			return categories.Delete(ctx, id)
		}

		subtree, err := categories.ListSubtree(ctx, category.Path)
		if err != nil {
			return err
		}

		// Children before parents: deeper paths delete first.
		sort.Slice(subtree, func(i, j int) bool {
			return strings.Count(subtree[i].Path, "/") > strings.Count(subtree[j].Path, "/")
		})
		for _, c := range subtree {
			if err := categories.Delete(ctx, c.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateProduct creates a product under an existing category and derives
// its search vector.
func (s *catalogService) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domain.NewValidation("name", "must not be empty")
	}
	if input.Price.IsNegative() {
		return nil, domain.NewValidation("price", "must not be negative")
	}

	var created *domain.Product
	err := s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		categories := s.categories.WithTx(tx)
		products := s.products.WithTx(tx)

		if _, err := categories.FindByID(ctx, input.CategoryID); err != nil {
			return err
		}

		now := time.Now().UTC()
		product := &domain.Product{
			ID:          uuid.New(),
			Name:        input.Name,
			Description: input.Description,
			CategoryID:  input.CategoryID,
			Price:       input.Price,
			Attributes:  input.Attributes,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if product.Attributes == nil {
			product.Attributes = map[string]any{}
		}
		product.RecomputeSearchVector()

		if err := products.Insert(ctx, product); err != nil {
			return err
		}

		created = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetProduct retrieves a product by ID.
func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

// UpdateProduct applies a partial update, re-validating the category on
// change and recomputing the search vector when name or description
// changed.
func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*domain.Product, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, domain.NewValidation("name", "must not be empty")
	}
	if input.Price != nil && input.Price.IsNegative() {
		return nil, domain.NewValidation("price", "must not be negative")
	}

	var updated *domain.Product
	err := s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		categories := s.categories.WithTx(tx)
		products := s.products.WithTx(tx)

		product, err := products.FindByID(ctx, id)
		if err != nil {
			return err
		}

		textChanged := false
		if input.Name != nil && *input.Name != product.Name {
			product.Name = *input.Name
			textChanged = true
		}
		if input.Description != nil && *input.Description != product.Description {
			product.Description = *input.Description
			textChanged = true
		}
		if input.CategoryID != nil && *input.CategoryID != product.CategoryID {
			if _, err := categories.FindByID(ctx, *input.CategoryID); err != nil {
				return err
			}
			product.CategoryID = *input.CategoryID
		}
		if input.Price != nil {
			product.Price = *input.Price
		}
		if input.Attributes != nil {
			product.Attributes = input.Attributes
		}

		if textChanged {
			product.RecomputeSearchVector()
		}
		product.UpdatedAt = time.Now().UTC()

		if err := products.Update(ctx, product); err != nil {
			return err
		}

		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteProduct removes a product. Category lifecycle is unaffected.
func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.products.Delete(ctx, id)
}

// ListProducts returns one page of products matching the filter, newest
// first, with the total count of the filtered set.
func (s *catalogService) ListProducts(ctx context.Context, query ProductQuery) (*ProductPage, error) {
	page, filter, err := s.resolveQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	items, total, err := s.products.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}

	return &ProductPage{Items: items, TotalCount: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// SearchProducts returns one page of products ranked by how many query
// terms their search vector contains. A blank query degrades to a plain
// filtered listing.
func (s *catalogService) SearchProducts(ctx context.Context, text string, query ProductQuery) (*ProductPage, error) {
	terms := domain.TokenizeQuery(text)
	if len(terms) == 0 {
		return s.ListProducts(ctx, query)
	}

	page, filter, err := s.resolveQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	items, total, err := s.search.Search(ctx, terms, filter, page)
	if err != nil {
		return nil, err
	}

	return &ProductPage{Items: items, TotalCount: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// resolveQuery validates pagination and filter bounds and resolves the
// category filter to a storage-level filter, loading the category's
// materialized path when descendants are included.
func (s *catalogService) resolveQuery(ctx context.Context, query ProductQuery) (domain.Page, repository.Filter, error) {
	page := domain.DefaultPage()
	if query.Page != nil {
		page = *query.Page
	}
	if err := page.Validate(); err != nil {
		return domain.Page{}, repository.Filter{}, err
	}
	if err := query.Filter.Validate(); err != nil {
		return domain.Page{}, repository.Filter{}, err
	}

	filter := repository.Filter{
		CategoryID: query.Filter.CategoryID,
		MinPrice:   query.Filter.MinPrice,
		MaxPrice:   query.Filter.MaxPrice,
	}

	if query.Filter.CategoryID != nil {
		category, err := s.categories.FindByID(ctx, *query.Filter.CategoryID)
		if err != nil {
			return domain.Page{}, repository.Filter{}, err
		}
		if query.Filter.IncludeDescendants {
			filter.CategoryPath = category.Path
		}
	}

	return page, filter, nil
}
