package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"catalog-service/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Filter is the storage-level product filter. CategoryPath carries the
// materialized path of the filter category when descendants are included;
// it takes precedence over the exact CategoryID match.
type Filter struct {
	CategoryID   *uuid.UUID
	CategoryPath string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
}

// whereClauses renders the filter as SQL predicates with positional
// arguments starting at argIndex. Shared by list, count and search.
func (f Filter) whereClauses(argIndex int) ([]string, []any, int) {
	clauses := []string{}
	args := []any{}

	if f.CategoryPath != "" {
		clauses = append(clauses, fmt.Sprintf(
			"category_id IN (SELECT id FROM categories WHERE path = $%d OR path LIKE $%d || '/%%')",
			argIndex, argIndex,
		))
		args = append(args, f.CategoryPath)
		argIndex++
	} else if f.CategoryID != nil {
		clauses = append(clauses, fmt.Sprintf("category_id = $%d", argIndex))
		args = append(args, *f.CategoryID)
		argIndex++
	}

	if f.MinPrice != nil {
		clauses = append(clauses, fmt.Sprintf("price >= $%d", argIndex))
		args = append(args, *f.MinPrice)
		argIndex++
	}

	if f.MaxPrice != nil {
		clauses = append(clauses, fmt.Sprintf("price <= $%d", argIndex))
		args = append(args, *f.MaxPrice)
		argIndex++
	}

	return clauses, args, argIndex
}

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	WithTx(tx *sql.Tx) ProductRepository
	Insert(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter Filter, page domain.Page) ([]*domain.Product, int, error)
	CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error)
	CountBySubtree(ctx context.Context, path string) (int, error)
}

type productRepository struct {
	db DBTX
}

// NewProductRepository creates a new instance of ProductRepository.
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *productRepository) WithTx(tx *sql.Tx) ProductRepository {
	return &productRepository{db: tx}
}

const productColumns = `id, name, description, category_id, price, attributes, search_vector, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var description sql.NullString
	var attributes []byte

	err := row.Scan(
		&product.ID,
		&product.Name,
		&description,
		&product.CategoryID,
		&product.Price,
		&attributes,
		&product.SearchVector,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	product.Description = description.String
	product.Attributes = map[string]any{}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &product.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode product attributes: %w", err)
		}
	}

	return product, nil
}

func encodeAttributes(attributes map[string]any) ([]byte, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode product attributes: %w", err)
	}
	return encoded, nil
}

// Insert adds a new product row. A missing category surfaces as a
// NotFoundError via the foreign key.
func (r *productRepository) Insert(ctx context.Context, product *domain.Product) error {
	attributes, err := encodeAttributes(product.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, name, description, category_id, price, attributes, search_vector, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.CategoryID,
		product.Price,
		attributes,
		product.SearchVector,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewNotFound("category", product.CategoryID.String())
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// FindByID retrieves a product by ID.
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("product", id.String())
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// Update rewrites all mutable fields of a product row, including the
// derived search vector.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	attributes, err := encodeAttributes(product.Attributes)
	if err != nil {
		return err
	}

	query := `
		UPDATE products
		SET name = $2, description = $3, category_id = $4, price = $5,
		    attributes = $6, search_vector = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.CategoryID,
		product.Price,
		attributes,
		product.SearchVector,
		product.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewNotFound("category", product.CategoryID.String())
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFound("product", product.ID.String())
	}

	return nil
}

// Delete removes a product row. Deleting an absent product fails with a
// NotFoundError so repeated deletes report the outcome honestly.
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFound("product", id.String())
	}

	return nil
}

// List retrieves products matching the filter, newest first, along with
// the total count of the unpaginated filtered set.
func (r *productRepository) List(ctx context.Context, filter Filter, page domain.Page) ([]*domain.Product, int, error) {
	clauses, args, argIndex := filter.whereClauses(1)

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = "WHERE " + strings.Join(clauses, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, argIndex, argIndex+1)

	args = append(args, page.Limit, page.Offset)

	products, err := r.queryProducts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *productRepository) queryProducts(ctx context.Context, query string, args ...any) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// CountByCategory counts products referencing exactly this category.
func (r *productRepository) CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM products WHERE category_id = $1`
	if err := r.db.QueryRowContext(ctx, query, categoryID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products by category: %w", err)
	}
	return count, nil
}

// CountBySubtree counts products referencing any category in the subtree
// rooted at path.
func (r *productRepository) CountBySubtree(ctx context.Context, path string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM products
		WHERE category_id IN (SELECT id FROM categories WHERE path = $1 OR path LIKE $1 || '/%')
	`
	if err := r.db.QueryRowContext(ctx, query, path).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products by subtree: %w", err)
	}
	return count, nil
}
