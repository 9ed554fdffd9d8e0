package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"catalog-service/internal/domain"

	"github.com/google/uuid"
)

// CategoryRepository defines row-level access to the category hierarchy.
// Multi-row operations (path rewrites, cascade deletes) are composed by
// the service layer inside a transaction via WithTx.
type CategoryRepository interface {
	WithTx(tx *sql.Tx) CategoryRepository
	Insert(ctx context.Context, category *domain.Category) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	ListRoots(ctx context.Context) ([]*domain.Category, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Category, error)
	SiblingExists(ctx context.Context, parentID *uuid.UUID, name string, exclude uuid.UUID) (bool, error)
	HasChildren(ctx context.Context, id uuid.UUID) (bool, error)
	LockSubtree(ctx context.Context, path string) error
	ListSubtree(ctx context.Context, path string) ([]*domain.Category, error)
	Update(ctx context.Context, category *domain.Category) error
	UpdatePath(ctx context.Context, id uuid.UUID, path string, updatedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type categoryRepository struct {
	db DBTX
}

// NewCategoryRepository creates a new instance of CategoryRepository.
func NewCategoryRepository(db *sql.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *categoryRepository) WithTx(tx *sql.Tx) CategoryRepository {
	return &categoryRepository{db: tx}
}

const categoryColumns = `id, name, description, parent_id, path, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	category := &domain.Category{}
	var description sql.NullString

	err := row.Scan(
		&category.ID,
		&category.Name,
		&description,
		&category.ParentID,
		&category.Path,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	category.Description = description.String
	return category, nil
}

// Insert adds a new category row. A sibling-name collision surfaces as a
// ConflictError via the partial unique indexes.
func (r *categoryRepository) Insert(ctx context.Context, category *domain.Category) error {
	query := `
		INSERT INTO categories (id, name, description, parent_id, path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		category.ID,
		category.Name,
		category.Description,
		category.ParentID,
		category.Path,
		category.CreatedAt,
		category.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflict("category", fmt.Sprintf("name %q already exists under the same parent", category.Name))
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	return nil
}

// FindByID retrieves a category by ID.
func (r *categoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	category, err := scanCategory(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("category", id.String())
		}
		return nil, fmt.Errorf("failed to find category by ID: %w", err)
	}

	return category, nil
}

// FindByIDForUpdate retrieves a category and takes a row lock on it. Path
// computations that hang off another row's path read it through this, so a
// concurrent transaction rewriting that row's path must commit first and
// the re-read returns the committed path, never a stale one.
func (r *categoryRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1 FOR UPDATE`

	category, err := scanCategory(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("category", id.String())
		}
		return nil, fmt.Errorf("failed to lock category row: %w", err)
	}

	return category, nil
}

// ListRoots retrieves all categories without a parent, ordered by name so
// listings are deterministic.
func (r *categoryRepository) ListRoots(ctx context.Context) ([]*domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE parent_id IS NULL ORDER BY name ASC, id ASC`
	return r.queryCategories(ctx, query)
}

// ListChildren retrieves the direct children of a category, ordered by name.
func (r *categoryRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE parent_id = $1 ORDER BY name ASC, id ASC`
	return r.queryCategories(ctx, query, parentID)
}

// ListSubtree retrieves every category whose materialized path equals path
// or lies underneath it, ordered by path so parents precede children.
func (r *categoryRepository) ListSubtree(ctx context.Context, path string) ([]*domain.Category, error) {
	query := `
		SELECT ` + categoryColumns + `
		FROM categories
		WHERE path = $1 OR path LIKE $1 || '/%'
		ORDER BY path ASC
	`
	return r.queryCategories(ctx, query, path)
}

func (r *categoryRepository) queryCategories(ctx context.Context, query string, args ...any) ([]*domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []*domain.Category{}
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// SiblingExists reports whether a category named name already exists under
// parentID (nil means root level). The comparison is case-insensitive
// because sibling paths are derived from lower-cased names and must stay
// distinct. The exclude id is skipped so a category does not collide with
// itself on update.
func (r *categoryRepository) SiblingExists(ctx context.Context, parentID *uuid.UUID, name string, exclude uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM categories
			WHERE LOWER(name) = LOWER($1) AND parent_id IS NOT DISTINCT FROM $2 AND id <> $3
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, name, parentID, exclude).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check sibling name: %w", err)
	}

	return exists, nil
}

// HasChildren reports whether any category references id as its parent.
func (r *categoryRepository) HasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM categories WHERE parent_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for children: %w", err)
	}
	return exists, nil
}

// LockSubtree takes row-level locks on every category in the subtree rooted
// at path. Concurrent reparents or deletes of overlapping subtrees block
// here until the first transaction commits, so readers never observe a
// half-rewritten path tree.
func (r *categoryRepository) LockSubtree(ctx context.Context, path string) error {
	query := `SELECT id FROM categories WHERE path = $1 OR path LIKE $1 || '/%' FOR UPDATE`

	rows, err := r.db.QueryContext(ctx, query, path)
	if err != nil {
		return fmt.Errorf("failed to lock subtree: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan locked row: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error locking subtree: %w", err)
	}

	return nil
}

// Update rewrites all mutable fields of a category row.
func (r *categoryRepository) Update(ctx context.Context, category *domain.Category) error {
	query := `
		UPDATE categories
		SET name = $2, description = $3, parent_id = $4, path = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		category.ID,
		category.Name,
		category.Description,
		category.ParentID,
		category.Path,
		category.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflict("category", fmt.Sprintf("name %q already exists under the same parent", category.Name))
		}
		return fmt.Errorf("failed to update category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFound("category", category.ID.String())
	}

	return nil
}

// UpdatePath rewrites only the materialized path of a single category.
// Used during cascading path recomputation after a reparent.
func (r *categoryRepository) UpdatePath(ctx context.Context, id uuid.UUID, path string, updatedAt time.Time) error {
	query := `UPDATE categories SET path = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, path, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update category path: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFound("category", id.String())
	}

	return nil
}

// Delete removes a single category row.
func (r *categoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM categories WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFound("category", id.String())
	}

	return nil
}
