package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category is a node in the catalog hierarchy. Path is the materialized
// chain of lower-cased ancestor names from root to this node, so subtree
// queries are plain prefix matches and never need recursive joins.
type Category struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	Path        string     `json:"path" db:"path"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// PathSegment returns the path component this category contributes.
func (c *Category) PathSegment() string {
	return strings.ToLower(c.Name)
}

// ChildPath computes the materialized path for a category named name
// placed under parentPath. Root categories get just their own segment.
func ChildPath(parentPath, name string) string {
	segment := strings.ToLower(name)
	if parentPath == "" {
		return segment
	}
	return parentPath + "/" + segment
}

// Product represents a product in the catalog. Price is fixed-point so
// currency amounts never accumulate binary rounding error. SearchVector
// is derived from name and description and is never set by callers.
type Product struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description" db:"description"`
	CategoryID   uuid.UUID       `json:"category_id" db:"category_id"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Attributes   map[string]any  `json:"attributes" db:"attributes"`
	SearchVector string          `json:"-" db:"search_vector"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// RecomputeSearchVector refreshes the derived search text. Must be called
// on every write that touches Name or Description.
func (p *Product) RecomputeSearchVector() {
	p.SearchVector = strings.ToLower(strings.TrimSpace(p.Name + " " + p.Description))
}

// TokenizeQuery splits a free-text search query into lower-cased terms.
func TokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}
