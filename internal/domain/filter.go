package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// MinPageLimit and MaxPageLimit bound the page size accepted by list
	// and search operations.
	MinPageLimit = 1
	MaxPageLimit = 100

	// DefaultPageLimit is used when the caller does not ask for a size.
	DefaultPageLimit = 50
)

// Page describes an offset/limit window into a filtered result set.
type Page struct {
	Offset int
	Limit  int
}

// DefaultPage returns the first page at the default size.
func DefaultPage() Page {
	return Page{Offset: 0, Limit: DefaultPageLimit}
}

// Validate enforces the shared pagination contract: offset >= 0 and
// limit within [MinPageLimit, MaxPageLimit].
func (p Page) Validate() error {
	if p.Offset < 0 {
		return NewValidation("offset", "must be greater than or equal to 0")
	}
	if p.Limit < MinPageLimit || p.Limit > MaxPageLimit {
		return NewValidation("limit", fmt.Sprintf("must be between %d and %d", MinPageLimit, MaxPageLimit))
	}
	return nil
}

// ProductFilter narrows product list and search results. Price bounds are
// inclusive; both are optional. When IncludeDescendants is set the
// category filter matches the whole subtree via a path-prefix match.
type ProductFilter struct {
	CategoryID         *uuid.UUID
	IncludeDescendants bool
	MinPrice           *decimal.Decimal
	MaxPrice           *decimal.Decimal
}

// Validate rejects an inverted price range and negative bounds.
func (f ProductFilter) Validate() error {
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		return NewValidation("min_price", "must not be negative")
	}
	if f.MaxPrice != nil && f.MaxPrice.IsNegative() {
		return NewValidation("max_price", "must not be negative")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return NewValidation("min_price", "must not exceed max_price")
	}
	return nil
}
