package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"catalog-service/internal/domain"
)

// ProductSearcher ranks products against a tokenized free-text query.
// A product scores one point per query term found as a substring of its
// search vector; zero-score products are excluded. Ties are broken by
// creation time (newest first) and then id, so pagination over search
// results is stable.
type ProductSearcher interface {
	Search(ctx context.Context, terms []string, filter Filter, page domain.Page) ([]*domain.Product, int, error)
}

type productSearch struct {
	db DBTX
}

// NewProductSearch creates a ProductSearcher over the given pool.
func NewProductSearch(db *sql.DB) ProductSearcher {
	return &productSearch{db: db}
}

// Search executes the ranked query. The caller tokenizes the query with
// domain.TokenizeQuery and handles the empty-query case; terms must be
// non-empty here.
func (s *productSearch) Search(ctx context.Context, terms []string, filter Filter, page domain.Page) ([]*domain.Product, int, error) {
	if len(terms) == 0 {
		return nil, 0, domain.NewValidation("query", "must contain at least one term")
	}

	// One CASE per term; the sum is the relevance score.
	scoreParts := make([]string, len(terms))
	args := make([]any, 0, len(terms)+4)
	argIndex := 1
	for i, term := range terms {
		scoreParts[i] = fmt.Sprintf("(CASE WHEN search_vector LIKE $%d THEN 1 ELSE 0 END)", argIndex)
		args = append(args, "%"+escapeLike(term)+"%")
		argIndex++
	}
	scoreExpr := strings.Join(scoreParts, " + ")

	clauses, filterArgs, argIndex := filter.whereClauses(argIndex)
	args = append(args, filterArgs...)

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = "WHERE " + strings.Join(clauses, " AND ")
	}

	ranked := fmt.Sprintf(
		"SELECT %s, (%s) AS score FROM products %s",
		productColumns, scoreExpr, whereClause,
	)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) ranked WHERE score > 0", ranked)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM (%s) ranked
		WHERE score > 0
		ORDER BY score DESC, created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, productColumns, ranked, argIndex, argIndex+1)

	args = append(args, page.Limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan search result: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating search results: %w", err)
	}

	return products, total, nil
}

// escapeLike neutralizes LIKE wildcards in a user-supplied term so "50%"
// matches literally.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	term = strings.ReplaceAll(term, "_", `\_`)
	return term
}
