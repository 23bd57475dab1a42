package repository

import (
	"context"

	"storefront/scraper/internal/domain"
)

// ProductStore persists products and their category links. A product is
// identified by its canonical URL.
type ProductStore interface {
	// Upsert inserts the product or updates the fields it carries. Nil
	// optional fields never overwrite stored values.
	Upsert(ctx context.Context, p domain.Product) (int64, error)
	// Relink replaces every category link of the product. The level of a link
	// is its position in categoryIDs; repeated ids keep the first position.
	Relink(ctx context.Context, productID int64, categoryIDs []int64) error
	List(ctx context.Context) ([]domain.Product, error)
	// FindByURLs returns the stored products for urls in argument order.
	// Unknown URLs are skipped.
	FindByURLs(ctx context.Context, urls []string) ([]domain.Product, error)
	EnsureSchema(ctx context.Context) error
}

// CategoryResolver maps a breadcrumb chain onto stored categories, creating
// the missing ones. Resolving the same chain twice yields the same ids.
type CategoryResolver interface {
	Resolve(ctx context.Context, chain []domain.Crumb) ([]domain.Category, error)
}

// Store is the full persistence surface used by the crawler.
type Store interface {
	ProductStore
	CategoryResolver
}

type link struct {
	categoryID int64
	level      int
}

// positionalLinks assigns each category its index in categoryIDs. A repeated
// id keeps its first position.
func positionalLinks(categoryIDs []int64) []link {
	seen := make(map[int64]struct{}, len(categoryIDs))
	out := make([]link, 0, len(categoryIDs))
	for level, id := range categoryIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, link{categoryID: id, level: level})
	}
	return out
}
