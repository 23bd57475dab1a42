package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/scraper/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	url         TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT,
	price       NUMERIC(14, 2),
	currency    TEXT,
	image_url   TEXT,
	sku         TEXT,
	brand       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS categories (
	id   BIGSERIAL PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	url  TEXT
);

CREATE TABLE IF NOT EXISTS product_categories (
	product_id  BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	level       INTEGER NOT NULL,
	PRIMARY KEY (product_id, category_id)
);

CREATE INDEX IF NOT EXISTS product_categories_category_idx ON product_categories (category_id);`

const upsertProductSQL = `
	INSERT INTO products (url, name, description, price, currency, image_url, sku, brand)
	VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8)
	ON CONFLICT (url)
	DO UPDATE SET
		name        = COALESCE(NULLIF(EXCLUDED.name, ''), products.name),
		description = COALESCE(EXCLUDED.description, products.description),
		price       = COALESCE(EXCLUDED.price, products.price),
		currency    = COALESCE(EXCLUDED.currency, products.currency),
		image_url   = COALESCE(EXCLUDED.image_url, products.image_url),
		sku         = COALESCE(EXCLUDED.sku, products.sku),
		brand       = COALESCE(EXCLUDED.brand, products.brand),
		updated_at  = now()
	RETURNING id`

const resolveCategorySQL = `
	INSERT INTO categories (slug, name, url)
	VALUES ($1, $2, $3)
	ON CONFLICT (slug)
	DO UPDATE SET
		name = EXCLUDED.name,
		url  = COALESCE(categories.url, EXCLUDED.url)
	RETURNING id, url`

const selectProductsSQL = `
	SELECT id, url, name, description, price::text, currency, image_url, sku, brand
	FROM products`

const selectLinksSQL = `
	SELECT pc.product_id, c.id, c.name, c.slug, c.url, pc.level
	FROM product_categories pc
	JOIN categories c ON c.id = pc.category_id`

// PostgresStore implements Store on top of pgx.
type PostgresStore struct {
	db DB
}

// NewPostgresStore connects a pool for dsn.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, *pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: pool}, pool, nil
}

// NewPostgresStoreWithPool wraps an existing pool (or a mock of one).
func NewPostgresStoreWithPool(db DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("pool is required")
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p domain.Product) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, upsertProductSQL,
		p.URL, p.Name, p.Description, priceText(p.Price), p.Currency, p.ImageURL, p.SKU, p.Brand,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert product %s: %w", p.URL, err)
	}
	return id, nil
}

func (s *PostgresStore) Resolve(ctx context.Context, chain []domain.Crumb) ([]domain.Category, error) {
	if len(chain) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin category transaction: %w", err)
	}

	categories := make([]domain.Category, 0, len(chain))
	for level, crumb := range chain {
		var (
			id  int64
			url pgtype.Text
		)
		err := tx.QueryRow(ctx, resolveCategorySQL, crumb.Slug, crumb.Name, domain.StringPtr(crumb.URL)).Scan(&id, &url)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to resolve category %s: %w", crumb.Slug, err)
		}
		categories = append(categories, domain.Category{
			ID:    id,
			Name:  crumb.Name,
			Slug:  crumb.Slug,
			URL:   textPtr(url),
			Level: level,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit categories: %w", err)
	}
	return categories, nil
}

func (s *PostgresStore) Relink(ctx context.Context, productID int64, categoryIDs []int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin relink transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_categories WHERE product_id = $1`, productID); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to clear links of product %d: %w", productID, err)
	}

	for _, l := range positionalLinks(categoryIDs) {
		_, err := tx.Exec(ctx,
			`INSERT INTO product_categories (product_id, category_id, level) VALUES ($1, $2, $3)`,
			productID, l.categoryID, l.level)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to link product %d to category %d: %w", productID, l.categoryID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit links of product %d: %w", productID, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.Product, error) {
	products, err := s.queryProducts(ctx, selectProductsSQL+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	if err := s.attachCategories(ctx, products, selectLinksSQL+` ORDER BY pc.product_id, pc.level`); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *PostgresStore) FindByURLs(ctx context.Context, urls []string) ([]domain.Product, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	found, err := s.queryProducts(ctx, selectProductsSQL+` WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(found))
	for i, p := range found {
		ids[i] = p.ID
	}
	if err := s.attachCategories(ctx, found,
		selectLinksSQL+` WHERE pc.product_id = ANY($1) ORDER BY pc.product_id, pc.level`, ids); err != nil {
		return nil, err
	}

	byURL := make(map[string]domain.Product, len(found))
	for _, p := range found {
		byURL[p.URL] = p
	}
	out := make([]domain.Product, 0, len(found))
	for _, u := range urls {
		if p, ok := byURL[u]; ok {
			out = append(out, p)
			delete(byURL, u)
		}
	}
	return out, nil
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		var description, price, currency, image, sku, brand pgtype.Text
		if err := rows.Scan(&p.ID, &p.URL, &p.Name, &description, &price, &currency, &image, &sku, &brand); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Description = textPtr(description)
		p.Currency = textPtr(currency)
		p.ImageURL = textPtr(image)
		p.SKU = textPtr(sku)
		p.Brand = textPtr(brand)
		if price.Valid {
			d, err := decimal.NewFromString(price.String)
			if err != nil {
				log.Warnf("⚠️ Stored price %q of %s is not a decimal: %v", price.String, p.URL, err)
			} else {
				p.Price = &d
			}
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return products, nil
}

func (s *PostgresStore) attachCategories(ctx context.Context, products []domain.Product, query string, args ...any) error {
	index := make(map[int64]int, len(products))
	for i, p := range products {
		index[p.ID] = i
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query category links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int64
			c         domain.Category
			url       pgtype.Text
		)
		if err := rows.Scan(&productID, &c.ID, &c.Name, &c.Slug, &url, &c.Level); err != nil {
			return fmt.Errorf("failed to scan category link: %w", err)
		}
		c.URL = textPtr(url)
		if i, ok := index[productID]; ok {
			products[i].Categories = append(products[i].Categories, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read category links: %w", err)
	}
	return nil
}

func priceText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
