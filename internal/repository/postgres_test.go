package repository

import (
	"context"
	"errors"
	"testing"

	"storefront/scraper/internal/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresStoreWithPool(nil)
	require.Error(t, err)
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS products").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBindsOptionalFields(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	price := decimal.RequireFromString("12500")
	p := domain.Product{
		URL:      "https://shop.test/p/a",
		Name:     "Bolt",
		Price:    &price,
		Currency: domain.StringPtr("COP"),
	}
	priceArg := "12500.00"

	mock.ExpectQuery("INSERT INTO products").
		WithArgs(p.URL, "Bolt", (*string)(nil), &priceArg, p.Currency, (*string)(nil), (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.Upsert(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWrapsError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery("INSERT INTO products").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(boom)

	_, err := store.Upsert(context.Background(), domain.Product{URL: "https://shop.test/p/a", Name: "Bolt"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "https://shop.test/p/a")
}

func TestResolveRunsInOneTransaction(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	chain := []domain.Crumb{
		{Name: "Ferretería", Slug: "ferreteria", URL: "https://shop.test/ferreteria"},
		{Name: "Tornillería", Slug: "tornilleria"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO categories").
		WithArgs("ferreteria", "Ferretería", domain.StringPtr("https://shop.test/ferreteria")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).AddRow(int64(1), "https://shop.test/ferreteria"))
	mock.ExpectQuery("INSERT INTO categories").
		WithArgs("tornilleria", "Tornillería", (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).AddRow(int64(2), nil))
	mock.ExpectCommit()

	cats, err := store.Resolve(context.Background(), chain)
	require.NoError(t, err)
	require.Len(t, cats, 2)

	assert.Equal(t, int64(1), cats[0].ID)
	assert.Equal(t, 0, cats[0].Level)
	require.NotNil(t, cats[0].URL)
	assert.Equal(t, "https://shop.test/ferreteria", *cats[0].URL)

	assert.Equal(t, int64(2), cats[1].ID)
	assert.Equal(t, 1, cats[1].Level)
	assert.Nil(t, cats[1].URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO categories").
		WithArgs("ferreteria", "Ferretería", (*string)(nil)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := store.Resolve(context.Background(), []domain.Crumb{{Name: "Ferretería", Slug: "ferreteria"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveEmptyChainSkipsDatabase(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	cats, err := store.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, cats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelinkReplacesLinksPositionally(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM product_categories").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO product_categories").
		WithArgs(int64(5), int64(10), 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO product_categories").
		WithArgs(int64(5), int64(11), 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO product_categories").
		WithArgs(int64(5), int64(12), 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Relink(context.Background(), 5, []int64{10, 11, 10, 12}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelinkRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM product_categories").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO product_categories").
		WithArgs(int64(5), int64(10), 0).
		WillReturnError(errors.New("foreign key violation"))
	mock.ExpectRollback()

	require.Error(t, store.Relink(context.Background(), 5, []int64{10}))
	require.NoError(t, mock.ExpectationsWereMet())
}

var productColumns = []string{"id", "url", "name", "description", "price", "currency", "image_url", "sku", "brand"}
var linkColumns = []string{"product_id", "id", "name", "slug", "url", "level"}

func TestListAttachesCategoriesByLevel(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, url, name").
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow(int64(1), "https://shop.test/p/a", "Bolt", "Zinc bolt", "12500.00", "COP", nil, "B-1", nil).
			AddRow(int64(2), "https://shop.test/p/b", "Nut", nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery("FROM product_categories pc").
		WillReturnRows(pgxmock.NewRows(linkColumns).
			AddRow(int64(1), int64(10), "Ferretería", "ferreteria", nil, 0).
			AddRow(int64(1), int64(11), "Tornillería", "tornilleria", nil, 1))

	products, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	a := products[0]
	assert.Equal(t, "Bolt", a.Name)
	require.NotNil(t, a.Price)
	assert.True(t, a.Price.Equal(decimal.RequireFromString("12500")))
	assert.Equal(t, "Zinc bolt", domain.Deref(a.Description))
	assert.Equal(t, "B-1", domain.Deref(a.SKU))
	assert.Nil(t, a.ImageURL)
	require.Len(t, a.Categories, 2)
	assert.Equal(t, "ferreteria", a.Categories[0].Slug)
	assert.Equal(t, 0, a.Categories[0].Level)
	assert.Equal(t, "tornilleria", a.Categories[1].Slug)
	assert.Equal(t, 1, a.Categories[1].Level)

	b := products[1]
	assert.Nil(t, b.Price)
	assert.Nil(t, b.Description)
	assert.Empty(t, b.Categories)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByURLsKeepsArgumentOrder(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	urls := []string{"https://shop.test/p/b", "https://shop.test/p/missing", "https://shop.test/p/a"}

	mock.ExpectQuery("WHERE url = ANY").
		WithArgs(urls).
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow(int64(1), "https://shop.test/p/a", "Bolt", nil, nil, nil, nil, nil, nil).
			AddRow(int64(2), "https://shop.test/p/b", "Nut", nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery("WHERE pc.product_id = ANY").
		WithArgs([]int64{1, 2}).
		WillReturnRows(pgxmock.NewRows(linkColumns).
			AddRow(int64(1), int64(10), "Ferretería", "ferreteria", "https://shop.test/ferreteria", 0))

	products, err := store.FindByURLs(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "https://shop.test/p/b", products[0].URL)
	assert.Empty(t, products[0].Categories)
	assert.Equal(t, "https://shop.test/p/a", products[1].URL)
	require.Len(t, products[1].Categories, 1)
	assert.Equal(t, "https://shop.test/ferreteria", domain.Deref(products[1].Categories[0].URL))
	require.NoError(t, mock.ExpectationsWereMet())
}
