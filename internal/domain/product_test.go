package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayKeepsBaseWhenPatchIsEmpty(t *testing.T) {
	price := decimal.RequireFromString("12500")
	base := Product{
		URL:         "https://shop.test/p/a",
		Name:        "Bolt",
		Description: StringPtr("Steel bolt"),
		Price:       &price,
		Brand:       StringPtr("Acme"),
	}

	out := Overlay(base, Product{URL: "https://shop.test/other"})

	assert.Equal(t, "https://shop.test/p/a", out.URL)
	assert.Equal(t, "Bolt", out.Name)
	assert.Equal(t, "Steel bolt", Deref(out.Description))
	assert.Equal(t, "Acme", Deref(out.Brand))
	require.NotNil(t, out.Price)
	assert.True(t, out.Price.Equal(price))
}

func TestOverlayReplacesPresentFields(t *testing.T) {
	base := Product{URL: "u", Name: "Bolt", SKU: StringPtr("old")}
	newPrice := decimal.RequireFromString("9.90")

	out := Overlay(base, Product{
		Name:     "Bolt M6",
		SKU:      StringPtr("B-6"),
		ImageURL: StringPtr("https://cdn.test/b.jpg"),
		Price:    &newPrice,
	})

	assert.Equal(t, "Bolt M6", out.Name)
	assert.Equal(t, "B-6", Deref(out.SKU))
	assert.Equal(t, "https://cdn.test/b.jpg", Deref(out.ImageURL))
	assert.Equal(t, "9.9", out.Price.String())
}

func TestOverlayDoesNotAliasPatch(t *testing.T) {
	brand := "Acme"
	out := Overlay(Product{URL: "u"}, Product{Brand: &brand})
	brand = "changed"
	assert.Equal(t, "Acme", Deref(out.Brand))
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "x", *StringPtr("x"))
	assert.Equal(t, "", Deref(nil))
}
