package parser

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		currency string
	}{
		{"colombian format with code", "$ 12.500,00 COP", "12500", "COP"},
		{"plain decimal", "12500.00", "12500", ""},
		{"us thousands", "USD 1,299.90", "1299.9", "USD"},
		{"dotted thousands", "$1.234.567", "1234567", ""},
		{"comma decimal", "9,5", "9.5", ""},
		{"comma thousands", "1,234,567", "1234567", ""},
		{"non breaking space", "$\u00a04.990", "4990", ""},
		{"single dot thousands", "$ 12.990 CLP", "12990", "CLP"},
		{"single comma thousands", "1,299", "1299", ""},
		{"two decimals stay decimal", "4.99", "4.99", ""},
		{"four digit integer part stays decimal", "1234.500", "1234.5", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			price, currency := ParsePrice(tc.input)
			require.NotNil(t, price)
			assert.Equal(t, tc.want, price.String())
			assert.Equal(t, tc.currency, currency)
		})
	}
}

func TestParsePriceUnparsable(t *testing.T) {
	for _, input := range []string{"Consultar", "", "$", "..."} {
		price, currency := ParsePrice(input)
		assert.Nil(t, price, input)
		assert.Empty(t, currency, input)
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ferreteria", Slugify("Ferretería"))
	assert.Equal(t, "tornilleria", Slugify("Tornillería"))
	assert.Equal(t, "herramientas-electricas", Slugify("  Herramientas   Eléctricas!! "))
	assert.Equal(t, "pinturas-accesorios", Slugify("Pinturas & Accesorios"))
	assert.Equal(t, "", Slugify("¡¿?!"))
}

func TestSlugFromURL(t *testing.T) {
	assert.Equal(t, "tornilleria", SlugFromURL("https://shop.test/ferreteria/Tornilleria/"))
	assert.Equal(t, "", SlugFromURL("https://shop.test/"))
	assert.Equal(t, "", SlugFromURL(""))
}

func TestHTMLToText(t *testing.T) {
	got := HTMLToText("<p>Tornillo&nbsp;de <b>acero</b></p><ul><li>M6</li><li>Zincado</li></ul><script>x()</script>")
	assert.Equal(t, "Tornillo de acero M6 Zincado", got)
	assert.Equal(t, "", HTMLToText("   "))
	assert.Equal(t, "plain text", HTMLToText("plain   text"))
}

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("https://shop.test/catalog?page=1")
	require.NoError(t, err)

	assert.Equal(t, "https://shop.test/p/a", ResolveURL(base, "/p/a#reviews"))
	assert.Equal(t, "https://cdn.test/x.jpg", ResolveURL(base, "https://cdn.test/x.jpg"))
	assert.Equal(t, "", ResolveURL(base, "  "))
}
