package parser

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"storefront/scraper/internal/domain"
)

type node = map[string]any

// collectNodes decodes every linked-data script of the document. Top level
// arrays are flattened and @graph members are lifted next to their parent.
func collectNodes(doc *goquery.Document) []node {
	var nodes []node
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var data any
		if err := dec.Decode(&data); err != nil {
			log.Debugf("Skipping malformed ld+json block %d: %v", i, err)
			return
		}
		nodes = appendNodes(nodes, data)
	})
	return nodes
}

func appendNodes(nodes []node, v any) []node {
	switch t := v.(type) {
	case []any:
		for _, el := range t {
			nodes = appendNodes(nodes, el)
		}
	case map[string]any:
		nodes = append(nodes, t)
		if graph, ok := t["@graph"].([]any); ok {
			for _, el := range graph {
				nodes = appendNodes(nodes, el)
			}
		}
	}
	return nodes
}

// hasType reports whether n declares schema type want, accepting a single
// type or a list and prefixed forms like "schema:Product".
func hasType(n node, want string) bool {
	matches := func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		if i := strings.LastIndexAny(s, "/:"); i >= 0 {
			s = s[i+1:]
		}
		return s == want
	}

	switch t := n["@type"].(type) {
	case string:
		return matches(t)
	case []any:
		for _, v := range t {
			if matches(v) {
				return true
			}
		}
	}
	return false
}

// text renders a scalar JSON value as a trimmed string.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func firstText(values ...any) string {
	for _, v := range values {
		if s := text(v); s != "" {
			return s
		}
	}
	return ""
}

// firstValue returns the first value that renders as non-empty text.
func firstValue(values ...any) any {
	for _, v := range values {
		if text(v) != "" {
			return v
		}
	}
	return nil
}

func asNode(v any) (node, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		for _, el := range t {
			if m, ok := el.(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}

func productFromNode(n node, base *url.URL) domain.Product {
	p := domain.Product{
		URL:         ResolveURL(base, firstText(n["@id"], n["url"])),
		Name:        NormalizeWhitespace(text(n["name"])),
		Description: domain.StringPtr(HTMLToText(text(n["description"]))),
		ImageURL:    domain.StringPtr(ResolveURL(base, imageURL(n["image"]))),
		SKU:         domain.StringPtr(firstText(n["sku"], n["mpn"], n["productID"])),
		Brand:       domain.StringPtr(NormalizeWhitespace(brandName(n["brand"]))),
	}

	rawPrice, currency := offerPrice(n["offers"])
	switch v := rawPrice.(type) {
	case json.Number, float64:
		// Numeric values are machine formatted, "." is always the decimal mark.
		if price, err := decimal.NewFromString(text(v)); err == nil {
			p.Price = &price
		}
	default:
		if priceText := text(v); priceText != "" {
			price, detected := ParsePrice(priceText)
			p.Price = price
			if currency == "" {
				currency = detected
			}
		}
	}
	p.Currency = domain.StringPtr(strings.ToUpper(currency))
	return p
}

func imageURL(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, el := range t {
			if s := imageURL(el); s != "" {
				return s
			}
		}
	case map[string]any:
		return firstText(t["url"], t["contentUrl"])
	}
	return ""
}

func brandName(v any) string {
	if m, ok := v.(map[string]any); ok {
		return firstText(m["name"], m["@id"])
	}
	return text(v)
}

// offerPrice reads price and currency from an Offer, an AggregateOffer or a
// list of offers.
// offerPrice returns the raw price value of an Offer or AggregateOffer and
// its currency.
func offerPrice(v any) (any, string) {
	offer, ok := asNode(v)
	if !ok {
		return nil, ""
	}
	price := firstValue(offer["lowPrice"], offer["price"])
	currency := text(offer["priceCurrency"])
	if price == nil {
		if inner, ok := asNode(offer["offers"]); ok {
			price = firstValue(inner["price"])
			if currency == "" {
				currency = text(inner["priceCurrency"])
			}
		}
	}
	return price, currency
}
