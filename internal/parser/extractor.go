// Package parser turns storefront HTML into domain records. Product data is
// read from embedded JSON-LD, breadcrumbs from JSON-LD with a DOM fallback.
package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"storefront/scraper/internal/domain"
)

// Mode selects what Extract looks for.
type Mode int

const (
	// ModeListing reads every product of an ItemList (or loose Product nodes).
	ModeListing Mode = iota
	// ModeDetail reads the first Product node and the breadcrumb chain.
	ModeDetail
)

func (m Mode) String() string {
	if m == ModeDetail {
		return "detail"
	}
	return "listing"
}

// Result holds what one page yielded. Both fields may be empty: a page
// without structured data is not an error.
type Result struct {
	Products   []domain.Product
	Breadcrumb []domain.Crumb
}

// Extractor parses listing and detail pages of a single storefront.
type Extractor struct {
	base    *url.URL
	sources []BreadcrumbSource
}

// NewExtractor builds an Extractor resolving relative links against baseURL.
// Breadcrumb sources are tried in order, the first non-empty chain wins;
// without sources the JSON-LD and default DOM sources are used.
func NewExtractor(baseURL string, sources ...BreadcrumbSource) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if len(sources) == 0 {
		sources = DefaultSources("")
	}
	return &Extractor{base: base, sources: sources}, nil
}

// DefaultSources returns the JSON-LD source followed by a DOM source using
// selector (DefaultBreadcrumbSelector when empty).
func DefaultSources(selector string) []BreadcrumbSource {
	return []BreadcrumbSource{
		JSONLDBreadcrumbs{},
		DOMBreadcrumbs{Selector: selector},
	}
}

// Extract parses html in the given mode.
func (e *Extractor) Extract(html string, mode Mode) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	nodes := collectNodes(doc)

	result := &Result{}
	switch mode {
	case ModeListing:
		result.Products = e.listingProducts(nodes)
	case ModeDetail:
		if p, ok := e.detailProduct(nodes); ok {
			result.Products = []domain.Product{p}
		}
		result.Breadcrumb = e.breadcrumb(&Page{Doc: doc, Nodes: nodes, Base: e.base})
	default:
		return nil, fmt.Errorf("unknown parse mode %d", mode)
	}

	log.Debugf("Extracted %d products and %d crumbs in %s mode", len(result.Products), len(result.Breadcrumb), mode)
	return result, nil
}

func (e *Extractor) listingProducts(nodes []node) []domain.Product {
	var products []domain.Product
	add := func(n node) {
		p := productFromNode(n, e.base)
		if p.URL == "" {
			log.Debugf("Skipping listing product %q without url", p.Name)
			return
		}
		products = append(products, p)
	}

	for _, n := range nodes {
		if !hasType(n, "ItemList") {
			continue
		}
		elements, _ := n["itemListElement"].([]any)
		for _, el := range elements {
			li, ok := el.(map[string]any)
			if !ok {
				continue
			}
			if item, ok := li["item"].(map[string]any); ok {
				add(item)
			}
		}
	}
	if len(products) > 0 {
		return products
	}

	for _, n := range nodes {
		if hasType(n, "Product") {
			add(n)
		}
	}
	return products
}

func (e *Extractor) detailProduct(nodes []node) (domain.Product, bool) {
	for _, n := range nodes {
		if hasType(n, "Product") {
			return productFromNode(n, e.base), true
		}
	}
	return domain.Product{}, false
}

func (e *Extractor) breadcrumb(page *Page) []domain.Crumb {
	for _, src := range e.sources {
		if chain := src.Breadcrumbs(page); len(chain) > 0 {
			log.Debugf("Breadcrumb of %d crumbs from %s source", len(chain), src.Name())
			return chain
		}
	}
	return nil
}
