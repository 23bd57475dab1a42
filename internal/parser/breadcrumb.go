package parser

import (
	"math"
	"net/url"
	"sort"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"storefront/scraper/internal/domain"
)

// DefaultBreadcrumbSelector matches the breadcrumb links of VTEX storefronts.
const DefaultBreadcrumbSelector = `div[data-testid="breadcrumb"] a.vtex-breadcrumb-1-x-link[href]`

// Page is a parsed detail page as seen by breadcrumb sources.
type Page struct {
	Doc   *goquery.Document
	Nodes []map[string]any
	Base  *url.URL
}

// BreadcrumbSource extracts a root-first breadcrumb chain from a page. An
// empty result means the source has nothing to offer for that page.
type BreadcrumbSource interface {
	Name() string
	Breadcrumbs(page *Page) []domain.Crumb
}

// JSONLDBreadcrumbs reads the first non-empty BreadcrumbList node.
type JSONLDBreadcrumbs struct{}

func (JSONLDBreadcrumbs) Name() string { return "jsonld" }

func (JSONLDBreadcrumbs) Breadcrumbs(page *Page) []domain.Crumb {
	for _, n := range page.Nodes {
		if !hasType(n, "BreadcrumbList") {
			continue
		}
		elements, _ := n["itemListElement"].([]any)
		entries := make([]node, 0, len(elements))
		for _, el := range elements {
			if m, ok := el.(map[string]any); ok {
				entries = append(entries, m)
			}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return position(entries[i]) < position(entries[j])
		})

		var chain []domain.Crumb
		for _, li := range entries {
			src := li
			href := ""
			switch item := li["item"].(type) {
			case map[string]any:
				src = item
			case string:
				href = item
			}
			name := firstText(src["name"], li["name"])
			if href == "" {
				href = firstText(src["@id"], src["url"])
			}
			if crumb, ok := makeCrumb(name, href, page.Base); ok {
				chain = append(chain, crumb)
			}
		}
		if len(chain) > 0 {
			return chain
		}
	}
	return nil
}

// position returns the ListItem position, entries without one keep their
// document order at the end.
func position(n node) int {
	p, err := strconv.Atoi(text(n["position"]))
	if err != nil {
		return math.MaxInt
	}
	return p
}

// DOMBreadcrumbs reads breadcrumb links from the rendered markup.
type DOMBreadcrumbs struct {
	Selector string
}

func (DOMBreadcrumbs) Name() string { return "dom" }

func (d DOMBreadcrumbs) Breadcrumbs(page *Page) []domain.Crumb {
	selector := d.Selector
	if selector == "" {
		selector = DefaultBreadcrumbSelector
	}

	var chain []domain.Crumb
	page.Doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if crumb, ok := makeCrumb(a.Text(), href, page.Base); ok {
			chain = append(chain, crumb)
		}
	})
	return chain
}

func makeCrumb(name, href string, base *url.URL) (domain.Crumb, bool) {
	name = NormalizeWhitespace(name)
	abs := ResolveURL(base, href)
	slug := SlugFromURL(abs)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return domain.Crumb{}, false
	}
	if name == "" {
		name = slug
	}
	return domain.Crumb{Name: name, Slug: slug, URL: abs}, true
}
