package service

import (
	"context"
	"fmt"

	"storefront/scraper/internal/client"
	"storefront/scraper/internal/domain"
	"storefront/scraper/internal/metrics"
	"storefront/scraper/internal/parser"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Failure stages recorded on Enriched.
const (
	StageFetch = "fetch"
	StageParse = "parse"
)

// Enriched is the outcome of enriching one listing product. On failure Err
// is set, Product is the listing product unchanged and Breadcrumb is empty.
type Enriched struct {
	Product    domain.Product
	Breadcrumb []domain.Crumb
	Err        error
	Stage      string
}

// Enricher fetches product detail pages with bounded concurrency and merges
// them into listing products.
type Enricher struct {
	fetcher     client.Fetcher
	extractor   *parser.Extractor
	concurrency int
	rootCrumbs  map[string]struct{}
}

func NewEnricher(fetcher client.Fetcher, extractor *parser.Extractor, concurrency int, rootCrumbs []string) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	roots := make(map[string]struct{}, len(rootCrumbs))
	for _, r := range rootCrumbs {
		roots[parser.Slugify(r)] = struct{}{}
	}
	return &Enricher{
		fetcher:     fetcher,
		extractor:   extractor,
		concurrency: concurrency,
		rootCrumbs:  roots,
	}
}

// Enrich returns one Enriched per product, in batch order. A failing product
// never stops the others. Only ctx cancellation cuts the batch short, in which
// case the remaining products come back with ctx.Err().
func (e *Enricher) Enrich(ctx context.Context, batch []domain.Product) []Enriched {
	results := make([]Enriched, len(batch))

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i, p := range batch {
		g.Go(func() error {
			results[i] = e.enrichOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Enricher) enrichOne(ctx context.Context, base domain.Product) Enriched {
	if err := ctx.Err(); err != nil {
		return Enriched{Product: base, Err: err, Stage: StageFetch}
	}

	html, err := e.fetcher.FetchText(ctx, base.URL)
	if err != nil {
		return e.fail(base, StageFetch, err)
	}

	res, err := e.extractor.Extract(html, parser.ModeDetail)
	if err != nil {
		return e.fail(base, StageParse, err)
	}

	merged := base
	if len(res.Products) > 0 {
		merged = mergeDetail(base, res.Products[0])
	}
	return Enriched{
		Product:    merged,
		Breadcrumb: e.trimCrumbs(merged, res.Breadcrumb),
	}
}

func (e *Enricher) fail(base domain.Product, stage string, err error) Enriched {
	metrics.EnrichmentFailed()
	log.WithFields(log.Fields{
		"url":   base.URL,
		"stage": stage,
	}).Warnf("⚠️ Enrichment failed: %v", err)
	return Enriched{
		Product: base,
		Err:     fmt.Errorf("enrich %s: %w", base.URL, err),
		Stage:   stage,
	}
}

// mergeDetail lets the detail page override descriptive fields while price
// and currency from the listing win when present.
func mergeDetail(base, detail domain.Product) domain.Product {
	patch := domain.Product{
		Description: detail.Description,
		ImageURL:    detail.ImageURL,
		SKU:         detail.SKU,
		Brand:       detail.Brand,
	}
	if base.Name == "" {
		patch.Name = detail.Name
	}
	if base.Price == nil {
		patch.Price = detail.Price
	}
	if base.Currency == nil {
		patch.Currency = detail.Currency
	}
	return domain.Overlay(base, patch)
}

// trimCrumbs drops leading root crumbs and a trailing crumb naming the
// product itself.
func (e *Enricher) trimCrumbs(p domain.Product, chain []domain.Crumb) []domain.Crumb {
	start := 0
	for start < len(chain) {
		if _, ok := e.rootCrumbs[chain[start].Slug]; !ok {
			break
		}
		start++
	}
	out := chain[start:]

	if n := len(out); n > 0 && isSelfCrumb(p, out[n-1]) {
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isSelfCrumb(p domain.Product, c domain.Crumb) bool {
	if c.URL != "" && c.URL == p.URL {
		return true
	}
	return c.Slug == parser.SlugFromURL(p.URL) || (p.Name != "" && c.Slug == parser.Slugify(p.Name))
}
