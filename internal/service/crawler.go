package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/scraper/internal/client"
	"storefront/scraper/internal/config"
	"storefront/scraper/internal/domain"
	"storefront/scraper/internal/domain/task"
	"storefront/scraper/internal/metrics"
	"storefront/scraper/internal/parser"
	"storefront/scraper/internal/queue"
	"storefront/scraper/internal/repository"
	"storefront/scraper/internal/state"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// PagePlaceholder is replaced by the page number in the listing URL.
const PagePlaceholder = "{page}"

// Crawler walks the paginated listing, enriches every page and persists it.
type Crawler struct {
	cfg          config.ScraperConfig
	fetcher      client.Fetcher
	extractor    *parser.Extractor
	enricher     *Enricher
	store        repository.Store
	stateManager state.StateManager
	journal      queue.FailureJournal
}

func NewCrawler(
	cfg config.ScraperConfig,
	fetcher client.Fetcher,
	extractor *parser.Extractor,
	enricher *Enricher,
	store repository.Store,
	stateManager state.StateManager,
	journal queue.FailureJournal,
) *Crawler {
	if journal == nil {
		journal = queue.NoopJournal{}
	}
	if stateManager == nil {
		stateManager = state.NewLocalStateManager()
	}
	return &Crawler{
		cfg:          cfg,
		fetcher:      fetcher,
		extractor:    extractor,
		enricher:     enricher,
		store:        store,
		stateManager: stateManager,
		journal:      journal,
	}
}

// run carries the progress of one Run call.
type run struct {
	id       string
	logger   *log.Entry
	seen     map[string]struct{}
	crawled  []string
	pages    int
	failures int
}

// Run crawls from page 1 until a page yields no products or the page cap is
// reached. Products persisted by earlier pages stay stored when a later page
// fails.
func (c *Crawler) Run(ctx context.Context) (*domain.RunResult, error) {
	r := &run{
		id:   uuid.NewString(),
		seen: make(map[string]struct{}),
	}
	r.logger = log.WithField("run_id", r.id)

	release, err := c.stateManager.AcquireRun(ctx, r.id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warnf("⚠️ %v", err)
		}
	}()

	started := time.Now()
	r.logger.Infof("🚀 Starting crawl of %s", c.cfg.ListingURL)

	if err := c.crawl(ctx, r); err != nil {
		metrics.RunFinished(metrics.RunError)
		c.checkpoint(ctx, r, true, err)
		r.logger.Errorf("❌ Crawl failed after %d pages: %v", r.pages, err)
		return nil, err
	}

	products, err := c.store.FindByURLs(ctx, r.crawled)
	if err != nil {
		err = fmt.Errorf("failed to read back crawled products: %w", err)
		metrics.RunFinished(metrics.RunError)
		c.checkpoint(ctx, r, true, err)
		r.logger.Errorf("❌ %v", err)
		return nil, err
	}

	c.checkpoint(ctx, r, true, nil)
	metrics.RunFinished(metrics.RunOK)

	result := &domain.RunResult{
		RunID:              r.id,
		StartedAt:          started,
		Duration:           time.Since(started),
		Pages:              r.pages,
		EnrichmentFailures: r.failures,
		Products:           products,
	}
	r.logger.Infof("✅ Crawl finished: %d pages, %d products, %d enrichment failures in %s",
		result.Pages, len(result.Products), result.EnrichmentFailures, result.Duration.Round(time.Millisecond))
	return result, nil
}

func (c *Crawler) crawl(ctx context.Context, r *run) error {
	for page := 1; c.cfg.MaxPages == 0 || page <= c.cfg.MaxPages; page++ {
		if page > 1 {
			if err := c.wait(ctx); err != nil {
				return err
			}
		}

		products, err := c.fetchListing(ctx, page)
		if err != nil {
			metrics.PageProcessed(metrics.PageError)
			return err
		}
		if len(products) == 0 {
			metrics.PageProcessed(metrics.PageEmpty)
			r.logger.Infof("🏁 Page %d is empty, stopping", page)
			return nil
		}

		fresh := r.unseen(products)
		if err := c.processPage(ctx, r, page, fresh); err != nil {
			metrics.PageProcessed(metrics.PageError)
			return err
		}

		r.pages = page
		metrics.PageProcessed(metrics.PageOK)
		c.checkpoint(ctx, r, false, nil)
		r.logger.WithField("page", page).Infof("📄 Page done: %d products (%d new)", len(products), len(fresh))
	}

	r.logger.Infof("🏁 Reached page cap %d", c.cfg.MaxPages)
	return nil
}

func (c *Crawler) fetchListing(ctx context.Context, page int) ([]domain.Product, error) {
	pageURL := PageURL(c.cfg.ListingURL, page)

	html, err := c.fetcher.FetchText(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page %d: %w", page, err)
	}

	res, err := c.extractor.Extract(html, parser.ModeListing)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page %d: %w", page, err)
	}
	return res.Products, nil
}

func (c *Crawler) processPage(ctx context.Context, r *run, page int, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	var enriched []Enriched
	if c.cfg.EnrichFromDetail {
		enriched = c.enricher.Enrich(ctx, products)
		if err := ctx.Err(); err != nil {
			return err
		}
	} else {
		enriched = make([]Enriched, len(products))
		for i, p := range products {
			enriched[i] = Enriched{Product: p}
		}
	}

	for _, e := range enriched {
		if e.Err != nil {
			r.failures++
			c.recordFailure(ctx, r, page, e)
		}
		if err := c.persist(ctx, e); err != nil {
			return err
		}
		r.crawled = append(r.crawled, e.Product.URL)
	}
	return nil
}

// persist upserts the product and, when a breadcrumb was found, replaces its
// category links.
func (c *Crawler) persist(ctx context.Context, e Enriched) error {
	id, err := c.store.Upsert(ctx, e.Product)
	if err != nil {
		return err
	}
	metrics.ProductPersisted()

	if e.Err != nil || len(e.Breadcrumb) == 0 {
		return nil
	}

	categories, err := c.store.Resolve(ctx, e.Breadcrumb)
	if err != nil {
		return err
	}
	ids := make([]int64, len(categories))
	for i, cat := range categories {
		ids[i] = cat.ID
	}
	return c.store.Relink(ctx, id, ids)
}

func (c *Crawler) recordFailure(ctx context.Context, r *run, page int, e Enriched) {
	_, err := c.journal.Record(ctx, &task.EnrichmentFailureTask{
		RunID:        r.id,
		Page:         page,
		ProductURL:   e.Product.URL,
		Error:        e.Err.Error(),
		FailureStage: e.Stage,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		r.logger.Warnf("⚠️ Failed to journal enrichment failure of %s: %v", e.Product.URL, err)
	}
}

func (c *Crawler) checkpoint(ctx context.Context, r *run, finished bool, runErr error) {
	cp := domain.Checkpoint{
		RunID:     r.id,
		Page:      r.pages,
		Products:  len(r.crawled),
		Failures:  r.failures,
		Finished:  finished,
		UpdatedAt: time.Now().UTC(),
	}
	if runErr != nil {
		cp.Error = runErr.Error()
	}
	if err := c.stateManager.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
		r.logger.Warnf("⚠️ %v", err)
	}
}

// wait sleeps for the page delay unless ctx ends first.
func (c *Crawler) wait(ctx context.Context) error {
	if c.cfg.PageDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.cfg.PageDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// unseen returns the products not crawled earlier in this run and marks
// every product of the page as seen.
func (r *run) unseen(products []domain.Product) []domain.Product {
	fresh := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if _, ok := r.seen[p.URL]; ok {
			continue
		}
		r.seen[p.URL] = struct{}{}
		fresh = append(fresh, p)
	}
	return fresh
}

// PageURL builds the listing URL for page. The {page} placeholder is
// substituted when present, otherwise the page query parameter is set.
func PageURL(listingURL string, page int) string {
	n := strconv.Itoa(page)
	if strings.Contains(listingURL, PagePlaceholder) {
		return strings.ReplaceAll(listingURL, PagePlaceholder, n)
	}

	u, err := url.Parse(listingURL)
	if err != nil {
		return listingURL
	}
	q := u.Query()
	q.Set("page", n)
	u.RawQuery = q.Encode()
	return u.String()
}
