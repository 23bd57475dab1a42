// Package metrics exposes the scraper's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_pages_total",
		Help: "Listing pages processed, by outcome.",
	}, []string{"status"})

	productsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_products_persisted_total",
		Help: "Products upserted into the store.",
	})

	enrichmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_enrichment_failures_total",
		Help: "Detail pages that could not be fetched or parsed.",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_runs_total",
		Help: "Crawl runs, by outcome.",
	}, []string{"status"})

	fetchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_fetch_seconds",
		Help:    "Latency of storefront HTTP fetches.",
		Buckets: prometheus.DefBuckets,
	})
)

// Page outcomes.
const (
	PageOK    = "ok"
	PageEmpty = "empty"
	PageError = "error"
)

// Run outcomes.
const (
	RunOK    = "ok"
	RunError = "error"
)

func PageProcessed(status string) { pagesTotal.WithLabelValues(status).Inc() }

func ProductPersisted() { productsPersisted.Inc() }

func EnrichmentFailed() { enrichmentFailures.Inc() }

func RunFinished(status string) { runsTotal.WithLabelValues(status).Inc() }

func ObserveFetch(d time.Duration) { fetchSeconds.Observe(d.Seconds()) }

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
