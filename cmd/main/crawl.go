package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storefront/scraper/internal/container"
	"storefront/scraper/internal/domain"
)

type crawlSummary struct {
	RunID              string           `json:"run_id"`
	StartedAt          time.Time        `json:"started_at"`
	Duration           string           `json:"duration"`
	Pages              int              `json:"pages"`
	Products           int              `json:"products"`
	EnrichmentFailures int              `json:"enrichment_failures"`
	Items              []domain.Product `json:"items,omitempty"`
}

func newCrawlCmd() *cobra.Command {
	var withProducts bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and print a JSON summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := container.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Crawler.Run(ctx)
			if err != nil {
				return err
			}

			summary := crawlSummary{
				RunID:              result.RunID,
				StartedAt:          result.StartedAt,
				Duration:           result.Duration.Round(time.Millisecond).String(),
				Pages:              result.Pages,
				Products:           len(result.Products),
				EnrichmentFailures: result.EnrichmentFailures,
			}
			if withProducts {
				summary.Items = result.Products
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().BoolVar(&withProducts, "products", false, "include the crawled products in the output")
	return cmd
}
