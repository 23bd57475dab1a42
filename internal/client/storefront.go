package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront/scraper/internal/config"
	"storefront/scraper/internal/domain"
	"storefront/scraper/internal/metrics"
	"storefront/scraper/internal/proxy"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

// Fetcher retrieves a page body as text. Failures are *domain.TransportError.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

type StorefrontClient struct {
	rl            ratelimit.Limiter
	httpClient    *resty.Client
	proxySupplier proxy.ProxySupplier
}

func NewStorefrontClient(cfg config.HTTPConfig, proxySupplier proxy.ProxySupplier) *StorefrontClient {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "es-CL,es;q=0.9,en;q=0.5")

	if cfg.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Using proxy: %s", proxyURL)
		}
	}

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	return &StorefrontClient{
		rl:            rl,
		httpClient:    client,
		proxySupplier: proxySupplier,
	}
}

// FetchText issues a GET and returns the decoded body. Non-2xx statuses and
// network failures come back as *domain.TransportError.
func (c *StorefrontClient) FetchText(ctx context.Context, url string) (string, error) {
	c.rl.Take()

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(url)
	metrics.ObserveFetch(time.Since(start))

	if err != nil {
		if ctx.Err() != nil {
			return "", &domain.TransportError{URL: url, Err: fmt.Errorf("request cancelled: %w", ctx.Err())}
		}
		c.rotateProxy()
		return "", &domain.TransportError{URL: url, Err: err}
	}

	if resp.IsError() {
		return "", &domain.TransportError{
			URL:        url,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(http.StatusText(resp.StatusCode())),
		}
	}

	body := resp.String()
	log.Debugf("Fetched %s (%d bytes)", url, len(body))
	return body, nil
}

// rotateProxy moves to the next proxy after a connection failure.
func (c *StorefrontClient) rotateProxy() {
	if c.proxySupplier == nil || c.proxySupplier.Len() < 2 {
		return
	}
	if next := c.proxySupplier.Get(); next != "" {
		log.Infof("🔄 Switching to proxy: %s", next)
		c.httpClient.SetProxy(next)
	}
}

func (c *StorefrontClient) Close() error {
	return c.httpClient.Close()
}
