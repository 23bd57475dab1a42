package proxy

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"
)

const probeConcurrency = 16

// ProxySupplier hands out outbound proxies in round-robin order.
type ProxySupplier interface {
	Get() string
	Len() int
}

type proxySupplier struct {
	proxies []string
	current int
	mutex   sync.Mutex
}

// NewProxySupplier probes every proxy against probeURL and keeps the ones that
// answer. The configured order is preserved. With an empty probeURL the list is
// taken as is.
func NewProxySupplier(ctx context.Context, proxies []string, probeURL string) ProxySupplier {
	if len(proxies) == 0 || probeURL == "" {
		return &proxySupplier{proxies: append([]string(nil), proxies...)}
	}

	log.Infof("🔄 Probing %d proxies against %s", len(proxies), probeURL)

	alive := make([]bool, len(proxies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, p := range proxies {
		g.Go(func() error {
			alive[i] = probe(gctx, p, probeURL)
			return nil
		})
	}
	_ = g.Wait()

	working := make([]string, 0, len(proxies))
	for i, ok := range alive {
		if ok {
			working = append(working, proxies[i])
		} else {
			log.Warnf("❌ Proxy %s did not answer, skipping", proxies[i])
		}
	}

	log.Infof("✅ %d of %d proxies usable", len(working), len(proxies))
	return &proxySupplier{proxies: working}
}

// Get returns the next proxy, or "" when none are usable.
func (p *proxySupplier) Get() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	proxy := p.proxies[p.current]
	p.current = (p.current + 1) % len(p.proxies)
	return proxy
}

func (p *proxySupplier) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.proxies)
}

func probe(ctx context.Context, proxyURL, probeURL string) bool {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0).
		SetProxy(proxyURL)
	defer client.Close()

	resp, err := client.R().
		SetContext(ctx).
		Head(probeURL)
	if err != nil {
		log.Debugf("Proxy probe failed for %s: %v", proxyURL, err)
		return false
	}
	if resp.IsError() {
		log.Debugf("Proxy probe for %s returned %s", proxyURL, resp.Status())
		return false
	}
	return true
}
