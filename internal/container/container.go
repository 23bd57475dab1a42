package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/scraper/internal/api"
	"storefront/scraper/internal/client"
	"storefront/scraper/internal/config"
	"storefront/scraper/internal/parser"
	"storefront/scraper/internal/proxy"
	"storefront/scraper/internal/queue"
	"storefront/scraper/internal/repository"
	"storefront/scraper/internal/service"
	"storefront/scraper/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config       *config.Config
	Client       *client.StorefrontClient
	Store        repository.Store
	StateManager state.StateManager
	Journal      queue.FailureJournal
	Crawler      *service.Crawler
	Server       *api.Server

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized. On error
// everything acquired so far is released.
func New(ctx context.Context, cfg *config.Config) (_ *Container, err error) {
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	firstPage := service.PageURL(cfg.Scraper.ListingURL, 1)

	proxySupplier := proxy.NewProxySupplier(ctx, cfg.HTTP.Proxies, firstPage)
	if len(cfg.HTTP.Proxies) > 0 && proxySupplier.Len() == 0 {
		log.Warn("⚠️ No configured proxy answered, connecting directly")
	}
	c.Client = client.NewStorefrontClient(cfg.HTTP, proxySupplier)

	if err := c.initStore(ctx); err != nil {
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		return nil, err
	}

	extractor, err := parser.NewExtractor(firstPage, parser.DefaultSources(cfg.Scraper.BreadcrumbSelector)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build extractor: %w", err)
	}

	enricher := service.NewEnricher(c.Client, extractor, cfg.Scraper.Concurrency, cfg.Scraper.RootCrumbs)
	c.Crawler = service.NewCrawler(cfg.Scraper, c.Client, extractor, enricher, c.Store, c.StateManager, c.Journal)
	c.Server = api.NewServer(c.Crawler, c.Store, c.StateManager, c.Journal)

	return c, nil
}

func (c *Container) initStore(ctx context.Context) error {
	if c.Config.Database.Driver == "memory" {
		log.Info("💾 Using in-memory store")
		c.Store = repository.NewMemoryStore()
		return nil
	}

	store, pool, err := repository.NewPostgresStore(ctx, c.Config.Database.DSN(), c.Config.Database.MaxConns)
	if err != nil {
		return err
	}
	c.db = pool
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	c.Store = store

	log.Info("✅ Connected to Postgres successfully")
	return nil
}

func (c *Container) initRedis(ctx context.Context) error {
	rc := c.Config.Redis
	if !rc.Enabled {
		c.StateManager = state.NewLocalStateManager()
		c.Journal = queue.NoopJournal{}
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr(),
		Password: rc.Password,
		DB:       rc.Database,
	})
	c.redis = rdb

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("✅ Connected to Redis successfully")

	c.StateManager = state.NewRedisStateManager(rdb, rc.KeyPrefix, rc.LockTTL)
	c.Journal = queue.NewRedisJournal(rdb, rc.KeyPrefix, rc.JournalMaxLen)
	return nil
}

// Serve runs the HTTP API until ctx is cancelled, then shuts it down
// gracefully.
func (c *Container) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              c.Config.Server.Addr(),
		Handler:           c.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	c.Server.SetBaseContext(gctx)

	g.Go(func() error {
		log.Infof("🌐 Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("🛑 Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() {
	log.Info("Shutting down container...")

	if c.Client != nil {
		if err := c.Client.Close(); err != nil {
			log.Warnf("Failed to close HTTP client: %v", err)
		}
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warnf("Failed to close Redis client: %v", err)
		}
	}

	log.Info("Container shut down successfully")
}
