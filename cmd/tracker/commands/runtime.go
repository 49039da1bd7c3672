package commands

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-product-tracker/internal/api"
	"github.com/maltedev/amazon-product-tracker/internal/browser"
	"github.com/maltedev/amazon-product-tracker/internal/config"
	"github.com/maltedev/amazon-product-tracker/internal/database"
	"github.com/maltedev/amazon-product-tracker/internal/events"
	"github.com/maltedev/amazon-product-tracker/internal/jobs"
	"github.com/maltedev/amazon-product-tracker/internal/metrics"
	"github.com/maltedev/amazon-product-tracker/internal/proxy"
	"github.com/maltedev/amazon-product-tracker/internal/report"
)

// backends holds the optional infrastructure a command runs against.
type backends struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	db       *database.DB
	outbox   *database.OutboxRepository
	redis    *redis.Client
}

func openBackends(ctx context.Context) (*backends, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	b := &backends{registry: reg, metrics: metrics.New(reg)}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.DatabaseConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.db = db
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				b.Close()
				return nil, err
			}
		}
		b.outbox = database.NewOutboxRepository(db, database.DefaultRunStream)
		appLog.Info("database connected", "host", cfg.Database.Host, "name", cfg.Database.Name)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			b.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.redis = client
		appLog.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	return b, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			appLog.Warn("failed to close redis", "error", err)
		}
	}
	if b.db != nil {
		b.db.Close()
	}
}

// handlers returns the event handlers backed by infrastructure.
func (b *backends) handlers() []events.Handler {
	if b.redis == nil {
		return nil
	}
	return []events.Handler{events.NewRedisPublisher(b.redis, events.RedisPublisherConfig{
		Stream:       cfg.Redis.EventStream,
		MaxLen:       cfg.Redis.StreamMaxLen,
		SkipProgress: cfg.Redis.SkipProgress,
	}, appLog, b.metrics)}
}

func (b *backends) sinks() []report.Sink {
	var sinks []report.Sink
	if cfg.Scraper.ReportDir != "" {
		sinks = append(sinks, report.NewFileSink(cfg.Scraper.ReportDir))
	}
	if b.db != nil {
		sinks = append(sinks, database.NewArchiveRepository(b.db, b.outbox, appLog))
	}
	return sinks
}

// relay returns nil unless both the archive and redis are configured.
func (b *backends) relay() *database.Relay {
	if b.outbox == nil || b.redis == nil {
		return nil
	}
	return database.NewRelay(b.outbox, b.redis, database.RelayConfig{PollInterval: cfg.Redis.RelayInterval}, appLog, b.metrics)
}

func (b *backends) healthChecks() []api.HealthCheck {
	var checks []api.HealthCheck
	if b.db != nil {
		checks = append(checks, api.HealthCheck{Name: "postgres", Check: b.db.Ping})
	}
	if b.redis != nil {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return b.redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// newProvider returns the configured page engine and its cleanup.
func newProvider() (browser.Provider, func(), error) {
	switch cfg.Browser.Engine {
	case config.EngineHTTP:
		return browser.NewStaticProvider(browser.HTTPFetcher{}), func() {}, nil
	default:
		p, err := browser.NewPlaywrightProvider(appLog)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				appLog.Warn("failed to stop playwright", "error", err)
			}
		}, nil
	}
}

func loadProxies() (*proxy.Pool, error) {
	switch {
	case cfg.Scraper.ProxyFile != "":
		return proxy.LoadFile(cfg.Scraper.ProxyFile)
	case len(cfg.Scraper.Proxies) > 0:
		return proxy.NewPool(cfg.Scraper.Proxies)
	}
	return nil, nil
}

type managerDeps struct {
	provider browser.Provider
	proxies  *proxy.Pool
	sinks    []report.Sink
	images   report.ImageSink
	handlers []events.Handler
}

func newManager(b *backends, deps managerDeps) *jobs.Manager {
	sinks := append(deps.sinks, b.sinks()...)
	var sink report.Sink
	if len(sinks) > 0 {
		sink = report.Multi(sinks...)
	}
	if deps.images == nil && cfg.Scraper.ImagesDir != "" {
		deps.images = report.NewDirImages(cfg.Scraper.ImagesDir, cfg.Browser.Timeout)
	}

	return jobs.NewManager(jobs.Config{
		Provider:       deps.provider,
		Proxies:        deps.proxies,
		Session:        cfg.SessionOptions(),
		PageDelayMin:   cfg.Scraper.PageDelayMin,
		PageDelayMax:   cfg.Scraper.PageDelayMax,
		DetailDelayMin: cfg.Scraper.DetailDelayMin,
		DetailDelayMax: cfg.Scraper.DetailDelayMax,
		Adaptive:       cfg.Scraper.Adaptive,
		Handlers:       append(deps.handlers, b.handlers()...),
		Sink:           sink,
		Images:         deps.images,
	}, appLog, b.metrics)
}
