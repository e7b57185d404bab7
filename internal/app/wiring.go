package app

import (
	apihttp "anchor/internal/api/http"
	"anchor/internal/api/http/handlers"
	"anchor/internal/api/http/mw"
	"anchor/internal/batch"
	"anchor/internal/batchstore"
	"anchor/internal/config"
	"anchor/internal/dedupe"
	"anchor/internal/ingest/kafka"
	"anchor/internal/intents"
	"anchor/internal/metrics"
	"anchor/internal/netting"
	"anchor/internal/prices"
	"anchor/internal/pubsub"
	"anchor/internal/pubsub/nats"
	"anchor/internal/security"
	"anchor/internal/service"
	"anchor/internal/stores/clickhouse"
	"anchor/internal/stores/redis"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

type Container struct {
	log logger.Logger
	app *App

	svc     *service.BatcherService
	handler http.Handler

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

func (c *Container) Start(ctx context.Context) error {
	return c.app.Start(ctx)
}

func (c *Container) Errors() <-chan error {
	return c.app.Errors()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

func (c *Container) onClose(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// cleanup releases resources in reverse order of creation
func (c *Container) cleanup() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].fn(); err != nil {
			c.log.Errorf("Failed to close %s: %v", c.closers[i].name, err)
		}
	}
	c.closers = nil
	c.log.Info("Successfully cleaned up dependency")
}

// Build constructs the whole application; on error everything built so far is released
func Build(ctx context.Context, cfg *config.Config) (_ *Container, _ func(), err error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	c := &Container{log: lg}
	defer func() {
		if err != nil {
			c.cleanup()
		}
	}()

	// Profiler
	profiler, err := metrics.InitPProf(&metrics.PProfConfig{
		Enabled:       cfg.Metrics.Pyroscope.Enabled,
		AppInstanceID: cfg.App.InstanceID,
		AppName:       cfg.Metrics.Pyroscope.AppName,
		ServerAddr:    cfg.Metrics.Pyroscope.ServerAddr,
		AuthToken:     cfg.Metrics.Pyroscope.AuthToken,
		Tags:          cfg.Metrics.Pyroscope.Tags,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	if profiler != nil {
		c.onClose("profiler", profiler.Stop)
		lg.Infof("Successfully initialize Pyroscope to %s", cfg.Metrics.Pyroscope.ServerAddr)
	}

	m := metrics.New()

	// Redis client
	var rdb *redis.Client
	if cfg.Stores.Redis.Enabled {
		if rdb, err = redis.New(ctx, &cfg.Stores.Redis); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		c.onClose("redis client", rdb.Close)
		lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)
	}

	// Intent store
	store, err := buildIntentStore(lg, c, &cfg.Intents)
	if err != nil {
		return nil, nil, err
	}

	// Batch repository
	var repo batchstore.Repository = batchstore.NewMemoryRepository()
	if rdb != nil {
		if repo, err = batchstore.NewRedisRepository(lg, rdb, cfg.Stores.Redis.Prefix, 0); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize batch repository: %w", err)
		}
	}

	// Prices
	provider, err := buildPriceProvider(lg, &cfg.Prices)
	if err != nil {
		return nil, nil, err
	}
	lg.Infof("Successfully initialize price provider, source=%s", provider.name)

	// Netting
	dust := netting.DefaultDustEpsilon
	if s := strings.TrimSpace(cfg.Netting.DustEpsilon); s != "" {
		if dust, err = decimal.NewFromString(s); err != nil {
			return nil, nil, fmt.Errorf("invalid netting.dust_epsilon %q: %w", s, err)
		}
	}
	engine := netting.NewEngine(lg, dust)

	// Single-flight lock
	var locker batch.Locker = batch.NewLocalLocker()
	if cfg.Batch.DistributedLock {
		if rdb == nil {
			return nil, nil, fmt.Errorf("batch.distributed_lock requires stores.redis.enabled")
		}
		if locker, err = batch.NewRedisLocker(lg, rdb, cfg.Batch.LockKey, cfg.Batch.LockTTL); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize batch lock: %w", err)
		}
	}

	orchestrator, err := batch.NewOrchestrator(lg, batch.Deps{
		Store:        store,
		Netter:       engine,
		Prices:       provider.Provider,
		Repo:         repo,
		Locker:       locker,
		PriceTimeout: cfg.Batch.PriceTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	// NATS Broadcaster
	var broadcaster pubsub.Broadcaster = pubsub.Noop{}
	if cfg.PubSub.NATS.Enabled {
		natsCl, err := nats.New(lg, &cfg.PubSub.NATS)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize nats client: %w", err)
		}
		c.onClose("nats client", natsCl.Close)
		broadcaster = natsCl
	}

	// ClickHouse audit
	var audit service.AuditWriter
	if cfg.Stores.ClickHouse.Enabled {
		ch, err := clickhouse.New(ctx, &cfg.Stores.ClickHouse)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		c.onClose("clickhouse client", ch.Close)
		lg.Infof("Successfully initialize clickhouse client, db=%s", ch.Database())

		chWriter, err := clickhouse.NewWriter(lg, ch.Native, cfg.Stores.ClickHouse.Writer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize clickhouse writer: %w", err)
		}
		c.onClose("clickhouse writer", func() error {
			ctxClose, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return chWriter.Close(ctxClose)
		})
		if err = chWriter.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to create clickhouse schema: %w", err)
		}
		audit = chWriter
	}

	// Dedupe
	deduper, err := buildDeduper(lg, c, rdb, &cfg.Dedupe)
	if err != nil {
		return nil, nil, err
	}

	// Service Layer
	svc, err := service.NewBatcherService(lg, service.Deps{
		Store:       store,
		Processor:   orchestrator,
		Repo:        repo,
		Broadcaster: broadcaster,
		Audit:       audit,
		Deduper:     deduper,
		Metrics:     m,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize batcher service: %w", err)
	}
	c.svc = svc

	var runners []Runner

	if cfg.Batch.Enabled {
		scheduler, err := batch.NewScheduler(lg, svc, store, cfg.Batch.Interval, cfg.Batch.MinBatchSize)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		runners = append(runners, Runner{Name: "batch scheduler", Run: func(ctx context.Context) error {
			scheduler.Run(ctx)
			return nil
		}})
	}

	if cfg.Ingest.Enabled {
		consumer, err := kafka.New(lg, &cfg.Ingest, svc, deduper)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize kafka consumer: %w", err)
		}
		c.onClose("kafka consumer", consumer.Close)
		runners = append(runners, Runner{Name: "kafka consumer", Run: consumer.Run})
	}

	// HTTP
	handler, err := buildHTTPHandler(lg, cfg, rdb, svc, m)
	if err != nil {
		return nil, nil, err
	}
	c.handler = handler

	httpSrv, err := apihttp.NewServer(lg, &cfg.API.HTTP, handler)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize http server: %w", err)
	}
	lg.Info("Successfully initialize HTTP server")

	c.app = NewApp(lg, httpSrv, runners...)

	lg.Info("Successfully initialize Wiring")
	return c, c.cleanup, nil
}

func buildIntentStore(lg logger.Logger, c *Container, cfg *config.IntentsConfig) (intents.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		lg.Info("Successfully initialize in-memory intent store")
		return intents.NewMemoryStore(lg), nil
	case "bolt":
		s, err := intents.NewBoltStore(lg, cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize bolt intent store: %w", err)
		}
		c.onClose("bolt intent store", s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown intents.driver %q", cfg.Driver)
	}
}

type namedProvider struct {
	prices.Provider
	name string
}

func buildPriceProvider(lg logger.Logger, cfg *config.PricesConfig) (namedProvider, error) {
	switch cfg.Source {
	case "", "static":
		p, err := prices.NewStaticProvider(cfg.Static)
		if err != nil {
			return namedProvider{}, fmt.Errorf("failed to initialize static prices: %w", err)
		}
		return namedProvider{Provider: p, name: "static"}, nil
	case "hermes", "pyth":
		p, err := prices.NewHermesProvider(cfg.HermesURL, cfg.FeedIDs, nil)
		if err != nil {
			return namedProvider{}, fmt.Errorf("failed to initialize hermes prices: %w", err)
		}
		if !cfg.FallbackStatic {
			return namedProvider{Provider: p, name: "hermes"}, nil
		}

		static, err := prices.NewStaticProvider(cfg.Static)
		if err != nil {
			return namedProvider{}, fmt.Errorf("failed to initialize fallback prices: %w", err)
		}
		fb, err := prices.NewFallbackProvider(lg, p, static)
		if err != nil {
			return namedProvider{}, err
		}
		return namedProvider{Provider: fb, name: "hermes+static"}, nil
	case prices.SourceNone:
		return namedProvider{name: prices.SourceNone}, nil
	default:
		return namedProvider{}, fmt.Errorf("unknown prices.source %q", cfg.Source)
	}
}

func buildDeduper(lg logger.Logger, c *Container, rdb *redis.Client, cfg *config.DedupeConfig) (dedupe.Deduper, error) {
	switch cfg.Driver {
	case "", "memory":
		d := dedupe.NewInMemoryDedupe(lg, cfg.TTL, time.Minute)
		c.onClose("memory dedupe", func() error {
			d.Close()
			return nil
		})
		return d, nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("dedupe.driver=redis requires stores.redis.enabled")
		}
		d, err := dedupe.NewRedisDeduper(lg, cfg, rdb)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis deduper: %w", err)
		}
		lg.Infof("Successfully initialize Deduper redis_client by prefix %s", cfg.Prefix)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown dedupe.driver %q", cfg.Driver)
	}
}

func buildHTTPHandler(lg logger.Logger, cfg *config.Config, rdb *redis.Client, svc *service.BatcherService, m *metrics.Metrics) (http.Handler, error) {
	h, err := handlers.NewHandler(lg, svc)
	if err != nil {
		return nil, err
	}

	mws := apihttp.Middlewares{
		Logging: mw.NewLogging(lg),
		Gzip:    mw.NewGzip(cfg.API.HTTP.GzipLevel, lg),
	}
	if cfg.API.HTTP.CORS.Enabled {
		mws.CORS = mw.NewCORS(&cfg.API.HTTP.CORS)
	}

	var verifier security.Verifier
	if cfg.Security.JWT.Enabled {
		v, err := security.NewRS256Verifier(&cfg.Security.JWT)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize jwt verifier: %w", err)
		}
		verifier = v
		if mws.JWT, err = mw.NewJWTMiddleware(v); err != nil {
			return nil, err
		}
		lg.Info("Successfully initialize JWT-Verifier")
	}

	if cfg.RateLimit.Enabled {
		if rdb == nil {
			return nil, fmt.Errorf("rate_limit.enabled requires stores.redis.enabled")
		}
		if mws.RateLimit, err = mw.NewRateLimit(lg, rdb, &cfg.RateLimit, verifier); err != nil {
			return nil, err
		}
	}

	return apihttp.BuildRouter(h, m.Handler(), mws), nil
}
