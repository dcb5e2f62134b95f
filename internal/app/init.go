package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sitewarden/sitewarden/internal/audit"
	"github.com/sitewarden/sitewarden/internal/cache"
	"github.com/sitewarden/sitewarden/internal/gateway"
	"github.com/sitewarden/sitewarden/internal/metrics"
	"github.com/sitewarden/sitewarden/internal/provider"
	"github.com/sitewarden/sitewarden/internal/quota"
	"github.com/sitewarden/sitewarden/internal/server"
	"github.com/sitewarden/sitewarden/internal/store"
)

// initInfra establishes optional external connections.
// Redis is only required when the store or the cache runs in redis mode.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Store.Mode == "redis" || a.cfg.Cache.Mode == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	return nil
}

// initServices creates the settings store, the response cache, the quota
// tracker, the metrics registry, and the async audit logger.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Store.Mode {
	case "redis":
		a.settings = store.NewRedisStoreFromClient(a.rdb)
		a.log.Info("settings store: redis")
	case "memory":
		a.settings = store.NewMemoryStore()
		a.log.Info("settings store: memory (in-process)")
	default:
		return fmt.Errorf("unknown store mode: %s", a.cfg.Store.Mode)
	}

	switch a.cfg.Cache.Mode {
	case "redis":
		a.respCache = cache.NewRedisCacheFromClient(a.rdb)
		a.log.Info("cache backend: redis")
	case "memory":
		// MemoryCache — zero external dependencies, not shared across replicas.
		a.memCache = cache.NewMemoryCache(ctx)
		a.respCache = a.memCache
		a.log.Info("cache backend: memory (in-process)")
	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	a.tracker = quota.New(a.settings)

	// Seed the premium flag from config on first start only; a flag already
	// persisted in the store wins over config.
	if a.cfg.Premium {
		if _, err := a.settings.Get(ctx, store.OptPremium); errors.Is(err, store.ErrNotFound) {
			if err := a.tracker.SetPremium(ctx, true); err != nil {
				return fmt.Errorf("seed premium flag: %w", err)
			}
			a.log.Info("premium tier enabled")
		}
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	auditor, err := audit.New(a.baseCtx, a.log)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	a.auditor = auditor

	return nil
}

// initGateway builds the shared provider client and the dispatcher.
func (a *App) initGateway(_ context.Context) error {
	chatOpts := []provider.Option{
		provider.WithDevMode(a.cfg.DevMode()),
	}
	for tag, u := range a.cfg.BaseURLOverrides {
		chatOpts = append(chatOpts, provider.WithBaseURLOverride(tag, u))
		a.log.Info("provider base url override",
			slog.String("provider", string(tag)),
			slog.String("url", u),
		)
	}
	chat := provider.NewClient(chatOpts...)

	a.gw = gateway.New(a.settings, a.respCache, a.tracker, chat, gateway.Options{
		Logger:          a.log,
		Metrics:         a.prom,
		Audit:           a.auditor,
		CacheTTL:        a.cfg.Cache.TTL,
		Keyer:           cache.Keyer{ScopeProvider: a.cfg.Cache.ScopeProvider},
		DefaultProvider: provider.Tag(a.cfg.DefaultProvider),
		Credential:      a.cfg.APIKey,
	})

	return nil
}

// initServer wires the HTTP routes around the dispatcher.
func (a *App) initServer(_ context.Context) error {
	server.Version = a.version

	a.srv = server.New(a.gw, server.Options{
		Logger:          a.log,
		Metrics:         a.prom,
		CORSOrigins:     a.cfg.CORSOrigins,
		DefaultMaxCalls: a.cfg.Quota.MaxCalls,
	})

	return nil
}
