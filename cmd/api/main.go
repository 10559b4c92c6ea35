package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/identityhub/internal/accounts"
	"github.com/geocoder89/identityhub/internal/auth"
	"github.com/geocoder89/identityhub/internal/cache"
	"github.com/geocoder89/identityhub/internal/config"
	"github.com/geocoder89/identityhub/internal/db"
	httpx "github.com/geocoder89/identityhub/internal/http"
	"github.com/geocoder89/identityhub/internal/http/handlers"
	"github.com/geocoder89/identityhub/internal/observability"
	"github.com/geocoder89/identityhub/internal/repo/memory"
	"github.com/geocoder89/identityhub/internal/repo/postgres"
	"github.com/geocoder89/identityhub/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type store interface {
	accounts.IdentityStore
	handlers.Pinger
}

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	shutdownTracer, err := observability.InitTracer(rootCtx, observability.TracerConfig{
		ServiceName: "identityhub-api",
		Environment: cfg.Env,
		Endpoint:    cfg.OTELEndpoint,
		SampleRatio: cfg.OTELSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	users, closeStore, err := openStore(rootCtx, cfg, prom, log)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	hasher, err := security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency, prom)
	if err != nil {
		log.Error("hasher init failed", "err", err)
		os.Exit(1)
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Error("token manager init failed", "err", err)
		os.Exit(1)
	}

	profiles, closeCache := newProfileCache(rootCtx, cfg, log)
	defer closeCache()

	svc := accounts.NewService(users, hasher, tokens,
		accounts.WithProfileCache(profiles),
		accounts.WithObserver(prom),
	)

	// set up routers with the log
	router := httpx.NewRouter(log, httpx.RouterDeps{
		Env:          cfg.Env,
		Accounts:     svc,
		Tokens:       tokens,
		Prom:         prom,
		Registry:     reg,
		Ready:        []handlers.Pinger{users},
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
		StaticDir:    cfg.StaticDir,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver, "token_ttl", tokens.TTL().String())
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

func openStore(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (store, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory user store; accounts are lost on restart")
		return memory.NewUsersRepo(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.DBMigrate {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if err := db.Migrate(mctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied")
	}

	return postgres.NewUsersRepo(pool, prom), pool.Close, nil
}

// newProfileCache prefers Redis so replicas share hits, and falls back to an
// in-process cache when Redis is not configured or not reachable at startup.
func newProfileCache(ctx context.Context, cfg config.Config, log *slog.Logger) (accounts.ProfileCache, func()) {
	if cfg.RedisAddr == "" {
		return cache.NewProfiles(cfg.SearchCacheTTL), func() {}
	}

	rdb := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	profiles := cache.NewRedisProfiles(rdb, cfg.SearchCacheTTL, log)

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := profiles.Ping(pctx); err != nil {
		log.Warn("redis unreachable, using in-process profile cache", "addr", cfg.RedisAddr, "err", err)
		_ = rdb.Close()
		return cache.NewProfiles(cfg.SearchCacheTTL), func() {}
	}

	return profiles, func() { _ = rdb.Close() }
}
