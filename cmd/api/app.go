package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/marketrank/internal/api"
	"github.com/onnwee/marketrank/internal/catalog"
	"github.com/onnwee/marketrank/internal/config"
	"github.com/onnwee/marketrank/internal/health"
	"github.com/onnwee/marketrank/internal/location"
	"github.com/onnwee/marketrank/internal/middleware"
	"github.com/onnwee/marketrank/internal/ranking"
	"github.com/onnwee/marketrank/internal/tracing"
)

const serviceName = "marketrank-api"

// app holds the wired HTTP handler and the resources to release on shutdown.
type app struct {
	handler  http.Handler
	registry *prometheus.Registry
	closers  []func(context.Context) error
	logger   *slog.Logger
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("failed to release resource", "error", err)
		}
	}
}

// newApp wires storage, ranking, observability and routes from cfg.
// Without DATABASE_URL the catalog is kept in memory; without REDIS_URL
// session locations and rate limits are too.
//
// On error every resource acquired so far is released before returning.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporterType,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, tp.Shutdown)

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rankingMetrics := ranking.NewMetrics()
	if err := rankingMetrics.Register(a.registry); err != nil {
		return nil, fmt.Errorf("register ranking metrics: %w", err)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(a.registry); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	weights, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		// Defaults are returned alongside the error.
		logger.Warn("using default ranking weights", "error", err)
	}
	ranker, err := ranking.NewRanker(*weights,
		ranking.WithParallelism(cfg.RankingParallelism),
		ranking.WithMetrics(rankingMetrics),
		ranking.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("init ranker: %w", err)
	}

	var (
		repo         catalog.Repository
		dbChecker    api.HealthChecker
		redisChecker api.HealthChecker
		locations    location.Cache
		limiterStore middleware.RateLimitStore
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		db.SetMaxOpenConns(20)
		db.SetConnMaxIdleTime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		repo = catalog.NewPostgresRepository(db, logger)
		dbChecker = health.NewDBChecker(db)
		logger.Info("catalog backed by postgres")
	} else {
		repo = catalog.NewInMemoryRepository()
		logger.Info("catalog kept in memory")
	}

	if cfg.CatalogSeedPath != "" {
		if _, err := catalog.LoadSeed(ctx, repo, cfg.CatalogSeedPath, logger); err != nil {
			return nil, err
		}
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		locations = location.NewRedisCache(client, cfg.LocationCacheTTL)
		limiterStore = middleware.NewRedisRateLimitStore(client, httpMetrics, logger)
		redisChecker = health.NewRedisChecker(client)
		logger.Info("session locations and rate limits backed by redis")
	} else {
		locations = location.NewMemoryCache(cfg.LocationCacheTTL)
		memStore := middleware.NewInMemoryRateLimitStore()
		cleanupCtx, cancel := context.WithCancel(context.Background())
		memStore.StartCleanup(cleanupCtx, 5*time.Minute)
		a.closers = append(a.closers, func(context.Context) error { cancel(); return nil })
		limiterStore = memStore
	}

	rankHandlers := api.NewRankHandlers(ranker, cfg.MaxCandidates, logger)
	searchHandlers := api.NewSearchHandlers(api.SearchHandlersConfig{
		Repository:      repo,
		Averages:        catalog.NewAverageCache(repo, cfg.CategoryAverageTTL, logger),
		Locations:       locations,
		Ranker:          ranker,
		MaxCandidates:   cfg.MaxCandidates,
		DefaultRadiusKm: cfg.DefaultRadiusKm,
		Logger:          logger,
	})
	locationHandlers := api.NewLocationHandlers(locations, logger)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    dbChecker,
		RedisChecker: redisChecker,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/rank", rankHandlers.Rank)
	mux.HandleFunc("/listings/search", searchHandlers.Search)
	mux.HandleFunc("/location", locationHandlers.Location)
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"` + serviceName + `"}`))
	})

	// Tracing -> RequestID -> Logging -> HTTPMetrics -> RateLimiter -> routes
	var handler http.Handler = mux
	if cfg.RateLimitPerMinute > 0 {
		limit := middleware.RateLimitConfig{RequestsPerWindow: cfg.RateLimitPerMinute, WindowDuration: time.Minute}
		if err := limit.Validate(); err != nil {
			return nil, err
		}
		handler = middleware.RateLimiter(limiterStore, limit, middleware.SessionKeyFunc(), httpMetrics)(handler)
	}
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Tracing(serviceName)(handler)

	a.handler = handler
	return a, nil
}
