// Command server starts the Fiszki flashcard generator HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fiszki/kreator/internal/adapter/ai/openrouter"
	"github.com/fiszki/kreator/internal/adapter/ai/tokencount"
	rediscache "github.com/fiszki/kreator/internal/adapter/cache/redis"
	httpserver "github.com/fiszki/kreator/internal/adapter/httpserver"
	"github.com/fiszki/kreator/internal/adapter/observability"
	"github.com/fiszki/kreator/internal/adapter/repo/postgres"
	"github.com/fiszki/kreator/internal/app"
	"github.com/fiszki/kreator/internal/config"
	"github.com/fiszki/kreator/internal/domain"
	"github.com/fiszki/kreator/internal/service/ratelimiter"
	"github.com/fiszki/kreator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool and schema
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}
	texts := postgres.NewSourceTextRepo(pool)
	cards := postgres.NewFlashcardRepo(pool)

	// Redis backs the per-owner limiter and the generation cache. Both fail
	// open, so a bad URL only disables them.
	var rdb *goredis.Client
	if opts, err := goredis.ParseURL(cfg.RedisURL); err != nil {
		slog.Warn("invalid REDIS_URL, rate limiting and caching disabled", slog.Any("error", err))
	} else {
		rdb = goredis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	limiter := ratelimiter.NewRedisLuaLimiter(rdb, pool, map[string]ratelimiter.BucketConfig{
		ratelimiter.BucketGenerate: ratelimiter.NewBucketConfigFromPerMinute(cfg.GenerateRatePerMin),
	})
	if limiter != nil {
		warmCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := limiter.WarmFromPostgres(warmCtx); err != nil {
			slog.Warn("rate limiter warm-up failed", slog.Any("error", err))
		}
		cancel()
	}

	gen, aiStatus := buildGenerator(cfg, rdb)

	sourceSvc := usecase.NewSourceTextService(texts)
	generateSvc := usecase.NewGenerateService(texts, cards, gen, limiter)

	var redisReady goredis.Cmdable
	if rdb != nil {
		redisReady = rdb
	}
	dbCheck, redisCheck, aiCheck := app.BuildReadinessChecks(pool, redisReady, aiStatus)

	srv := httpserver.NewServer(cfg, sourceSvc, generateSvc, dbCheck, redisCheck, aiCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// buildGenerator wires the OpenRouter client behind the generation cache.
// Without an API key the server still starts and generation answers 503.
func buildGenerator(cfg config.Config, rdb *goredis.Client) (domain.FlashcardGenerator, app.AIStatus) {
	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		slog.Error("failed to load prompts", slog.Any("error", err))
		os.Exit(1)
	}
	client, err := openrouter.New(cfg,
		openrouter.WithPrompts(prompts),
		openrouter.WithTokenEstimator(tokencount.NewCounter()))
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			slog.Warn("AI service disabled", slog.Any("error", err))
			return nil, nil
		}
		slog.Error("openrouter client setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	gen := openrouter.Generator{Client: client}
	return rediscache.NewGenerationCache(rdb, gen, client.Model(), cfg.GenerationCacheTTL), client
}
