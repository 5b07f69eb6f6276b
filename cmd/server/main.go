package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/api"
	"github.com/oleg-messenger/oleg/internal/api/middleware"
	"github.com/oleg-messenger/oleg/internal/auth"
	"github.com/oleg-messenger/oleg/internal/blob"
	"github.com/oleg-messenger/oleg/internal/cache"
	"github.com/oleg-messenger/oleg/internal/config"
	"github.com/oleg-messenger/oleg/internal/engine"
	"github.com/oleg-messenger/oleg/internal/handlers"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/ratelimit"
	"github.com/oleg-messenger/oleg/internal/snapshot"
	"github.com/oleg-messenger/oleg/internal/store"
	"github.com/oleg-messenger/oleg/internal/ws"
)

const (
	sweepInterval = time.Minute
	snapshotKey   = "oleg:state"
)

// backends are the swappable stores behind the engine: Redis when
// configured, in-process otherwise.
type backends struct {
	counter  ratelimit.Counter
	pages    cache.Store[*models.Page]
	sessions cache.Store[string]
	blocks   cache.Store[string]
	sink     snapshot.Sink
	sweepers []func(ctx context.Context)
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Redis
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		var err error
		rdb, err = store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer rdb.Close()
		logger.Info().Msg("connected to Redis")
	}
	b := newBackends(cfg, rdb, logger)

	// Initialize the relational mirror
	mirror := openMirror(ctx, cfg, logger)
	defer mirror.Close()

	// Initialize upload storage
	blobs, err := blob.New(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("upload storage unavailable")
	}

	hub := ws.NewHub(logger)
	eng := engine.New(engine.Options{
		Broadcaster: hub,
		Auth:        auth.New(b.sessions, cfg.SessionTTL),
		Blobs:       blobs,
		Limiter:     ratelimit.New(b.counter, nil),
		Pages:       b.pages,
		PageTTL:     cfg.PageCacheTTL,
		Sink:        b.sink,
		Mirror:      mirror,
		Admins:      cfg.AdminUsers,
		Logger:      logger,
	})
	eng.Load(ctx)

	var wg sync.WaitGroup
	background := append([]func(context.Context){hub.Run, eng.Run}, b.sweepers...)
	for _, run := range background {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	// Create router
	h := handlers.NewHandler(handlers.Deps{
		Engine:  eng,
		Mirror:  mirror,
		Redis:   rdb,
		Blobs:   blobs,
		Hub:     hub,
		Origins: cfg.Origins,
		Logger:  logger,
	})
	router := api.NewRouter(api.Options{
		Handler: h,
		Auth:    eng,
		Limiter: middleware.NewRateLimiter(b.counter, b.blocks, logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		}),
		Origins: cfg.Origins,
		HSTS:    !cfg.IsDevelopment(),
		Logger:  logger,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("mirror", mirror.Driver()).
			Bool("redis", rdb != nil).
			Msg("starting Oleg server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop background loops, then write the final snapshot
	stop()
	wg.Wait()
	if err := eng.Flush(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	}

	logger.Info().Msg("server stopped")
}

// newBackends picks Redis-backed stores when a client is available.
func newBackends(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) backends {
	if rdb != nil {
		return backends{
			counter:  ratelimit.NewRedis(rdb, logger),
			pages:    cache.NewRedis[*models.Page](rdb, "oleg:pages", logger),
			sessions: cache.NewRedis[string](rdb, "oleg:sessions", logger),
			blocks:   cache.NewRedis[string](rdb, "oleg:blocks", logger),
			sink:     snapshot.NewRedisSink(rdb, snapshotKey),
		}
	}

	counter := ratelimit.NewMemory()
	pages := cache.NewMemory[*models.Page]()
	sessions := cache.NewMemory[string]()
	blocks := cache.NewMemory[string]()

	b := backends{
		counter:  counter,
		pages:    cache.Local(pages),
		sessions: cache.Local(sessions),
		blocks:   cache.Local(blocks),
		sweepers: []func(context.Context){
			func(ctx context.Context) { counter.Run(ctx, sweepInterval, time.Hour) },
			func(ctx context.Context) { pages.Run(ctx, sweepInterval) },
			func(ctx context.Context) { sessions.Run(ctx, sweepInterval) },
			func(ctx context.Context) { blocks.Run(ctx, sweepInterval) },
		},
	}
	if cfg.SnapshotPath != "" {
		b.sink = snapshot.NewFileSink(cfg.SnapshotPath)
	}
	return b
}

// openMirror connects the configured database. Without one the queue is a
// no-op.
func openMirror(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *store.Queue {
	var (
		m   store.Mirror
		err error
	)
	switch cfg.MirrorDriver() {
	case "postgres":
		m, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "sqlite":
		m, err = store.NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return store.NewQueue(nil, "", logger)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.MirrorDriver()).Msg("database connection failed")
	}
	logger.Info().Str("driver", cfg.MirrorDriver()).Msg("connected to database mirror")
	return store.NewQueue(m, cfg.MirrorDriver(), logger)
}
