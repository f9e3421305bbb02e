package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/opsgrid/pkg/cache"
	"github.com/Sternrassler/opsgrid/pkg/client"
	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/Sternrassler/opsgrid/pkg/config"
	"github.com/Sternrassler/opsgrid/pkg/logging"
	"github.com/Sternrassler/opsgrid/pkg/pagination"
	"github.com/Sternrassler/opsgrid/pkg/ratelimit"
	"github.com/Sternrassler/opsgrid/pkg/table"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "opsgrid",
	})

	// Backend client. The server acts for its callers: every /api request
	// carries its own bearer token, so no service token is configured here.
	if cfg.Token != "" {
		log.Warn().Msg("OPSGRID_TOKEN is ignored by the server; callers must send their own token")
	}
	clientCfg := client.DefaultConfig(cfg.BaseURL, nil)
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.Timeout = cfg.Timeout
	backend, err := client.New(clientCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create backend client")
	}

	// Column cache: session layer, plus Redis when configured
	var (
		l2         cache.Store
		redisStore *cache.Manager
	)
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		defer redisClient.Close()

		redisStore = cache.NewManager(redisClient)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisStore.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis not reachable - column cache degrades to session only until it is")
		} else {
			log.Info().Str("redis", cfg.RedisURL).Msg("Connected to Redis")
		}
		cancel()
		l2 = redisStore
	}
	store := cache.NewTiered(cache.NewSession(), l2, cfg.ColumnCacheTTL)

	loc, _ := cfg.Location()
	tag, _ := cfg.LanguageTag()

	walker := pagination.DefaultWalkerConfig()
	walker.PageSize = cfg.ExportPageSize
	walker.MaxPages = cfg.ExportMaxPages

	tableCfg := table.DefaultConfig()
	tableCfg.PageSize = cfg.PageSize
	tableCfg.FetchTimeout = cfg.Timeout
	tableCfg.Export = walker

	srv := &server{
		client:    backend,
		resolver:  columns.NewResolver(backend, store),
		formatter: columns.NewFormatter(columns.WithLocation(loc), columns.WithLocale(tag)),
		pacer:     ratelimit.NewPacer(cfg.ExportQPS, 1),
		table:     tableCfg,
		redis:     redisStore,
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Str("backend", cfg.BaseURL).
			Bool("redis", redisStore != nil).
			Msg("Starting opsgrid server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

// newRedisClient accepts a redis:// URL or a plain host:port address.
func newRedisClient(raw string) (*redis.Client, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}
