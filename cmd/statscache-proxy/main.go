package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/leaguestats/statscache/internal/config"
	"github.com/leaguestats/statscache/internal/server"
	"github.com/leaguestats/statscache/internal/upstream"
	"github.com/leaguestats/statscache/pkg/cache"
	"github.com/leaguestats/statscache/pkg/invalidation"
	"github.com/leaguestats/statscache/pkg/logging"
	"github.com/leaguestats/statscache/pkg/middleware"
	"github.com/leaguestats/statscache/pkg/statswindow"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := logging.Setup(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize proxy")
	}

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("Failed to listen")
	}

	if err := a.run(ctx, ln); err != nil {
		logger.Fatal().Err(err).Msg("Proxy stopped with error")
	}
}

const defaultShutdownGrace = 10 * time.Second

// app holds the long-running parts of the proxy.
type app struct {
	cfg    config.Config
	store  *cache.Store
	reaper *cache.Reaper
	bridge *invalidation.Bridge
	redis  *redis.Client
	http   *http.Server
	logger zerolog.Logger
}

func newApp(cfg config.Config, logger zerolog.Logger) (*app, error) {
	store := cache.NewStore(cfg.StoreConfig(), logging.NewLogger("cache"))
	mw := middleware.New(store, cfg.MiddlewareConfig(), logging.NewLogger("middleware"))

	up, err := upstream.New(cfg.UpstreamConfig(), logging.NewLogger("upstream"))
	if err != nil {
		return nil, err
	}

	accessor := statswindow.NewHTTPAccessor(cfg.AccessorConfig(), logging.NewLogger("statswindow"))
	policy := statswindow.NewPolicy(accessor, logging.NewLogger("statswindow"))

	var (
		redisClient *redis.Client
		source      invalidation.Source
	)
	if cfg.Redis.URL != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return nil, err
		}
		redisClient = redis.NewClient(opts)
		source = invalidation.NewRedisSource(redisClient, cfg.Redis.ChannelPrefix, logging.NewLogger("invalidation"))
	}

	bridge, err := invalidation.NewBridge(store, source, cfg.BridgeConfig(), logging.NewLogger("invalidation"))
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, fmt.Errorf("create invalidation bridge: %w", err)
	}

	srv, err := server.New(server.Options{
		Store:      store,
		Middleware: mw,
		Upstream:   up,
		Policy:     policy,
		Bridge:     bridge,
		Redis:      redisClient,
		AdminToken: cfg.Server.AdminToken,
		Mode:       cfg.Server.Mode,
		Logger:     logging.NewLogger("server"),
	})
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, err
	}

	return &app{
		cfg:    cfg,
		store:  store,
		reaper: cache.NewReaper(store, cfg.Cache.ReapInterval, logging.NewLogger("reaper")),
		bridge: bridge,
		redis:  redisClient,
		http: &http.Server{
			Handler:      srv.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		logger: logger,
	}, nil
}

// run serves on ln until ctx is cancelled, then drains in-flight requests
// and stops the background workers.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	workCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.reaper.Run(workCtx); err != nil {
			a.logger.Error().Err(err).Msg("Cache reaper failed")
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.bridge.Run(workCtx); err != nil {
			a.logger.Error().Err(err).Msg("Invalidation bridge failed")
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", ln.Addr().String()).
			Str("upstream", a.cfg.Upstream.URL).
			Bool("change_feed", a.bridge.Enabled()).
			Msg("Starting statscache proxy")
		serveErr <- a.http.Serve(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutting down")
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	grace := a.cfg.Server.ShutdownTimeout
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), grace)
	defer done()
	if shutdownErr := a.http.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = fmt.Errorf("shutdown: %w", shutdownErr)
	}

	cancel()
	wg.Wait()

	if a.redis != nil {
		if closeErr := a.redis.Close(); closeErr != nil {
			a.logger.Warn().Err(closeErr).Msg("Failed to close Redis client")
		}
	}

	a.logger.Info().Int("entries", a.store.Len()).Msg("Proxy stopped")
	return err
}
