// Package server wires the response cache, the stats window guard and the
// forwarding client into the proxy's gin router.
//
// Reads (GET, HEAD) on any path not owned by the proxy go through the cache
// middleware. Writes are forwarded to the league API; statistics writes are
// checked against the stats window first, and every successful write is fed
// to the invalidation bridge so the proxy never serves its own stale views.
//
// The proxy does not authenticate callers. The X-User-ID header is trusted as
// the acting user, so it must be set by a front layer that authenticates the
// request and strips any client-supplied value.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leaguestats/statscache/internal/upstream"
	"github.com/leaguestats/statscache/pkg/cache"
	"github.com/leaguestats/statscache/pkg/invalidation"
	"github.com/leaguestats/statscache/pkg/metrics"
	"github.com/leaguestats/statscache/pkg/middleware"
	"github.com/leaguestats/statscache/pkg/statswindow"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// HeaderAdminToken authenticates calls to the admin endpoints.
const HeaderAdminToken = "X-Admin-Token"

// HeaderUserID identifies the acting user on statistics writes. It is taken
// as-is and must come from a trusted front layer.
const HeaderUserID = "X-User-ID"

// Change feed states reported by /ready and the admin stats endpoint.
const (
	FeedConnected    = "connected"
	FeedDisconnected = "disconnected"
	FeedDisabled     = "disabled"
)

// Options holds the server dependencies.
type Options struct {
	Store      *cache.Store
	Middleware *middleware.Middleware
	Upstream   *upstream.Client
	Policy     *statswindow.Policy

	// Bridge receives write-through invalidations; nil disables them
	Bridge *invalidation.Bridge

	// Redis is pinged by /ready when set
	Redis *redis.Client

	// AdminToken guards /system/admin; empty disables the admin endpoints
	AdminToken string

	// Mode is the gin mode (release, debug, test)
	Mode string

	Logger zerolog.Logger
}

// Server is the proxy's HTTP front end.
type Server struct {
	engine     *gin.Engine
	store      *cache.Store
	mw         *middleware.Middleware
	upstream   *upstream.Client
	policy     *statswindow.Policy
	bridge     *invalidation.Bridge
	redis      *redis.Client
	adminToken string
	logger     zerolog.Logger
}

// New builds the router.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("server: store is required")
	case opts.Middleware == nil:
		return nil, errors.New("server: middleware is required")
	case opts.Upstream == nil:
		return nil, errors.New("server: upstream client is required")
	case opts.Policy == nil:
		return nil, errors.New("server: stats window policy is required")
	}

	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	s := &Server{
		engine:     gin.New(),
		store:      opts.Store,
		mw:         opts.Middleware,
		upstream:   opts.Upstream,
		policy:     opts.Policy,
		bridge:     opts.Bridge,
		redis:      opts.Redis,
		adminToken: opts.AdminToken,
		logger:     opts.Logger,
	}
	s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	admin := r.Group("/system/admin", s.requireAdmin())
	admin.POST("/cache/clear", s.clearCache)
	admin.DELETE("/cache", s.invalidateCache)
	admin.GET("/cache/stats", s.cacheStats)

	// Everything else belongs to the league API.
	r.NoRoute(s.proxy)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status_code", status).
			Str("cache", c.Writer.Header().Get("X-Cache")).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ready reports 503 while an enabled change feed is disconnected or Redis is unreachable.
// Reads are still served in that state; freshness falls back to TTL expiry.
func (s *Server) ready(c *gin.Context) {
	feed := s.feedState()
	ready := feed != FeedDisconnected
	body := gin.H{"changeFeed": feed}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Redis ping failed")
			body["redis"] = "error"
			ready = false
		} else {
			body["redis"] = "ok"
		}
	}

	if ready {
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
		return
	}
	body["status"] = "degraded"
	c.JSON(http.StatusServiceUnavailable, body)
}

func (s *Server) feedState() string {
	switch {
	case s.bridge == nil || !s.bridge.Enabled():
		return FeedDisabled
	case s.bridge.Connected():
		return FeedConnected
	default:
		return FeedDisconnected
	}
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}
