// Package invalidation turns data-layer change notifications into cache invalidations.
//
// A Bridge subscribes to a Source (Redis pub/sub in production), maps each
// event's resource type to key patterns and removes the matching entries.
// While the subscription is down the bridge keeps reconnecting with backoff
// and the cache falls back to TTL expiry.
package invalidation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/leaguestats/statscache/pkg/cache"
	"github.com/rs/zerolog"
)

// Invalidator removes cache entries by pattern. *cache.Store implements it.
type Invalidator interface {
	InvalidatePattern(p cache.Pattern) int
}

// ReconnectConfig holds the change feed reconnect backoff.
type ReconnectConfig struct {
	// InitialInterval is the first backoff
	InitialInterval time.Duration

	// MaxInterval caps a single backoff
	MaxInterval time.Duration

	// Multiplier grows the backoff after each failed attempt
	Multiplier float64
}

// DefaultReconnectConfig returns the default reconnect backoff.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// Config holds bridge configuration.
type Config struct {
	Mapping   Mapping
	Reconnect ReconnectConfig
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		Mapping:   DefaultMapping(),
		Reconnect: DefaultReconnectConfig(),
	}
}

// Bridge applies change events to a cache.
type Bridge struct {
	target    Invalidator
	source    Source
	patterns  map[string][]cache.Pattern
	reconnect ReconnectConfig
	connected atomic.Bool
	logger    zerolog.Logger
}

// NewBridge creates a bridge. A nil source leaves the cache on TTL-only
// invalidation; Handle can still be called directly.
func NewBridge(target Invalidator, source Source, cfg Config, logger zerolog.Logger) (*Bridge, error) {
	if target == nil {
		return nil, fmt.Errorf("invalidation target is required")
	}
	if cfg.Mapping == nil {
		cfg.Mapping = DefaultMapping()
	}
	def := DefaultReconnectConfig()
	if cfg.Reconnect.InitialInterval <= 0 {
		cfg.Reconnect.InitialInterval = def.InitialInterval
	}
	if cfg.Reconnect.MaxInterval <= 0 {
		cfg.Reconnect.MaxInterval = def.MaxInterval
	}
	if cfg.Reconnect.Multiplier < 1 {
		cfg.Reconnect.Multiplier = def.Multiplier
	}

	patterns, err := cfg.Mapping.compile()
	if err != nil {
		return nil, err
	}

	return &Bridge{
		target:    target,
		source:    source,
		patterns:  patterns,
		reconnect: cfg.Reconnect,
		logger:    logger,
	}, nil
}

// Handle invalidates every pattern mapped to ev's resource type and returns
// the number of removed entries. Repeating an event is harmless.
func (b *Bridge) Handle(ev Event) int {
	rt := NormalizeResourceType(ev.ResourceType)
	patterns, ok := b.patterns[rt]
	if !ok {
		b.logger.Debug().
			Str("resource_type", ev.ResourceType).
			Str("id", ev.ID).
			Msg("Ignoring change event for unmapped resource type")
		Events.WithLabelValues("unmapped").Inc()
		return 0
	}

	removed := 0
	for _, p := range patterns {
		removed += b.target.InvalidatePattern(p)
	}
	Events.WithLabelValues(rt).Inc()

	b.logger.Debug().
		Str("resource_type", rt).
		Str("id", ev.ID).
		Str("operation", string(ev.Operation)).
		Int("removed", removed).
		Msg("Applied change event")

	return removed
}

// Connected reports whether the change feed subscription is live.
func (b *Bridge) Connected() bool {
	return b.connected.Load()
}

// Enabled reports whether the bridge has a change source.
func (b *Bridge) Enabled() bool {
	return b.source != nil
}

// Run consumes the change feed until ctx is done, reconnecting on failure.
// It only returns once ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if b.source == nil {
		b.logger.Info().Msg("No change feed configured, cache relies on TTL expiry")
		<-ctx.Done()
		return nil
	}

	bo := b.newBackOff()
	for {
		err := b.consume(ctx, bo)
		b.setConnected(false)
		if ctx.Err() != nil {
			b.logger.Info().Msg("Change feed stopped")
			return nil
		}

		wait := bo.NextBackOff()
		Reconnects.Inc()
		ReconnectBackoff.Observe(wait.Seconds())

		b.logger.Warn().
			Err(err).
			Dur("backoff", wait).
			Msg("Change feed disconnected, falling back to TTL expiry until reconnected")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.logger.Info().Msg("Change feed stopped")
			return nil
		case <-timer.C:
		}
	}
}

// consume subscribes once and applies events sequentially until the
// subscription ends or ctx is done.
func (b *Bridge) consume(ctx context.Context, bo backoff.BackOff) error {
	sub, err := b.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	b.setConnected(true)
	bo.Reset()
	b.logger.Info().Msg("Change feed connected")

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return ErrSubscriptionClosed
			}
			b.Handle(ev)
		}
	}
}

func (b *Bridge) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.reconnect.InitialInterval
	bo.MaxInterval = b.reconnect.MaxInterval
	bo.Multiplier = b.reconnect.Multiplier
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0 // never give up
	bo.Reset()
	return bo
}

func (b *Bridge) setConnected(v bool) {
	b.connected.Store(v)
	if v {
		Connected.Set(1)
	} else {
		Connected.Set(0)
	}
}
