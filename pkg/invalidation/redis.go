package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannelPrefix prefixes change channels; the suffix is the table name
// (e.g., "statscache:changes:matches").
const DefaultChannelPrefix = "statscache:changes:"

// RedisSource subscribes to change events published on Redis channels.
type RedisSource struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisSource creates a Redis pub/sub source.
func NewRedisSource(client *redis.Client, prefix string, logger zerolog.Logger) *RedisSource {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisSource{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Subscribe pattern-subscribes to every change channel and waits for Redis to confirm.
func (s *RedisSource) Subscribe(ctx context.Context) (Subscription, error) {
	pattern := s.prefix + "*"
	ps := s.client.PSubscribe(ctx, pattern)

	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", pattern, err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan Event, 64),
		prefix: s.prefix,
		logger: s.logger,
	}
	go sub.loop(ctx)
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan Event
	prefix string
	logger zerolog.Logger

	mu  sync.Mutex
	err error
}

func (s *redisSubscription) loop(ctx context.Context) {
	defer close(s.events)

	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		ev, err := parseMessage(s.prefix, msg.Channel, msg.Payload)
		if err != nil {
			Dropped.Inc()
			s.logger.Warn().
				Err(err).
				Str("channel", msg.Channel).
				Msg("Dropping malformed change payload")
			continue
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}

// parseMessage decodes a payload. When the payload omits both resourceType
// and table, the channel suffix names the table.
func parseMessage(prefix, channel, payload string) (Event, error) {
	ev, err := ParseEvent([]byte(payload))
	if err == nil {
		return ev, nil
	}

	table := strings.TrimPrefix(channel, prefix)
	if table == channel || table == "" {
		return Event{}, err
	}

	var body map[string]json.RawMessage
	if json.Unmarshal([]byte(payload), &body) != nil {
		return Event{}, err
	}
	body["table"], _ = json.Marshal(table)
	patched, mErr := json.Marshal(body)
	if mErr != nil {
		return Event{}, err
	}
	return ParseEvent(patched)
}

// RedisPublisher publishes change events for RedisSource subscribers.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher creates a publisher on the given channel prefix.
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Publish sends ev on the channel for its resource type and returns the
// number of subscribers that received it.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) (int64, error) {
	if ev.ResourceType == "" {
		return 0, fmt.Errorf("%w: missing resource type", ErrMalformedEvent)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}

	n, err := p.client.Publish(ctx, p.prefix+ev.ResourceType, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", ev.ResourceType, err)
	}
	return n, nil
}
