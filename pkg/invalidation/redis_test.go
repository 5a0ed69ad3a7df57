package invalidation

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis and skips when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestRedisSource_PublishSubscribe(t *testing.T) {
	client := setupTestRedis(t)
	prefix := "statscache:test:" + t.Name() + ":"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := NewRedisSource(client, prefix, zerolog.Nop()).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	// A malformed payload is dropped, the next one is delivered.
	if err := client.Publish(ctx, prefix+"matches", "not json").Err(); err != nil {
		t.Fatalf("raw publish error = %v", err)
	}

	pub := NewRedisPublisher(client, prefix)
	n, err := pub.Publish(ctx, Event{ResourceType: "match", ID: "m1", Operation: OpUpdate})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Publish() receivers = %d, want 1", n)
	}

	select {
	case ev := <-sub.Events():
		if ev.ResourceType != "match" || ev.ID != "m1" {
			t.Errorf("event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestRedisPublisher_RequiresResourceType(t *testing.T) {
	pub := NewRedisPublisher(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	if _, err := pub.Publish(context.Background(), Event{ID: "m1"}); err == nil {
		t.Error("Publish() expected error without resource type")
	}
}
