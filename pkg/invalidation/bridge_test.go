package invalidation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/leaguestats/statscache/pkg/cache"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

var seedKeys = []string{
	"/matches@public",
	"/matches?leagueId=X@public",
	"/leagues/l1@public",
	"/votes?matchId=m1@public",
	"/statistics@sub:00000000000000aa",
	"/players@public",
	"/users/u1@public",
}

func seededStore(t *testing.T) *cache.Store {
	t.Helper()
	store := cache.NewStore(cache.DefaultConfig(), zerolog.Nop())
	for _, key := range seedKeys {
		if _, err := store.Put(key, []byte(`{}`), time.Minute); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	return store
}

func remaining(store *cache.Store) []string {
	keys := store.Keys()
	sort.Strings(keys)
	return keys
}

func TestBridge_Handle(t *testing.T) {
	tests := []struct {
		resourceType string
		wantRemoved  int
		wantKept     []string
	}{
		{
			resourceType: "match",
			wantRemoved:  3,
			wantKept:     []string{"/players@public", "/statistics@sub:00000000000000aa", "/users/u1@public", "/votes?matchId=m1@public"},
		},
		{
			resourceType: "league",
			wantRemoved:  1,
		},
		{
			resourceType: "vote",
			wantRemoved:  3,
		},
		{
			resourceType: "statistic",
			wantRemoved:  5,
			wantKept:     []string{"/users/u1@public", "/votes?matchId=m1@public"},
		},
		{
			resourceType: "player",
			wantRemoved:  2,
		},
		{
			resourceType: "scoring_rule",
			wantRemoved:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.resourceType, func(t *testing.T) {
			store := seededStore(t)
			bridge, err := NewBridge(store, nil, DefaultConfig(), zerolog.Nop())
			if err != nil {
				t.Fatalf("NewBridge() error = %v", err)
			}

			got := bridge.Handle(Event{ResourceType: tt.resourceType, ID: "x", Operation: OpUpdate})
			if got != tt.wantRemoved {
				t.Errorf("Handle() removed %d, want %d (left %v)", got, tt.wantRemoved, remaining(store))
			}
			if tt.wantKept != nil {
				kept := remaining(store)
				if len(kept) != len(tt.wantKept) {
					t.Fatalf("kept = %v, want %v", kept, tt.wantKept)
				}
				for i := range kept {
					if kept[i] != tt.wantKept[i] {
						t.Errorf("kept[%d] = %s, want %s", i, kept[i], tt.wantKept[i])
					}
				}
			}
		})
	}
}

func TestBridge_HandleIdempotent(t *testing.T) {
	store := seededStore(t)
	bridge, _ := NewBridge(store, nil, DefaultConfig(), zerolog.Nop())

	ev := Event{ResourceType: "match", ID: "m1", Operation: OpDelete}
	first := bridge.Handle(ev)
	second := bridge.Handle(ev)

	if first == 0 || second != 0 {
		t.Errorf("Handle() = %d then %d, want >0 then 0", first, second)
	}
	if len(remaining(store)) != len(seedKeys)-first {
		t.Error("a repeated event must not remove anything else")
	}
}

func TestNewBridge_Errors(t *testing.T) {
	store := cache.NewStore(cache.DefaultConfig(), zerolog.Nop())

	if _, err := NewBridge(nil, nil, DefaultConfig(), zerolog.Nop()); err == nil {
		t.Error("NewBridge(nil target) expected error")
	}

	cfg := DefaultConfig()
	cfg.Mapping = Mapping{"match": {""}}
	if _, err := NewBridge(store, nil, cfg, zerolog.Nop()); err == nil {
		t.Error("NewBridge() expected error for invalid pattern")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBridge_RunConsumesEvents(t *testing.T) {
	store := seededStore(t)
	source := NewChanSource(8)
	bridge, err := NewBridge(store, source, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	waitFor(t, bridge.Connected)

	if err := source.Publish(ctx, Event{ResourceType: "player", ID: "p1", Operation: OpUpdate}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitFor(t, func() bool {
		_, ok := store.Get("/players@public")
		return !ok
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if bridge.Connected() {
		t.Error("Connected() should be false after Run returns")
	}
}

// flakySource fails the first failures subscriptions, then hands out
// subscriptions that end after one event.
type flakySource struct {
	mu       sync.Mutex
	failures int
	attempts int
	events   chan Event
}

type closedSub struct {
	events chan Event
	err    error
}

func (s *closedSub) Events() <-chan Event { return s.events }
func (s *closedSub) Err() error           { return s.err }
func (s *closedSub) Close() error         { return nil }

func (s *flakySource) Subscribe(ctx context.Context) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return nil, errors.New("connection refused")
	}
	// Deliver one event, then end with an error to force a reconnect.
	out := make(chan Event, 1)
	select {
	case ev := <-s.events:
		out <- ev
	default:
	}
	close(out)
	return &closedSub{events: out, err: errors.New("connection reset")}, nil
}

func (s *flakySource) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func TestBridge_Reconnects(t *testing.T) {
	store := seededStore(t)
	source := &flakySource{failures: 2, events: make(chan Event, 1)}
	source.events <- Event{ResourceType: "league", ID: "l1"}

	cfg := DefaultConfig()
	cfg.Reconnect = ReconnectConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
	bridge, err := NewBridge(store, source, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	before := testutil.ToFloat64(Reconnects)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	waitFor(t, func() bool { return source.Attempts() >= 4 })
	waitFor(t, func() bool {
		_, ok := store.Get("/leagues/l1@public")
		return !ok
	})

	cancel()
	<-done

	if after := testutil.ToFloat64(Reconnects); after < before+3 {
		t.Errorf("reconnects = %v, want at least %v", after, before+3)
	}
	if _, ok := store.Get("/players@public"); !ok {
		t.Error("unrelated entries should survive reconnects")
	}
}

func TestBridge_RunWithoutSource(t *testing.T) {
	bridge, _ := NewBridge(cache.NewStore(cache.DefaultConfig(), zerolog.Nop()), nil, DefaultConfig(), zerolog.Nop())
	if bridge.Enabled() {
		t.Error("bridge without source should not be enabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bridge.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
