package invalidation

import (
	"context"
	"errors"
	"sync"
)

// ErrSubscriptionClosed is reported when a subscription ends without a cause.
var ErrSubscriptionClosed = errors.New("invalidation: subscription closed")

// Source delivers change events.
type Source interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a live event stream. Events is closed when the stream ends;
// Err then reports why.
type Subscription interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// ChanSource is an in-process Source. Events published while nobody is
// subscribed wait in the buffer.
type ChanSource struct {
	events chan Event
}

// NewChanSource creates an in-process source with the given buffer.
func NewChanSource(buffer int) *ChanSource {
	return &ChanSource{events: make(chan Event, buffer)}
}

// Publish queues ev, blocking while the buffer is full or ctx is done.
func (s *ChanSource) Publish(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe implements Source.
func (s *ChanSource) Subscribe(ctx context.Context) (Subscription, error) {
	sub := &chanSubscription{out: make(chan Event), done: make(chan struct{})}
	go sub.forward(ctx, s.events)
	return sub, nil
}

type chanSubscription struct {
	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *chanSubscription) forward(ctx context.Context, in <-chan Event) {
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-in:
			select {
			case s.out <- ev:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

func (s *chanSubscription) Events() <-chan Event {
	return s.out
}

func (s *chanSubscription) Err() error {
	return nil
}

func (s *chanSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
