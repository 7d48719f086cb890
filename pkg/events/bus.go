package events

import (
	"log/slog"
	"sync"

	"github.com/ormasoftchile/rail/pkg/logger"
)

const defaultSubscriberCapacity = 256

// Bus fans events out to subscribers over bounded channels. A full
// subscriber loses its oldest notification rather than blocking the
// publisher. Lifecycle and approval events are kept over notifications and
// buffered events keep their order.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	log  *slog.Logger
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[*subscriber]struct{}{}, log: logger.WithComponent("events")}
}

// Subscription is an active subscriber.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close unsubscribes and closes Events.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers a subscriber whose channel holds up to capacity
// events; capacity <= 0 uses the default.
func (b *Bus) Subscribe(capacity int) Subscription {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	sub := &subscriber{ch: make(chan Event, capacity), log: b.log}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return Subscription{Events: sub.ch, cancel: func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.close()
	}}
}

// Emit delivers e to every subscriber.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()
	for _, s := range subs {
		s.deliver(e)
	}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	log    *slog.Logger
}

func (s *subscriber) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
		return
	default:
	}

	// Full. Publishers are serialized by mu, so after draining the channel
	// every buffered event fits back in.
	buf := make([]Event, 0, cap(s.ch))
drain:
	for {
		select {
		case old := <-s.ch:
			buf = append(buf, old)
		default:
			break drain
		}
	}
	if len(buf) < cap(s.ch) {
		buf = append(buf, e)
	} else {
		var dropped Event
		buf, dropped = evict(buf, e)
		s.log.Debug("subscriber full, dropped event", "topic", dropped.Topic)
	}
	for _, ev := range buf {
		s.ch <- ev
	}
}

// evict makes room for e in the full buffer buf. The oldest notification
// goes first; a critical event is only dropped when nothing else is
// buffered, and then only in favour of another critical event.
func evict(buf []Event, e Event) ([]Event, Event) {
	for i, old := range buf {
		if !critical(old) {
			return append(append(buf[:i:i], buf[i+1:]...), e), old
		}
	}
	if !critical(e) {
		return buf, e
	}
	return append(buf[1:], e), buf[0]
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func critical(e Event) bool {
	return e.Topic == TopicApprovalRequest || e.Topic == TopicLifecycle
}
