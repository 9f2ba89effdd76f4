package pipeline

import (
	"strings"
	"sync"
)

// Handler processes an object-created event; return error to signal
// failure so the retry wrapper can take over.
type Handler func(ObjectCreated) error

// Mirror receives a copy of every published event, after handler
// dispatch. Used for the optional NATS publisher; mirror errors never
// fail the pipeline.
type Mirror interface {
	Publish(ObjectCreated)
}

// Bus is a synchronous pub/sub bus keyed by object-key prefix. A
// published event is delivered to every handler whose prefix matches the
// key, in subscription order.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	mirrors []Mirror
}

type subscription struct {
	prefix  string
	handler Handler
}

func NewBus() *Bus { return &Bus{} }

// SubscribePrefix registers a handler for keys under the given prefix.
func (b *Bus) SubscribePrefix(prefix string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, subscription{prefix: prefix, handler: h})
	b.mu.Unlock()
}

// AddMirror registers an event mirror.
func (b *Bus) AddMirror(m Mirror) {
	if m == nil {
		return
	}
	b.mu.Lock()
	b.mirrors = append(b.mirrors, m)
	b.mu.Unlock()
}

// Publish delivers an event to all matching handlers synchronously and
// returns the first handler error.
func (b *Bus) Publish(e ObjectCreated) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	mirrors := append([]Mirror(nil), b.mirrors...)
	b.mu.RUnlock()

	var firstErr error
	for _, s := range subs {
		if !strings.HasPrefix(e.Key, s.prefix) {
			continue
		}
		if err := s.handler(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, m := range mirrors {
		m.Publish(e)
	}
	return firstErr
}
