package router

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler receives dispatched events.
type Handler func(Event)

// wildcard is the registry key for handlers that receive every event.
const wildcard = "*"

// subscription is one registered handler. active flips to false on unsubscribe
// so a dispatch holding an older snapshot skips it.
type subscription struct {
	id      uint64
	handler Handler
	active  atomic.Bool
}

// Registry maps message types to the handlers interested in them.
type Registry struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscription // message type → id → subscription
	nextID uint64

	// Stats
	dispatched atomic.Int64
	delivered  atomic.Int64
	panics     atomic.Int64
	unhandled  atomic.Int64
}

// RegistryStats contains dispatch statistics.
type RegistryStats struct {
	Dispatched    int64 // Events passed to Dispatch
	Delivered     int64 // Handler invocations
	HandlerPanics int64 // Handler invocations that panicked
	Unhandled     int64 // Events with no handler registered
	Subscriptions int   // Currently registered handlers
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		subs:   make(map[string]map[uint64]*subscription),
	}
}

// Subscribe registers h for events of msgType. The returned function removes
// the registration; it is safe to call more than once and from inside h.
// No Dispatch that begins after it returns invokes h. A Dispatch already
// running on another goroutine may still complete one call.
func (r *Registry) Subscribe(msgType string, h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}

	r.mu.Lock()
	r.nextID++
	sub := &subscription{id: r.nextID, handler: h}
	sub.active.Store(true)
	byID, ok := r.subs[msgType]
	if !ok {
		byID = make(map[uint64]*subscription)
		r.subs[msgType] = byID
	}
	byID[sub.id] = sub
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)

			r.mu.Lock()
			defer r.mu.Unlock()
			if byID, ok := r.subs[msgType]; ok {
				delete(byID, sub.id)
				if len(byID) == 0 {
					delete(r.subs, msgType)
				}
			}
		})
	}
}

// SubscribeAll registers h for every dispatched event, including Unknown ones.
func (r *Registry) SubscribeAll(h Handler) (unsubscribe func()) {
	return r.Subscribe(wildcard, h)
}

// On registers a typed handler for the message type of T.
//
//	unsubscribe := router.On(reg, func(p router.SyncProgress) { ... })
func On[T Event](r *Registry, fn func(T)) (unsubscribe func()) {
	var zero T
	return r.Subscribe(zero.Type(), func(ev Event) {
		if typed, ok := ev.(T); ok {
			fn(typed)
		}
	})
}

// Dispatch delivers ev to every handler registered for its type, then to
// wildcard handlers. It returns once all handlers have run and reports how
// many were invoked. Panicking handlers are recovered and logged.
func (r *Registry) Dispatch(ev Event) int {
	if ev == nil {
		return 0
	}
	r.dispatched.Add(1)

	msgType := ev.Type()
	targets := r.snapshot(msgType)

	delivered := 0
	for _, sub := range targets {
		if !sub.active.Load() {
			continue
		}
		r.invoke(sub, msgType, ev)
		delivered++
	}

	if delivered == 0 {
		r.unhandled.Add(1)
		r.logger.Debug("no handler for message type", "type", msgType)
	}
	r.delivered.Add(int64(delivered))
	return delivered
}

// Stats returns current dispatch statistics.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	count := 0
	for _, byID := range r.subs {
		count += len(byID)
	}
	r.mu.RUnlock()

	return RegistryStats{
		Dispatched:    r.dispatched.Load(),
		Delivered:     r.delivered.Load(),
		HandlerPanics: r.panics.Load(),
		Unhandled:     r.unhandled.Load(),
		Subscriptions: count,
	}
}

// snapshot copies the handlers for msgType plus wildcard handlers, in
// registration order, so handlers can (un)subscribe during dispatch.
func (r *Registry) snapshot(msgType string) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.subs[msgType]
	all := r.subs[wildcard]
	out := make([]*subscription, 0, len(typed)+len(all))
	out = appendOrdered(out, typed)
	if msgType != wildcard {
		out = appendOrdered(out, all)
	}
	return out
}

func appendOrdered(out []*subscription, byID map[uint64]*subscription) []*subscription {
	start := len(out)
	for _, sub := range byID {
		out = append(out, sub)
	}
	// Insertion sort by id; per-type handler sets are small.
	for i := start + 1; i < len(out); i++ {
		for j := i; j > start && out[j-1].id > out[j].id; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (r *Registry) invoke(sub *subscription, msgType string, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.logger.Error("handler panicked",
				"type", msgType,
				"subscription", sub.id,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.handler(ev)
}
