// Package bus is the in-process publish/subscribe register between change
// feed readers and their consumers.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/indexing/metrics"
)

// Handler consumes one event. Errors are logged by the bus.
type Handler func(ctx context.Context, ev *domain.Event) error

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id     uint64
	entity domain.EntityType
	name   string
}

type entry struct {
	sub     *Subscription
	handler Handler
}

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EntityType][]entry
	nextID uint64
	log    *slog.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[domain.EntityType][]entry),
		log:  slog.Default().With("component", "bus"),
	}
}

// Subscribe registers h for events of the given entity type. name is used
// in logs only.
func (b *Bus) Subscribe(entity domain.EntityType, name string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, entity: entity, name: name}
	b.subs[entity] = append(b.subs[entity], entry{sub: sub, handler: h})
	return sub
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.entity]
	for i, e := range list {
		if e.sub.id == sub.id {
			// Copy so in-flight Publish calls keep iterating their own slice.
			next := make([]entry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			b.subs[sub.entity] = next
			return
		}
	}
}

// Publish invokes every handler subscribed to ev.Entity before returning.
// A failing or panicking handler does not stop delivery to the rest.
func (b *Bus) Publish(ctx context.Context, ev *domain.Event) {
	b.mu.RLock()
	list := b.subs[ev.Entity]
	b.mu.RUnlock()

	for _, e := range list {
		b.deliver(ctx, e, ev)
	}
}

// Subscribers returns the number of handlers registered for entity.
func (b *Bus) Subscribers(entity domain.EntityType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[entity])
}

func (b *Bus) deliver(ctx context.Context, e entry, ev *domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BusHandlerErrorsTotal.WithLabelValues(string(ev.Entity), "panic").Inc()
			b.log.Error("Bus handler panicked",
				"subscriber", e.sub.name,
				"event", ev.Name(),
				"key", ev.Key,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := e.handler(ctx, ev); err != nil {
		metrics.BusHandlerErrorsTotal.WithLabelValues(string(ev.Entity), "error").Inc()
		b.log.Error("Bus handler failed",
			"subscriber", e.sub.name,
			"event", ev.Name(),
			"key", ev.Key,
			"error", err,
		)
	}
}
