package application

import (
	"sync"

	"go.uber.org/zap"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

// EventBus broadcasts session events to every subscriber, synchronously and
// in subscription order. A panicking handler is logged and skipped.
type EventBus struct {
	clock ports.Clock
	log   *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   []busSubscriber
}

type busSubscriber struct {
	id int
	fn func(domain.SessionEvent)
}

func NewEventBus(clock ports.Clock, logger *zap.Logger) *EventBus {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{clock: clock, log: logger.Named("events")}
}

func (b *EventBus) Subscribe(fn func(domain.SessionEvent)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, busSubscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to the handlers subscribed at the time of the call.
// Handlers may publish or unsubscribe from inside a delivery.
func (b *EventBus) Publish(ev domain.SessionEvent) {
	if ev.At.IsZero() {
		ev.At = b.clock.Now()
	}

	b.mu.Lock()
	subs := append([]busSubscriber(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s.fn, ev)
	}
}

func (b *EventBus) deliver(fn func(domain.SessionEvent), ev domain.SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("session event handler panicked",
				zap.String("event", string(ev.Kind)),
				zap.Any("panic", r))
		}
	}()
	fn(ev)
}
