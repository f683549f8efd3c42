// Package events implements the sealed event-variant bus used throughout
// the pipeline in place of the source material's string-keyed emitters
// (main.go's notifier.StartEventListener callbacks, hub.go's Broadcast).
// Each event is its own Go type; subscribers register typed handlers
// instead of switching on an event-name string.
package events

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Event is the marker interface every event variant implements. The method
// is unexported so only this package's types satisfy it.
type Event interface {
	eventMarker()
}

type baseEvent struct{}

func (baseEvent) eventMarker() {}

// Bus is an in-process, typed publish/subscribe registry. One Bus instance
// is constructed per process by cmd/tradingbot and passed by reference to
// every component; there is no package-level singleton.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]func(Event)
	log      zerolog.Logger
}

// New builds an empty Bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]func(Event)),
		log:      log.With().Str("component", "eventbus").Logger(),
	}
}

// Subscribe registers fn to run for every event of type T. Returns an
// unsubscribe function.
func Subscribe[T Event](b *Bus, fn func(T)) func() {
	key := typeKey[T]()
	wrapped := func(e Event) {
		if v, ok := e.(T); ok {
			fn(v)
		}
	}

	b.mu.Lock()
	b.handlers[key] = append(b.handlers[key], wrapped)
	idx := len(b.handlers[key]) - 1
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[key]
		if idx < len(hs) {
			hs[idx] = func(Event) {}
		}
	}
}

// Publish fans an event out to every handler registered for its concrete
// type. Delivery is synchronous and best-effort, in the order handlers were
// registered; a panicking handler is recovered and logged so one bad
// subscriber cannot take down the emitter's goroutine.
func Publish[T Event](b *Bus, evt T) {
	key := typeKey[T]()

	b.mu.RLock()
	hs := append([]func(Event){}, b.handlers[key]...)
	b.mu.RUnlock()

	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error().Interface("panic", r).Str("event", key).Msg("event handler panicked")
				}
			}()
			h(evt)
		}()
	}
}

func typeKey[T Event]() string {
	var zero T
	return reflect.TypeOf(&zero).Elem().String()
}
