// Package status exposes the engine's live state over a small HTTP surface:
// the map screen's status line, the connection state, the peer snapshot and a
// server-sent event stream of engine events.
package status

import (
	"context"
	"sync"

	"companion_engine/internal/events"
)

// Tracker maintains the single status line shown on the map screen, fed from
// the event bus.
type Tracker struct {
	mu   sync.RWMutex
	line string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Line returns the current status line text.
func (t *Tracker) Line() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.line
}

func (t *Tracker) set(text string) {
	t.mu.Lock()
	t.line = text
	t.mu.Unlock()
}

// RegisterHandlers subscribes the tracker to every event that drives the
// status line.
func (t *Tracker) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.StatusLineChanged{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, ev events.Event) error {
			t.set(ev.(events.StatusLineChanged).Text)
			return nil
		}))
	bus.Subscribe(events.RouteFailed{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, ev events.Event) error {
			t.set(ev.(events.RouteFailed).Message)
			return nil
		}))
	bus.Subscribe(events.SearchFailed{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, ev events.Event) error {
			t.set(ev.(events.SearchFailed).Message)
			return nil
		}))
	bus.Subscribe(events.VoiceFailed{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, ev events.Event) error {
			t.set(ev.(events.VoiceFailed).Message)
			return nil
		}))
	bus.Subscribe(events.TranscriptionReady{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, ev events.Event) error {
			t.set(ev.(events.TranscriptionReady).Text)
			return nil
		}))
	bus.Subscribe(events.TranscriptionEmpty{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, ev events.Event) error {
			t.set("voice not recognized")
			return nil
		}))
}
