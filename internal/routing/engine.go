// Package routing computes and draws routes between two geographic points via
// an external directions service. Two independent slots are maintained: the
// user's route to the chosen destination and the vehicle's route to the user.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"companion_engine/internal/events"
	"companion_engine/internal/geo"
	"companion_engine/internal/mapsurface"
	"companion_engine/platform/logger"

	"github.com/google/uuid"
)

// Engine issues directions requests and renders the resulting polylines.
// Per slot, the last-issued request always wins: a newer request supersedes
// any in-flight one by token, and the stale network call is cancelled.
type Engine struct {
	client  *http.Client
	url     string
	apiKey  string
	surface mapsurface.Surface
	bus     events.Bus
	log     *logger.Logger

	mu    sync.Mutex
	slots [2]slotState
}

type slotState struct {
	token  uuid.UUID
	cancel context.CancelFunc
	drawn  bool
}

// NewEngine creates a route engine drawing on the given surface.
func NewEngine(url, apiKey string, surface mapsurface.Surface, bus events.Bus, log *logger.Logger) *Engine {
	return &Engine{
		client:  &http.Client{Timeout: 10 * time.Second},
		url:     url,
		apiKey:  apiKey,
		surface: surface,
		bus:     bus,
		log:     log,
	}
}

// RequestRoute starts an asynchronous route computation for the slot. A
// request with a non-finite endpoint is a no-op: no network call is issued
// and the slot's current rendering is left untouched.
func (e *Engine) RequestRoute(ctx context.Context, slot Slot, start, end geo.LatLng, mode string) {
	if !start.Finite() || !end.Finite() {
		e.log.Debug("ignoring route request with non-finite endpoints", "slot", slot.String())
		return
	}

	e.mu.Lock()
	if prev := e.slots[slot].cancel; prev != nil {
		prev()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	token := uuid.New()
	e.slots[slot].token = token
	e.slots[slot].cancel = cancel
	e.mu.Unlock()

	go e.compute(reqCtx, slot, token, start, end, mode)
}

func (e *Engine) compute(ctx context.Context, slot Slot, token uuid.UUID, start, end geo.LatLng, mode string) {
	points, err := e.fetch(ctx, start, end, mode)
	if err == nil && len(points) == 0 {
		err = fmt.Errorf("directions response contained no line geometry")
	}

	e.mu.Lock()
	if e.slots[slot].token != token {
		// Superseded while in flight; a newer request owns the slot now.
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.mu.Unlock()
		e.fail(ctx, slot, err)
		return
	}
	// The surface mutation stays inside the critical section holding the
	// token check, so a request superseded in this window can never install
	// its stale geometry over the newer route.
	e.slots[slot].drawn = true
	e.render(slot, points)
	e.mu.Unlock()

	e.bus.Publish(ctx, events.RouteRendered{
		BaseEvent:  events.NewBaseEvent(),
		Slot:       slot.String(),
		PointCount: len(points),
	})
}

func (e *Engine) fetch(ctx context.Context, start, end geo.LatLng, mode string) ([]geo.LatLng, error) {
	body, err := json.Marshal(directionsRequest{
		StartX:       start.Lng,
		StartY:       start.Lat,
		EndX:         end.Lng,
		EndY:         end.Lat,
		ReqCoordType: "WGS84GEO",
		ResCoordType: "WGS84GEO",
		SearchOption: mode,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("appKey", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions upstream error: status %d", resp.StatusCode)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode directions response: %w", err)
	}

	var points []geo.LatLng
	for _, f := range fc.Features {
		if f.Geometry.Type != "LineString" {
			continue
		}
		for _, c := range f.Geometry.Coordinates {
			if len(c) < 2 {
				continue
			}
			p := geo.LatLng{Lat: c[1], Lng: c[0]}
			if p.Finite() {
				points = append(points, p)
			}
		}
	}
	return points, nil
}

// render disposes the slot's previous strokes and installs the new outlined
// polyline. Only the user-to-destination slot recenters the viewport.
func (e *Engine) render(slot Slot, points []geo.LatLng) {
	role := slot.role()
	e.surface.ClearRole(role)
	e.surface.SetPolyline(role, mapsurface.Polyline{ID: underStrokeID, Points: points, Style: underStroke})
	e.surface.SetPolyline(role, mapsurface.Polyline{ID: overStrokeID, Points: points, Style: overStroke})

	if slot == SlotUserToDestination {
		e.surface.FitBounds(geo.BoundsOf(points))
	}
}

// fail surfaces the error for the user-initiated slot; the background
// vehicle-tracking slot logs only.
func (e *Engine) fail(ctx context.Context, slot Slot, err error) {
	if ctx.Err() == context.Canceled {
		// Cancelled by a superseding request; nothing to surface.
		return
	}
	rcErr := &RouteComputeError{Slot: slot, Err: err}
	if slot == SlotUserToDestination {
		e.log.UpstreamError("directions", rcErr)
		e.bus.Publish(context.WithoutCancel(ctx), events.RouteFailed{
			BaseEvent: events.NewBaseEvent(),
			Slot:      slot.String(),
			Message:   "could not compute the route",
		})
		return
	}
	e.log.Warn("vehicle route computation failed", "error", rcErr)
}

// CancelSlot cancels any in-flight request and disposes the slot's rendering.
func (e *Engine) CancelSlot(slot Slot) {
	e.mu.Lock()
	if cancel := e.slots[slot].cancel; cancel != nil {
		cancel()
	}
	e.slots[slot].token = uuid.New() // invalidate in-flight responses
	if e.slots[slot].drawn {
		e.surface.ClearRole(slot.role())
	}
	e.slots[slot].drawn = false
	e.mu.Unlock()
}
