// Package places provides debounced, cancellable free-text place lookup
// against an external POI search service.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"companion_engine/internal/events"
	"companion_engine/internal/geo"
	"companion_engine/internal/mapsurface"
	"companion_engine/internal/routing"
	"companion_engine/platform/logger"

	"github.com/google/uuid"
)

// resultCap bounds how many candidates one query returns.
const resultCap = 15

// DefaultDebounce is the quiet period before a query hits the network.
const DefaultDebounce = 250 * time.Millisecond

// SearchResult is one ranked place candidate.
type SearchResult struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Router feeds a chosen destination into the route engine.
type Router interface {
	RequestRoute(ctx context.Context, slot routing.Slot, start, end geo.LatLng, mode string)
}

// Engine debounces free-text queries and keeps only the most recent query's
// results: older in-flight queries are cancelled, not merely ignored.
type Engine struct {
	client   *http.Client
	url      string
	apiKey   string
	debounce time.Duration
	surface  mapsurface.Surface
	router   Router
	bus      events.Bus
	log      *logger.Logger

	mu      sync.Mutex
	timer   *time.Timer
	token   uuid.UUID
	cancel  context.CancelFunc
	results []SearchResult
}

// NewEngine creates a search engine. debounce <= 0 selects DefaultDebounce.
func NewEngine(url, apiKey string, debounce time.Duration, surface mapsurface.Surface, router Router, bus events.Bus, log *logger.Logger) *Engine {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Engine{
		client:   &http.Client{Timeout: 5 * time.Second},
		url:      url,
		apiKey:   apiKey,
		debounce: debounce,
		surface:  surface,
		router:   router,
		bus:      bus,
		log:      log,
	}
}

// SetQuery registers the latest input text. Empty or whitespace-only text
// clears the candidate list immediately, without waiting for the debounce
// window and without a network call.
func (e *Engine) SetQuery(ctx context.Context, text string, centerHint *geo.LatLng) {
	text = strings.TrimSpace(text)

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	if text == "" {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.token = uuid.New() // invalidate any in-flight response
		e.results = nil
		e.mu.Unlock()
		e.bus.Publish(ctx, events.SearchResults{BaseEvent: events.NewBaseEvent(), Query: "", Count: 0})
		return
	}

	e.timer = time.AfterFunc(e.debounce, func() {
		e.issue(ctx, text, centerHint)
	})
	e.mu.Unlock()
}

// Results returns the current candidate list.
func (e *Engine) Results() []SearchResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SearchResult, len(e.results))
	copy(out, e.results)
	return out
}

// Select is terminal for the search: it clears the candidates, marks the
// destination and feeds its coordinate into the user-to-destination slot.
func (e *Engine) Select(ctx context.Context, result SearchResult, from geo.LatLng) {
	e.mu.Lock()
	e.results = nil
	e.token = uuid.New()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()

	dest := geo.LatLng{Lat: result.Latitude, Lng: result.Longitude}
	e.surface.SetMarker(mapsurface.RoleDestination, mapsurface.Marker{
		ID:       "destination",
		Position: dest,
		Label:    result.Name,
	})
	e.bus.Publish(ctx, events.SearchResults{BaseEvent: events.NewBaseEvent(), Query: "", Count: 0})
	e.router.RequestRoute(ctx, routing.SlotUserToDestination, from, dest, "0")
}

// issue fires the network query after the debounce window. Any query still
// in flight is cancelled first.
func (e *Engine) issue(ctx context.Context, text string, centerHint *geo.LatLng) {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	token := uuid.New()
	e.token = token
	e.cancel = cancel
	e.mu.Unlock()

	results, err := e.fetch(reqCtx, text, centerHint)

	e.mu.Lock()
	if e.token != token {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.results = nil
		e.mu.Unlock()
		if reqCtx.Err() == context.Canceled {
			return
		}
		e.log.UpstreamError("place_search", err)
		e.bus.Publish(context.WithoutCancel(ctx), events.SearchFailed{
			BaseEvent: events.NewBaseEvent(),
			Query:     text,
			Message:   "place search is unavailable",
		})
		return
	}
	e.results = results
	e.mu.Unlock()

	e.bus.Publish(context.WithoutCancel(ctx), events.SearchResults{
		BaseEvent: events.NewBaseEvent(),
		Query:     text,
		Count:     len(results),
	})
}

func (e *Engine) fetch(ctx context.Context, text string, centerHint *geo.LatLng) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("searchKeyword", text)
	params.Set("reqCoordType", "WGS84GEO")
	params.Set("resCoordType", "WGS84GEO")
	params.Set("count", fmt.Sprint(resultCap))
	if centerHint != nil && centerHint.Finite() {
		params.Set("centerLat", fmt.Sprint(centerHint.Lat))
		params.Set("centerLon", fmt.Sprint(centerHint.Lng))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if e.apiKey != "" {
		req.Header.Set("appKey", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search upstream error: status %d", resp.StatusCode)
	}

	var payload poiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	records := payload.SearchPoiInfo.Pois.Poi
	results := make([]SearchResult, 0, len(records))
	for _, rec := range records {
		pos, ok := rec.coordinates()
		if !ok {
			e.log.Debug("dropping candidate with unusable coordinates", "poi", rec.Name)
			continue
		}
		results = append(results, SearchResult{
			ID:        rec.ID,
			Name:      rec.Name,
			Address:   rec.address(),
			Latitude:  pos.Lat,
			Longitude: pos.Lng,
		})
		if len(results) == resultCap {
			break
		}
	}
	return results, nil
}
