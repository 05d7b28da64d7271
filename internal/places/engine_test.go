package places

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"companion_engine/internal/events"
	"companion_engine/internal/geo"
	"companion_engine/internal/mapsurface"
	"companion_engine/internal/routing"
	"companion_engine/platform/logger"
)

func testLogger() *logger.Logger { return logger.New("development") }

func poiBody(records string) string {
	return `{"searchPoiInfo":{"pois":{"poi":[` + records + `]}}}`
}

type searchServer struct {
	*httptest.Server
	mu       sync.Mutex
	keywords []string
	hold     map[string]chan struct{}
	body     func(keyword string) string
}

func newSearchServer(t *testing.T, body func(keyword string) string) *searchServer {
	t.Helper()
	s := &searchServer{hold: make(map[string]chan struct{}), body: body}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyword := r.URL.Query().Get("searchKeyword")
		s.mu.Lock()
		s.keywords = append(s.keywords, keyword)
		gate := s.hold[keyword]
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		fmt.Fprint(w, s.body(keyword))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *searchServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keywords)
}

type fakeRouter struct {
	mu    sync.Mutex
	calls []geo.LatLng
}

func (f *fakeRouter) RequestRoute(ctx context.Context, slot routing.Slot, start, end geo.LatLng, mode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, end)
}

func newTestEngine(t *testing.T, serverURL string, debounce time.Duration) (*Engine, *fakeRouter, *mapsurface.Memory) {
	t.Helper()
	surface := mapsurface.NewMemory()
	router := &fakeRouter{}
	bus := events.NewInMemoryBus(testLogger())
	return NewEngine(serverURL, "", debounce, surface, router, bus, testLogger()), router, surface
}

func waitResults(t *testing.T, e *Engine, want int) []SearchResult {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r := e.Results(); len(r) == want {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("results = %d, want %d", len(e.Results()), want)
	return nil
}

func TestRapidTypingIssuesOneQuery(t *testing.T) {
	server := newSearchServer(t, func(keyword string) string {
		return poiBody(`{"id":"1","name":"` + keyword + `","noorLat":"37.5","noorLon":"127.0"}`)
	})
	e, _, _ := newTestEngine(t, server.URL, 50*time.Millisecond)

	ctx := context.Background()
	e.SetQuery(ctx, "s", nil)
	e.SetQuery(ctx, "se", nil)
	e.SetQuery(ctx, "seoul", nil)

	results := waitResults(t, e, 1)
	if results[0].Name != "seoul" {
		t.Fatalf("query ran for %q, want final text", results[0].Name)
	}

	time.Sleep(150 * time.Millisecond)
	if n := server.requestCount(); n != 1 {
		t.Fatalf("network queries = %d, want exactly 1", n)
	}
}

func TestEmptyTextClearsImmediately(t *testing.T) {
	server := newSearchServer(t, func(keyword string) string {
		return poiBody(`{"id":"1","name":"cafe","noorLat":"37.5","noorLon":"127.0"}`)
	})
	e, _, _ := newTestEngine(t, server.URL, 30*time.Millisecond)

	ctx := context.Background()
	e.SetQuery(ctx, "cafe", nil)
	waitResults(t, e, 1)

	e.SetQuery(ctx, "   ", nil)
	if len(e.Results()) != 0 {
		t.Fatal("empty text must clear results immediately")
	}

	time.Sleep(100 * time.Millisecond)
	if n := server.requestCount(); n != 1 {
		t.Fatalf("clearing issued a network call (%d total)", n)
	}
}

func TestNewerQuerySupersedesInFlight(t *testing.T) {
	server := newSearchServer(t, func(keyword string) string {
		return poiBody(`{"id":"1","name":"` + keyword + `","noorLat":"37.5","noorLon":"127.0"}`)
	})
	release := make(chan struct{})
	server.hold["first"] = release

	e, _, _ := newTestEngine(t, server.URL, 20*time.Millisecond)
	ctx := context.Background()

	e.SetQuery(ctx, "first", nil)
	time.Sleep(60 * time.Millisecond) // let "first" reach the network and stall
	e.SetQuery(ctx, "second", nil)

	results := waitResults(t, e, 1)
	if results[0].Name != "second" {
		t.Fatalf("results from %q, want the newer query", results[0].Name)
	}

	close(release)
	time.Sleep(80 * time.Millisecond)
	if r := e.Results(); len(r) != 1 || r[0].Name != "second" {
		t.Fatalf("stale query overwrote newer results: %+v", r)
	}
}

func TestCoordinateAliasesAndFiltering(t *testing.T) {
	server := newSearchServer(t, func(string) string {
		return poiBody(`{"id":"1","name":"noor","noorLat":"37.1","noorLon":"127.1"},` +
			`{"id":"2","name":"front","frontLat":37.2,"frontLon":127.2},` +
			`{"id":"3","name":"plain","lat":"37.3","lon":"127.3","upperAddrName":"Seoul","middleAddrName":"Gangnam"},` +
			`{"id":"4","name":"missing"},` +
			`{"id":"5","name":"garbage","noorLat":"not-a-number","noorLon":"127.5"}`)
	})
	e, _, _ := newTestEngine(t, server.URL, 10*time.Millisecond)

	e.SetQuery(context.Background(), "anything", nil)
	results := waitResults(t, e, 3)

	if results[0].Latitude != 37.1 || results[1].Latitude != 37.2 || results[2].Latitude != 37.3 {
		t.Fatalf("alias extraction wrong: %+v", results)
	}
	if results[2].Address != "Seoul Gangnam" {
		t.Fatalf("address = %q", results[2].Address)
	}
}

func TestSelectClearsAndRoutesDestination(t *testing.T) {
	server := newSearchServer(t, func(string) string {
		return poiBody(`{"id":"1","name":"cafe","noorLat":"37.5","noorLon":"127.0"}`)
	})
	e, router, surface := newTestEngine(t, server.URL, 10*time.Millisecond)
	ctx := context.Background()

	e.SetQuery(ctx, "cafe", nil)
	results := waitResults(t, e, 1)

	from := geo.LatLng{Lat: 37.4, Lng: 126.9}
	e.Select(ctx, results[0], from)

	if len(e.Results()) != 0 {
		t.Fatal("selection must clear the candidate list")
	}

	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.calls) != 1 || router.calls[0].Lat != 37.5 {
		t.Fatalf("route calls = %+v", router.calls)
	}

	markers := surface.Markers(mapsurface.RoleDestination)
	if len(markers) != 1 || markers[0].Position.Lng != 127.0 {
		t.Fatalf("destination marker = %+v", markers)
	}
}
