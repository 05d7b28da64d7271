package control

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"companion_engine/internal/credentials"
	"companion_engine/internal/events"
	apphttp "companion_engine/internal/http"
	"companion_engine/internal/mapsurface"
	"companion_engine/internal/places"
	"companion_engine/internal/routing"
	"companion_engine/internal/voice"
	"companion_engine/platform/logger"
	"companion_engine/platform/validator"

	"github.com/gin-gonic/gin"
)

func testLogger() *logger.Logger { return logger.New("development") }

type fixture struct {
	engine  *gin.Engine
	surface *mapsurface.Memory
	search  *places.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testLogger()
	bus := events.NewInMemoryBus(log)
	surface := mapsurface.NewMemory()

	directions := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"FeatureCollection","features":[{"geometry":{"type":"LineString","coordinates":[[127.0,37.5],[127.1,37.6]]}}]}`)
	}))
	t.Cleanup(directions.Close)

	poi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"searchPoiInfo":{"pois":{"poi":[{"id":"1","name":"cafe","noorLat":"37.5","noorLon":"127.0"}]}}}`)
	}))
	t.Cleanup(poi.Close)

	transcribe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond) // keep the machine in Uploading long enough to observe
		fmt.Fprint(w, `{"text":"home"}`)
	}))
	t.Cleanup(transcribe.Close)

	router := routing.NewEngine(directions.URL, "", surface, bus, log)
	search := places.NewEngine(poi.URL, "", 10*time.Millisecond, surface, router, bus, log)
	machine := voice.NewMachine(transcribe.URL, &voice.Simulator{Seconds: 0.05}, credentials.Static("tok"), bus, log)

	m := NewModule(search, router, machine, validator.New(), log)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	m.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: engine.Group("/api/v1")})
	return &fixture{engine: engine, surface: surface, search: search}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestSearchFlow(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodPost, "/api/v1/engine/search", `{"text":"cafe"}`); w.Code != http.StatusAccepted {
		t.Fatalf("search status = %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.search.Results()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no search results arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if w := f.do(t, http.MethodGet, "/api/v1/engine/search/results", ""); w.Code != http.StatusOK ||
		!strings.Contains(w.Body.String(), `"cafe"`) {
		t.Fatalf("results = %d: %s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodPost, "/api/v1/engine/search/select",
		`{"id":"1","fromLat":37.4,"fromLng":126.9}`); w.Code != http.StatusAccepted {
		t.Fatalf("select status = %d: %s", w.Code, w.Body.String())
	}

	if markers := f.surface.Markers(mapsurface.RoleDestination); len(markers) != 1 {
		t.Fatalf("destination markers = %+v", markers)
	}
}

func TestSelectUnknownCandidate(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/engine/search/select", `{"id":"nope","fromLat":1,"fromLng":2}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRouteValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/engine/route",
		`{"slot":"sideways","startLat":1,"startLng":2,"endLat":3,"endLng":4}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad slot accepted: %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/v1/engine/route",
		`{"slot":"user","startLat":37.5,"startLng":127.0,"endLat":37.6,"endLng":127.1}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("route status = %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.surface.Polylines(mapsurface.RoleRouteUser)) != 2 {
		if time.Now().After(deadline) {
			t.Fatal("route was not rendered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if w := f.do(t, http.MethodDelete, "/api/v1/engine/route/user", ""); w.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d", w.Code)
	}
	if lines := f.surface.Polylines(mapsurface.RoleRouteUser); len(lines) != 0 {
		t.Fatalf("cancel left polylines: %+v", lines)
	}
}

func TestVoiceToggleReportsState(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/engine/voice/toggle", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"recording"`) {
		t.Fatalf("toggle = %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/v1/engine/voice/toggle", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"uploading"`) {
		t.Fatalf("second toggle = %d: %s", w.Code, w.Body.String())
	}
}
