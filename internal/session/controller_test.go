package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"companion_engine/internal/config"
	"companion_engine/internal/credentials"
	"companion_engine/internal/events"
	"companion_engine/internal/geo"
	"companion_engine/internal/mapsurface"
	"companion_engine/internal/peers"
	"companion_engine/internal/position"
	"companion_engine/internal/realtime"
	"companion_engine/platform/logger"

	"github.com/gorilla/websocket"
)

func testLogger() *logger.Logger { return logger.New("development") }

type wsServer struct {
	*httptest.Server
	mu      sync.Mutex
	conns   []*websocket.Conn
	inbound chan realtime.Frame
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{inbound: make(chan realtime.Frame, 32)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		for {
			var frame realtime.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.inbound <- frame
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) lastConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

type fakeStream struct {
	samples chan position.Sample
	once    sync.Once
	mu      sync.Mutex
	stopped bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{samples: make(chan position.Sample, 16)}
}

func (s *fakeStream) Samples() <-chan position.Sample { return s.samples }

func (s *fakeStream) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.samples)
	})
}

func (s *fakeStream) released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevice struct {
	pos    geo.Position
	stream *fakeStream
}

func (d *fakeDevice) Current(ctx context.Context, opts position.Options) (geo.Position, error) {
	return d.pos, nil
}

func (d *fakeDevice) Acquire(ctx context.Context, opts position.Options) (position.Stream, error) {
	return d.stream, nil
}

func testConfig(wsURL string) *config.Config {
	return &config.Config{
		Env:                  "development",
		WSURLOverride:        wsURL,
		PublishDestination:   "/app/location/update",
		SubscribeDestination: "/topic/location/updates",
		HeartbeatInterval:    time.Second,
		ReconnectDelay:       50 * time.Millisecond,
	}
}

func newTestController(t *testing.T, cfg *config.Config, device *fakeDevice) (*Controller, *mapsurface.Memory, *peers.Reconciler, events.Bus) {
	t.Helper()
	log := testLogger()
	surface := mapsurface.NewMemory()
	reconciler := peers.New(surface, log)
	bus := events.NewInMemoryBus(log)
	source := position.NewSource(device, log)
	c := NewController(cfg, source, surface, reconciler, credentials.NewChain(), bus, log)
	return c, surface, reconciler, bus
}

func waitConnection(t *testing.T, c *Controller, want realtime.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.ConnectionState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection state = %v, want %v", c.ConnectionState(), want)
}

func TestStartSeedsAndStreamsSamples(t *testing.T) {
	server := newWSServer(t)
	device := &fakeDevice{
		pos:    geo.Position{LatLng: geo.LatLng{Lat: 37.5, Lng: 127.0}},
		stream: newFakeStream(),
	}
	c, surface, _, _ := newTestController(t, testConfig(server.wsURL()), device)
	defer c.Dispose()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.Phase() != Active {
		t.Fatalf("phase = %v, want Active", c.Phase())
	}
	waitConnection(t, c, realtime.StateConnected)

	// The one-shot seed goes out once connected.
	select {
	case frame := <-server.inbound:
		if frame.Type != realtime.TypeUserUpdate {
			t.Fatalf("frame type = %q", frame.Type)
		}
		var update realtime.LocationUpdate
		if err := json.Unmarshal(frame.Payload, &update); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if update.Latitude != 37.5 || update.Longitude != 127.0 {
			t.Fatalf("seed update = %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("initial location was not published")
	}

	for i := 0; i < 3; i++ {
		device.stream.samples <- position.Sample{
			Position: geo.Position{LatLng: geo.LatLng{Lat: 37.5 + float64(i)*0.001, Lng: 127.0}},
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case <-server.inbound:
		case <-time.After(2 * time.Second):
			t.Fatalf("watch sample %d was not published", i)
		}
	}

	markers := surface.Markers(mapsurface.RoleSelf)
	if len(markers) != 1 {
		t.Fatalf("self markers = %d, want 1", len(markers))
	}
}

func TestInboundPeerUpdatesReachReconciler(t *testing.T) {
	server := newWSServer(t)
	device := &fakeDevice{stream: newFakeStream()}
	c, surface, reconciler, _ := newTestController(t, testConfig(server.wsURL()), device)
	defer c.Dispose()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitConnection(t, c, realtime.StateConnected)

	frame := realtime.Frame{
		Type:        realtime.TypeUserUpdate,
		Destination: "/topic/location/updates",
		Payload:     json.RawMessage(`{"peerId":"p-1","name":"Jun","latitude":37.6,"longitude":127.1}`),
	}
	if err := server.lastConn().WriteJSON(frame); err != nil {
		t.Fatalf("server write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reconciler.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("peer count = %d, want 1", reconciler.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if markers := surface.Markers(mapsurface.RolePeers); len(markers) != 1 || markers[0].ID != "p-1" {
		t.Fatalf("peer markers = %+v", markers)
	}
}

func TestConnectionTransitionsArePublished(t *testing.T) {
	server := newWSServer(t)
	device := &fakeDevice{stream: newFakeStream()}
	c, _, _, bus := newTestController(t, testConfig(server.wsURL()), device)
	defer c.Dispose()

	changes := make(chan events.ConnectionStateChanged, 8)
	bus.Subscribe(events.ConnectionStateChanged{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, ev events.Event) error {
			changes <- ev.(events.ConnectionStateChanged)
			return nil
		}))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-changes:
			if ev.To == "connected" {
				return
			}
		case <-deadline:
			t.Fatal("no transition to connected was published")
		}
	}
}

func TestDisposeIdempotentAndReleasesResources(t *testing.T) {
	server := newWSServer(t)
	device := &fakeDevice{
		pos:    geo.Position{LatLng: geo.LatLng{Lat: 1, Lng: 2}},
		stream: newFakeStream(),
	}
	c, surface, _, _ := newTestController(t, testConfig(server.wsURL()), device)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitConnection(t, c, realtime.StateConnected)

	c.Dispose()
	c.Dispose()

	if c.Phase() != Disposed {
		t.Fatalf("phase = %v, want Disposed", c.Phase())
	}
	if !device.stream.released() {
		t.Fatal("watch handle was not released")
	}
	if c.ConnectionState() != realtime.StateDisconnected {
		t.Fatalf("connection state = %v, want Disconnected", c.ConnectionState())
	}
	if markers := surface.Markers(mapsurface.RoleSelf); len(markers) != 0 {
		t.Fatalf("self marker survived dispose: %+v", markers)
	}

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("a disposed session must not restart")
	}
}
