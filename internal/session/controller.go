// Package session owns the map-session lifecycle: it wires the position
// source, the realtime channel, the location publisher and the peer
// reconciler together, with an explicit create -> active -> disposed
// lifecycle instead of implicitly persistent handles.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"companion_engine/internal/config"
	"companion_engine/internal/credentials"
	"companion_engine/internal/events"
	"companion_engine/internal/geo"
	"companion_engine/internal/identity"
	"companion_engine/internal/mapsurface"
	"companion_engine/internal/peers"
	"companion_engine/internal/position"
	"companion_engine/internal/publisher"
	"companion_engine/internal/realtime"
	"companion_engine/platform/logger"

	"golang.org/x/sync/errgroup"
)

// Phase is the lifecycle stage of a controller.
type Phase int

const (
	Created Phase = iota
	Active
	Disposed
)

func (p Phase) String() string {
	switch p {
	case Created:
		return "created"
	case Active:
		return "active"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

const selfMarkerID = "self"

// Controller runs one map session. Not reusable: a disposed controller stays
// disposed, a new session means a new controller.
type Controller struct {
	cfg        *config.Config
	source     *position.Source
	surface    mapsurface.Surface
	reconciler *peers.Reconciler
	creds      *credentials.Chain
	bus        events.Bus
	log        *logger.Logger

	mu        sync.Mutex
	phase     Phase
	manager   *realtime.Manager
	publisher *publisher.Publisher
	stopWatch func()
	cancel    context.CancelFunc
	group     *errgroup.Group

	connectedOnce sync.Once
	connected     chan struct{}
}

// NewController creates a session in the Created phase.
func NewController(cfg *config.Config, source *position.Source, surface mapsurface.Surface, reconciler *peers.Reconciler, creds *credentials.Chain, bus events.Bus, log *logger.Logger) *Controller {
	return &Controller{
		cfg:        cfg,
		source:     source,
		surface:    surface,
		reconciler: reconciler,
		creds:      creds,
		bus:        bus,
		log:        log,
		connected:  make(chan struct{}),
	}
}

// Phase returns the current lifecycle stage.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ConnectionState reports the realtime channel state, Disconnected before
// Start and after Dispose.
func (c *Controller) ConnectionState() realtime.State {
	c.mu.Lock()
	m := c.manager
	c.mu.Unlock()
	if m == nil {
		return realtime.StateDisconnected
	}
	return m.State()
}

// Stats returns published and dropped outbound update counts.
func (c *Controller) Stats() (published, dropped uint64) {
	c.mu.Lock()
	p := c.publisher
	c.mu.Unlock()
	if p == nil {
		return 0, 0
	}
	return p.Published(), p.Dropped()
}

// Start activates the session: resolves the credential, connects the realtime
// channel, seeds one initial location and begins the continuous watch.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != Created {
		phase := c.phase
		c.mu.Unlock()
		return errors.New("session: cannot start a " + phase.String() + " session")
	}

	token, _ := c.creds.Resolve()
	id := identity.Identity{}
	if token != "" {
		parsed, err := identity.FromToken(token)
		if err != nil {
			c.log.Warn("could not read identity from credential", "error", err)
		} else {
			id = parsed
		}
	}

	manager := realtime.NewManager(c.log)
	manager.OnStateChange = func(from, to realtime.State, reason string) {
		if to == realtime.StateConnected {
			c.connectedOnce.Do(func() { close(c.connected) })
		}
		c.bus.Publish(context.Background(), events.ConnectionStateChanged{
			BaseEvent: events.NewBaseEvent(),
			From:      from.String(),
			To:        to.String(),
			Reason:    reason,
		})
	}
	manager.OnTerminalError = func(err error) {
		c.log.Error("realtime session rejected", "error", err)
		c.bus.Publish(context.Background(), events.StatusLineChanged{
			BaseEvent: events.NewBaseEvent(),
			Text:      "session authentication failed",
		})
	}
	manager.Subscribe(c.cfg.SubscribeDestination, c.reconciler.HandleMessage)

	pub := publisher.New(manager, c.cfg.PublishDestination, id, c.cfg.PublishMinInterval, c.log)

	sessionCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(sessionCtx)

	if err := manager.Activate(groupCtx, realtime.Config{
		URL:               c.cfg.WSURLOverride,
		APIBaseURL:        c.cfg.APIBaseURL,
		PathSuffix:        c.cfg.WSPathSuffix,
		BearerToken:       token,
		HeartbeatInterval: c.cfg.HeartbeatInterval,
		ReconnectDelay:    c.cfg.ReconnectDelay,
	}); err != nil {
		cancel()
		c.mu.Unlock()
		return err
	}

	c.phase = Active
	c.manager = manager
	c.publisher = pub
	c.cancel = cancel
	c.group = group
	c.mu.Unlock()

	opts := position.Options{HighAccuracy: true, Timeout: 10 * time.Second}

	// One-shot seed so peers see a location promptly; it waits for the
	// channel since the initial publish bypasses the throttle but still
	// needs a connection.
	group.Go(func() error {
		pos, err := c.source.GetOnce(groupCtx, opts)
		if err != nil {
			c.log.Warn("initial position read failed", "error", err)
			return nil
		}
		c.surface.SetMarker(mapsurface.RoleSelf, mapsurface.Marker{
			ID:       selfMarkerID,
			Position: pos.LatLng,
			Label:    id.Name,
		})
		select {
		case <-c.connected:
			pub.PublishInitial(pos)
		case <-groupCtx.Done():
		}
		return nil
	})

	stopWatch, err := c.source.Start(groupCtx, opts,
		func(pos geo.Position) {
			c.surface.SetMarker(mapsurface.RoleSelf, mapsurface.Marker{
				ID:       selfMarkerID,
				Position: pos.LatLng,
				Label:    id.Name,
			})
			pub.HandleSample(pos)
		},
		func(err error) {
			c.log.Warn("position sample failed", "error", err)
		})
	if err != nil {
		// The session stays up without continuous samples; peers and routes
		// still work.
		c.log.Error("position watch unavailable", "error", err)
		c.bus.Publish(context.Background(), events.StatusLineChanged{
			BaseEvent: events.NewBaseEvent(),
			Text:      "location unavailable",
		})
		stopWatch = func() {}
	}

	c.mu.Lock()
	if c.phase == Disposed {
		// Disposed while starting the watch.
		c.mu.Unlock()
		stopWatch()
		return nil
	}
	c.stopWatch = stopWatch
	c.mu.Unlock()
	return nil
}

// Dispose tears the session down: stops the watch, closes the channel and
// removes the self marker. Idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.phase == Disposed {
		c.mu.Unlock()
		return
	}
	started := c.phase == Active
	c.phase = Disposed
	manager := c.manager
	stopWatch := c.stopWatch
	cancel := c.cancel
	group := c.group
	c.mu.Unlock()

	if !started {
		return
	}
	if stopWatch != nil {
		stopWatch()
	}
	if manager != nil {
		manager.Deactivate()
	}
	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
	c.surface.RemoveMarker(mapsurface.RoleSelf, selfMarkerID)
}
