package status

import (
	"companion_engine/internal/events"
	apphttp "companion_engine/internal/http"
	"companion_engine/platform/logger"
)

// Module wires the engine status HTTP routes and the SSE event stream.
type Module struct {
	handler *Handler
	stream  *Stream
	tracker *Tracker
}

// NewModule creates the status module and subscribes it to the event bus.
func NewModule(sess SessionInfo, peerReader PeerReader, bus events.Bus, log *logger.Logger) *Module {
	tracker := NewTracker()
	tracker.RegisterHandlers(bus)

	stream := NewStream(log)
	stream.RegisterHandlers(bus)

	return &Module{
		handler: NewHandler(sess, peerReader, tracker),
		stream:  stream,
		tracker: tracker,
	}
}

func (m *Module) Name() string {
	return "status"
}

// Tracker exposes the status line tracker.
func (m *Module) Tracker() *Tracker {
	return m.tracker
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/engine")
	group.GET("/state", m.handler.State)
	group.GET("/peers", m.handler.Peers)
	group.GET("/events", m.stream.Handler())
}

var _ apphttp.Module = (*Module)(nil)
