package status

import (
	"context"
	"encoding/json"
	"sync"

	"companion_engine/internal/events"
	"companion_engine/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// streamEvent is one SSE payload: the bus event name plus its JSON body.
type streamEvent struct {
	Name string
	Data []byte
}

// client is one connected SSE consumer.
type client struct {
	id     uuid.UUID
	events chan streamEvent
}

// Stream fans engine events out to connected SSE clients. A slow client
// drops events rather than blocking the bus.
type Stream struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

// NewStream creates an empty stream.
func NewStream(log *logger.Logger) *Stream {
	return &Stream{
		log:     log,
		clients: make(map[uuid.UUID]*client),
	}
}

// RegisterHandlers forwards every engine event onto the stream.
func (s *Stream) RegisterHandlers(bus events.Bus) {
	forward := func(proto events.Event) {
		bus.Subscribe(proto.EventName(), events.HandlerFunc(
			func(ctx context.Context, ev events.Event) error {
				s.broadcast(ev)
				return nil
			}))
	}

	forward(events.StatusLineChanged{})
	forward(events.ConnectionStateChanged{})
	forward(events.RouteRendered{})
	forward(events.RouteFailed{})
	forward(events.SearchResults{})
	forward(events.SearchFailed{})
	forward(events.TranscriptionReady{})
	forward(events.TranscriptionEmpty{})
	forward(events.VoiceFailed{})
}

func (s *Stream) broadcast(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("could not encode stream event", "event", ev.EventName(), "error", err)
		return
	}
	out := streamEvent{Name: ev.EventName(), Data: data}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.events <- out:
		default:
			s.log.Debug("stream client buffer full, dropping event", "client", c.id)
		}
	}
}

func (s *Stream) addClient() *client {
	c := &client{id: uuid.New(), events: make(chan streamEvent, 32)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	return c
}

func (s *Stream) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	close(c.events)
}

// ClientCount returns how many SSE consumers are connected.
func (s *Stream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Handler returns the Gin handler serving the SSE stream.
func (s *Stream) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := s.addClient()
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"clientId": cl.id})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case ev, ok := <-cl.events:
				if !ok {
					return
				}
				c.SSEvent(ev.Name, string(ev.Data))
				c.Writer.Flush()
			}
		}
	}
}
