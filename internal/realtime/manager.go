// Package realtime manages the single bidirectional messaging session behind
// the live map: connect, authenticate, heartbeat, reconnect, publish and
// subscribe.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"companion_engine/platform/logger"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Publish while the channel is not connected.
// Location payloads are naturally superseded by the next sample, so callers
// drop rather than queue.
var ErrNotConnected = errors.New("realtime: not connected")

// AuthError is a terminal handshake rejection for this activation. It is not
// retried automatically.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("realtime: handshake rejected with status %d", e.StatusCode)
}

// Handler consumes inbound payloads for one destination, in arrival order.
type Handler func(payload json.RawMessage)

// Manager owns one realtime session. Create with NewManager, start with
// Activate, tear down with Deactivate. A Manager is not reusable after
// Deactivate; activating a new session means creating a new Manager.
type Manager struct {
	log *logger.Logger

	// OnStateChange, when set before Activate, observes every transition.
	OnStateChange func(from, to State, reason string)
	// OnTerminalError, when set before Activate, receives the terminal
	// activation error (authentication rejection).
	OnTerminalError func(err error)

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	handlers map[string][]Handler
	stopped  bool
	stopCh   chan struct{}

	writeMu sync.Mutex
}

// NewManager creates an inactive manager.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		log:      log,
		state:    StateDisconnected,
		handlers: make(map[string][]Handler),
		stopCh:   make(chan struct{}),
	}
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a handler for one inbound destination. Handlers for a
// destination run in arrival order; there is no ordering guarantee across
// destinations.
func (m *Manager) Subscribe(destination string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[destination] = append(m.handlers[destination], handler)
}

// Publish sends a frame of the given type to the destination. Valid only
// while Connected.
func (m *Manager) Publish(destination, frameType string, payload interface{}) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	frame := Frame{Type: frameType, Destination: destination, Payload: raw}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Activate begins connecting. It does not block; the transition to Connected
// resolves asynchronously.
func (m *Manager) Activate(ctx context.Context, cfg Config) error {
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return errors.New("realtime: manager already deactivated")
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return errors.New("realtime: already activated")
	}
	m.mu.Unlock()

	m.setState(StateConnecting, "activate")
	go m.run(ctx, cfg, endpoint)
	return nil
}

// Deactivate closes the transport and releases all resources. Idempotent.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopCh)
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.setState(StateDisconnected, "deactivate")
}

func (m *Manager) run(ctx context.Context, cfg Config, endpoint string) {
	for {
		if m.isStopped() || ctx.Err() != nil {
			m.setState(StateDisconnected, "stopped")
			return
		}

		conn, err := m.dial(ctx, cfg, endpoint)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				m.log.Error("realtime handshake rejected", "status", authErr.StatusCode)
				m.setState(StateDisconnected, "auth_failure")
				if m.OnTerminalError != nil {
					m.OnTerminalError(authErr)
				}
				return
			}
			m.log.Warn("realtime dial failed", "error", err)
			if !m.waitReconnect(ctx, cfg, "dial_failed") {
				return
			}
			continue
		}

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			_ = conn.Close()
			m.setState(StateDisconnected, "stopped")
			return
		}
		m.conn = conn
		m.mu.Unlock()
		m.setState(StateConnected, "handshake_ok")

		reason := m.serve(ctx, cfg, conn)

		m.mu.Lock()
		m.conn = nil
		stopped := m.stopped
		m.mu.Unlock()
		_ = conn.Close()

		if stopped || ctx.Err() != nil {
			m.setState(StateDisconnected, "stopped")
			return
		}
		if !m.waitReconnect(ctx, cfg, reason) {
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context, cfg Config, endpoint string) (*websocket.Conn, error) {
	header := http.Header{}
	if cfg.BearerToken != "" {
		header.Set("Authorization", "Bearer "+cfg.BearerToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{StatusCode: resp.StatusCode}
		}
		return nil, err
	}
	return conn, nil
}

// serve pumps inbound frames and heartbeats until the connection fails.
// Returns the reason the connection ended.
func (m *Manager) serve(ctx context.Context, cfg Config, conn *websocket.Conn) string {
	heartbeat := cfg.heartbeat()

	// A missed heartbeat on either side is a transport error: the read
	// deadline covers the inbound direction, periodic pings the outbound.
	_ = conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(heartbeat))
				m.writeMu.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if m.isStopped() || ctx.Err() != nil {
				return "stopped"
			}
			m.log.Warn("realtime read failed", "error", err)
			return "transport_error"
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
		m.dispatch(frame)
	}
}

// dispatch invokes the destination's handlers in arrival order. A handler
// panic or a frame with no subscribers never disrupts the session.
func (m *Manager) dispatch(frame Frame) {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers[frame.Destination]))
	copy(handlers, m.handlers[frame.Destination])
	m.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("realtime handler panicked",
						"destination", frame.Destination, "panic", r)
				}
			}()
			h(frame.Payload)
		}()
	}
}

// waitReconnect schedules exactly one reconnect attempt after the fixed
// delay. Returns false when the session was stopped while waiting.
func (m *Manager) waitReconnect(ctx context.Context, cfg Config, reason string) bool {
	m.setState(StateReconnecting, reason)
	select {
	case <-m.stopCh:
		m.setState(StateDisconnected, "stopped")
		return false
	case <-ctx.Done():
		m.setState(StateDisconnected, "context_cancelled")
		return false
	case <-time.After(cfg.reconnectDelay()):
		m.setState(StateConnecting, "reconnect")
		return true
	}
}

func (m *Manager) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Manager) setState(to State, reason string) {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	cb := m.OnStateChange
	m.mu.Unlock()

	m.log.ConnectionEvent(from.String(), to.String(), reason)
	if cb != nil {
		cb(from, to, reason)
	}
}
