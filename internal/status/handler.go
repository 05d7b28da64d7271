package status

import (
	"companion_engine/internal/peers"
	"companion_engine/internal/realtime"
	"companion_engine/internal/session"
	"companion_engine/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// SessionInfo is what the handler needs from the session controller.
type SessionInfo interface {
	Phase() session.Phase
	ConnectionState() realtime.State
	Stats() (published, dropped uint64)
}

// PeerReader exposes the reconciler's live peer set.
type PeerReader interface {
	Count() int
	Snapshot() []peers.PeerLocation
}

// Handler serves the engine status endpoints.
type Handler struct {
	session SessionInfo
	peers   PeerReader
	tracker *Tracker
}

// NewHandler creates a status handler.
func NewHandler(sess SessionInfo, peerReader PeerReader, tracker *Tracker) *Handler {
	return &Handler{session: sess, peers: peerReader, tracker: tracker}
}

// State reports the session phase, connection state, status line and
// publish counters.
func (h *Handler) State(c *gin.Context) {
	published, dropped := h.session.Stats()
	httpkit.OK(c, gin.H{
		"phase":      h.session.Phase().String(),
		"connection": h.session.ConnectionState().String(),
		"statusLine": h.tracker.Line(),
		"published":  published,
		"dropped":    dropped,
	})
}

// Peers reports the live peer snapshot.
func (h *Handler) Peers(c *gin.Context) {
	httpkit.OK(c, gin.H{
		"count": h.peers.Count(),
		"peers": h.peers.Snapshot(),
	})
}
