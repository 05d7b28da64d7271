// Package peers maintains the live set of peer markers from inbound location
// messages.
package peers

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"companion_engine/internal/geo"
	"companion_engine/internal/mapsurface"
	"companion_engine/platform/logger"
)

// PeerLocation is the last known location of another participant, keyed
// uniquely by PeerID. Peers are never removed: a peer that stops reporting
// keeps its last-known marker.
type PeerLocation struct {
	PeerID     string    `json:"peerId"`
	GroupID    string    `json:"groupId,omitempty"`
	Name       string    `json:"name,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// inboundUpdate mirrors the wire payload. Senders tag themselves with userId
// on USER_UPDATE frames; some backend versions relay it as peerId.
type inboundUpdate struct {
	PeerID    string   `json:"peerId"`
	UserID    string   `json:"userId"`
	GroupID   string   `json:"groupId"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (u inboundUpdate) peerID() string {
	if u.PeerID != "" {
		return u.PeerID
	}
	return u.UserID
}

// Reconciler consumes inbound peer-location messages and keeps one marker per
// peer on the surface. One bad message never disrupts others.
type Reconciler struct {
	surface mapsurface.Surface
	log     *logger.Logger
	now     func() time.Time

	mu    sync.RWMutex
	peers map[string]PeerLocation
}

// New creates an empty reconciler drawing on the "peers" role.
func New(surface mapsurface.Surface, log *logger.Logger) *Reconciler {
	return &Reconciler{
		surface: surface,
		log:     log,
		now:     time.Now,
		peers:   make(map[string]PeerLocation),
	}
}

// HandleMessage parses one inbound payload and upserts the peer. Malformed
// messages are discarded with a logged warning.
func (r *Reconciler) HandleMessage(payload json.RawMessage) {
	var update inboundUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		r.log.Warn("discarding malformed peer message", "error", err)
		return
	}

	id := update.peerID()
	if id == "" || update.Latitude == nil || update.Longitude == nil {
		r.log.Warn("discarding peer message with missing fields")
		return
	}
	pos := geo.LatLng{Lat: *update.Latitude, Lng: *update.Longitude}
	if !pos.Finite() {
		r.log.Warn("discarding peer message with unusable coordinates", "peer", id)
		return
	}

	loc := PeerLocation{
		PeerID:     id,
		GroupID:    update.GroupID,
		Name:       update.Name,
		Latitude:   pos.Lat,
		Longitude:  pos.Lng,
		ReceivedAt: r.now(),
	}

	r.mu.Lock()
	if prev, ok := r.peers[id]; ok && prev.ReceivedAt.After(loc.ReceivedAt) {
		// A newer update already landed; keep it.
		r.mu.Unlock()
		return
	}
	r.peers[id] = loc
	r.mu.Unlock()

	r.surface.SetMarker(mapsurface.RolePeers, mapsurface.Marker{
		ID:       id,
		Position: pos,
		Label:    update.Name,
	})
}

// Count returns the size of the peer set.
func (r *Reconciler) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns the peer set ordered by peer id.
func (r *Reconciler) Snapshot() []PeerLocation {
	r.mu.RLock()
	out := make([]PeerLocation, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}
