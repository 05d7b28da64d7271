package mapsurface

import (
	"sync"

	"companion_engine/internal/geo"
)

// Memory is an in-process Surface used by tests and the status API. It keeps
// the primitives exactly as a rendering SDK would receive them.
type Memory struct {
	mu        sync.RWMutex
	markers   map[Role]map[string]Marker
	polylines map[Role]map[string]Polyline
	viewport  geo.Bounds
	fitCalls  int
}

// NewMemory creates an empty in-memory surface.
func NewMemory() *Memory {
	return &Memory{
		markers:   make(map[Role]map[string]Marker),
		polylines: make(map[Role]map[string]Polyline),
	}
}

// SetMarker creates or moves a marker owned by role.
func (s *Memory) SetMarker(role Role, m Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers[role] == nil {
		s.markers[role] = make(map[string]Marker)
	}
	s.markers[role][m.ID] = m
}

// RemoveMarker deletes a marker owned by role.
func (s *Memory) RemoveMarker(role Role, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers[role], id)
}

// SetPolyline installs or replaces a polyline owned by role.
func (s *Memory) SetPolyline(role Role, p Polyline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.polylines[role] == nil {
		s.polylines[role] = make(map[string]Polyline)
	}
	s.polylines[role][p.ID] = p
}

// RemovePolyline disposes a polyline owned by role.
func (s *Memory) RemovePolyline(role Role, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.polylines[role], id)
}

// ClearRole disposes every primitive owned by role. Other roles are untouched.
func (s *Memory) ClearRole(role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, role)
	delete(s.polylines, role)
}

// FitBounds records the requested viewport.
func (s *Memory) FitBounds(b geo.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = b
	s.fitCalls++
}

// Markers returns a copy of the markers owned by role.
func (s *Memory) Markers(role Role) []Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Marker, 0, len(s.markers[role]))
	for _, m := range s.markers[role] {
		out = append(out, m)
	}
	return out
}

// Polylines returns a copy of the polylines owned by role.
func (s *Memory) Polylines(role Role) []Polyline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Polyline, 0, len(s.polylines[role]))
	for _, p := range s.polylines[role] {
		out = append(out, p)
	}
	return out
}

// Viewport returns the last fitted bounds and how many fits occurred.
func (s *Memory) Viewport() (geo.Bounds, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport, s.fitCalls
}

var _ Surface = (*Memory)(nil)
