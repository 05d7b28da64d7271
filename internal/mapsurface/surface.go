// Package mapsurface abstracts the map drawing surface the engine renders to.
// The real SDK surface is opaque to the engine; components draw through this
// interface and each owns a disjoint subset of primitives keyed by role.
package mapsurface

import "companion_engine/internal/geo"

// Role names the owner of a set of drawn primitives. Owners must only mutate
// their own subset.
type Role string

const (
	// RoleSelf owns the current user's marker.
	RoleSelf Role = "self"
	// RolePeers owns one marker per reporting peer.
	RolePeers Role = "peers"
	// RoleDestination owns the chosen destination marker.
	RoleDestination Role = "destination"
	// RoleRouteUser owns the user-to-destination polylines.
	RoleRouteUser Role = "route_user"
	// RoleRouteVehicle owns the vehicle-to-user polylines.
	RoleRouteVehicle Role = "route_vehicle"
)

// Style describes how a polyline stroke is drawn.
type Style struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// Marker is a labelled point primitive.
type Marker struct {
	ID       string     `json:"id"`
	Position geo.LatLng `json:"position"`
	Label    string     `json:"label,omitempty"`
}

// Polyline is an ordered stroke primitive.
type Polyline struct {
	ID     string       `json:"id"`
	Points []geo.LatLng `json:"points"`
	Style  Style        `json:"style"`
}

// Surface is the drawing contract. Implementations must keep each role's
// primitives isolated: operations on one role never disturb another's.
type Surface interface {
	SetMarker(role Role, m Marker)
	RemoveMarker(role Role, id string)
	SetPolyline(role Role, p Polyline)
	RemovePolyline(role Role, id string)
	ClearRole(role Role)
	FitBounds(b geo.Bounds)
}
