package routing

import (
	"companion_engine/internal/mapsurface"
)

// Slot identifies one of the two independently maintained route computations.
type Slot int

const (
	// SlotUserToDestination is the user-initiated route. Failures surface to
	// the UI and the viewport recenters on success.
	SlotUserToDestination Slot = iota
	// SlotVehicleToUser is the background vehicle-tracking route. It fails
	// silently and never recenters the view.
	SlotVehicleToUser
)

func (s Slot) String() string {
	switch s {
	case SlotUserToDestination:
		return "user_to_destination"
	case SlotVehicleToUser:
		return "vehicle_to_user"
	default:
		return "unknown"
	}
}

func (s Slot) role() mapsurface.Role {
	if s == SlotVehicleToUser {
		return mapsurface.RoleRouteVehicle
	}
	return mapsurface.RoleRouteUser
}

// RouteComputeError is surfaced to the UI layer when a user-initiated route
// cannot be computed.
type RouteComputeError struct {
	Slot Slot
	Err  error
}

func (e *RouteComputeError) Error() string {
	return "route computation failed for " + e.Slot.String() + ": " + e.Err.Error()
}

func (e *RouteComputeError) Unwrap() error { return e.Err }

// directionsRequest is the wire request to the external directions service.
// X is longitude, Y is latitude.
type directionsRequest struct {
	StartX       float64 `json:"startX"`
	StartY       float64 `json:"startY"`
	EndX         float64 `json:"endX"`
	EndY         float64 `json:"endY"`
	ReqCoordType string  `json:"reqCoordType"`
	ResCoordType string  `json:"resCoordType"`
	SearchOption string  `json:"searchOption"`
}

// featureCollection mirrors the relevant parts of the directions response.
// Only line-geometry features carry route coordinates.
type featureCollection struct {
	Features []struct {
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Route strokes: a wider under-stroke below a narrower over-stroke produces
// an outlined line.
var (
	underStroke = mapsurface.Style{Color: "#0b4f22", Width: 9}
	overStroke  = mapsurface.Style{Color: "#2fbf5f", Width: 5}
)

const (
	underStrokeID = "under"
	overStrokeID  = "over"
)
