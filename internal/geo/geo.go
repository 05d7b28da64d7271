// Package geo holds the coordinate primitives shared by the engine.
package geo

import (
	"math"
	"time"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Finite reports whether both components are usable numbers.
func (p LatLng) Finite() bool {
	return isFinite(p.Lat) && isFinite(p.Lng)
}

// Position is a single geolocation reading. Immutable once produced.
type Position struct {
	LatLng
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Bounds is a lat/lng bounding box accumulated from a point sequence.
type Bounds struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
	set            bool
}

// Extend grows the bounds to include p. Non-finite points are ignored.
func (b *Bounds) Extend(p LatLng) {
	if !p.Finite() {
		return
	}
	if !b.set {
		b.MinLat, b.MaxLat = p.Lat, p.Lat
		b.MinLng, b.MaxLng = p.Lng, p.Lng
		b.set = true
		return
	}
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	b.MinLng = math.Min(b.MinLng, p.Lng)
	b.MaxLng = math.Max(b.MaxLng, p.Lng)
}

// Empty reports whether the bounds contain no points.
func (b *Bounds) Empty() bool {
	return !b.set
}

// Center returns the midpoint of the bounds.
func (b *Bounds) Center() LatLng {
	return LatLng{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// BoundsOf accumulates bounds over a point sequence.
func BoundsOf(points []LatLng) Bounds {
	var b Bounds
	for _, p := range points {
		b.Extend(p)
	}
	return b
}

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine great-circle distance between two points.
func DistanceMeters(a, b LatLng) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
