package places

import (
	"encoding/json"
	"strconv"
	"strings"

	"companion_engine/internal/geo"
)

// poiRecord mirrors one point-of-interest record. Backends disagree on the
// coordinate field names and on whether coordinates arrive as numbers or
// strings, so every known variant is captured raw and parsed per record
// through the alias tables below. A record with garbage in one field must
// not poison the rest of the response.
type poiRecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	UpperAddrName  string `json:"upperAddrName"`
	MiddleAddrName string `json:"middleAddrName"`
	LowerAddrName  string `json:"lowerAddrName"`

	NoorLat  json.RawMessage `json:"noorLat"`
	NoorLon  json.RawMessage `json:"noorLon"`
	FrontLat json.RawMessage `json:"frontLat"`
	FrontLon json.RawMessage `json:"frontLon"`
	Lat      json.RawMessage `json:"lat"`
	Lon      json.RawMessage `json:"lon"`
}

// Coordinate alias tables, in priority order.
func (r poiRecord) latCandidates() []json.RawMessage {
	return []json.RawMessage{r.NoorLat, r.FrontLat, r.Lat}
}

func (r poiRecord) lonCandidates() []json.RawMessage {
	return []json.RawMessage{r.NoorLon, r.FrontLon, r.Lon}
}

// coordinates extracts the first parseable finite lat/lng pair. Records with
// no usable coordinates are dropped, never shown with placeholders.
func (r poiRecord) coordinates() (geo.LatLng, bool) {
	lat, latOK := firstFinite(r.latCandidates())
	lon, lonOK := firstFinite(r.lonCandidates())
	if !latOK || !lonOK {
		return geo.LatLng{}, false
	}
	p := geo.LatLng{Lat: lat, Lng: lon}
	return p, p.Finite()
}

func (r poiRecord) address() string {
	out := ""
	for _, part := range []string{r.UpperAddrName, r.MiddleAddrName, r.LowerAddrName} {
		if part == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += part
	}
	return out
}

func firstFinite(candidates []json.RawMessage) (float64, bool) {
	for _, c := range candidates {
		v, ok := parseCoordinate(c)
		if !ok {
			continue
		}
		if p := (geo.LatLng{Lat: v}); p.Finite() {
			return v, true
		}
	}
	return 0, false
}

// parseCoordinate accepts a JSON number or a numeric string. Anything else
// counts as the field being absent.
func parseCoordinate(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	if len(s) >= 2 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return 0, false
		}
		s = unquoted
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// poiResponse mirrors the relevant part of the search payload.
type poiResponse struct {
	SearchPoiInfo struct {
		Pois struct {
			Poi []poiRecord `json:"poi"`
		} `json:"pois"`
	} `json:"searchPoiInfo"`
}
