package realtime

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Frame is the wire envelope exchanged on the realtime channel.
type Frame struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// TypeUserUpdate tags outbound location updates.
const TypeUserUpdate = "USER_UPDATE"

// LocationUpdate is the USER_UPDATE payload. Identity fields are included
// only when known.
type LocationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	GroupID   string  `json:"groupId,omitempty"`
	UserID    string  `json:"userId,omitempty"`
	Name      string  `json:"name,omitempty"`
}

// Config describes one channel activation.
type Config struct {
	// URL is an explicit channel endpoint. When empty the endpoint is
	// derived from APIBaseURL with the scheme upgraded to its ws(s)
	// counterpart plus PathSuffix.
	URL        string
	APIBaseURL string
	PathSuffix string

	// BearerToken is sent in the handshake Authorization header when set.
	BearerToken string

	// HeartbeatInterval applies in both directions; a missed heartbeat is a
	// transport error. Defaults to 10s.
	HeartbeatInterval time.Duration
	// ReconnectDelay is the fixed backoff before the single reconnect
	// attempt. Defaults to 5s.
	ReconnectDelay time.Duration
}

// Endpoint resolves the websocket URL for this config.
func (c Config) Endpoint() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if c.APIBaseURL == "" {
		return "", fmt.Errorf("realtime endpoint requires URL or APIBaseURL")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket url
	default:
		return "", fmt.Errorf("unsupported api base scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.PathSuffix
	return u.String(), nil
}

func (c Config) heartbeat() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return 10 * time.Second
}

func (c Config) reconnectDelay() time.Duration {
	if c.ReconnectDelay > 0 {
		return c.ReconnectDelay
	}
	return 5 * time.Second
}
