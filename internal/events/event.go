// Package events provides the engine's event definitions for decoupled
// communication between the map session components and the UI-facing status
// layer. Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"companion_engine/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Map Session Events
// =============================================================================

// StatusLineChanged is published when the map screen's status line should
// change (voice prompts, search feedback, route failures).
type StatusLineChanged struct {
	BaseEvent
	Text string `json:"text"`
}

func (e StatusLineChanged) EventName() string { return "session.status_line.changed" }

// ConnectionStateChanged is published on every realtime channel transition.
type ConnectionStateChanged struct {
	BaseEvent
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

func (e ConnectionStateChanged) EventName() string { return "session.connection.changed" }

// =============================================================================
// Routing Events
// =============================================================================

// RouteRendered is published when a slot's polyline is installed.
type RouteRendered struct {
	BaseEvent
	Slot       string `json:"slot"`
	PointCount int    `json:"pointCount"`
}

func (e RouteRendered) EventName() string { return "routing.route.rendered" }

// RouteFailed is published when a user-initiated route computation fails.
// Background vehicle-tracking failures are logged, never published.
type RouteFailed struct {
	BaseEvent
	Slot    string `json:"slot"`
	Message string `json:"message"`
}

func (e RouteFailed) EventName() string { return "routing.route.failed" }

// =============================================================================
// Search Events
// =============================================================================

// SearchResults is published when a query's candidate list changes.
type SearchResults struct {
	BaseEvent
	Query string `json:"query"`
	Count int    `json:"count"`
}

func (e SearchResults) EventName() string { return "search.results.changed" }

// SearchFailed is published when a user-initiated search fails; the candidate
// list is cleared.
type SearchFailed struct {
	BaseEvent
	Query   string `json:"query"`
	Message string `json:"message"`
}

func (e SearchFailed) EventName() string { return "search.failed" }

// =============================================================================
// Voice Events
// =============================================================================

// TranscriptionReady is published when an upload produced recognized text for
// the user to confirm.
type TranscriptionReady struct {
	BaseEvent
	Text string `json:"text"`
}

func (e TranscriptionReady) EventName() string { return "voice.transcription.ready" }

// TranscriptionEmpty is published when the upload succeeded but nothing was
// recognized. Soft outcome, the user may retry.
type TranscriptionEmpty struct {
	BaseEvent
}

func (e TranscriptionEmpty) EventName() string { return "voice.transcription.empty" }

// VoiceFailed is published on microphone or upload failures.
type VoiceFailed struct {
	BaseEvent
	Message string `json:"message"`
}

func (e VoiceFailed) EventName() string { return "voice.failed" }
