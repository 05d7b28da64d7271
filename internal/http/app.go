// Package http provides the engine's HTTP server infrastructure, including
// module registration.
package http

import (
	"companion_engine/internal/config"
	"companion_engine/internal/events"
	"companion_engine/platform/logger"
)

// App holds the fully initialized application dependencies. It is populated
// by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the engine configuration.
	Config *config.Config
	// Logger is the structured logger.
	Logger *logger.Logger
	// EventBus is the engine event bus for cross-module communication.
	EventBus events.Bus
	// Modules contains all HTTP-facing modules.
	Modules []Module
}
