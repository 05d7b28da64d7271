package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"companion_engine/internal/config"
	"companion_engine/internal/control"
	"companion_engine/internal/credentials"
	"companion_engine/internal/events"
	"companion_engine/internal/geo"
	apphttp "companion_engine/internal/http"
	"companion_engine/internal/http/router"
	"companion_engine/internal/mapsurface"
	"companion_engine/internal/peers"
	"companion_engine/internal/places"
	"companion_engine/internal/position"
	"companion_engine/internal/routing"
	"companion_engine/internal/session"
	"companion_engine/internal/status"
	"companion_engine/internal/voice"
	"companion_engine/platform/logger"
	"companion_engine/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting engine", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	// Event bus for decoupled communication between engine components
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// The drawing surface stands in for the mapping SDK; the status API
	// reads from it.
	surface := mapsurface.NewMemory()

	// Credential priority: session token, persisted token, injected test token
	sessionStore := &credentials.SessionStore{}
	creds := credentials.NewChain(
		sessionStore,
		credentials.Static(cfg.AccessToken),
		credentials.Static(cfg.TestToken),
	)

	// ========================================================================
	// Engine Components (Composition Root)
	// ========================================================================

	device := &position.Simulator{
		Center:   geo.LatLng{Lat: 37.5665, Lng: 126.978},
		RadiusM:  250,
		Interval: 2 * time.Second,
	}
	source := position.NewSource(device, log)
	reconciler := peers.New(surface, log)

	controller := session.NewController(cfg, source, surface, reconciler, creds, eventBus, log)
	if err := controller.Start(ctx); err != nil {
		log.Error("failed to start map session", "error", err)
		panic("failed to start map session: " + err.Error())
	}
	defer controller.Dispose()

	routeEngine := routing.NewEngine(cfg.DirectionsURL, cfg.DirectionsAPIKey, surface, eventBus, log)
	searchEngine := places.NewEngine(cfg.PlacesURL, cfg.PlacesAPIKey, places.DefaultDebounce, surface, routeEngine, eventBus, log)
	voiceMachine := voice.NewMachine(cfg.TranscribeURL, &voice.Simulator{Seconds: 3}, creds, eventBus, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			status.NewModule(controller, reconciler, eventBus, log),
			control.NewModule(searchEngine, routeEngine, voiceMachine, val, log),
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("status api listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, disposing map session")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}
