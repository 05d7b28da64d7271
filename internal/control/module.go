package control

import (
	apphttp "companion_engine/internal/http"
	"companion_engine/internal/places"
	"companion_engine/internal/routing"
	"companion_engine/internal/voice"
	"companion_engine/platform/logger"
	"companion_engine/platform/validator"
)

// Module wires the engine control HTTP routes.
type Module struct {
	handler *Handler
}

// NewModule creates the control module.
func NewModule(search *places.Engine, router *routing.Engine, machine *voice.Machine, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(search, router, machine, val, log)}
}

func (m *Module) Name() string {
	return "control"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/engine")
	group.POST("/search", m.handler.Search)
	group.GET("/search/results", m.handler.SearchResults)
	group.POST("/search/select", m.handler.Select)
	group.POST("/route", m.handler.Route)
	group.DELETE("/route/:slot", m.handler.CancelRoute)
	group.POST("/voice/toggle", m.handler.VoiceToggle)
}

var _ apphttp.Module = (*Module)(nil)
