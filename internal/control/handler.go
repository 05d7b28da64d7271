// Package control exposes the engine's user interactions over HTTP so local
// tooling can drive it: place search, destination selection, route requests
// and the voice toggle. It stands in for the map screen's controls.
package control

import (
	"context"
	"errors"
	"net/http"

	"companion_engine/internal/geo"
	"companion_engine/internal/places"
	"companion_engine/internal/routing"
	"companion_engine/internal/voice"
	"companion_engine/platform/apperr"
	"companion_engine/platform/httpkit"
	"companion_engine/platform/logger"
	"companion_engine/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler translates HTTP requests into engine operations.
type Handler struct {
	search *places.Engine
	router *routing.Engine
	voice  *voice.Machine
	val    *validator.Validator
	log    *logger.Logger
}

// NewHandler creates a control handler.
func NewHandler(search *places.Engine, router *routing.Engine, machine *voice.Machine, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{search: search, router: router, voice: machine, val: val, log: log}
}

type searchRequest struct {
	Text      string   `json:"text"`
	CenterLat *float64 `json:"centerLat" validate:"omitempty,latitude"`
	CenterLng *float64 `json:"centerLng" validate:"omitempty,longitude"`
}

// Search registers new input text; results arrive after the debounce window.
func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid search request"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindValidation, "invalid search request", err))
		return
	}

	var center *geo.LatLng
	if req.CenterLat != nil && req.CenterLng != nil {
		center = &geo.LatLng{Lat: *req.CenterLat, Lng: *req.CenterLng}
	}
	// The work outlives the request: debounce and fetch run after the 202.
	h.search.SetQuery(context.WithoutCancel(c.Request.Context()), req.Text, center)
	c.Status(http.StatusAccepted)
}

// SearchResults returns the current candidate list.
func (h *Handler) SearchResults(c *gin.Context) {
	results := h.search.Results()
	httpkit.OK(c, gin.H{"count": len(results), "results": results})
}

type selectRequest struct {
	ID      string  `json:"id" validate:"required"`
	FromLat float64 `json:"fromLat" validate:"latitude"`
	FromLng float64 `json:"fromLng" validate:"longitude"`
}

// Select chooses a candidate by id, marks it as the destination and routes
// to it from the given origin.
func (h *Handler) Select(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid selection request"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindValidation, "invalid selection request", err))
		return
	}

	for _, result := range h.search.Results() {
		if result.ID == req.ID {
			h.search.Select(context.WithoutCancel(c.Request.Context()), result, geo.LatLng{Lat: req.FromLat, Lng: req.FromLng})
			c.Status(http.StatusAccepted)
			return
		}
	}
	httpkit.HandleError(c, apperr.NotFound("no such search candidate"))
}

type routeRequest struct {
	Slot     string  `json:"slot" validate:"required,oneof=user vehicle"`
	StartLat float64 `json:"startLat" validate:"latitude"`
	StartLng float64 `json:"startLng" validate:"longitude"`
	EndLat   float64 `json:"endLat" validate:"latitude"`
	EndLng   float64 `json:"endLng" validate:"longitude"`
	Mode     string  `json:"mode"`
}

func slotFromName(name string) routing.Slot {
	if name == "vehicle" {
		return routing.SlotVehicleToUser
	}
	return routing.SlotUserToDestination
}

// Route starts an asynchronous route computation for a slot.
func (h *Handler) Route(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid route request"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindValidation, "invalid route request", err))
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = "0"
	}
	h.router.RequestRoute(context.WithoutCancel(c.Request.Context()), slotFromName(req.Slot),
		geo.LatLng{Lat: req.StartLat, Lng: req.StartLng},
		geo.LatLng{Lat: req.EndLat, Lng: req.EndLng}, mode)
	c.Status(http.StatusAccepted)
}

// CancelRoute cancels a slot's in-flight request and clears its rendering.
func (h *Handler) CancelRoute(c *gin.Context) {
	name := c.Param("slot")
	if name != "user" && name != "vehicle" {
		httpkit.HandleError(c, apperr.NotFound("no such route slot"))
		return
	}
	h.router.CancelSlot(slotFromName(name))
	c.Status(http.StatusNoContent)
}

// VoiceToggle advances the capture state machine one step.
func (h *Handler) VoiceToggle(c *gin.Context) {
	err := h.voice.Toggle(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		var micErr *voice.MicrophoneError
		if errors.As(err, &micErr) {
			httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "microphone is unavailable", err))
			return
		}
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "voice toggle failed", err))
		return
	}
	httpkit.OK(c, gin.H{"state": h.voice.State().String()})
}
