// Package position wraps the device geolocation capability into one-shot
// reads and a continuous watch stream.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"companion_engine/internal/geo"
	"companion_engine/platform/logger"
)

// Failure reasons reported by the device capability.
const (
	ReasonDenied      = "denied"
	ReasonUnavailable = "unavailable"
	ReasonTimeout     = "timeout"
)

// GeolocationError describes a failed position read. Watch failures are
// per-sample: the stream stays open.
type GeolocationError struct {
	Reason string
	Err    error
}

func (e *GeolocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %v", e.Reason, e.Err)
	}
	return "geolocation " + e.Reason
}

func (e *GeolocationError) Unwrap() error { return e.Err }

// Options tune a position request.
type Options struct {
	HighAccuracy bool
	// MaxStaleness is the oldest cached reading the capability may return.
	MaxStaleness time.Duration
	Timeout      time.Duration
}

// Sample is one delivery on a watch stream: a position or a per-sample error.
type Sample struct {
	Position geo.Position
	Err      error
}

// Stream is an acquired continuous watch. Stop releases the underlying
// device handle; it must be safe to call more than once.
type Stream interface {
	Samples() <-chan Sample
	Stop()
}

// Provider is the device geolocation capability.
type Provider interface {
	// Current performs a single best-effort read.
	Current(ctx context.Context, opts Options) (geo.Position, error)
	// Acquire obtains the watch handle and starts delivering samples.
	Acquire(ctx context.Context, opts Options) (Stream, error)
}

// Source exposes the two consumption modes over a Provider and enforces the
// singleton watch handle: acquiring while already held is invalid, and the
// handle is released exactly once on stop, including error paths.
type Source struct {
	provider Provider
	log      *logger.Logger

	mu     sync.Mutex
	active bool
}

// NewSource creates a Source over the given device capability.
func NewSource(provider Provider, log *logger.Logger) *Source {
	return &Source{provider: provider, log: log}
}

// GetOnce performs a single best-effort read.
func (s *Source) GetOnce(ctx context.Context, opts Options) (geo.Position, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	pos, err := s.provider.Current(ctx, opts)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return geo.Position{}, &GeolocationError{Reason: ReasonTimeout, Err: err}
		}
		if ge, ok := err.(*GeolocationError); ok {
			return geo.Position{}, ge
		}
		return geo.Position{}, &GeolocationError{Reason: ReasonUnavailable, Err: err}
	}
	return pos, nil
}

// Start begins the continuous watch. Each good sample invokes onSample; each
// failed sample invokes onError and the stream stays open. The returned stop
// function releases the watch handle and is idempotent.
func (s *Source) Start(ctx context.Context, opts Options, onSample func(geo.Position), onError func(error)) (func(), error) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, fmt.Errorf("position watch already active")
	}
	s.active = true
	s.mu.Unlock()

	stream, err := s.provider.Acquire(ctx, opts)
	if err != nil {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		if ge, ok := err.(*GeolocationError); ok {
			return nil, ge
		}
		return nil, &GeolocationError{Reason: ReasonDenied, Err: err}
	}

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			stream.Stop()
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case sample, ok := <-stream.Samples():
				if !ok {
					return
				}
				if sample.Err != nil {
					s.log.Warn("position sample failed", "error", sample.Err)
					if onError != nil {
						onError(sample.Err)
					}
					continue
				}
				onSample(sample.Position)
			}
		}
	}()

	return stop, nil
}
