package position

import (
	"context"
	"math"
	"sync"
	"time"

	"companion_engine/internal/geo"
)

// Simulator is a Provider that walks a slow circle around a center point.
// Used by the headless runner and integration tooling when no device
// capability is present.
type Simulator struct {
	Center   geo.LatLng
	RadiusM  float64
	Interval time.Duration

	mu   sync.Mutex
	held bool
	step int
}

// Current returns the next point on the circle immediately.
func (s *Simulator) Current(ctx context.Context, opts Options) (geo.Position, error) {
	if err := ctx.Err(); err != nil {
		return geo.Position{}, err
	}
	return s.next(), nil
}

// Acquire starts delivering a sample every Interval.
func (s *Simulator) Acquire(ctx context.Context, opts Options) (Stream, error) {
	s.mu.Lock()
	if s.held {
		s.mu.Unlock()
		return nil, &GeolocationError{Reason: ReasonUnavailable}
	}
	s.held = true
	s.mu.Unlock()

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}

	stream := &simStream{
		samples: make(chan Sample),
		done:    make(chan struct{}),
	}
	stream.release = func() {
		s.mu.Lock()
		s.held = false
		s.mu.Unlock()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(stream.samples)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stream.done:
				return
			case <-ticker.C:
				select {
				case stream.samples <- Sample{Position: s.next()}:
				case <-stream.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return stream, nil
}

func (s *Simulator) next() geo.Position {
	s.mu.Lock()
	step := s.step
	s.step++
	s.mu.Unlock()

	// ~1 degree of latitude is 111km; close enough for a simulator.
	angle := float64(step) * math.Pi / 30
	dLat := s.RadiusM / 111000.0 * math.Sin(angle)
	dLng := s.RadiusM / 111000.0 * math.Cos(angle) / math.Cos(s.Center.Lat*math.Pi/180)

	return geo.Position{
		LatLng:     geo.LatLng{Lat: s.Center.Lat + dLat, Lng: s.Center.Lng + dLng},
		Accuracy:   5,
		CapturedAt: time.Now(),
	}
}

type simStream struct {
	samples chan Sample
	done    chan struct{}
	once    sync.Once
	release func()
}

func (s *simStream) Samples() <-chan Sample { return s.samples }

func (s *simStream) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.release()
	})
}

var _ Provider = (*Simulator)(nil)
