package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"companion_engine/internal/geo"
	"companion_engine/platform/logger"
)

// fakeProvider delivers scripted samples and tracks handle accounting.
type fakeProvider struct {
	mu       sync.Mutex
	acquired int
	released int
	samples  []Sample
	current  geo.Position
	failWith error
}

func (f *fakeProvider) Current(ctx context.Context, opts Options) (geo.Position, error) {
	if f.failWith != nil {
		return geo.Position{}, f.failWith
	}
	return f.current, nil
}

func (f *fakeProvider) Acquire(ctx context.Context, opts Options) (Stream, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	f.acquired++
	f.mu.Unlock()

	ch := make(chan Sample, len(f.samples))
	for _, s := range f.samples {
		ch <- s
	}
	return &fakeStream{samples: ch, onStop: func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	}}, nil
}

type fakeStream struct {
	samples chan Sample
	once    sync.Once
	onStop  func()
}

func (s *fakeStream) Samples() <-chan Sample { return s.samples }

func (s *fakeStream) Stop() {
	s.once.Do(func() {
		s.onStop()
		close(s.samples)
	})
}

func testLogger() *logger.Logger { return logger.New("development") }

func TestGetOnceMapsFailureToGeolocationError(t *testing.T) {
	src := NewSource(&fakeProvider{failWith: errors.New("no fix")}, testLogger())

	_, err := src.GetOnce(context.Background(), Options{})
	var ge *GeolocationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GeolocationError, got %v", err)
	}
	if ge.Reason != ReasonUnavailable {
		t.Fatalf("reason = %q, want %q", ge.Reason, ReasonUnavailable)
	}
}

func TestWatchDeliversSamplesAndSurvivesErrors(t *testing.T) {
	provider := &fakeProvider{samples: []Sample{
		{Position: geo.Position{LatLng: geo.LatLng{Lat: 1, Lng: 1}}},
		{Err: &GeolocationError{Reason: ReasonTimeout}},
		{Position: geo.Position{LatLng: geo.LatLng{Lat: 2, Lng: 2}}},
	}}
	src := NewSource(provider, testLogger())

	var mu sync.Mutex
	var got []geo.Position
	var errCount int
	done := make(chan struct{})

	stop, err := src.Start(context.Background(), Options{},
		func(p geo.Position) {
			mu.Lock()
			got = append(got, p)
			if len(got) == 2 {
				close(done)
			}
			mu.Unlock()
		},
		func(error) {
			mu.Lock()
			errCount++
			mu.Unlock()
		})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for samples")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[1].Lat != 2 {
		t.Fatalf("samples = %+v", got)
	}
	if errCount != 1 {
		t.Fatalf("error callbacks = %d, want 1 (stream must stay open)", errCount)
	}
}

func TestWatchHandleIsSingleton(t *testing.T) {
	provider := &fakeProvider{}
	src := NewSource(provider, testLogger())

	stop, err := src.Start(context.Background(), Options{}, func(geo.Position) {}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := src.Start(context.Background(), Options{}, func(geo.Position) {}, nil); err == nil {
		t.Fatal("second Start while watch held must fail")
	}

	stop()
	stop() // idempotent

	provider.mu.Lock()
	released := provider.released
	provider.mu.Unlock()
	if released != 1 {
		t.Fatalf("handle released %d times, want exactly 1", released)
	}

	// Release-before-reacquire: a new watch is valid after stop.
	stop2, err := src.Start(context.Background(), Options{}, func(geo.Position) {}, nil)
	if err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	stop2()
}
