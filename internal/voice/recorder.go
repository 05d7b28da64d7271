// Package voice records a short audio clip, repackages it as 16kHz mono PCM
// WAV and uploads it for transcription. A single toggle control drives the
// Idle -> Recording -> Uploading -> Idle state machine.
package voice

import (
	"context"
	"math"
	"strconv"
)

// Capture is the raw audio handed back when a recording stops. Samples are
// interleaved when Channels > 1.
type Capture struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Recording is an active microphone session. Stop both ends the capture and
// releases the microphone; the capability must never outlive the session.
type Recording interface {
	Stop() (Capture, error)
}

// Provider grants access to the microphone capability.
type Provider interface {
	Acquire(ctx context.Context) (Recording, error)
}

// MicrophoneError reports that the microphone could not be acquired
// (unavailable or permission denied). The state machine stays Idle.
type MicrophoneError struct {
	Err error
}

func (e *MicrophoneError) Error() string {
	return "microphone unavailable: " + e.Err.Error()
}

func (e *MicrophoneError) Unwrap() error { return e.Err }

// UploadError reports a server-side (5xx) transcription upload failure.
type UploadError struct {
	Status int
}

func (e *UploadError) Error() string {
	return "transcription upload failed with server status " + strconv.Itoa(e.Status)
}

// Simulator is a Provider producing a sine tone instead of real hardware.
// Used by the demo binary and anywhere a deterministic capture is handy.
type Simulator struct {
	SampleRate int // defaults to 44100
	Channels   int // defaults to 1
	Seconds    float64
	Frequency  float64 // defaults to 440 Hz
}

type simRecording struct {
	capture Capture
}

func (r *simRecording) Stop() (Capture, error) { return r.capture, nil }

// Acquire synthesizes the configured tone immediately.
func (s *Simulator) Acquire(ctx context.Context) (Recording, error) {
	rate := s.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	channels := s.Channels
	if channels <= 0 {
		channels = 1
	}
	freq := s.Frequency
	if freq <= 0 {
		freq = 440
	}
	seconds := s.Seconds
	if seconds <= 0 {
		seconds = 1
	}

	frames := int(seconds * float64(rate))
	samples := make([]int16, 0, frames*channels)
	for i := 0; i < frames; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)) * 0.3 * math.MaxInt16)
		for c := 0; c < channels; c++ {
			samples = append(samples, v)
		}
	}
	return &simRecording{capture: Capture{Samples: samples, SampleRate: rate, Channels: channels}}, nil
}
