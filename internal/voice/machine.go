package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"companion_engine/internal/credentials"
	"companion_engine/internal/events"
	"companion_engine/platform/logger"

	"github.com/google/uuid"
)

// State of the capture session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateUploading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateUploading:
		return "uploading"
	default:
		return "unknown"
	}
}

// transcriptionResponse carries the recognized text under whichever field
// name the backend chose. Checked in declared priority order.
type transcriptionResponse struct {
	Text       string `json:"text"`
	ResultText string `json:"result_text"`
	Transcript string `json:"transcript"`
}

func (r transcriptionResponse) recognized() string {
	for _, candidate := range []string{r.Text, r.ResultText, r.Transcript} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return ""
}

// Machine cycles Idle -> Recording -> Uploading -> Idle on each Toggle.
// Success and failure both end in Idle; aborting an upload returns to Idle
// immediately and cancels the network call. The microphone is always
// released when leaving Recording, whatever happens afterwards.
type Machine struct {
	provider Provider
	creds    credentials.Source
	client   *http.Client
	url      string
	bus      events.Bus
	log      *logger.Logger

	mu     sync.Mutex
	state  State
	rec    Recording
	token  uuid.UUID
	cancel context.CancelFunc
}

// NewMachine creates a capture state machine uploading to the given endpoint.
func NewMachine(url string, provider Provider, creds credentials.Source, bus events.Bus, log *logger.Logger) *Machine {
	return &Machine{
		provider: provider,
		creds:    creds,
		client:   &http.Client{Timeout: 30 * time.Second},
		url:      url,
		bus:      bus,
		log:      log,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Toggle advances the state machine: start recording from Idle, stop and
// upload from Recording, abort from Uploading.
func (m *Machine) Toggle(ctx context.Context) error {
	m.mu.Lock()

	switch m.state {
	case StateIdle:
		rec, err := m.provider.Acquire(ctx)
		if err != nil {
			m.mu.Unlock()
			micErr := &MicrophoneError{Err: err}
			m.log.Warn("microphone acquisition failed", "error", micErr)
			m.bus.Publish(ctx, events.VoiceFailed{
				BaseEvent: events.NewBaseEvent(),
				Message:   "microphone is unavailable",
			})
			return micErr
		}
		m.state = StateRecording
		m.rec = rec
		m.mu.Unlock()
		return nil

	case StateRecording:
		if m.rec == nil {
			// A previous toggle is still stopping the capture; ignore this
			// one until Stop completes.
			m.mu.Unlock()
			return nil
		}
		rec := m.rec
		m.rec = nil
		m.mu.Unlock()

		// Stop releases the microphone even when it reports an error.
		capture, err := rec.Stop()
		if err != nil {
			m.mu.Lock()
			m.state = StateIdle
			m.mu.Unlock()
			m.log.Warn("recording stop failed", "error", err)
			m.bus.Publish(ctx, events.VoiceFailed{
				BaseEvent: events.NewBaseEvent(),
				Message:   "recording failed",
			})
			return fmt.Errorf("stop recording: %w", err)
		}

		wav := EncodeWAV(Downsample(capture), TargetSampleRate)

		m.mu.Lock()
		m.state = StateUploading
		token := uuid.New()
		m.token = token
		upCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		m.mu.Unlock()

		go m.upload(upCtx, token, wav)
		return nil

	default: // StateUploading
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.token = uuid.New() // a late response must not apply
		m.state = StateIdle
		m.mu.Unlock()
		return nil
	}
}

func (m *Machine) upload(ctx context.Context, token uuid.UUID, wav []byte) {
	text, err := m.post(ctx, wav)

	m.mu.Lock()
	if m.token != token {
		// Aborted; the toggle already returned the machine to Idle.
		m.mu.Unlock()
		return
	}
	m.state = StateIdle
	m.cancel = nil
	m.mu.Unlock()

	if err != nil {
		if ctx.Err() == context.Canceled {
			return
		}
		m.log.UpstreamError("transcription", err)
		m.bus.Publish(context.WithoutCancel(ctx), events.VoiceFailed{
			BaseEvent: events.NewBaseEvent(),
			Message:   "voice upload failed",
		})
		return
	}

	if text == "" {
		m.bus.Publish(context.WithoutCancel(ctx), events.TranscriptionEmpty{BaseEvent: events.NewBaseEvent()})
		return
	}
	m.bus.Publish(context.WithoutCancel(ctx), events.TranscriptionReady{
		BaseEvent: events.NewBaseEvent(),
		Text:      text,
	})
}

func (m *Machine) post(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "voice.wav")
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if tok, ok := m.creds.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", &UploadError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription upstream error: status %d", resp.StatusCode)
	}

	var payload transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return payload.recognized(), nil
}
