// Package publisher turns position samples into outbound location frames on
// the realtime channel.
package publisher

import (
	"errors"
	"sync/atomic"
	"time"

	"companion_engine/internal/geo"
	"companion_engine/internal/identity"
	"companion_engine/internal/realtime"
	"companion_engine/platform/logger"

	"golang.org/x/time/rate"
)

// Channel is the outbound side of the realtime session.
type Channel interface {
	Publish(destination, frameType string, payload interface{}) error
}

// Publisher publishes one USER_UPDATE frame per position sample. Publish
// failures while disconnected are swallowed: location data is naturally
// superseded by the next sample.
type Publisher struct {
	channel     Channel
	destination string
	id          identity.Identity
	limiter     *rate.Limiter
	log         *logger.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a publisher. minInterval > 0 throttles the continuous stream;
// the initial one-shot publish always goes out.
func New(channel Channel, destination string, id identity.Identity, minInterval time.Duration, log *logger.Logger) *Publisher {
	p := &Publisher{
		channel:     channel,
		destination: destination,
		id:          id,
		log:         log,
	}
	if minInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return p
}

// PublishInitial sends the activation-time one-shot update so peers see a
// location promptly rather than waiting for the first watch callback.
func (p *Publisher) PublishInitial(pos geo.Position) {
	p.send(pos)
}

// HandleSample publishes one continuous-watch sample, subject to the
// outbound throttle.
func (p *Publisher) HandleSample(pos geo.Position) {
	if p.limiter != nil && !p.limiter.Allow() {
		p.dropped.Add(1)
		return
	}
	p.send(pos)
}

func (p *Publisher) send(pos geo.Position) {
	update := realtime.LocationUpdate{
		Latitude:  pos.Lat,
		Longitude: pos.Lng,
		GroupID:   p.id.GroupID,
		UserID:    p.id.UserID,
		Name:      p.id.Name,
	}

	err := p.channel.Publish(p.destination, realtime.TypeUserUpdate, update)
	if err != nil {
		if errors.Is(err, realtime.ErrNotConnected) {
			p.log.Debug("location update dropped, channel not connected")
		} else {
			p.log.Warn("location publish failed", "error", err)
		}
		p.dropped.Add(1)
		return
	}
	p.published.Add(1)
}

// Published returns how many updates went out on the channel.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// Dropped returns how many samples were throttled or failed to publish.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }
