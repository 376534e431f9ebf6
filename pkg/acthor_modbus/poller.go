package acthor_modbus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultPollRetries    = 2
	DefaultRetryBackoff   = 250 * time.Millisecond
	DefaultPollerInterval = 5 * time.Second
)

type PollerConfig struct {
	// MaxRetries is the number of extra cycle attempts after a soft
	// failure. Hard failures and decode failures never retry.
	MaxRetries int
	// RetryBackoff is the delay before the first retry; it doubles per
	// attempt.
	RetryBackoff time.Duration
	// MaxSpanWords caps the coalesced read spans. Zero means the package
	// default of MaxSpanWords registers.
	MaxSpanWords uint16
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	return c
}

// Poller reads the full register map in coalesced spans and publishes
// snapshots. A cycle is all or nothing: one failed span throws away the
// whole cycle, so consumers never see a half-updated snapshot.
type Poller struct {
	session *Session
	regmap  *RegisterMap
	config  PollerConfig
	logger  *log.Entry

	spans  []Span
	latest atomic.Pointer[DeviceSnapshot]
}

func NewPoller(session *Session, regmap *RegisterMap, config PollerConfig, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.New()
		logger.SetLevel(log.PanicLevel)
	}
	config = config.withDefaults()
	return &Poller{
		session: session,
		regmap:  regmap,
		config:  config,
		logger:  logger.WithField("component", "poller"),
		spans:   regmap.CoalesceReads(regmap.Fields(), config.MaxSpanWords),
	}
}

// Latest returns the most recent snapshot, or nil before the first
// successful cycle. Safe to call from any goroutine.
func (p *Poller) Latest() *DeviceSnapshot {
	return p.latest.Load()
}

// Spans exposes the coalesced read plan, mainly for logging.
func (p *Poller) Spans() []Span {
	out := make([]Span, len(p.spans))
	copy(out, p.spans)
	return out
}

// PollOnce runs one poll cycle: read every span, decode every field, publish
// one snapshot. Soft request failures retry with doubling backoff up to
// MaxRetries; anything else fails the cycle immediately.
func (p *Poller) PollOnce(ctx context.Context) (*DeviceSnapshot, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.config.RetryBackoff << (attempt - 1)
			p.logger.WithError(lastErr).Debugf("poll attempt %d failed, retrying in %s", attempt, backoff)
			select {
			case <-ctx.Done():
				return nil, &PollError{Attempts: attempt, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		snap, err := p.cycle()
		if err == nil {
			p.latest.Store(snap)
			return snap, nil
		}
		lastErr = err

		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.Soft() {
			continue
		}
		// hard transport faults and decode failures are not retried
		return nil, &PollError{Attempts: attempt + 1, Err: err}
	}
	return nil, &PollError{Attempts: p.config.MaxRetries + 1, Err: lastErr}
}

func (p *Poller) cycle() (*DeviceSnapshot, error) {
	raw := make([][]uint16, len(p.spans))
	for i, span := range p.spans {
		words, err := p.session.ReadSpan(span)
		if err != nil {
			return nil, err
		}
		raw[i] = words
	}

	values := make(map[string]FieldValue, len(p.regmap.Fields()))
	for _, f := range p.regmap.Fields() {
		span, words := p.spanFor(f, raw)
		v, err := Decode(f, p.regmap.WordOrder, span.slice(words, f))
		if err != nil {
			return nil, err
		}
		values[f.Name] = FieldValue{Value: v, Valid: f.Available}
	}
	return newSnapshot(time.Now(), values), nil
}

func (p *Poller) spanFor(f RegisterField, raw [][]uint16) (Span, []uint16) {
	for i, span := range p.spans {
		if span.contains(f) {
			return span, raw[i]
		}
	}
	// CoalesceReads covers every map field, so this cannot happen
	return Span{}, nil
}

// Run polls at the given interval until ctx is cancelled. onSnapshot fires
// for every successful cycle; onStateChange fires only when the session's
// connection state actually changes. A Disconnected session is reconnected
// before the next cycle.
func (p *Poller) Run(ctx context.Context, interval time.Duration,
	onSnapshot func(*DeviceSnapshot), onStateChange func(ConnectionState)) error {
	if interval <= 0 {
		interval = DefaultPollerInterval
	}

	lastState := p.session.State()
	notify := func() {
		if st := p.session.State(); st != lastState {
			lastState = st
			if onStateChange != nil {
				onStateChange(st)
			}
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if p.session.State() == StateDisconnected {
			if err := p.session.Connect(); err != nil {
				p.logger.WithError(err).Warn("reconnect failed")
			}
			notify()
		}
		if p.session.State() != StateDisconnected {
			snap, err := p.PollOnce(ctx)
			notify()
			if err != nil {
				p.logger.WithError(err).Warn("poll cycle failed")
			} else if onSnapshot != nil {
				onSnapshot(snap)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
