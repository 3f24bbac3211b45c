// Package resilience provides a three-state circuit breaker used to
// shield the transcription pipeline from an unhealthy remote backend.
// A stream of failed inference requests opens the breaker so utterances
// fail fast instead of queueing behind a dead server.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards all calls.
	Closed State = iota
	// Open rejects all calls until the cooldown elapses.
	Open
	// HalfOpen lets a limited number of probe calls through to test
	// whether the backend has recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	defaultMaxFailures = 5
	defaultCooldown    = 30 * time.Second
	defaultProbes      = 3
)

// Breaker is a circuit breaker. The zero value is not usable; create
// one with [NewBreaker]. Safe for concurrent use.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	now         func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probeCalls   int
	probeSuccess int
}

// Option configures a [Breaker].
type Option func(*Breaker)

// WithMaxFailures sets how many consecutive failures open the breaker.
func WithMaxFailures(n int) Option {
	return func(b *Breaker) { b.maxFailures = n }
}

// WithCooldown sets how long the breaker stays open before probing.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// WithProbes sets how many successful half-open calls close the breaker.
func WithProbes(n int) Option {
	return func(b *Breaker) { b.probes = n }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker returns a closed Breaker. The name appears in log lines.
func NewBreaker(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		maxFailures: defaultMaxFailures,
		cooldown:    defaultCooldown,
		probes:      defaultProbes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn unless the breaker is rejecting calls, in which case it
// returns [ErrOpen] without invoking fn. fn's error feeds the breaker's
// failure accounting and is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

// admit decides whether a call may proceed, transitioning from Open to
// HalfOpen once the cooldown has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probeCalls = 0
		b.probeSuccess = 0
		slog.Info("breaker probing backend", "name", b.name)
	case HalfOpen:
		if b.probeCalls >= b.probes {
			return ErrOpen
		}
	}
	if b.state == HalfOpen {
		b.probeCalls++
	}
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !ok {
		if b.state == HalfOpen {
			// A failed probe re-opens immediately.
			b.trip()
			return
		}
		b.failures++
		if b.failures >= b.maxFailures {
			b.trip()
		}
		return
	}

	if b.state == HalfOpen {
		b.probeSuccess++
		if b.probeSuccess >= b.probes {
			b.state = Closed
			b.failures = 0
			slog.Info("breaker closed, backend recovered", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// trip moves the breaker to Open. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = b.maxFailures
	slog.Warn("breaker opened", "name", b.name, "cooldown", b.cooldown)
}

// State returns the breaker's current state. An Open breaker whose
// cooldown has elapsed reports HalfOpen; the transition itself happens
// on the next call to [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}
