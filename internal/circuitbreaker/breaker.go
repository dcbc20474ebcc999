// Package circuitbreaker shields the advisory pipeline from a misbehaving
// downstream. Each named dependency (a tool, the inference service, the
// knowledge base) gets its own breaker so one bad endpoint cannot poison the
// rest of the fan-out.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without touching the downstream when the breaker trips.
var ErrOpen = errors.New("circuit breaker open")

// ErrProbeBudget is returned when the half-open probe allowance is spent.
var ErrProbeBudget = errors.New("half-open probe budget exhausted")

// Config tunes one breaker.
type Config struct {
	FailureThreshold uint32        // consecutive failures that trip the breaker
	SuccessThreshold uint32        // half-open successes required to close
	ProbeBudget      uint32        // concurrent requests allowed while half-open
	OpenFor          time.Duration // cool-down before probing again
	CountersReset    time.Duration // closed-state counter window
}

// DefaultConfig suits short HTTP calls to internal services.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ProbeBudget:      3,
		OpenFor:          10 * time.Second,
		CountersReset:    60 * time.Second,
	}
}

type counts struct {
	requests        uint32
	consecFailures  uint32
	consecSuccesses uint32
}

// Breaker guards one named dependency.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	counts     counts
	expiry     time.Time
}

// New builds a closed breaker.
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		expiry: time.Now().Add(cfg.CountersReset),
	}
}

// Do runs fn under the breaker. A trip returns ErrOpen before fn is invoked.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.settle(gen, err == nil)
	return err
}

// State returns the current state, advancing open→half-open when due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, _ := b.advance(time.Now())
	return s
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, gen := b.advance(now)
	switch {
	case state == StateOpen:
		return gen, ErrOpen
	case state == StateHalfOpen && b.counts.requests >= b.cfg.ProbeBudget:
		return gen, ErrProbeBudget
	}
	b.counts.requests++
	return gen, nil
}

func (b *Breaker) settle(before uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, gen := b.advance(now)
	if gen != before {
		// The breaker moved on while the request was in flight.
		return
	}

	if success {
		b.counts.consecFailures = 0
		if state == StateHalfOpen {
			b.counts.consecSuccesses++
			if b.counts.consecSuccesses >= b.cfg.SuccessThreshold {
				b.transition(StateClosed, now)
			}
		}
		return
	}

	switch state {
	case StateClosed:
		b.counts.consecFailures++
		if b.counts.consecFailures >= b.cfg.FailureThreshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// advance applies time-driven transitions. Caller holds b.mu.
func (b *Breaker) advance(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.reset(now)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) transition(next State, now time.Time) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.reset(now)
	b.logger.Info("circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}

func (b *Breaker) reset(now time.Time) {
	b.generation++
	b.counts = counts{}
	switch b.state {
	case StateClosed:
		if b.cfg.CountersReset == 0 {
			b.expiry = time.Time{}
		} else {
			b.expiry = now.Add(b.cfg.CountersReset)
		}
	case StateOpen:
		b.expiry = now.Add(b.cfg.OpenFor)
	default:
		b.expiry = time.Time{}
	}
}

// Registry hands out one breaker per dependency name.
type Registry struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry builds a registry; every breaker it creates shares cfg.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.cfg, r.logger)
	r.breakers[name] = b
	return b
}
