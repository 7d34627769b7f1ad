// Package resilience guards calls to external collaborators (the LLM
// backend, the candidate API, outbound webhooks) with circuit breakers and
// bounded retries.
package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// ErrCircuitOpen is returned without calling through while a breaker is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls when a breaker opens and how long it stays open.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	// Counts decides which errors count as failures. Nil counts every error.
	Counts func(err error) bool
}

// DefaultBreakerConfig trips after five consecutive failures and probes
// again after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// CircuitBreaker stops calling a failing dependency for a cooldown period.
// A single successful probe in half-open closes it again.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take the
// defaults.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &CircuitBreaker{name: name, cfg: cfg, state: StateClosed, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal runs fn unless the breaker is open and returns its value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.admit(); err != nil {
		return zero, eris.Wrapf(err, "breaker %s", cb.name)
	}
	v, err := fn(ctx)
	cb.record(err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// State reports the current state, treating an expired cooldown as half-open.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if !cb.cooledDown() {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return nil
	case StateHalfOpen:
		// one probe at a time
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	failed := err != nil && (cb.cfg.Counts == nil || cb.cfg.Counts(err))
	if !failed {
		cb.failures = 0
		if cb.state != StateClosed {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to BreakerState) {
	if cb.state == to {
		return
	}
	zap.L().Info("resilience: breaker state change",
		zap.String("breaker", cb.name),
		zap.String("from", string(cb.state)),
		zap.String("to", string(to)),
		zap.Int("failures", cb.failures),
	)
	cb.state = to
}

// Breakers hands out one breaker per key, e.g. one per archetype policy.
type Breakers struct {
	cfg BreakerConfig

	mu  sync.Mutex
	all map[string]*CircuitBreaker
}

// NewBreakers creates an empty registry sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, all: make(map[string]*CircuitBreaker)}
}

// For returns the breaker for key, creating it on first use.
func (b *Breakers) For(key string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.all[key]
	if !ok {
		cb = NewCircuitBreaker(key, b.cfg)
		b.all[key] = cb
	}
	return cb
}

// Snapshot returns the state of every breaker, keyed by name.
func (b *Breakers) Snapshot() map[string]BreakerState {
	b.mu.Lock()
	keys := make([]string, 0, len(b.all))
	for k := range b.all {
		keys = append(keys, k)
	}
	b.mu.Unlock()
	sort.Strings(keys)

	out := make(map[string]BreakerState, len(keys))
	for _, k := range keys {
		out[k] = b.For(k).State()
	}
	return out
}
