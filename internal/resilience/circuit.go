package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state.
	BreakerClosed BreakerState = iota
	// BreakerOpen means too many consecutive failures; calls are rejected.
	BreakerOpen
	// BreakerHalfOpen allows a single probe call to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when a call is rejected because the breaker is open.
var ErrBreakerOpen = eris.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens. Default: 3.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open before allowing a
	// probe. Default: 5m. A blocked scrape source stays blocked for a
	// while, so probing faster just burns the quota further.
	ResetTimeout time.Duration
}

// Breaker guards a single external service. A source that blocks or
// rate-limits the bot trips the breaker open instead of being hammered
// every tick.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	nowFunc     func() time.Time
}

// NewBreaker creates a circuit breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 5 * time.Minute
	}
	return &Breaker{cfg: cfg, state: BreakerClosed, nowFunc: time.Now}
}

// Call runs fn through the breaker, preserving its return value.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.allow() {
		return zero, ErrBreakerOpen
	}

	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.nowFunc().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if b.nowFunc().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.nowFunc()
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
	}
}
