package extraction

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of the circuit breaker guarding the extraction
// service.
//
//   - closed: requests pass through
//   - open: requests fail immediately with ErrCircuitOpen
//   - half-open: requests probe whether the service recovered
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns the state name used in logs.
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

// ErrCircuitOpen is returned while the breaker is open.
var ErrCircuitOpen = errors.New("extraction service circuit breaker is open")

// BreakerConfig holds the breaker thresholds. Zero values take defaults.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures to open (default 5)
	SuccessThreshold int           // consecutive half-open successes to close (default 2)
	OpenTimeout      time.Duration // time open before probing (default 30s)
}

// Breaker is a thread-safe circuit breaker.
type Breaker struct {
	mu               sync.Mutex
	state            BreakerState
	failureCount     int
	successCount     int
	lastFailure      time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	now              func() time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &Breaker{
		state:            BreakerClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.OpenTimeout,
		now:              time.Now,
	}
}

// State returns the current state, moving from open to half-open once the
// open timeout elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.openTimeout {
		b.state = BreakerHalfOpen
		b.successCount = 0
	}
	return b.state
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if b.State() == BreakerOpen {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// onFailure must be called with the lock held.
func (b *Breaker) onFailure() {
	b.failureCount++
	b.lastFailure = b.now()

	switch b.state {
	case BreakerClosed:
		if b.failureCount >= b.failureThreshold {
			b.state = BreakerOpen
			b.successCount = 0
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.failureCount = 0
	}
}

// onSuccess must be called with the lock held.
func (b *Breaker) onSuccess() {
	switch b.state {
	case BreakerClosed:
		b.failureCount = 0
	case BreakerHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = BreakerClosed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}
