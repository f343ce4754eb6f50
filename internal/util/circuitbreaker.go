package util

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	// BreakerTrial lets calls through again; the next failure reopens at once.
	BreakerTrial
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerTrial:
		return "trial"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a CircuitBreaker.
type BreakerConfig struct {
	Name      string
	Threshold int
	Cooldown  time.Duration

	// HealthCheck, when set, replaces the plain cooldown: while open the
	// breaker polls it every CheckEvery and moves to trial once it passes.
	HealthCheck  func(ctx context.Context) bool
	CheckEvery   time.Duration
	CheckTimeout time.Duration
}

// BreakerSnapshot is a point-in-time view for logs and errors.
type BreakerSnapshot struct {
	State     BreakerState
	Failures  int
	OpenUntil time.Time
}

// CircuitBreaker guards the text-generation providers. Consecutive service
// failures past the threshold open it, so a panel run fails fast instead of
// queueing retries against a provider that is down.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	openUntil time.Time
	nextCheck time.Time
	checking  bool
}

func NewCircuitBreaker(cfg BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger.With(zap.String("breaker", cfg.Name)),
		now:    time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.mu.Lock()
	cb.now = now
	cb.mu.Unlock()
	return cb
}

// Allow reports whether a model call may go out now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerOpen {
		return true
	}
	now := cb.now()
	switch {
	case cb.cfg.HealthCheck == nil && !now.Before(cb.openUntil):
		cb.set(BreakerTrial, "cooldown elapsed")
		return true
	case cb.cfg.HealthCheck != nil && !cb.checking && !now.Before(cb.nextCheck):
		cb.checking = true
		go cb.runHealthCheck()
	}
	return false
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == BreakerTrial {
		cb.set(BreakerClosed, "call succeeded")
	}
}

// Failure counts one service failure. cooldown overrides the configured one
// when positive (rate limits ask for a longer pause).
func (cb *CircuitBreaker) Failure(cooldown time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state != BreakerTrial && cb.failures < cb.cfg.Threshold {
		return
	}
	if cooldown <= 0 {
		cooldown = cb.cfg.Cooldown
	}
	now := cb.now()
	cb.openUntil = now.Add(cooldown)
	cb.nextCheck = now.Add(cb.cfg.CheckEvery)
	cb.set(BreakerOpen, "failure threshold reached")
}

func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := BreakerSnapshot{State: cb.state, Failures: cb.failures}
	if cb.state == BreakerOpen {
		s.OpenUntil = cb.openUntil
	}
	return s
}

func (cb *CircuitBreaker) runHealthCheck() {
	ctx := context.Background()
	if cb.cfg.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.cfg.CheckTimeout)
		defer cancel()
	}
	healthy := cb.cfg.HealthCheck(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.checking = false
	if healthy && cb.state == BreakerOpen {
		cb.set(BreakerTrial, "health check passed")
		return
	}
	cb.nextCheck = cb.now().Add(cb.cfg.CheckEvery)
}

// set must be called with mu held.
func (cb *CircuitBreaker) set(state BreakerState, reason string) {
	if cb.state == state {
		return
	}
	fields := []zap.Field{
		zap.Stringer("from", cb.state),
		zap.Stringer("to", state),
		zap.Int("failures", cb.failures),
		zap.String("reason", reason),
	}
	if state == BreakerOpen {
		fields = append(fields, zap.Time("open_until", cb.openUntil))
		cb.logger.Warn("Model calls suspended", fields...)
	} else {
		cb.logger.Info("Model breaker state changed", fields...)
	}
	cb.state = state
}
