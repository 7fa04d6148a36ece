// Package resilience protects calls to external services (databases,
// brokers) with exponential-backoff retry behind a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls both retry and breaker behaviour. Zero values take
// defaults.
type Config struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFraction   float64
	FailureThreshold int
	ResetTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	return c
}

// Guard retries a failing call and, after FailureThreshold consecutive
// failed calls, stops attempting until ResetTimeout has passed. One probe is
// then let through; its outcome closes or re-opens the circuit.
type Guard struct {
	name   string
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func NewGuard(name string, cfg Config) *Guard {
	return &Guard{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "guard", "name", name),
		now:    time.Now,
	}
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Do runs fn under the guard.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.admit(); err != nil {
		return err
	}
	err := g.retry(ctx, fn)
	g.record(err)
	return err
}

func (g *Guard) admit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case StateOpen:
		wait := g.cfg.ResetTimeout - g.now().Sub(g.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, g.name, wait)
		}
		g.state = StateHalfOpen
		g.probing = true
		g.logger.Info("circuit half-open, probing")
	case StateHalfOpen:
		if g.probing {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, g.name)
		}
		g.probing = true
	}
	return nil
}

func (g *Guard) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.probing = false
	if err == nil {
		if g.state != StateClosed {
			g.logger.Info("circuit closed (recovered)")
		}
		g.state = StateClosed
		g.failures = 0
		return
	}
	g.failures++
	if g.state == StateHalfOpen || g.failures >= g.cfg.FailureThreshold {
		if g.state != StateOpen {
			g.logger.Warn("circuit opened", "consecutive_failures", g.failures, "error", err)
		}
		g.state = StateOpen
		g.openedAt = g.now()
	}
}

func (g *Guard) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				g.logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}
		delay := g.backoff(attempt)
		g.logger.Warn("call failed, retrying",
			"attempt", attempt,
			"max_attempts", g.cfg.MaxAttempts,
			"next_delay", delay,
			"error", lastErr,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: retry aborted: %w", g.name, ctx.Err())
		}
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", g.name, g.cfg.MaxAttempts, lastErr)
}

func (g *Guard) backoff(attempt int) time.Duration {
	d := float64(g.cfg.InitialDelay) * math.Pow(g.cfg.Multiplier, float64(attempt-1))
	d += d * g.cfg.JitterFraction * (2*rand.Float64() - 1)
	if d > float64(g.cfg.MaxDelay) {
		d = float64(g.cfg.MaxDelay)
	}
	if d < 0 {
		d = float64(g.cfg.InitialDelay)
	}
	return time.Duration(d)
}
