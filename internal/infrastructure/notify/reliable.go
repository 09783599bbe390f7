package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

// ErrSinkUnavailable is returned while the breaker of a sink is open
var ErrSinkUnavailable = errors.New("notification sink unavailable")

// ReliableConfig tunes delivery to one sink
type ReliableConfig struct {
	RetryAttempts   uint
	RetryDelay      time.Duration
	CallTimeout     time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	RatePerSecond   float64
	Burst           int
}

// DefaultReliableConfig returns the settings used when nothing is configured
func DefaultReliableConfig() ReliableConfig {
	return ReliableConfig{
		RetryAttempts:   3,
		RetryDelay:      200 * time.Millisecond,
		CallTimeout:     5 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		RatePerSecond:   50,
		Burst:           10,
	}
}

// guard runs calls through a rate limiter, a circuit breaker and a retry loop
type guard struct {
	name    string
	cfg     ReliableConfig
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newGuard(name string, cfg ReliableConfig, logger *zap.Logger) *guard {
	defaults := DefaultReliableConfig()
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaults.RetryAttempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaults.BreakerTimeout
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	failures := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Notification breaker state changed",
				zap.String("sink", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &guard{
		name:    name,
		cfg:     cfg,
		cb:      cb,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (g *guard) do(ctx context.Context, call func(ctx context.Context) error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", g.name, err)
	}

	_, err := g.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(g.cfg.RetryAttempts),
			retry.Delay(g.cfg.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
		)
		return nil, r.Do(func() error {
			callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
			defer cancel()
			return call(callCtx)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrSinkUnavailable, g.name, err)
	}
	return err
}

func (g *guard) state() gobreaker.State {
	return g.cb.State()
}

// ReliablePublisher wraps an event publisher with rate limiting, retries and a circuit breaker
type ReliablePublisher struct {
	next  port.EventPublisher
	guard *guard
}

// NewReliablePublisher wraps next
func NewReliablePublisher(next port.EventPublisher, cfg ReliableConfig, logger *zap.Logger) *ReliablePublisher {
	return &ReliablePublisher{
		next:  next,
		guard: newGuard(next.Name(), cfg, logger),
	}
}

// Name returns the name of the wrapped sink
func (p *ReliablePublisher) Name() string {
	return p.next.Name()
}

// Publish delivers the event through the guard
func (p *ReliablePublisher) Publish(ctx context.Context, e *event.Event) error {
	return p.guard.do(ctx, func(ctx context.Context) error {
		return p.next.Publish(ctx, e)
	})
}

// ReliableSender wraps a message sender the same way
type ReliableSender struct {
	next  port.MessageSender
	guard *guard
}

// NewReliableSender wraps next under the given sink name
func NewReliableSender(name string, next port.MessageSender, cfg ReliableConfig, logger *zap.Logger) *ReliableSender {
	return &ReliableSender{
		next:  next,
		guard: newGuard(name, cfg, logger),
	}
}

// SendText delivers the message through the guard
func (s *ReliableSender) SendText(ctx context.Context, receiverID string, content string) error {
	return s.guard.do(ctx, func(ctx context.Context) error {
		return s.next.SendText(ctx, receiverID, content)
	})
}

// Verify interface compliance
var (
	_ port.EventPublisher = (*ReliablePublisher)(nil)
	_ port.MessageSender  = (*ReliableSender)(nil)
)
