package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow/internal/observability"

	"go.uber.org/zap"
)

const (
	DefaultRetries        = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultAttemptTimeout = 10 * time.Second
)

// Operation is one attempt of an outbound call. It must honour ctx.
type Operation func(ctx context.Context) error

type Policy struct {
	Retries        int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Retries:        DefaultRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

func (p Policy) normalized() Policy {
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	return p
}

// MaxAttempts is the initial attempt plus the configured retries.
func (p Policy) MaxAttempts() int {
	return p.normalized().Retries + 1
}

// Backoff returns the wait after the given failed attempt: initial, then
// doubling, capped at max.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 1 {
		return initial
	}
	backoff := initial
	for i := 1; i < attempt; i++ {
		if backoff >= max {
			return max
		}
		backoff *= 2
		if backoff > max {
			return max
		}
	}
	return backoff
}

// Target identifies what a Send call delivers, for logs and errors.
type Target struct {
	Operation string
	Recipient string
	Subject   string
}

// Sender runs an Operation with bounded retries, one attempt at a time.
type Sender struct {
	logger  *zap.Logger
	metrics *observability.DeliveryMetrics
	sleep   func(context.Context, time.Duration) error
}

func NewSender(logger *zap.Logger, metrics *observability.DeliveryMetrics) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		logger:  logger.Named("delivery"),
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Send calls op until it succeeds, fails permanently, the attempts are
// exhausted or ctx is done. Every terminal failure is an *Error.
func (s *Sender) Send(ctx context.Context, target Target, policy Policy, op Operation) error {
	policy = policy.normalized()
	maxAttempts := policy.Retries + 1
	started := time.Now()
	logger := observability.Logger(ctx, s.logger).With(
		zap.String("operation", target.Operation),
		zap.String("recipient", target.Recipient),
		zap.String("subject", target.Subject),
		zap.Int("max_attempts", maxAttempts),
	)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return s.abort(ctx, logger, target, attempt-1, lastErr, started)
		}
		err := runAttempt(ctx, policy.AttemptTimeout, op)
		if err == nil {
			s.metrics.Attempt(target.Operation, "ok")
			s.metrics.Outcome(target.Operation, "delivered", time.Since(started))
			if attempt > 1 {
				logger.Info("Delivery succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return s.abort(ctx, logger, target, attempt, lastErr, started)
		}
		if !IsTransient(err) {
			s.metrics.Attempt(target.Operation, "permanent")
			s.metrics.Outcome(target.Operation, string(KindPermanent), time.Since(started))
			logger.Error("Permanent delivery failure", zap.Int("attempt", attempt), zap.Error(err))
			return &Error{Kind: KindPermanent, Operation: target.Operation, Recipient: target.Recipient, Subject: target.Subject, Attempts: attempt, Err: err}
		}
		s.metrics.Attempt(target.Operation, "transient")
		if attempt == maxAttempts {
			break
		}
		wait := Backoff(attempt, policy.InitialBackoff, policy.MaxBackoff)
		logger.Warn("Transient delivery failure; retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := s.sleep(ctx, wait); err != nil {
			return s.abort(ctx, logger, target, attempt, lastErr, started)
		}
	}

	s.metrics.Outcome(target.Operation, string(KindExhausted), time.Since(started))
	logger.Error("Delivery exhausted", zap.Int("attempts", maxAttempts), zap.Error(lastErr))
	return &Error{Kind: KindExhausted, Operation: target.Operation, Recipient: target.Recipient, Subject: target.Subject, Attempts: maxAttempts, Err: lastErr}
}

func (s *Sender) abort(ctx context.Context, logger *zap.Logger, target Target, attempts int, lastErr error, started time.Time) error {
	cause := ctx.Err()
	if lastErr != nil {
		cause = fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
	}
	s.metrics.Outcome(target.Operation, string(KindAborted), time.Since(started))
	logger.Warn("Delivery aborted", zap.Int("attempts", attempts), zap.Error(cause))
	return &Error{Kind: KindAborted, Operation: target.Operation, Recipient: target.Recipient, Subject: target.Subject, Attempts: attempts, Err: cause}
}

func runAttempt(ctx context.Context, timeout time.Duration, op Operation) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := op(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("attempt timed out after %s: %w", timeout, context.DeadlineExceeded)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
