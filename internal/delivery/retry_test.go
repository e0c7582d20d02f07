package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow/internal/observability"

	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var target = Target{Operation: "campaign_email", Recipient: "lead@example.com", Subject: "Welcome"}

func testSender(t *testing.T) (*Sender, *[]time.Duration) {
	t.Helper()
	s := NewSender(zap.NewNop(), observability.NewDeliveryMetrics(prometheus.NewRegistry()))
	var waits []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return s, &waits
}

func transientErr() error {
	return goerrors.New("provider unavailable", goerrors.CategoryExternal).WithCode(503)
}

func TestSendSucceedsAfterTwoFailures(t *testing.T) {
	s, waits := testSender(t)
	calls := 0
	err := s.Send(context.Background(), target, DefaultPolicy(), func(context.Context) error {
		calls++
		if calls <= 2 {
			return transientErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *waits)
}

func TestSendExhaustsAfterRetriesPlusOne(t *testing.T) {
	s, waits := testSender(t)
	calls := 0
	err := s.Send(context.Background(), target, DefaultPolicy(), func(context.Context) error {
		calls++
		return transientErr()
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, errors.Is(err, ErrDeliveryExhausted))
	assert.Len(t, *waits, 3)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, KindExhausted, derr.Kind)
	assert.Equal(t, 4, derr.Attempts)
	assert.Equal(t, "lead@example.com", derr.Recipient)
	assert.Equal(t, "Welcome", derr.Subject)
	assert.Contains(t, err.Error(), "failed after 4 attempts")

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryExternal, rich.Category)
}

func TestSendDoesNotRetryPermanentFailures(t *testing.T) {
	s, waits := testSender(t)
	calls := 0
	err := s.Send(context.Background(), target, DefaultPolicy(), func(context.Context) error {
		calls++
		return goerrors.New("invalid recipient", goerrors.CategoryBadInput).WithCode(422)
	})
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
	assert.True(t, errors.Is(err, ErrPermanentFailure))
	assert.False(t, errors.Is(err, ErrDeliveryExhausted))

	calls = 0
	err = s.Send(context.Background(), target, DefaultPolicy(), func(context.Context) error {
		calls++
		return Permanent(errors.New("template missing"))
	})
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, ErrPermanentFailure))
}

func TestSendRetriesUnknownErrors(t *testing.T) {
	s, _ := testSender(t)
	calls := 0
	err := s.Send(context.Background(), target, Policy{Retries: 1}, func(context.Context) error {
		calls++
		return errors.New("connection reset by peer")
	})
	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, ErrDeliveryExhausted))
}

func TestSendAbortsWhenParentCancelled(t *testing.T) {
	s, _ := testSender(t)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := s.Send(ctx, target, DefaultPolicy(), func(context.Context) error {
		calls++
		cancel()
		return transientErr()
	})
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.True(t, errors.Is(err, context.Canceled))

	calls = 0
	err = s.Send(ctx, target, DefaultPolicy(), func(context.Context) error {
		calls++
		return nil
	})
	assert.Equal(t, 0, calls)
	assert.True(t, errors.Is(err, ErrAborted))
}

func TestSendAttemptTimeoutIsTransient(t *testing.T) {
	s, _ := testSender(t)
	calls := 0
	policy := Policy{Retries: 1, AttemptTimeout: 10 * time.Millisecond}
	err := s.Send(context.Background(), target, policy, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return errors.New("request canceled")
	})
	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, ErrDeliveryExhausted))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSendLogsFailureContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewSender(zap.New(core), nil)
	s.sleep = func(context.Context, time.Duration) error { return nil }

	ctx := observability.WithTenant(observability.WithRequestID(context.Background(), "req-3"), "acme")
	_ = s.Send(ctx, target, Policy{Retries: 2}, func(context.Context) error {
		return transientErr()
	})

	assert.Equal(t, 2, logs.FilterMessage("Transient delivery failure; retrying").Len())
	exhausted := logs.FilterMessage("Delivery exhausted").All()
	require.Len(t, exhausted, 1)
	fields := exhausted[0].ContextMap()
	assert.Equal(t, "campaign_email", fields["operation"])
	assert.Equal(t, "lead@example.com", fields["recipient"])
	assert.EqualValues(t, 3, fields["attempts"])
	assert.Equal(t, "req-3", fields["request_id"])
	assert.Equal(t, "acme", fields["tenant"])
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	initial, max := 500*time.Millisecond, 5*time.Second
	got := []time.Duration{}
	for attempt := 1; attempt <= 6; attempt++ {
		got = append(got, Backoff(attempt, initial, max))
	}
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, got)
}

func TestPolicyMaxAttempts(t *testing.T) {
	assert.Equal(t, 4, DefaultPolicy().MaxAttempts())
	assert.Equal(t, 1, Policy{}.MaxAttempts())
	assert.Equal(t, 1, Policy{Retries: -2}.MaxAttempts())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(goerrors.New("slow down", goerrors.CategoryRateLimit)))
	assert.True(t, IsTransient(goerrors.New("boom", goerrors.CategoryInternal)))
	assert.False(t, IsTransient(goerrors.New("bad", goerrors.CategoryBadInput)))
	assert.False(t, IsTransient(goerrors.New("nope", goerrors.CategoryAuth)))
	assert.False(t, IsTransient(Permanent(errors.New("x"))))
}
