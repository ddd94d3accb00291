package retrylimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type statusErr int

func (s statusErr) Error() string   { return http.StatusText(int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	sentinel := errors.New("gone")
	calls := 0
	err := Do(context.Background(), nil, fastConfig(5), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDoExhausts(t *testing.T) {
	sentinel := errors.New("down")
	calls := 0
	err := Do(context.Background(), nil, fastConfig(2), func(context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

func TestDoRespectsRetryable(t *testing.T) {
	calls := 0
	cfg := fastConfig(5)
	cfg.Retryable = func(error) bool { return false }
	_ = Do(context.Background(), nil, cfg, func(context.Context) error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lim := NewAdaptiveLimiter(1, 1, 1, 0, 0.5)
	err := Do(ctx, lim, fastConfig(3), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterAdapts(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 1, 8, 1, 0.5)

	lim.RateLimited()
	assert.Equal(t, rate.Limit(2), lim.Limit())

	lim.RateLimited()
	lim.RateLimited()
	assert.Equal(t, rate.Limit(1), lim.Limit(), "clamped at min")

	// within cooldown a success does not raise the rate
	lim.Success()
	assert.Equal(t, rate.Limit(1), lim.Limit())

	lim.cooldown = 0
	lim.lastError = time.Time{}
	for range 20 {
		lim.Success()
	}
	assert.Equal(t, rate.Limit(8), lim.Limit(), "clamped at max")
}

func TestOverloadedCutsRate(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 1, 8, 1, 0.5)
	_ = Do(context.Background(), lim, fastConfig(1), func(context.Context) error {
		return statusErr(http.StatusTooManyRequests)
	})
	assert.Equal(t, rate.Limit(2), lim.Limit())
}
