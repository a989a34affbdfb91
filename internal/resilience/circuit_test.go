package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, ResetTimeout: reset})
	now := time.Now()
	b.nowFunc = func() time.Time { return now }
	return b, &now
}

func failing(ctx context.Context) (int, error) { return 0, eris.New("boom") }

func succeeding(ctx context.Context) (int, error) { return 7, nil }

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 10; i++ {
		v, err := Call(context.Background(), b, succeeding)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Call(ctx, b, failing)
		assert.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, b.State())

	// Calls are rejected without invoking fn.
	called := false
	_, err := Call(ctx, b, func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	Call(ctx, b, failing)
	Call(ctx, b, failing)
	Call(ctx, b, succeeding)
	Call(ctx, b, failing)
	Call(ctx, b, failing)

	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	Call(ctx, b, failing)
	Call(ctx, b, failing)
	require.Equal(t, BreakerOpen, b.State())

	// After the reset timeout a single probe is allowed.
	*now = now.Add(2 * time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())

	v, err := Call(ctx, b, succeeding)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	Call(ctx, b, failing)
	Call(ctx, b, failing)
	*now = now.Add(2 * time.Minute)

	_, err := Call(ctx, b, failing)
	assert.Error(t, err)
	assert.Equal(t, BreakerOpen, b.State())

	// And it rejects again immediately.
	_, err = Call(ctx, b, succeeding)
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	Call(context.Background(), b, failing)
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())

	v, err := Call(context.Background(), b, succeeding)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
}
