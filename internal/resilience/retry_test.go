package resilience

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(eris.New("try again"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NoRetryOnNonTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return eris.New("bad request")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return NewTransientError(eris.New("still down"), 503)
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(5), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("down"), 503)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	v, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return true }

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return eris.New("not normally retryable")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"tagged transient", NewTransientError(eris.New("x"), 503), true},
		{"tagged permanent", NewPermanentError(eris.New("blocked")), false},
		{"permanent with transient-looking message", NewPermanentError(eris.New("too many requests")), false},
		{"timeout net error", &net.DNSError{IsTimeout: true}, true},
		{"rate limit message", eris.New("telegram: too many requests"), true},
		{"plain error", eris.New("invalid payload"), false},
		{"wrapped transient", eris.Wrap(NewTransientError(eris.New("x"), 429), "outer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "code=%d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "code=%d", code)
	}
}

func TestBackoff_Bounded(t *testing.T) {
	cfg := fastRetry(5).withDefaults()
	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt, cfg)
		assert.Greater(t, d, time.Duration(0))
		// Cap plus the 25% jitter headroom.
		assert.LessOrEqual(t, d, cfg.MaxBackoff+cfg.MaxBackoff/2)
	}
}
