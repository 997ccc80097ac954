package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"eaafetch/pkg/config"
	errs "eaafetch/pkg/errors"
	"eaafetch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0, // No jitter for predictable testing
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 20; i++ {
		delay := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, delay, 140*time.Millisecond)
		assert.LessOrEqual(t, delay, 260*time.Millisecond)
	}
}

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts: attempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewTestLogger(),
	}
}

func TestRetryTransientFetchError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errs.NewFetchError("http://x", 503, nil)
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errs.NewParseError("http://x", "missing control")
	}, fastConfig(5))

	assert.Equal(t, 1, attempts)
	assert.True(t, errs.Is(err, errs.ErrorTypeParse))
}

func TestRetryNotFoundIsNotRetried(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errs.NewFetchError("http://x", 404, nil)
	}, fastConfig(5))

	assert.Equal(t, 1, attempts)
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errs.NewFetchError("http://x", 0, errors.New("connection reset"))
	}, cfg)

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
	assert.True(t, errs.Is(err, errs.ErrorTypeFetch))
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxAttempts: 10,
		Backoff:     &ConstantBackoff{Delay: time.Second},
	}

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func(ctx context.Context) error {
		attempts++
		return errs.NewFetchError("http://x", 500, nil)
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errs.NewFetchError("http://x", 502, nil)
		}
		return "ok", nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestFromSettings(t *testing.T) {
	rc := config.DefaultConfig().Retry
	cfg := FromSettings(rc, nil)
	assert.Equal(t, 3, cfg.MaxAttempts)

	rc.Enabled = false
	cfg = FromSettings(rc, nil)
	assert.Equal(t, 1, cfg.MaxAttempts)
}

func TestFromSettingsStrategy(t *testing.T) {
	rc := config.DefaultConfig().Retry
	rc.JitterFactor = 0

	cfg := FromSettings(rc, nil)
	require.IsType(t, &ExponentialBackoff{}, cfg.Backoff)
	assert.Equal(t, 2*rc.BaseDelay, cfg.Backoff.NextDelay(2))

	rc.Strategy = config.BackoffConstant
	cfg = FromSettings(rc, nil)
	require.IsType(t, &ConstantBackoff{}, cfg.Backoff)
	assert.Equal(t, rc.BaseDelay, cfg.Backoff.NextDelay(1))
	assert.Equal(t, rc.BaseDelay, cfg.Backoff.NextDelay(5))
}
