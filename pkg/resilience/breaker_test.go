package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	boom := errors.New("connection refused")
	calls := 0
	fail := func() error { calls++; return boom }

	assert.ErrorIs(t, b.Do(fail), boom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(fail), boom)
	assert.Equal(t, StateOpen, b.State())

	err := b.Do(fail)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	boom := errors.New("timeout")
	require.Error(t, b.Do(func() error { return boom }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return boom }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerAdmitsTrialAfterCooldown(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return now }
	boom := errors.New("down")

	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	require.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, b.State(), "failed trial call re-opens")
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrCircuitOpen)

	now = now.Add(11 * time.Second)
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}
