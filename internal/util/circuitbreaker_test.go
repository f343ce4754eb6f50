package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAtThresholdAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(BreakerConfig{Name: "models", Threshold: 2, Cooldown: 30 * time.Second}, nil).
		WithClock(func() time.Time { return now })

	cb.Failure(0)
	assert.True(t, cb.Allow())

	cb.Failure(0)
	assert.False(t, cb.Allow())
	snap := cb.Snapshot()
	assert.Equal(t, BreakerOpen, snap.State)
	assert.Equal(t, now.Add(30*time.Second), snap.OpenUntil)

	now = now.Add(31 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, BreakerTrial, cb.Snapshot().State)

	cb.Success()
	snap = cb.Snapshot()
	assert.Equal(t, BreakerClosed, snap.State)
	assert.Zero(t, snap.Failures)
	assert.True(t, snap.OpenUntil.IsZero())
}

func TestCircuitBreakerTrialFailureReopensWithCustomCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second}, nil).
		WithClock(func() time.Time { return now })

	cb.Failure(0)
	now = now.Add(2 * time.Second)
	require.True(t, cb.Allow())

	cb.Failure(time.Hour)
	assert.False(t, cb.Allow())
	assert.Equal(t, now.Add(time.Hour), cb.Snapshot().OpenUntil)
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Minute}, nil)
	cb.Failure(0)
	cb.Success()
	cb.Failure(0)
	assert.True(t, cb.Allow(), "failures must be consecutive")
}

func TestCircuitBreakerHealthCheckMovesToTrial(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	checked := make(chan struct{})
	cb := NewCircuitBreaker(BreakerConfig{
		Threshold:  1,
		Cooldown:   time.Hour,
		CheckEvery: time.Minute,
		HealthCheck: func(context.Context) bool {
			close(checked)
			return true
		},
	}, nil).WithClock(func() time.Time { return now })

	cb.Failure(0)
	assert.False(t, cb.Allow(), "check interval has not passed")

	now = now.Add(2 * time.Minute)
	assert.False(t, cb.Allow(), "the check runs in the background")
	<-checked
	assert.Eventually(t, cb.Allow, time.Second, 5*time.Millisecond)
	assert.Equal(t, BreakerTrial, cb.Snapshot().State)
}
