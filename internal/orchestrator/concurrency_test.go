package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptiveConcurrency_AcquireRelease_BasicFlow(t *testing.T) {
	ac := NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{Min: 1, Max: 4, Initial: 2, TargetLow: 100 * time.Millisecond, TargetHigh: time.Second})
	ctx := context.Background()

	require.NoError(t, ac.Acquire(ctx))
	require.NoError(t, ac.Acquire(ctx))
	assert.Equal(t, 2, ac.N())

	ac.Release(true, 10*time.Millisecond, false)
	require.NoError(t, ac.Acquire(ctx))
}

func TestAdaptiveConcurrency_Acquire_BlocksWhenExhausted(t *testing.T) {
	ac := NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{Min: 1, Max: 1, Initial: 1})
	ctx := context.Background()
	require.NoError(t, ac.Acquire(ctx))

	ctx2, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ac.Acquire(ctx2)
	assert.Error(t, err)
}

func TestAdaptiveConcurrency_Acquire_WakesOnRelease(t *testing.T) {
	ac := NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{Min: 1, Max: 1, Initial: 1})
	ctx := context.Background()
	require.NoError(t, ac.Acquire(ctx))

	done := make(chan error, 1)
	go func() {
		done <- ac.Acquire(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	ac.Release(true, time.Millisecond, false)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Acquire never unblocked after Release")
	}
}

func TestAdaptiveConcurrency_RateLimitOrTimeout_HalvesN(t *testing.T) {
	ac := NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{Min: 1, Max: 16, Initial: 8})
	ac.Release(false, time.Millisecond, true)
	assert.Equal(t, 4, ac.N())
}

func TestAdaptiveConcurrency_RateLimitOrTimeout_NeverBelowMin(t *testing.T) {
	ac := NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{Min: 2, Max: 16, Initial: 2})
	ac.Release(false, time.Millisecond, true)
	assert.Equal(t, 2, ac.N())
}

func TestAdaptiveConcurrency_HighSuccessLowLatency_IncrementsAfterWindow(t *testing.T) {
	ac := NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{
		Min: 1, Max: 16, Initial: 4,
		TargetLow: 100 * time.Millisecond, TargetHigh: time.Second,
		WindowSize: 10,
	})
	for i := 0; i < 10; i++ {
		ac.Release(true, time.Millisecond, false)
	}
	assert.Equal(t, 5, ac.N())
}

func TestAdaptiveConcurrency_LowSuccessRate_DecrementsAfterWindow(t *testing.T) {
	ac := NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{
		Min: 1, Max: 16, Initial: 4,
		TargetLow: 100 * time.Millisecond, TargetHigh: time.Second,
		WindowSize: 10,
	})
	for i := 0; i < 10; i++ {
		ac.Release(i < 5, time.Millisecond, false)
	}
	assert.Equal(t, 3, ac.N())
}

func TestAdaptiveConcurrency_HighLatency_DecrementsAfterWindow(t *testing.T) {
	ac := NewAdaptiveConcurrency(AdaptiveConcurrencyConfig{
		Min: 1, Max: 16, Initial: 4,
		TargetLow: 10 * time.Millisecond, TargetHigh: 50 * time.Millisecond,
		WindowSize: 10,
	})
	for i := 0; i < 10; i++ {
		ac.Release(true, 200*time.Millisecond, false)
	}
	assert.Equal(t, 3, ac.N())
}
