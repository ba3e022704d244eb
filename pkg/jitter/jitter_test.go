package jitter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_CapsAtMax(t *testing.T) {
	got := ExponentialBackoff(time.Second, 4*time.Second, 10, 0)
	assert.Equal(t, 4*time.Second, got)
}

func TestExponentialBackoff_Doubles(t *testing.T) {
	assert.Equal(t, time.Second, ExponentialBackoff(time.Second, time.Minute, 0, 0))
	assert.Equal(t, 4*time.Second, ExponentialBackoff(time.Second, time.Minute, 2, 0))
}

func TestDuration_StaysInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := Duration(time.Second, DefaultJitter)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
