package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	clock := NewFakeClock()
	assert.Equal(t, Epoch, clock.Now())
	assert.Empty(t, clock.Slept())
}

func TestFakeClock_SleepAdvances(t *testing.T) {
	clock := NewFakeClock()

	require.NoError(t, clock.Sleep(context.Background(), 100*time.Millisecond))
	require.NoError(t, clock.Sleep(context.Background(), 250*time.Millisecond))

	assert.Equal(t, Epoch.Add(350*time.Millisecond), clock.Now())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 250 * time.Millisecond}, clock.Slept())
}

func TestFakeClock_SleepHonoursCancellation(t *testing.T) {
	clock := NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := clock.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Epoch, clock.Now())
	assert.Empty(t, clock.Slept())
}

func TestFakeClock_Reset(t *testing.T) {
	clock := NewFakeClock()
	clock.Advance(time.Minute)
	require.NoError(t, clock.Sleep(context.Background(), time.Second))

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
	assert.Empty(t, clock.Slept())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock()
	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = clock.Sleep(context.Background(), time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Len(t, clock.Slept(), goroutines)
	assert.Equal(t, Epoch.Add(goroutines*time.Millisecond), clock.Now())
}
