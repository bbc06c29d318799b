package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	lim := New(cfg)
	lim.now = clk.now
	lim.last = clk.t
	return lim, clk
}

func TestLimiter_AllowUpToBurst(t *testing.T) {
	lim, _ := newTestLimiter(Config{RequestsPerSecond: 10, Burst: 5})

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestLimiter_Refill(t *testing.T) {
	lim, clk := newTestLimiter(Config{RequestsPerSecond: 10, Burst: 2})
	for lim.Allow() {
	}

	clk.advance(50 * time.Millisecond)
	assert.False(t, lim.Allow(), "half a token is not a token")

	clk.advance(60 * time.Millisecond)
	assert.True(t, lim.Allow())
}

func TestLimiter_BurstCap(t *testing.T) {
	lim, clk := newTestLimiter(Config{RequestsPerSecond: 1000, Burst: 3})
	clk.advance(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestLimiter_ZeroRateUnlimited(t *testing.T) {
	lim := New(Config{})
	for i := 0; i < 100; i++ {
		require.True(t, lim.Allow())
	}
}

func TestLimiter_WaitSucceeds(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 100, Burst: 1})
	lim.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, lim.Wait(ctx))
}

func TestLimiter_WaitCancelled(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 1, Burst: 1})
	lim.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, lim.Wait(ctx), context.DeadlineExceeded)
}

func TestManager_SameKeySameLimiter(t *testing.T) {
	m := NewManager(Config{RequestsPerSecond: 5, Burst: 1})
	assert.Same(t, m.GetLimiter("withdraw"), m.GetLimiter("withdraw"))
	assert.NotSame(t, m.GetLimiter("withdraw"), m.GetLimiter("balance"))
}

func TestManager_ConcurrentGet(t *testing.T) {
	m := NewManager(Config{RequestsPerSecond: 5, Burst: 1})
	var wg sync.WaitGroup
	got := make([]*Limiter, 32)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = m.GetLimiter("k")
		}(i)
	}
	wg.Wait()
	for _, l := range got {
		assert.Same(t, got[0], l)
	}
}
