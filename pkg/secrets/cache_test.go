package secrets

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminKeys map[string]string

func TestCache_PutAndGet(t *testing.T) {
	cache := NewCache[adminKeys](time.Minute)
	key := "prod|private-otc|admins"

	_, ok := cache.Get(key)
	require.False(t, ok, "expected miss on empty cache")

	cache.Put(key, adminKeys{"ops-1": "k1"})

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "k1", got["ops-1"])
}

func TestCache_Expiration(t *testing.T) {
	cache := NewCache[string](time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put("k", "v")
	now = now.Add(2 * time.Minute)

	_, ok := cache.Get("k")
	assert.False(t, ok, "expected expired entry")
	assert.Equal(t, 0, cache.Len(), "expired entry is evicted on read")
}

func TestCache_Bust(t *testing.T) {
	cache := NewCache[string](time.Minute)
	cache.Put("k", "v")
	cache.Bust("k")

	_, ok := cache.Get("k")
	assert.False(t, ok)
}

func TestCache_CleanerRemovesExpired(t *testing.T) {
	cache := NewCache[string](10 * time.Millisecond)
	cache.Put("a", "1")
	cache.Put("b", "2")

	stop := make(chan struct{})
	go cache.StartCleaner(5*time.Millisecond, stop)
	defer close(stop)

	assert.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache[string](time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cache.Put("k", "v")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cache.Get("k")
			}
		}()
	}
	wg.Wait()

	v, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}
