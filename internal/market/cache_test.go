package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache(t *testing.T) {
	now := time.Now()
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	t.Run("Miss", func(t *testing.T) {
		_, ok := cache.Get("NSEI")
		assert.False(t, ok)
	})

	t.Run("HitWithinTTL", func(t *testing.T) {
		cache.SetWithTTL("NSEI", 25000, 5*time.Minute)

		price, ok := cache.Get("NSEI")
		assert.True(t, ok)
		assert.Equal(t, 25000.0, price)
	})

	t.Run("ExpiresAfterTTL", func(t *testing.T) {
		cache.SetWithTTL("BSESN", 80000, 5*time.Minute)
		now = now.Add(5*time.Minute + time.Second)

		_, ok := cache.Get("BSESN")
		assert.False(t, ok)
	})

	t.Run("OverwriteRefreshesTTL", func(t *testing.T) {
		cache.SetWithTTL("BSESN", 80100, 5*time.Minute)

		price, ok := cache.Get("BSESN")
		assert.True(t, ok)
		assert.Equal(t, 80100.0, price)
	})
}
