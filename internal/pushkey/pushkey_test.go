package pushkey

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_OrderedWithinSameMillisecond(t *testing.T) {
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(func() time.Time { return frozen })

	prev := ""
	for i := 0; i < 100; i++ {
		key, err := g.Next()
		require.NoError(t, err)
		assert.Len(t, key, 26)
		assert.Greater(t, key, prev)
		prev = key
	}
}

func TestNext_ConcurrentUnique(t *testing.T) {
	g := NewGenerator(nil)

	var (
		mu   sync.Mutex
		keys []string
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key, err := g.Next()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				keys = append(keys, key)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Strings(keys)
	for i := 1; i < len(keys); i++ {
		assert.NotEqual(t, keys[i-1], keys[i])
	}
	assert.Len(t, keys, 400)
}
