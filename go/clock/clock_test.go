package clock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSystemClockIsMonotone(t *testing.T) {
	var c = NewSystem()
	var mu sync.Mutex
	var seen = make(map[Timestamp]struct{})

	var wg sync.WaitGroup
	for g := 0; g != 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prev Timestamp
			for i := 0; i != 1000; i++ {
				var now = c.Now()
				require.Greater(t, now, prev)
				prev = now

				mu.Lock()
				_, dup := seen[now]
				seen[now] = struct{}{}
				mu.Unlock()
				require.False(t, dup, "timestamp issued twice")
			}
		}()
	}
	wg.Wait()
}
