package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIncludesEveryKnownCounter(t *testing.T) {
	snap := New().Snapshot()
	for _, name := range allNames {
		v, ok := snap[name]
		require.True(t, ok, "expected %s in snapshot", name)
		require.Zero(t, v)
	}
}

func TestAddIgnoresUnknownCounters(t *testing.T) {
	c := New()
	c.Add("not_a_real_counter", 5)
	snap := c.Snapshot()
	_, ok := snap["not_a_real_counter"]
	require.False(t, ok)
}

func TestAddIsConcurrencySafe(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(Received, 1)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 100, c.Snapshot()[Received])
}

func TestRenderNothingToReport(t *testing.T) {
	require.Equal(t, "Nothing to report.", Render(map[string]int64{}))
}

func TestRenderSortsKeys(t *testing.T) {
	got := Render(map[string]int64{"b": 2, "a": 1})
	require.Equal(t, "a=1 b=2", got)
}
