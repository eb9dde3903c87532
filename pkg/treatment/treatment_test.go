package treatment

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomPicksFromCandidates(t *testing.T) {
	c := NewCounters()
	got, err := c.Assign(Random, "k", []string{"a", "b"})
	require.NoError(t, err)
	assert.Contains(t, []string{"a", "b"}, got)
}

func TestBlockCyclesInOrder(t *testing.T) {
	c := NewCounters()
	candidates := []string{"a", "b", "c"}
	for i := 0; i < 7; i++ {
		got, err := c.Assign(Block, "pool-1", candidates)
		require.NoError(t, err)
		assert.Equal(t, candidates[i%3], got)
	}
}

func TestBlockCursorIsPerBalanceKey(t *testing.T) {
	c := NewCounters()
	candidates := []string{"a", "b"}
	got1, _ := c.Assign(Block, "pool-a", candidates)
	got2, _ := c.Assign(Block, "pool-b", candidates)
	assert.Equal(t, "a", got1)
	assert.Equal(t, "a", got2)
}

func TestBalancedRandomConverges(t *testing.T) {
	c := NewCounters()
	candidates := []string{"control", "treatment"}
	counts := map[string]int{}
	for i := 0; i < 100; i++ {
		got, err := c.Assign(BalancedRandom, "study-1", candidates)
		require.NoError(t, err)
		counts[got]++
	}
	assert.Equal(t, 50, counts["control"])
	assert.Equal(t, 50, counts["treatment"])
}

func TestUnknownStrategyErrors(t *testing.T) {
	c := NewCounters()
	_, err := c.Assign("nonsense", "k", nil)
	assert.Error(t, err)
}

func TestEmptyCandidatesDefaultsToControlTreatment(t *testing.T) {
	c := NewCounters()
	got, err := c.Assign(Random, "k", nil)
	require.NoError(t, err)
	assert.Contains(t, DefaultCandidates, got)
}

func TestConcurrentBalancedRandomStaysBalanced(t *testing.T) {
	c := NewCounters()
	candidates := []string{"control", "treatment"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Assign(BalancedRandom, "study-concurrent", candidates)
			require.NoError(t, err)
			mu.Lock()
			counts[got]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counts["control"])
	assert.Equal(t, 100, counts["treatment"])
}
