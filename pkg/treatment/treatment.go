// Package treatment implements the pure condition-assignment strategies
// of §4.3: random, balanced_random, and block. All state is process-local
// and non-persistent by design — a restart resets balance, which is an
// accepted tradeoff for this core (see §9).
package treatment

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Strategy names accepted by Assign.
const (
	Random         = "random"
	BalancedRandom = "balanced_random"
	Block          = "block"
)

// DefaultCandidates is used when a caller supplies no candidate list.
var DefaultCandidates = []string{"control", "treatment"}

// Counters holds the per-balance-key mutable state backing
// balanced_random (condition counts) and block (cursor position). Each
// balance key gets its own mutex — following the "lock per key, never a
// single global lock" directive — rather than one lock guarding the
// whole struct.
type Counters struct {
	mu       sync.Mutex // guards creation of entries in the maps below
	counts   map[string]*keyedCounts
	cursors  map[string]*keyedCursor
}

type keyedCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

type keyedCursor struct {
	mu  sync.Mutex
	pos int
}

// NewCounters constructs empty counter state.
func NewCounters() *Counters {
	return &Counters{
		counts:  make(map[string]*keyedCounts),
		cursors: make(map[string]*keyedCursor),
	}
}

func (c *Counters) countsFor(balanceKey string) *keyedCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	kc, ok := c.counts[balanceKey]
	if !ok {
		kc = &keyedCounts{counts: make(map[string]int)}
		c.counts[balanceKey] = kc
	}
	return kc
}

func (c *Counters) cursorFor(balanceKey string) *keyedCursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	kc, ok := c.cursors[balanceKey]
	if !ok {
		kc = &keyedCursor{}
		c.cursors[balanceKey] = kc
	}
	return kc
}

// Assign picks a condition for balanceKey under the named strategy.
// candidates defaults to DefaultCandidates when empty. Returns an error
// only for an unknown strategy name; an empty candidate list is treated
// as DefaultCandidates, never as an error, since callers may omit it.
func (c *Counters) Assign(strategy, balanceKey string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}

	switch strategy {
	case Random, "":
		return candidates[rand.IntN(len(candidates))], nil

	case BalancedRandom:
		kc := c.countsFor(balanceKey)
		kc.mu.Lock()
		defer kc.mu.Unlock()

		min := -1
		var minCandidates []string
		for _, cand := range candidates {
			n := kc.counts[cand]
			switch {
			case min == -1 || n < min:
				min = n
				minCandidates = []string{cand}
			case n == min:
				minCandidates = append(minCandidates, cand)
			}
		}
		chosen := minCandidates[rand.IntN(len(minCandidates))]
		kc.counts[chosen]++
		return chosen, nil

	case Block:
		kcur := c.cursorFor(balanceKey)
		kcur.mu.Lock()
		defer kcur.mu.Unlock()
		chosen := candidates[kcur.pos%len(candidates)]
		kcur.pos++
		return chosen, nil

	default:
		return "", fmt.Errorf("treatment: unknown strategy %q", strategy)
	}
}
