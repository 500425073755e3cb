package pack

import (
	"math/rand"
	"testing"
)

func newTestEntry(rewards, computeEst uint32, seq uint64) *entry {
	return &entry{rewards: rewards, computeEst: computeEst, seq: seq, heapIndex: -1}
}

func TestTreapOrdersByRewardComputeRatio(t *testing.T) {
	tr := newTreap(rand.New(rand.NewSource(1)))
	worst := newTestEntry(1, 10, 1)  // ratio 0.1
	mid := newTestEntry(1, 2, 2)     // ratio 0.5
	best := newTestEntry(10, 1, 3)   // ratio 10

	tr.insert(worst)
	tr.insert(mid)
	tr.insert(best)

	var order []*entry
	tr.reverseIter(func(e *entry) bool {
		order = append(order, e)
		return true
	})
	if len(order) != 3 || order[0] != best || order[1] != mid || order[2] != worst {
		t.Fatalf("unexpected reverse-iteration order: %+v", order)
	}
	if tr.worst() != worst {
		t.Fatal("worst() must return the lowest reward/compute ratio entry")
	}
}

func TestTreapTieBreaksBySequence(t *testing.T) {
	tr := newTreap(rand.New(rand.NewSource(2)))
	first := newTestEntry(3, 3, 1)
	second := newTestEntry(3, 3, 2)
	tr.insert(first)
	tr.insert(second)
	if tr.worst() != first {
		t.Fatal("equal ratios must tie-break on insertion sequence, earliest is worse")
	}
}

func TestTreapRemove(t *testing.T) {
	tr := newTreap(rand.New(rand.NewSource(3)))
	entries := make([]*entry, 0, 20)
	for i := 0; i < 20; i++ {
		e := newTestEntry(uint32(i+1), 7, uint64(i))
		entries = append(entries, e)
		tr.insert(e)
	}
	for i, e := range entries {
		tr.remove(e)
		if tr.len() != len(entries)-i-1 {
			t.Fatalf("expected size %d after %d removals, got %d", len(entries)-i-1, i+1, tr.len())
		}
	}
}

func TestTreapDrainAll(t *testing.T) {
	tr := newTreap(rand.New(rand.NewSource(4)))
	for i := 0; i < 10; i++ {
		tr.insert(newTestEntry(uint32(i+1), 1, uint64(i)))
	}
	released := 0
	tr.drainAll(func(*entry) { released++ })
	if released != 10 {
		t.Fatalf("expected 10 entries released, got %d", released)
	}
	if tr.len() != 0 || tr.root != nil {
		t.Fatal("treap must be empty after drainAll")
	}
}
