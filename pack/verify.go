package pack

import "github.com/xinyijun/txpack/txn"

// Verify walks every internal index and checks a subset of the
// consistency invariants spec.md §8 lists for this core, returning the
// first violation found: treap membership against the signature map
// and expiration queue, pending counts, the spare arena slot, and
// bitset reference counts. It does not check which bits are set in
// entries' bitsets, the bit availability stack, the per-bank use lists
// or the global in-use bitsets. It's meant for tests and debug builds, not the hot
// path: it allocates and does O(n) work proportional to the number of
// pending transactions and tracked accounts.
func (p *Pack) Verify() error {
	if err := p.verifyTreap(p.pending, rootPending); err != nil {
		return err
	}
	if err := p.verifyTreap(p.pendingVotes, rootPendingVote); err != nil {
		return err
	}
	if p.pending.len()+p.pendingVotes.len() != p.pendingTxnCnt {
		return invariantError("pending_txn_cnt %d does not match treap sizes %d+%d",
			p.pendingTxnCnt, p.pending.len(), p.pendingVotes.len())
	}
	if p.sigs.len() != p.pendingTxnCnt {
		return invariantError("sig map size %d does not match pending_txn_cnt %d", p.sigs.len(), p.pendingTxnCnt)
	}
	if p.expq.len() != p.pendingTxnCnt {
		return invariantError("expiration queue size %d does not match pending_txn_cnt %d", p.expq.len(), p.pendingTxnCnt)
	}
	if p.pendingTxnCnt > p.packDepth {
		return invariantError("pending_txn_cnt %d exceeds pack depth %d", p.pendingTxnCnt, p.packDepth)
	}
	if p.arena.available() < 1 {
		return invariantError("arena has no spare scratch slot")
	}
	return p.verifyBitsetRefcounts()
}

// verifyTreap confirms every entry reachable from the treap is tagged
// with the expected root and appears exactly once in the signature
// map and expiration queue.
func (p *Pack) verifyTreap(t *treap, want rootKind) error {
	count := 0
	var err error
	t.reverseIter(func(e *entry) bool {
		if e.root != want {
			err = invariantError("entry tagged root %d, expected %d", e.root, want)
			return false
		}
		if p.sigs.lookup(txn.Signature(e.sig)) != e {
			err = invariantError("entry not reachable from signature map by its own signature")
			return false
		}
		if e.heapIndex < 0 || e.heapIndex >= p.expq.len() || p.expq.items[e.heapIndex] != e {
			err = invariantError("entry's heapIndex does not point back to itself in the expiration queue")
			return false
		}
		count++
		return true
	})
	if err != nil {
		return err
	}
	if count != t.len() {
		return invariantError("treap reverseIter visited %d entries, size says %d", count, t.len())
	}
	return nil
}

// verifyBitsetRefcounts recomputes each tracked account's reference
// count from the pending population directly and compares it against
// the table's bookkeeping, catching any admission/release asymmetry.
func (p *Pack) verifyBitsetRefcounts() error {
	want := make(map[txn.Address]uint32, len(p.bitsets.m))
	count := func(t *treap) {
		t.reverseIter(func(e *entry) bool {
			for _, a := range e.writable {
				want[a]++
			}
			for _, a := range e.readable {
				want[a]++
			}
			return true
		})
	}
	count(p.pending)
	count(p.pendingVotes)

	if len(want) != len(p.bitsets.m) {
		return invariantError("bitset table tracks %d accounts, pending entries reference %d", len(p.bitsets.m), len(want))
	}
	for addr, n := range want {
		q, ok := p.bitsets.m[addr]
		if !ok {
			return invariantError("account referenced by a pending entry has no bitset mapping")
		}
		if q.refCnt != n {
			return invariantError("account bitset ref_cnt %d, recomputed %d", q.refCnt, n)
		}
	}
	return nil
}
