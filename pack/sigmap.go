package pack

import "github.com/xinyijun/txpack/txn"

// sigMap maps a transaction's first signature to its entry, for
// O(1) duplicate detection on admission and O(1) delete-by-signature
// (spec.md §3, §6).
type sigMap struct {
	m map[txn.Signature]*entry
}

func newSigMap(capacityHint int) *sigMap {
	return &sigMap{m: make(map[txn.Signature]*entry, capacityHint)}
}

func (s *sigMap) lookup(sig txn.Signature) *entry {
	return s.m[sig]
}

func (s *sigMap) insert(e *entry) {
	s.m[e.sig] = e
}

func (s *sigMap) remove(sig txn.Signature) {
	delete(s.m, sig)
}

func (s *sigMap) len() int { return len(s.m) }

func (s *sigMap) clear() {
	clear(s.m)
}
