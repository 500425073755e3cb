package pack

import "github.com/xinyijun/txpack/txn"

// Sentinel values for acctBitsetMapping.bit. Real bit indices occupy
// [0, numScarceBits).
const (
	bitFirstInstance int32 = -1 // ref_cnt==1: bit assignment deferred
	bitSlowpath      int32 = -2 // ref_cnt>=2 and the scarce-bit stack is empty
)

// acctBitsetMapping is the reference-counted account -> scarce-bit
// slot record (spec.md §3). While ref_cnt==1 bit assignment is
// deferred (bitFirstInstance); on the second reference a bit is
// popped from the availability stack (or the slot falls back to the
// shared slowpath bit) and the first referencing entry's own bitsets
// are retroactively updated, since they were inserted before the bit
// existed.
type acctBitsetMapping struct {
	refCnt                uint32
	bit                   int32
	firstInstance         *entry
	firstInstanceWasWrite bool
}

// acctBitsetTable is the account -> bitset-slot map plus the stack of
// currently-unassigned scarce bits.
type acctBitsetTable struct {
	m     map[txn.Address]*acctBitsetMapping
	avail []int32 // LIFO stack of free bit indices in [0, numScarceBits)
}

func newAcctBitsetTable(capacityHint int) *acctBitsetTable {
	t := &acctBitsetTable{
		m:     make(map[txn.Address]*acctBitsetMapping, capacityHint),
		avail: make([]int32, 0, numScarceBits),
	}
	t.resetAvail()
	return t
}

func (t *acctBitsetTable) resetAvail() {
	t.avail = t.avail[:0]
	for i := numScarceBits - 1; i >= 0; i-- {
		t.avail = append(t.avail, int32(i))
	}
}

func (t *acctBitsetTable) popBit() int32 {
	n := len(t.avail)
	if n == 0 {
		return bitSlowpath
	}
	bit := t.avail[n-1]
	t.avail = t.avail[:n-1]
	return bit
}

func (t *acctBitsetTable) pushBit(bit int32) {
	if bit >= 0 && bit < numScarceBits {
		t.avail = append(t.avail, bit)
	}
}

// reference registers ord's use of addr (writable or readonly-tracked)
// per spec.md §4.1 step 5: look up or insert the account's mapping,
// bump ref_cnt, handle the 0→1 deferral and 1→2 bit assignment
// (retroactively patching the first referencing entry's bitsets), and
// OR the resulting bit into ord's own rw/w bitsets.
func (t *acctBitsetTable) reference(addr txn.Address, ord *entry, writable bool) {
	q, ok := t.m[addr]
	if !ok {
		q = &acctBitsetMapping{
			refCnt:                0,
			bit:                   bitFirstInstance,
			firstInstance:         ord,
			firstInstanceWasWrite: writable,
		}
		t.m[addr] = q
	} else if q.bit == bitFirstInstance {
		bit := t.popBit()
		q.bit = bit
		if bit != bitSlowpath {
			q.firstInstance.rwBitset.set(int(bit))
			if q.firstInstanceWasWrite {
				q.firstInstance.wBitset.set(int(bit))
			}
		} else {
			q.firstInstance.rwBitset.set(slowpathBit)
			if q.firstInstanceWasWrite {
				q.firstInstance.wBitset.set(slowpathBit)
			}
		}
	}

	q.refCnt++

	switch q.bit {
	case bitFirstInstance:
		// Still the sole reference; ord is that first instance and its
		// bitsets get the bit only once a second reference arrives.
	case bitSlowpath:
		ord.rwBitset.set(slowpathBit)
		if writable {
			ord.wBitset.set(slowpathBit)
		}
	default:
		ord.rwBitset.set(int(q.bit))
		if writable {
			ord.wBitset.set(int(q.bit))
		}
	}
}

// resolvedBit maps an acctBitsetMapping.bit sentinel to the actual
// bitset index an entry referencing that account would have set: the
// shared catch-all for bitSlowpath, the real index otherwise, or -1 if
// no bit has been assigned yet (bitFirstInstance).
func resolvedBit(bit int32) int32 {
	switch {
	case bit == bitSlowpath:
		return slowpathBit
	case bit >= 0:
		return bit
	default:
		return -1
	}
}

const noClear int32 = -1

// release decrements addr's reference count, freeing its bit back to
// the availability stack and deleting the mapping once unreferenced.
// Once the last reference is gone it reports the mapping's bit (a
// real index, which is pushed back onto the stack, or bitSlowpath);
// while the account is still referenced elsewhere it reports noClear.
// An account that never got past its first instance also reports
// noClear, since bitFirstInstance and noClear share the value -1.
// Combining that with acct_in_use state to
// decide what a scheduler snapshot should clear is releaseBitReference
// in addruse.go, since that decision also depends on whether the
// account is currently held writably (spec.md §4.2).
func (t *acctBitsetTable) release(addr txn.Address) int32 {
	q, ok := t.m[addr]
	if !ok {
		panic(invariantError("release of untracked account bitset mapping"))
	}
	q.refCnt--
	if q.refCnt != 0 {
		return noClear
	}

	bit := q.bit
	delete(t.m, addr)
	if bit >= 0 && bit < numScarceBits {
		t.pushBit(bit)
	}
	return bit
}

func (t *acctBitsetTable) clear() {
	clear(t.m)
	t.resetAvail()
}
