package pack

import "github.com/xinyijun/txpack/txn"

// rootKind records which of the pool's three owners currently holds an
// entry: the arena free list, the non-vote treap, or the vote treap.
// Every entry is in exactly one.
type rootKind uint8

const (
	rootFree rootKind = iota
	rootPending
	rootPendingVote
)

// Flags mirrors the wire transaction's scheduling-relevant flags
// (fd_txn_p_t.flags in the source this core is modeled on).
type Flags uint8

const (
	FlagIsSimpleVote Flags = 1 << iota

	// FlagExecuteSuccess is reported by the caller to RebateCUs, not
	// stored on entry: by the time a transaction's execution result is
	// known its entry has already left the arena (spec.md §4.5). Its
	// absence alongside executedCUs > 0 is the fatal condition
	// RebateCUs enforces.
	FlagExecuteSuccess
)

// entry is the arena-resident "ordered transaction": a transaction
// plus everything the scheduler needs to order and track it. Entries
// are allocated from a fixed-capacity arena sized at construction and
// have a stable address for as long as they remain admitted, the way
// the spec's fd_pack_ord_txn_t has a stable arena index.
type entry struct {
	txn         txn.Transaction
	sig         [64]byte // signature 0, used as the sig-map key
	payloadSize int

	rewards      uint32
	computeEst   uint32
	requestedCUs uint32
	flags        Flags

	expiresAt uint64
	root      rootKind

	// Treap links. Tie-breaking on equal reward/compute ratios uses
	// seq, a monotonically increasing insertion counter, since
	// COMPARE_WORSE is not a total order (spec.md §3, §9).
	left, right, parent *entry
	prio                uint64
	seq                 uint64

	// Position in the expiration min-heap; maintained by the heap's
	// Swap so the entry can be deleted directly (spec.md §3, §4.6).
	heapIndex int

	rwBitset bitset
	wBitset  bitset

	writable []txn.Address // cached FD_TXN_ACCT_CAT_WRITABLE∩IMMEDIATE
	readable []txn.Address // cached FD_TXN_ACCT_CAT_READONLY∩IMMEDIATE, excluding unwritable accounts
}

func (e *entry) isVote() bool { return e.flags&FlagIsSimpleVote != 0 }
