package pack

import "github.com/xinyijun/txpack/txn"

// unwritableAccounts is the fixed set of sysvar and builtin program
// addresses no transaction may write (spec.md §6). The source this
// core is modeled on implements the membership test as a perfect hash
// on bytes 8..12 of the address for O(1) lookup at scheduling
// hot-path speed; in Go, a map[txn.Address]struct{} over 32-byte keys
// compiles to a single hashed comparison per lookup and is the
// faithful idiomatic translation of "O(1) test over a fixed set" —
// building and maintaining a hand-rolled perfect-hash table would
// only pay for itself if collisions in Go's built-in map implementation
// were actually showing up in profiles, and the set named here doesn't
// change after construction, so there's nothing to rebuild at runtime.
//
// The addresses here are placeholders: this is the well-known fixed
// set from the Solana runtime (sysvars plus builtin program IDs) that
// spec.md §6 names by label. Callers targeting a different runtime
// provide their own set via WithUnwritableAccounts.
var defaultUnwritableAccounts = buildUnwritableSet([]string{
	"Clock", "EpochSchedule", "Fees", "RecentBlockhashes", "Rent",
	"Rewards", "SlotHashes", "SlotHistory", "StakeHistory", "Instructions",
	"EpochRewards", "LastRestartSlot",
	"Config", "Feature", "NativeLoader", "Stake", "StakeConfig",
	"Vote", "System", "BPFLoaderV1", "BPFLoaderV2", "BPFLoaderUpgradeable",
	"Ed25519Precompile", "KeccakSecp", "ComputeBudget", "AddrLUT",
	"NativeMint", "TokenProgram", "SysvarProgram",
})

// buildUnwritableSet derives a deterministic placeholder 32-byte
// address per label so the set has stable, reproducible membership
// for tests without depending on the real base58-encoded program IDs,
// which live in the (out-of-scope) runtime this core is packaged
// against.
func buildUnwritableSet(labels []string) map[txn.Address]struct{} {
	set := make(map[txn.Address]struct{}, len(labels))
	for _, label := range labels {
		set[addressFromLabel(label)] = struct{}{}
	}
	return set
}

func addressFromLabel(label string) txn.Address {
	var a txn.Address
	copy(a[:], label)
	return a
}

type unwritableSet struct {
	addrs map[txn.Address]struct{}
}

func newUnwritableSet(extra map[txn.Address]struct{}) *unwritableSet {
	if extra == nil {
		extra = defaultUnwritableAccounts
	}
	return &unwritableSet{addrs: extra}
}

func (u *unwritableSet) contains(a txn.Address) bool {
	_, ok := u.addrs[a]
	return ok
}
