package pack

import "github.com/xinyijun/txpack/txn"

// Bit layout of addrUse.inUseBy, matching spec.md §3's "Account→use"
// record: bits 0..bankTileMax-1 mark which banks hold the account,
// bit 63 (writableBit) marks exclusive (writable) possession, and bit
// 62 (bitClearedFlag) marks that the account's bitset slot was
// recycled while the account remained locked (spec.md §4.2, §4.4).
const (
	writableBit    uint64 = 1 << 63
	bitClearedFlag uint64 = 1 << 62

	// maxBankTiles bounds bank_tile_cnt: bits 0..61 are available for
	// bank membership once the two high control bits are reserved.
	maxBankTiles = 62

	// bankMembershipMask covers every bank-membership bit, excluding the
	// two high control bits.
	bankMembershipMask uint64 = (1 << maxBankTiles) - 1
)

// addrUse is a per-account record. The same shape serves two
// unrelated tables (spec.md §3 "dual-purpose"): acct_in_use treats the
// field as a bank-membership bitmask, writer_costs treats it as a
// cumulative compute-unit total. Keeping one struct, like the source,
// avoids two otherwise-identical open-addressed map implementations;
// in Go the two tables are simply map[txn.Address]*addrUse used with
// different field accessors.
type addrUse struct {
	inUseBy   uint64 // acct_in_use view
	totalCost uint64 // writer_costs view

	// globalBit is the scarce bit this account was assigned in the
	// shared bitset table at the moment it was locked (acct_in_use view
	// only; unused by writer_costs). -1 means no bit was ever assigned
	// (the account had at most one pending referencer, so the fast-path
	// bitset test never needed to represent it).
	globalBit int32
}

type addrUseTable struct {
	m map[txn.Address]*addrUse
}

func newAddrUseTable(capacityHint int) *addrUseTable {
	return &addrUseTable{m: make(map[txn.Address]*addrUse, capacityHint)}
}

func (t *addrUseTable) get(addr txn.Address) (*addrUse, bool) {
	u, ok := t.m[addr]
	return u, ok
}

func (t *addrUseTable) getOrInsert(addr txn.Address) *addrUse {
	u, ok := t.m[addr]
	if !ok {
		u = &addrUse{globalBit: -1}
		t.m[addr] = u
	}
	return u
}

func (t *addrUseTable) remove(addr txn.Address) {
	delete(t.m, addr)
}

func (t *addrUseTable) clear() {
	clear(t.m)
}

func (t *addrUseTable) len() int { return len(t.m) }

// releaseBitReference releases addr's bitset reference. If that frees
// the account's scarce bit back to the availability stack while the
// account is still locked by some bank tile (present in acct_in_use),
// the bit may be reassigned to an unrelated account before that bank
// tile completes — the BIT_CLEARED hazard spec.md §4.2 and §9
// describe. bitClearedFlag records that this has happened, so
// MicroblockComplete knows not to trust globalBit for clearing the
// global snapshot once the account's last bank membership is dropped.
func releaseBitReference(bitsets *acctBitsetTable, inUse *addrUseTable, addr txn.Address) {
	bit := bitsets.release(addr)
	if bit == noClear {
		return
	}
	if use, ok := inUse.get(addr); ok {
		use.inUseBy |= bitClearedFlag
	}
}
