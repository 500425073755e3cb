// Package txntest provides a minimal, hand-written fake
// implementation of the txn package's interfaces for use in tests and
// the packctl CLI's synthetic traffic generator. It deliberately
// doesn't use a mocking framework: go.uber.org/mock needs `mockgen`
// run ahead of time, which this repo's build can't do, and the
// interfaces here are small and stable enough that a literal struct
// plus a builder reads better than generated mock boilerplate anyway
// (see DESIGN.md).
package txntest

import (
	"encoding/binary"

	"github.com/xinyijun/txpack/txn"
)

// Transaction is a fully in-memory, immutable stand-in for a parsed
// wire transaction.
type Transaction struct {
	payload   []byte
	sig       txn.Signature
	writable  []txn.Address
	readonly  []txn.Address
	hasALT    bool
	isVote    bool
	feePayer  txn.Address
}

var _ txn.Transaction = (*Transaction)(nil)

func (t *Transaction) Payload() []byte       { return t.payload }
func (t *Transaction) Signature() txn.Signature { return t.sig }
func (t *Transaction) HasAddressLookupTables() bool { return t.hasALT }
func (t *Transaction) IsSimpleVote() bool    { return t.isVote }
func (t *Transaction) FeePayer() txn.Address { return t.feePayer }

func (t *Transaction) Accounts(cat txn.AccountCategory) []txn.Address {
	switch cat {
	case txn.CategoryWritableImmediate:
		return t.writable
	case txn.CategoryReadonlyImmediate:
		return t.readonly
	case txn.CategoryAll:
		all := make([]txn.Address, 0, len(t.writable)+len(t.readonly))
		all = append(all, t.writable...)
		all = append(all, t.readonly...)
		return all
	default:
		return nil
	}
}

// Builder constructs a Transaction field by field. The zero value is
// ready to use.
type Builder struct {
	t Transaction
}

// NewBuilder starts a Builder seeded with a unique signature derived
// from seq, so sequential builders in a test never collide on the
// admission pipeline's duplicate-signature check unless the caller
// explicitly calls WithSignature.
func NewBuilder(seq uint64) *Builder {
	b := &Builder{}
	binary.LittleEndian.PutUint64(b.t.sig[:8], seq)
	b.t.payload = make([]byte, 128)
	binary.LittleEndian.PutUint64(b.t.payload[:8], seq)
	b.t.feePayer = AddressFromLabel("payer")
	return b
}

func (b *Builder) WithSignature(sig txn.Signature) *Builder {
	b.t.sig = sig
	return b
}

func (b *Builder) WithPayloadSize(n int) *Builder {
	payload := make([]byte, n)
	copy(payload, b.t.payload)
	b.t.payload = payload
	return b
}

func (b *Builder) WithFeePayer(a txn.Address) *Builder {
	b.t.feePayer = a
	return b
}

func (b *Builder) Writes(addrs ...txn.Address) *Builder {
	b.t.writable = append(b.t.writable, addrs...)
	return b
}

func (b *Builder) Reads(addrs ...txn.Address) *Builder {
	b.t.readonly = append(b.t.readonly, addrs...)
	return b
}

func (b *Builder) AsVote() *Builder {
	b.t.isVote = true
	return b
}

func (b *Builder) WithAddressLookupTables() *Builder {
	b.t.hasALT = true
	return b
}

func (b *Builder) Build() *Transaction {
	out := b.t
	return &out
}

// AddressFromLabel derives a deterministic, human-readable test
// address so tests can write Writes(AddressFromLabel("alice")) instead
// of constructing raw byte arrays.
func AddressFromLabel(label string) txn.Address {
	var a txn.Address
	copy(a[:], label)
	return a
}

// ConstantCostEstimator reports the same rewards/compute/requested-CUs
// figures for every transaction, for tests that don't care about
// realistic cost estimation.
type ConstantCostEstimator struct {
	Rewards      uint32
	ComputeEst   uint32
	RequestedCUs uint32
}

var _ txn.CostEstimator = ConstantCostEstimator{}

func (c ConstantCostEstimator) Estimate(txn.Transaction) (rewards, computeEst, requestedCUs, precompileSigs uint32, ok bool) {
	return c.Rewards, c.ComputeEst, c.RequestedCUs, 0, true
}

// RejectingCostEstimator always reports ok=false, for exercising the
// admission pipeline's RejectEstimationFail path.
type RejectingCostEstimator struct{}

var _ txn.CostEstimator = RejectingCostEstimator{}

func (RejectingCostEstimator) Estimate(txn.Transaction) (uint32, uint32, uint32, uint32, bool) {
	return 0, 0, 0, 0, false
}
