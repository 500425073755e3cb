package pack

// RejectCode is the non-fatal outcome of a rejected InsertFini call
// (spec.md §7). These are ordinary, expected results — not errors —
// so InsertFini returns one alongside a bool, the way a well-behaved
// Go API distinguishes "operation didn't succeed, here's why" from an
// exceptional condition.
type RejectCode int

const (
	// RejectNone is the zero value, never returned for an actual
	// rejection; InsertFini returns it paired with ok=true.
	RejectNone RejectCode = iota
	RejectEstimationFail
	RejectUnaffordable
	RejectTooLarge
	RejectAccountCount
	RejectDuplicateAccount
	RejectWritesSysvar
	RejectDuplicate
	RejectExpired
	RejectAddrLUT
	RejectPriority
)

func (r RejectCode) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectEstimationFail:
		return "estimation_fail"
	case RejectUnaffordable:
		return "unaffordable"
	case RejectTooLarge:
		return "too_large"
	case RejectAccountCount:
		return "account_cnt"
	case RejectDuplicateAccount:
		return "duplicate_acct"
	case RejectWritesSysvar:
		return "writes_sysvar"
	case RejectDuplicate:
		return "duplicate"
	case RejectExpired:
		return "expired"
	case RejectAddrLUT:
		return "addr_lut"
	case RejectPriority:
		return "priority"
	default:
		return "unknown"
	}
}

// AcceptCode distinguishes which pool a successfully-admitted
// transaction landed in and whether it replaced a worse entry
// (spec.md §6, §7).
type AcceptCode int

const (
	AcceptNonvoteAdd AcceptCode = iota
	AcceptNonvoteReplace
	AcceptVoteAdd
	AcceptVoteReplace
)

func (a AcceptCode) String() string {
	switch a {
	case AcceptNonvoteAdd:
		return "nonvote_add"
	case AcceptNonvoteReplace:
		return "nonvote_replace"
	case AcceptVoteAdd:
		return "vote_add"
	case AcceptVoteReplace:
		return "vote_replace"
	default:
		return "unknown"
	}
}

// SkipReason buckets why a candidate was passed over during
// scheduling (spec.md §7's scheduler metric buckets).
type SkipReason int

const (
	SkipCULimit SkipReason = iota
	SkipFastPath
	SkipByteLimit
	SkipWriteCost
	SkipSlowPath
)
