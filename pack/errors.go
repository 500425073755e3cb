package pack

import "fmt"

// InvariantError is panicked for the fatal, caller-bug conditions
// spec.md §7 lists (rebate to an unknown writer account, executed_cus
// exceeding requested_cus, completion of an account not in
// acct_in_use). Verify returns an InvariantError as its error value
// for a sig-to-entry or other inconsistency rather than panicking. These are
// not recoverable operating conditions — the reference implementation
// aborts the process (FD_LOG_ERR / FD_TEST); a Go caller that wants
// the same behavior lets the panic propagate, and one embedding the
// core in a longer-lived process can recover it at a supervisory
// boundary instead.
type InvariantError struct {
	msg string
}

func (e InvariantError) Error() string { return "pack: invariant violation: " + e.msg }

func invariantError(format string, args ...any) InvariantError {
	return InvariantError{msg: fmt.Sprintf(format, args...)}
}
