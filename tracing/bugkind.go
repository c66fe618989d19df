package tracing

// ErrorKind classifies a per-transaction failure by recoverability, per §7's
// error taxonomy — mirrors BalanceChangeReason/NonceChangeReason's
// enum-plus-String shape rather than the Go error-wrapping idiom, since the
// fuzzer's hot loop needs a cheap, comparable tag to branch feedback
// treatment on, not a chain of causes.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	// ErrorKindOpcode covers stack underflow, out-of-gas, out-of-memory and
	// unknown opcode: the frame reverts, the transaction is marked reverted,
	// and feedback keeps only the coverage observed before the revert point.
	ErrorKindOpcode
	// ErrorKindHost covers a failed code fetch (a fetcher miss or timeout):
	// the transaction fails with ContractNotFound and its snapshot must not
	// be added to the corpus. With no fetcher registered, an unknown account
	// is not an error.
	ErrorKindHost
	// ErrorKindCheatcode covers cheatcode argument decode failures, out-buffer
	// OOG, or an invalid call shape: the cheat call reverts with the
	// cheatcode ERROR_PREFIX and is never treated as a bug.
	ErrorKindCheatcode
	// ErrorKindAssertion covers a failed cheatcode assert*, an unmatched
	// expectRevert/expectEmit, or an unmet expectCall: the assertion oracle
	// reports a bug id derived from the failure message hash.
	ErrorKindAssertion
	// ErrorKindOracleBug marks a transaction the oracle harness judged
	// interesting: it is promoted into the solutions corpus and its bug id
	// recorded in KnownBugs.
	ErrorKindOracleBug
)

// String returns a human-readable label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindOpcode:
		return "opcode_error"
	case ErrorKindHost:
		return "host_error"
	case ErrorKindCheatcode:
		return "cheatcode_error"
	case ErrorKindAssertion:
		return "assertion_error"
	case ErrorKindOracleBug:
		return "oracle_bug"
	}
	return "unknown"
}

// Recoverable reports whether the main loop may proceed to the next
// iteration without aborting the run. Only startup-time artifact/RPC
// failures are fatal per §7, and those never flow through ErrorKind.
func (k ErrorKind) Recoverable() bool { return true }

// AffectsCorpus reports whether a transaction failing with this kind is
// still eligible to have its resulting snapshot added to the corpus.
// ErrorKindHost is explicitly excluded per §7 ("the fuzzer must not add the
// resulting snapshot").
func (k ErrorKind) AffectsCorpus() bool {
	return k != ErrorKindHost
}
