package feedback

// Oracle is the §6 "Oracle interface": transition advances a per-oracle
// opaque stage between executions (enabling multi-step oracles), and Detect
// inspects the finished execution and reports any bug ids found.
type Oracle interface {
	Kind() string
	Transition(ctx *ExecContext, stage int) int
	Detect(ctx *ExecContext, stage int) []uint64
}

// BugID assigns a globally-unique bug id by combining an oracle's 8-bit
// high-prefix with a 56-bit local id, per the supplement grounded on
// original_source/src/evm/oracle.rs.
func BugID(prefix uint8, local uint64) uint64 {
	return uint64(prefix)<<56 | (local & (1<<56 - 1))
}
