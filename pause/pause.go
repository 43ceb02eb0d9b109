// Package pause names the operations covered by the engine's circuit
// breakers.
package pause

// Operation identifies a mutating entry point that can be paused on its own.
type Operation string

const (
	OpDebit              Operation = "debit"
	OpSetAllowance       Operation = "set_allowance"
	OpBatchSetAllowances Operation = "batch_set_allowances"
	OpLock               Operation = "lock"
	OpSettle             Operation = "settle"
	OpEmergencyClose     Operation = "emergency_close"
	OpSwap               Operation = "swap"
	OpCollectFees        Operation = "collect_fees"
	OpUpdateConfig       Operation = "update_config"
	OpMint               Operation = "mint"
	OpSetTreasury        Operation = "set_treasury"
)

// Operations returns every pausable operation in a stable order.
func Operations() []Operation {
	return []Operation{
		OpDebit,
		OpSetAllowance,
		OpBatchSetAllowances,
		OpLock,
		OpSettle,
		OpEmergencyClose,
		OpSwap,
		OpCollectFees,
		OpUpdateConfig,
		OpMint,
		OpSetTreasury,
	}
}

// Valid reports whether op names a pausable operation.
func (op Operation) Valid() bool {
	for _, known := range Operations() {
		if op == known {
			return true
		}
	}
	return false
}

// IgnoresGlobalPause reports whether op stays available while the engine is
// globally paused. Emergency close is the owner's exit and only honors its
// own flag.
func (op Operation) IgnoresGlobalPause() bool {
	return op == OpEmergencyClose
}

func (op Operation) String() string { return string(op) }
