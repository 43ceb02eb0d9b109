package audithook

// Action constants for audit events.
const (
	// Spending actions
	ActionSpendDebited  = "spend.debited"
	ActionSupplyReduced = "supply.reduced"
	ActionSupplyMinted  = "supply.minted"
	ActionAllowanceSet  = "allowance.set"

	// Lock actions
	ActionLockOpened          = "lock.opened"
	ActionLockSettled         = "lock.settled"
	ActionLockEmergencyClosed = "lock.emergency_closed"
	ActionLockMatured         = "lock.matured"

	// Swap actions
	ActionSwapExecuted  = "swap.executed"
	ActionFeesCollected = "fees.collected"

	// Administration actions
	ActionConfigChanged        = "config.changed"
	ActionPaused               = "pause.enabled"
	ActionUnpaused             = "pause.disabled"
	ActionFunctionPauseChanged = "pause.function_changed"
	ActionRoleGranted          = "role.granted"
	ActionRoleRevoked          = "role.revoked"
	ActionTreasuryChanged      = "treasury.changed"
	ActionUpgradeAuthorized    = "upgrade.authorized"

	// Rejections
	ActionOperationFailed = "operation.failed"
)

// Resource constants for audit events.
const (
	ResourceAccount   = "account"
	ResourceAllowance = "allowance"
	ResourceLock      = "lock"
	ResourceSwap      = "swap"
	ResourceConfig    = "config"
	ResourceRole      = "role"
	ResourceTreasury  = "treasury"
	ResourceEngine    = "engine"
	ResourceOperation = "operation"
)

// Category constants for audit events.
const (
	CategorySpending       = "spending"
	CategoryEscrow         = "escrow"
	CategoryExchange       = "exchange"
	CategoryAdministration = "administration"
	CategoryAccess         = "access"
	CategorySafety         = "safety"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
