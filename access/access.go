// Package access defines the roles that gate privileged engine operations.
package access

// Role names a privilege held by a set of accounts.
type Role string

const (
	// RoleAdmin grants and revokes every role and manages the treasury.
	RoleAdmin Role = "admin"
	// RoleOperator manages spending allowances and economic parameters.
	RoleOperator Role = "operator"
	// RoleService debits spending allowances for metered usage.
	RoleService Role = "service"
	// RolePauser controls the global and per-operation circuit breakers.
	RolePauser Role = "pauser"
	// RoleUpgrader authorizes deployment upgrades.
	RoleUpgrader Role = "upgrader"
)

// Roles returns every known role in a stable order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleOperator, RoleService, RolePauser, RoleUpgrader}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
