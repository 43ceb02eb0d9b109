package access_test

import (
	"testing"

	"github.com/xraph/escrow/access"
)

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role access.Role
		want bool
	}{
		{access.RoleAdmin, true},
		{access.RoleOperator, true},
		{access.RoleService, true},
		{access.RolePauser, true},
		{access.RoleUpgrader, true},
		{access.Role("owner"), false},
		{access.Role(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
