package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voxagent/billing/internal/types"
)

func TestCaller(t *testing.T) {
	svc := NewRBACService()

	tests := []struct {
		name           string
		role           types.GlobalRole
		wantRole       types.GlobalRole
		viewAll        bool
		manageCredits  bool
		manageSettings bool
	}{
		{name: "super admin", role: types.GlobalRoleSuperAdmin, wantRole: types.GlobalRoleSuperAdmin, viewAll: true, manageCredits: true, manageSettings: true},
		{name: "admin", role: types.GlobalRoleAdmin, wantRole: types.GlobalRoleAdmin, viewAll: true, manageCredits: true},
		{name: "member", role: types.GlobalRoleMember, wantRole: types.GlobalRoleMember},
		{name: "unknown role falls back to member", role: "owner", wantRole: types.GlobalRoleMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := svc.Caller("user_1", tt.role, []string{"ws_1"})
			assert.Equal(t, tt.wantRole, caller.Role)
			assert.Equal(t, tt.viewAll, caller.CanViewAllProjects)
			assert.Equal(t, tt.manageCredits, caller.CanManageCredits)
			assert.Equal(t, tt.manageSettings, caller.CanManageGlobalSettings)
			assert.True(t, caller.CanAccessWorkspace("ws_1"))
		})
	}
}
