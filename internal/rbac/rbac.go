package rbac

import (
	"github.com/voxagent/billing/internal/types"
)

// Capability is a coarse permission granted by a global role
type Capability string

const (
	CapabilityViewAllProjects      Capability = "projects.view_all"
	CapabilityManageCredits        Capability = "credits.manage"
	CapabilityManageGlobalSettings Capability = "settings.manage"
)

// Service maps global roles to capabilities with set-based lookups
type RBACService struct {
	permissions map[types.GlobalRole]map[Capability]bool
}

var defaultRoles = map[types.GlobalRole][]Capability{
	types.GlobalRoleSuperAdmin: {CapabilityViewAllProjects, CapabilityManageCredits, CapabilityManageGlobalSettings},
	types.GlobalRoleAdmin:      {CapabilityViewAllProjects, CapabilityManageCredits},
	types.GlobalRoleService:    {CapabilityViewAllProjects, CapabilityManageCredits, CapabilityManageGlobalSettings},
	types.GlobalRoleMember:     {},
}

func NewRBACService() *RBACService {
	permissions := make(map[types.GlobalRole]map[Capability]bool, len(defaultRoles))
	for role, caps := range defaultRoles {
		permissions[role] = make(map[Capability]bool, len(caps))
		for _, c := range caps {
			permissions[role][c] = true
		}
	}
	return &RBACService{permissions: permissions}
}

// HasCapability reports whether the role grants the capability. Unknown roles grant nothing.
func (s *RBACService) HasCapability(role types.GlobalRole, capability Capability) bool {
	return s.permissions[role][capability]
}

// ValidateRole checks if role exists in definitions
func (s *RBACService) ValidateRole(role types.GlobalRole) bool {
	_, exists := s.permissions[role]
	return exists
}

// Caller builds the caller identity for an authenticated user
func (s *RBACService) Caller(userID string, role types.GlobalRole, workspaceIDs []string) types.Caller {
	if !s.ValidateRole(role) {
		role = types.GlobalRoleMember
	}
	return types.Caller{
		UserID:                  userID,
		Role:                    role,
		WorkspaceIDs:            workspaceIDs,
		CanViewAllProjects:      s.HasCapability(role, CapabilityViewAllProjects),
		CanManageCredits:        s.HasCapability(role, CapabilityManageCredits),
		CanManageGlobalSettings: s.HasCapability(role, CapabilityManageGlobalSettings),
	}
}
