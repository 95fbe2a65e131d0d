package types

import (
	"github.com/samber/lo"
	ierr "github.com/voxagent/billing/internal/errors"
)

// GlobalRole is the platform-wide role resolved by the auth collaborator
type GlobalRole string

const (
	GlobalRoleSuperAdmin GlobalRole = "super_admin"
	GlobalRoleAdmin      GlobalRole = "admin"
	GlobalRoleMember     GlobalRole = "member"
	GlobalRoleService    GlobalRole = "service"
)

// Caller is the authenticated identity plus capabilities passed explicitly into
// every mutating operation. The core never re-derives it from a request.
type Caller struct {
	UserID                  string     `json:"user_id"`
	Role                    GlobalRole `json:"role"`
	WorkspaceIDs            []string   `json:"workspace_ids,omitempty"`
	CanViewAllProjects      bool       `json:"can_view_all_projects"`
	CanManageGlobalSettings bool       `json:"can_manage_global_settings"`
	CanManageCredits        bool       `json:"can_manage_credits"`
}

// SystemCaller is used by internal flows such as usage ingestion and the monitor sweep
func SystemCaller() Caller {
	return Caller{
		UserID:                  SystemUserID,
		Role:                    GlobalRoleService,
		CanViewAllProjects:      true,
		CanManageGlobalSettings: true,
		CanManageCredits:        true,
	}
}

func (c Caller) IsAuthenticated() bool {
	return c.UserID != ""
}

// CanAccessWorkspace reports whether the caller may read or act on a workspace
func (c Caller) CanAccessWorkspace(workspaceID string) bool {
	if c.CanViewAllProjects {
		return true
	}
	return lo.Contains(c.WorkspaceIDs, workspaceID)
}

// RequireWorkspace returns an authorization error unless the caller may access the workspace
func (c Caller) RequireWorkspace(workspaceID string) error {
	if !c.IsAuthenticated() {
		return ierr.NewError("caller is not authenticated").
			WithHint("Authentication required").
			Mark(ierr.ErrUnauthenticated)
	}
	if !c.CanAccessWorkspace(workspaceID) {
		return ierr.NewErrorf("caller %s has no access to workspace %s", c.UserID, workspaceID).
			WithHint("You do not have access to this workspace").
			Mark(ierr.ErrPermissionDenied)
	}
	return nil
}

// RequireCreditManagement guards admin-only ledger mutations
func (c Caller) RequireCreditManagement() error {
	if !c.IsAuthenticated() {
		return ierr.NewError("caller is not authenticated").
			WithHint("Authentication required").
			Mark(ierr.ErrUnauthenticated)
	}
	if !c.CanManageCredits {
		return ierr.NewErrorf("caller %s cannot manage credits", c.UserID).
			WithHint("Only administrators can adjust credit balances").
			Mark(ierr.ErrPermissionDenied)
	}
	return nil
}

// RequireGlobalSettings guards pricing and cost configuration administration
func (c Caller) RequireGlobalSettings() error {
	if !c.IsAuthenticated() {
		return ierr.NewError("caller is not authenticated").
			WithHint("Authentication required").
			Mark(ierr.ErrUnauthenticated)
	}
	if !c.CanManageGlobalSettings {
		return ierr.NewErrorf("caller %s cannot manage global settings", c.UserID).
			WithHint("Only administrators can change pricing configuration").
			Mark(ierr.ErrPermissionDenied)
	}
	return nil
}
