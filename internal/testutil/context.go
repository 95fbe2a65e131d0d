package testutil

import (
	"context"

	"github.com/voxagent/billing/internal/types"
)

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	ctx = types.SetWorkspaceID(ctx, types.DefaultWorkspaceID)
	return types.SetRequestID(ctx, types.GenerateUUID())
}

// MemberOf returns a regular user who can access the given workspaces only
func MemberOf(userID string, workspaceIDs ...string) types.Caller {
	return types.Caller{
		UserID:       userID,
		Role:         types.GlobalRoleMember,
		WorkspaceIDs: workspaceIDs,
	}
}

// Admin returns a platform administrator
func Admin(userID string) types.Caller {
	return types.Caller{
		UserID:                  userID,
		Role:                    types.GlobalRoleAdmin,
		CanViewAllProjects:      true,
		CanManageGlobalSettings: true,
		CanManageCredits:        true,
	}
}
