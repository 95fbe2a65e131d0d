package types

import (
	"context"
	"fmt"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxWorkspaceID   ContextKey = "ctx_workspace_id"
	CtxUserID        ContextKey = "ctx_user_id"
	CtxJWT           ContextKey = "ctx_jwt"
	CtxCaller        ContextKey = "ctx_caller"
	CtxDBTransaction ContextKey = "ctx_db_transaction"

	// Default values
	DefaultWorkspaceID = "00000000-0000-0000-0000-000000000000"
	DefaultUserID      = "00000000-0000-0000-0000-000000000000"
	SystemUserID       = "system"
)

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetWorkspaceID(ctx context.Context) string {
	if workspaceID, ok := ctx.Value(CtxWorkspaceID).(string); ok {
		return workspaceID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

func GetJWT(ctx context.Context) string {
	if jwt, ok := ctx.Value(CtxJWT).(string); ok {
		return jwt
	}
	return ""
}

// GetCaller returns the authenticated caller stored on the context.
// A zero Caller (no capabilities) is returned when none is present.
func GetCaller(ctx context.Context) Caller {
	if caller, ok := ctx.Value(CtxCaller).(Caller); ok {
		return caller
	}
	return Caller{}
}

// SetWorkspaceID sets the workspace ID in the context
func SetWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, CtxWorkspaceID, workspaceID)
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// SetRequestID sets the request ID in the context
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

// SetCaller stores the caller and its user id in the context
func SetCaller(ctx context.Context, caller Caller) context.Context {
	ctx = context.WithValue(ctx, CtxCaller, caller)
	return context.WithValue(ctx, CtxUserID, caller.UserID)
}

// ValidateWorkspaceContext validates that the required workspace context fields are present
func ValidateWorkspaceContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context is nil")
	}

	if GetWorkspaceID(ctx) == "" {
		return fmt.Errorf("no workspace context found in context")
	}

	return nil
}

// HTTP headers read or written by the API
const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
	HeaderWorkspaceID   = "X-Workspace-ID"
)
