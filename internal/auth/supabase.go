package auth

import (
	"context"

	"github.com/nedpals/supabase-go"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/types"
)

type supabaseAuth struct {
	AuthConfig config.AuthConfig
	client     *supabase.Client
	logger     *logger.Logger
}

// NewSupabaseAuth validates Supabase-issued tokens. Role and workspace membership
// are read from app_metadata; the session is confirmed against Supabase when a
// service key is configured.
func NewSupabaseAuth(cfg *config.Configuration, logger *logger.Logger) Provider {
	var client *supabase.Client
	if cfg.Auth.Supabase.ServiceKey != "" {
		client = supabase.CreateClient(cfg.Auth.Supabase.BaseURL, cfg.Auth.Supabase.ServiceKey)
	}

	return &supabaseAuth{
		AuthConfig: cfg.Auth,
		client:     client,
		logger:     logger,
	}
}

func (s *supabaseAuth) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := parseHMAC(token, s.AuthConfig.Secret)
	if err != nil {
		return nil, err
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, ierr.NewError("token missing user ID").
			WithHint("Token missing user ID").
			Mark(ierr.ErrUnauthenticated)
	}

	out := &Claims{UserID: userID, Role: types.GlobalRoleMember}
	if appMetadata, ok := claims["app_metadata"].(map[string]interface{}); ok {
		if role, ok := appMetadata["role"].(string); ok && role != "" {
			out.Role = types.GlobalRole(role)
		}
		out.WorkspaceIDs = stringSlice(appMetadata["workspace_ids"])
	}

	if s.client != nil {
		user, err := s.client.Auth.User(ctx, token)
		if err != nil {
			s.logger.Debugw("supabase session lookup failed", "error", err, "user_id", userID)
			return nil, ierr.WithError(err).
				WithHint("Session is no longer valid").
				Mark(ierr.ErrUnauthenticated)
		}
		if user.ID != userID {
			return nil, ierr.NewError("token subject does not match session user").
				WithHint("Invalid token").
				Mark(ierr.ErrUnauthenticated)
		}
	}

	return out, nil
}
