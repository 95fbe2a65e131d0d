package auth

import (
	"context"

	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/types"
)

// Claims is the identity carried by a validated token
type Claims struct {
	UserID       string
	Role         types.GlobalRole
	WorkspaceIDs []string
}

// Provider validates bearer tokens issued by the platform's auth service
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

func NewProvider(cfg *config.Configuration, logger *logger.Logger) Provider {
	if cfg.Auth.Supabase.BaseURL != "" {
		return NewSupabaseAuth(cfg, logger)
	}
	return NewJWTAuth(cfg)
}
