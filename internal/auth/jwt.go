package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

type jwtAuth struct {
	AuthConfig config.AuthConfig
}

// NewJWTAuth validates HS256 tokens signed with the shared auth secret
func NewJWTAuth(cfg *config.Configuration) *jwtAuth {
	return &jwtAuth{
		AuthConfig: cfg.Auth,
	}
}

func (a *jwtAuth) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := parseHMAC(token, a.AuthConfig.Secret)
	if err != nil {
		return nil, err
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return nil, ierr.NewError("token missing user ID").
			WithHint("Token missing user ID").
			Mark(ierr.ErrUnauthenticated)
	}

	role, _ := claims["role"].(string)
	return &Claims{
		UserID:       userID,
		Role:         types.GlobalRole(role),
		WorkspaceIDs: stringSlice(claims["workspace_ids"]),
	}, nil
}

// GenerateToken signs a token for the given identity, used by scripts and tests
func (a *jwtAuth) GenerateToken(userID string, role types.GlobalRole, workspaceIDs []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":       userID,
		"role":          string(role),
		"workspace_ids": workspaceIDs,
		"exp":           now.Add(ttl).Unix(),
		"iat":           now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.AuthConfig.Secret))
}

func parseHMAC(token, secret string) (jwt.MapClaims, error) {
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid token").
			Mark(ierr.ErrUnauthenticated)
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok || !parsedToken.Valid {
		return nil, ierr.NewError("invalid token claims").
			WithHint("Invalid token claims").
			Mark(ierr.ErrUnauthenticated)
	}
	return claims, nil
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return lo.FilterMap(raw, func(item interface{}, _ int) (string, bool) {
		s, ok := item.(string)
		return s, ok && s != ""
	})
}
