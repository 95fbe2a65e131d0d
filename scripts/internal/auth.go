package internal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/auth"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/types"
)

// GenerateNewAPIKey prints a raw key and the config entry holding its hash
func GenerateNewAPIKey() error {
	rawKey, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate api key: %w", err)
	}
	hashedKey := auth.HashAPIKey(rawKey)

	details := config.APIKeyDetails{
		UserID:   lo.CoalesceOrEmpty(os.Getenv("USER_ID"), "scheduler"),
		Name:     "Internal API key",
		IsActive: true,
	}

	fmt.Printf("\nNew API Key Generated:\n")
	fmt.Printf("Raw Key: %s\n", rawKey)
	fmt.Printf("\nAdd this to config.yaml under auth.api_key.keys:\n")
	fmt.Printf("%s:\n", hashedKey)
	fmt.Printf("  user_id: %s\n", details.UserID)
	fmt.Printf("  name: %s\n", details.Name)
	fmt.Printf("  is_active: %v\n", details.IsActive)
	return nil
}

// GenerateDevToken signs a token with the configured secret for local testing
func GenerateDevToken() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	userID := os.Getenv("USER_ID")
	if userID == "" {
		return fmt.Errorf("USER_ID is required")
	}
	role := types.GlobalRole(lo.CoalesceOrEmpty(os.Getenv("ROLE"), string(types.GlobalRoleMember)))

	var workspaces []string
	if ws := os.Getenv("WORKSPACE_ID"); ws != "" {
		workspaces = strings.Split(ws, ",")
	}

	token, err := auth.NewJWTAuth(cfg).GenerateToken(userID, role, workspaces, 24*time.Hour)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
