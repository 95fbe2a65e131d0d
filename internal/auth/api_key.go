package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/voxagent/billing/internal/config"
)

// apiKeyBytes is the entropy of a generated key, hex encoded to twice the length
const apiKeyBytes = 32

// HashAPIKey is the form keys take in auth.api_key.keys
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a raw key for a scheduler or internal service.
// Only its hash belongs in config.
func GenerateAPIKey() (string, error) {
	key := make([]byte, apiKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// ValidateAPIKey resolves key to the service user it was issued to.
// Inactive keys and keys without a user are rejected.
func ValidateAPIKey(cfg *config.Configuration, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	hashed := HashAPIKey(key)
	for stored, details := range cfg.Auth.APIKey.Keys {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(hashed)) != 1 {
			continue
		}
		if !details.IsActive || details.UserID == "" {
			return "", false
		}
		return details.UserID, true
	}
	return "", false
}
