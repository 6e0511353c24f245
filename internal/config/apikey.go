package config

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyConfig verifies the static API key exchanged for bearer tokens.
// Only the bcrypt hash of the key is configured.
type APIKeyConfig struct {
	Hash       string
	BcryptCost int
	Pepper     string // optional global secret appended before hashing
}

// NewAPIKeyConfig reads CRYSTAL_API_KEY_HASH, BCRYPT_COST (default: 12) and
// optionally API_KEY_PEPPER.
func NewAPIKeyConfig() (*APIKeyConfig, error) {
	cost, err := envInt("BCRYPT_COST", 12)
	if err != nil {
		return nil, err
	}
	if cost < bcrypt.MinCost || cost > 14 {
		return nil, fmt.Errorf("bcrypt cost out of range: %d (must be %d-14)", cost, bcrypt.MinCost)
	}

	return &APIKeyConfig{
		Hash:       envOr("CRYSTAL_API_KEY_HASH", ""),
		BcryptCost: cost,
		Pepper:     envOr("API_KEY_PEPPER", ""),
	}, nil
}

// Enabled reports whether a key hash is configured
func (c *APIKeyConfig) Enabled() bool {
	return c != nil && c.Hash != ""
}

// HashKey hashes an API key using bcrypt (with optional pepper).
func (c *APIKeyConfig) HashKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("API key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key+c.Pepper), c.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey checks a presented key against the configured hash.
func (c *APIKeyConfig) VerifyKey(key string) bool {
	if !c.Enabled() || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.Hash), []byte(key+c.Pepper)) == nil
}
