package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultJWTIssuer is the iss claim of issued tokens
	DefaultJWTIssuer = "context-crystal"

	minJWTSecret     = 32
	defaultJWTExpiry = 24
)

// JWTConfig signs and checks the bearer tokens that guard the run API.
type JWTConfig struct {
	Secret          string
	Issuer          string
	ExpirationHours int
}

// NewJWTConfig reads JWT_SECRET (required, at least 32 bytes), JWT_ISSUER
// and JWT_EXPIRATION_HOURS (default 24).
func NewJWTConfig() (*JWTConfig, error) {
	secret := envOr("JWT_SECRET", "")
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required but not set")
	}
	if len(secret) < minJWTSecret {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", minJWTSecret, len(secret))
	}

	hours, err := envInt("JWT_EXPIRATION_HOURS", defaultJWTExpiry)
	if err != nil {
		return nil, err
	}
	if hours < 1 {
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", hours)
	}

	return &JWTConfig{
		Secret:          secret,
		Issuer:          envOr("JWT_ISSUER", DefaultJWTIssuer),
		ExpirationHours: hours,
	}, nil
}

// TTL is how long an issued token stays valid
func (c *JWTConfig) TTL() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}
