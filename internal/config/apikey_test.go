package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewAPIKeyConfig(t *testing.T) {
	tests := []struct {
		name     string
		cost     string
		hash     string
		wantCost int
		wantErr  string
	}{
		{name: "defaults", wantCost: 12},
		{name: "custom cost", cost: "10", hash: "$2a$10$x", wantCost: 10},
		{name: "invalid cost", cost: "abc", wantErr: "invalid BCRYPT_COST"},
		{name: "cost too high", cost: "15", wantErr: "bcrypt cost out of range"},
		{name: "cost too low", cost: "3", wantErr: "bcrypt cost out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BCRYPT_COST", tt.cost)
			t.Setenv("CRYSTAL_API_KEY_HASH", tt.hash)
			t.Setenv("API_KEY_PEPPER", "")

			cfg, err := NewAPIKeyConfig()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCost, cfg.BcryptCost)
			assert.Equal(t, tt.hash, cfg.Hash)
			assert.Equal(t, tt.hash != "", cfg.Enabled())
		})
	}
}

func TestAPIKeyConfig_HashAndVerify(t *testing.T) {
	cfg := &APIKeyConfig{BcryptCost: bcrypt.MinCost, Pepper: "pepper"}

	hash, err := cfg.HashKey("crystal-key")
	require.NoError(t, err)
	cfg.Hash = hash

	assert.True(t, cfg.VerifyKey("crystal-key"))
	assert.False(t, cfg.VerifyKey("wrong-key"))
	assert.False(t, cfg.VerifyKey(""))

	other := &APIKeyConfig{Hash: hash, BcryptCost: bcrypt.MinCost, Pepper: "rotated"}
	assert.False(t, other.VerifyKey("crystal-key"))
}

func TestAPIKeyConfig_EmptyKey(t *testing.T) {
	cfg := &APIKeyConfig{BcryptCost: bcrypt.MinCost}
	_, err := cfg.HashKey("")
	assert.Error(t, err)
}

func TestAPIKeyConfig_DisabledRejectsEverything(t *testing.T) {
	var cfg *APIKeyConfig
	assert.False(t, cfg.Enabled())
	assert.False(t, cfg.VerifyKey("anything"))
}
