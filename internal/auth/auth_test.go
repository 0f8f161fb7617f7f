package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-secret")
	svc.RegisterAccount("alice", "alice-key", "alice-secret")

	token, err := svc.GenerateToken(Credentials{APIKey: "alice-key", APISecret: "alice-secret"})
	require.NoError(t, err)
	assert.Equal(t, "alice", token.Account)
	assert.NotEmpty(t, token.Token)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.ClientID)
	assert.Contains(t, claims.Permissions, "escrow")
}

func TestGenerateTokenBadCredentials(t *testing.T) {
	svc := NewService("test-secret")
	svc.RegisterAccount("alice", "alice-key", "alice-secret")

	_, err := svc.GenerateToken(Credentials{APIKey: "alice-key", APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(Credentials{APIKey: "unknown", APISecret: "alice-secret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc := NewService("test-secret")
	svc.RegisterAccount("alice", "alice-key", "alice-secret")

	token, err := svc.GenerateToken(Credentials{APIKey: "alice-key", APISecret: "alice-secret"})
	require.NoError(t, err)

	other := NewService("different-secret")
	_, err = other.ValidateToken(token.Token)
	assert.Error(t, err)
}
