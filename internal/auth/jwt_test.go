package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateTokenPair(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewJWTService()
	userID := uuid.New()

	pair, err := svc.GenerateTokenPair(userID, "ada@example.com", "editor,viewer")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "editor,viewer", claims.Roles)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "first-secret")
	issuer := NewJWTService()
	pair, err := issuer.GenerateTokenPair(uuid.New(), "ada@example.com", "editor")
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "other-secret")
	verifier := NewJWTService()
	_, err = verifier.ValidateToken(pair.AccessToken)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewJWTService()
	_, err := svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestRefreshAccessToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewJWTService()
	userID := uuid.New()

	pair, err := svc.GenerateTokenPair(userID, "ada@example.com", "editor")
	require.NoError(t, err)

	// Roles come from the current user record, not the old token.
	fresh, err := svc.RefreshAccessToken(pair.RefreshToken, "owner")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "owner", claims.Roles)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2!")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2!", hash)

	assert.True(t, CheckPassword("hunter2!", hash))
	assert.False(t, CheckPassword("wrong", hash))
}
