package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyAccessToken(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7, 60)

	tokenString, err := m.GenerateToken(42, "alice", "PATIENT")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "PATIENT", claims.Role)
	assert.Empty(t, claims.Scope)
}

func TestRealtimeTokenCarriesScope(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7, 300)

	tokenString, err := m.GenerateRealtimeToken(42, "alice", "PATIENT")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, ScopeRealtime, claims.Scope)

	// 实时凭证的过期时间远短于 access token
	ttl := time.Until(claims.ExpiresAt.Time)
	assert.LessOrEqual(t, ttl, 300*time.Second)
	assert.Greater(t, ttl, 250*time.Second)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", 1, 7, 60)
	verifier := NewJWTManager("secret-b", 1, 7, 60)

	tokenString, err := issuer.GenerateToken(42, "alice", "PATIENT")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7, 60)

	_, err := m.VerifyToken("not-a-jwt")
	assert.Error(t, err)
}

func TestGenerateRandomStringLength(t *testing.T) {
	s := GenerateRandomString(16)
	// hex 编码后长度翻倍
	assert.Len(t, s, 32)
	assert.NotEqual(t, s, GenerateRandomString(16))
}
