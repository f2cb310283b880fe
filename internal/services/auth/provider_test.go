package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthProviderRoundTrip(t *testing.T) {
	provider, err := NewJWTAuthProvider("test-secret", "streamvault")
	require.NoError(t, err)

	token, err := provider.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	claims, err := provider.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Address)
	assert.Equal(t, "streamvault", claims.Issuer)
}

func TestJWTAuthProviderRequiresSecret(t *testing.T) {
	_, err := NewJWTAuthProvider("", "streamvault")
	assert.Error(t, err)
}

func TestJWTAuthProviderRejectsExpiredToken(t *testing.T) {
	provider, err := NewJWTAuthProvider("test-secret", "")
	require.NoError(t, err)

	token, err := provider.IssueToken("alice", -time.Minute)
	require.NoError(t, err)

	_, err = provider.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTAuthProviderRejectsWrongSecret(t *testing.T) {
	issuing, err := NewJWTAuthProvider("secret-a", "")
	require.NoError(t, err)
	verifying, err := NewJWTAuthProvider("secret-b", "")
	require.NoError(t, err)

	token, err := issuing.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	_, err = verifying.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTAuthProviderRejectsMissingSubject(t *testing.T) {
	provider, err := NewJWTAuthProvider("test-secret", "")
	require.NoError(t, err)

	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := raw.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = provider.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTAuthProviderRejectsIssuerMismatch(t *testing.T) {
	issuing, err := NewJWTAuthProvider("test-secret", "someone-else")
	require.NoError(t, err)
	verifying, err := NewJWTAuthProvider("test-secret", "streamvault")
	require.NoError(t, err)

	token, err := issuing.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	_, err = verifying.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTAuthProviderRejectsUnsignedToken(t *testing.T) {
	provider, err := NewJWTAuthProvider("test-secret", "")
	require.NoError(t, err)

	raw := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "alice",
	})
	token, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = provider.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}
