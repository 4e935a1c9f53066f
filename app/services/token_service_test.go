package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHMACTokenService(t *testing.T, accessTTL time.Duration) TokenService {
	t.Helper()
	svc, err := NewTokenService(accessTTL, 7*24*time.Hour, "kusanagi", "dashboard", false, "", "", "test-secret-key-for-hmac-signing")
	require.NoError(t, err)
	return svc
}

func TestTokenService_GenerateAndValidate(t *testing.T) {
	svc := newHMACTokenService(t, time.Hour)

	access, refresh, err := svc.GenerateTokens(42)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	claims, err := svc.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.ProfileID)
	assert.Equal(t, "access", claims.TokenType)
	assert.NotEmpty(t, claims.TokenID)

	refreshClaims, err := svc.ValidateToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh", refreshClaims.TokenType)
}

func TestTokenService_RejectsGarbage(t *testing.T) {
	svc := newHMACTokenService(t, time.Hour)

	_, err := svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	svc := newHMACTokenService(t, time.Hour)
	other, err := NewTokenService(time.Hour, 7*24*time.Hour, "kusanagi", "dashboard", false, "", "", "a-different-secret-key")
	require.NoError(t, err)

	access, _, err := other.GenerateTokens(1)
	require.NoError(t, err)

	_, err = svc.ValidateToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_ExpiredToken(t *testing.T) {
	svc := newHMACTokenService(t, -time.Minute)

	access, _, err := svc.GenerateTokens(1)
	require.NoError(t, err)

	_, err = svc.ValidateToken(access)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_RefreshFlow(t *testing.T) {
	svc := newHMACTokenService(t, time.Hour)

	access, refresh, err := svc.GenerateTokens(7)
	require.NoError(t, err)

	newAccess, newRefresh, err := svc.RefreshToken(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)

	claims, err := svc.ValidateToken(newAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.ProfileID)

	// An access token is not accepted on the refresh path
	_, _, err = svc.RefreshToken(access)
	assert.Error(t, err)
}

func TestTokenService_RequiresSecretWithoutRSA(t *testing.T) {
	_, err := NewTokenService(time.Hour, time.Hour, "kusanagi", "dashboard", false, "", "", "")
	assert.Error(t, err)
}
