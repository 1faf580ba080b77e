package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testClaims(expiresAt time.Time) *JWTClaims {
	now := time.Now()
	return &JWTClaims{
		UserID:    42,
		Email:     "seller@example.com",
		Username:  "seller",
		Role:      "Seller",
		Type:      TokenTypeAccess,
		ID:        NewTokenID(),
		ExpiresAt: expiresAt.Unix(),
		IssuedAt:  now.Unix(),
		NotBefore: now.Unix(),
		Issuer:    "marketplace-auth",
		Subject:   "42",
	}
}

func TestGenerateAndValidateJWT(t *testing.T) {
	claims := testClaims(time.Now().Add(time.Hour))

	token, err := GenerateJWT(claims, testSecret)
	require.NoError(t, err)

	parsed, err := ValidateJWT(token, testSecret)
	require.NoError(t, err)

	assert.Equal(t, claims.UserID, parsed.UserID)
	assert.Equal(t, claims.Email, parsed.Email)
	assert.Equal(t, claims.Username, parsed.Username)
	assert.Equal(t, claims.Role, parsed.Role)
	assert.Equal(t, TokenTypeAccess, parsed.Type)
	assert.Equal(t, claims.ID, parsed.ID)
	assert.Equal(t, claims.ExpiresAt, parsed.ExpiresAt)
	assert.Equal(t, claims.Issuer, parsed.Issuer)
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	token, err := GenerateJWT(testClaims(time.Now().Add(time.Hour)), testSecret)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestValidateJWT_Expired(t *testing.T) {
	token, err := GenerateJWT(testClaims(time.Now().Add(-time.Minute)), testSecret)
	require.NoError(t, err)

	_, err = ValidateJWT(token, testSecret)
	assert.Error(t, err)
}

func TestValidateJWT_RejectsNonHMAC(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": "1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateJWT(signed, testSecret)
	assert.Error(t, err)
}

func TestValidateJWT_BadUserID(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "abc",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ValidateJWT(signed, testSecret)
	assert.EqualError(t, err, "invalid user_id format")
}

func TestNewTokenID_Unique(t *testing.T) {
	assert.NotEqual(t, NewTokenID(), NewTokenID())
}
