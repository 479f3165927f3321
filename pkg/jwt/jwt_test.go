package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "realtime_chat/pkg/errors"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("user-a", "secret", "idp", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken(token, "secret", "idp")
	require.NoError(t, err)
	assert.Equal(t, "user-a", claims.UserID())
}

func TestValidateTokenRejects(t *testing.T) {
	token, err := GenerateAccessToken("user-a", "secret", "idp", time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(token, "other-secret", "idp")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = ValidateToken(token, "secret", "another-idp")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	expired, err := GenerateAccessToken("user-a", "secret", "idp", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(expired, "secret", "idp")
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)

	noSubject, err := GenerateAccessToken("", "secret", "", time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(noSubject, "secret", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestValidateTokenRequiresExpiry(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  "user-a",
		Issuer:   "idp",
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}}
	forever, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ValidateToken(forever, "secret", "idp")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}
