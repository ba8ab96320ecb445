package services

import (
	"context"
	"testing"
	"time"

	"upforit/config"
	"upforit/pkg/logger"
	upforit_errors "upforit/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_RoundTrip(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiryMin: 5})

	token, err := auth.IssueToken("ann", "Ann")
	require.NoError(t, err)
	claims, err := auth.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ann", claims.Subject)
	assert.Equal(t, "Ann", claims.Name)

	_, err = auth.IssueToken("", "nobody")
	assert.ErrorIs(t, err, upforit_errors.ErrInvalidInput)
}

func TestAuth_RejectsBadTokens(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiryMin: 5})

	other, err := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiryMin: 5}).IssueToken("ann", "")
	require.NoError(t, err)
	expired, err := NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiryMin: -1}).IssueToken("ann", "")
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "ann",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not-a-jwt",
		"wrong key":  other,
		"expired":    expired,
		"alg none":   unsigned,
		"no subject": noSubject,
	} {
		_, err := auth.ParseAccessToken(token)
		assert.ErrorIs(t, err, upforit_errors.ErrUnauthorized, name)
	}
}

func TestWithUserID(t *testing.T) {
	ctx := WithUserID(context.Background(), "ann")
	assert.Equal(t, "ann", ctx.Value(logger.UserIdKey))
	id, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "ann", id)
}
