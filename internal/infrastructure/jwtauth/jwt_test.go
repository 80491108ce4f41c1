package jwtauth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	signer, err := NewSigner("secret", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := signer.Issue("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	userID, err := signer.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	signer, _ := NewSigner("secret", time.Hour)
	other, _ := NewSigner("other", time.Hour)

	token, _, err := other.Issue("user-1")
	require.NoError(t, err)

	_, err = signer.VerifyToken(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer, _ := NewSigner("secret", time.Minute)
	issuedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return issuedAt }

	token, _, err := signer.Issue("user-1")
	require.NoError(t, err)

	signer.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = signer.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	signer, _ := NewSigner("secret", time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = signer.VerifyToken(context.Background(), raw)
	assert.Error(t, err)
}

func TestNewSignerValidation(t *testing.T) {
	_, err := NewSigner("", time.Hour)
	assert.Error(t, err)

	signer, err := NewSigner("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, signer.expiry)

	_, _, err = signer.Issue("")
	assert.Error(t, err)
}
