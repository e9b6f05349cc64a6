package jwtx

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestParseUnverifiedReadsAMR(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	token := signed(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email: "ops@example.com",
		AMR: []AMREntry{
			{Method: "password", Timestamp: now.Add(-time.Minute).Unix()},
			{Method: "totp", Timestamp: now.Unix()},
		},
	})

	claims, err := ParseUnverified(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "ops@example.com", claims.Email)
	require.True(t, claims.HasTOTP())

	at := claims.TOTPVerifiedAt()
	require.NotNil(t, at)
	require.Equal(t, now.Unix(), at.Unix())
}

func TestHasTOTPFalseForPasswordOnlySession(t *testing.T) {
	t.Parallel()

	token := signed(t, Claims{
		AMR: []AMREntry{{Method: "password", Timestamp: time.Now().Unix()}},
	})

	claims, err := ParseUnverified(token)
	require.NoError(t, err)
	require.False(t, claims.HasTOTP())
	require.Nil(t, claims.TOTPVerifiedAt())
}

func TestHasTOTPFalseForMagicLinkSession(t *testing.T) {
	t.Parallel()

	token := signed(t, Claims{
		AMR: []AMREntry{{Method: "magiclink", Timestamp: time.Now().Unix()}},
	})

	claims, err := ParseUnverified(token)
	require.NoError(t, err)
	require.False(t, claims.HasTOTP())
}

func TestParseUnverifiedRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseUnverified("not.a.jwt")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = ParseUnverified("")
	require.ErrorIs(t, err, ErrMalformed)
}
