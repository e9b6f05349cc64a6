package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestArgon2idRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$v=19$")

	require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	require.ErrorIs(t, VerifyPassword("wrong", hash), ErrPasswordMismatch)
}

func TestBcryptHashesAccepted(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, VerifyPassword("hunter2hunter2", string(hash)))
	require.ErrorIs(t, VerifyPassword("hunter3hunter3", string(hash)), ErrPasswordMismatch)
}

func TestUnknownFormatFailsClosed(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, VerifyPassword("anything", "plaintext-oops"), ErrPasswordMismatch)
	require.ErrorIs(t, VerifyPassword("anything", ""), ErrPasswordMismatch)
	require.ErrorIs(t, VerifyPassword("anything", "$md5$abc"), ErrPasswordMismatch)
}

func TestMalformedArgon2idRejected(t *testing.T) {
	t.Parallel()

	require.Error(t, VerifyPassword("pw", "$argon2id$v=19$m=65536,t=3,p=2$notbase64!!$x"))
	require.Error(t, VerifyPassword("pw", "$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA"))
}

func TestGenerateTokenAndFingerprint(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.Len(t, tok, 43)

	other, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.NotEqual(t, tok, other)

	require.Equal(t, FingerprintToken(tok), FingerprintToken(tok))
	require.NotEqual(t, FingerprintToken(tok), FingerprintToken(other))

	_, err = GenerateToken(0)
	require.Error(t, err)
}
