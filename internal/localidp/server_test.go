package localidp

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
	"github.com/opsdeskhq/opsgate/internal/gate/provider"
	"github.com/opsdeskhq/opsgate/internal/gate/service"
	gatestore "github.com/opsdeskhq/opsgate/internal/gate/store"
	"github.com/opsdeskhq/opsgate/pkg/cryptox"
	"github.com/opsdeskhq/opsgate/pkg/jwtx"
	"github.com/opsdeskhq/opsgate/pkg/mfaflow"
)

const (
	testServiceKey = "test-service-role-key"
	testAnonKey    = "test-anon-key"
	testEmail      = "ops@example.com"
	testPassword   = "correct-horse-battery"
)

func newTestIDP(t *testing.T) (*Server, *provider.Client) {
	t.Helper()

	server, err := NewServer(Config{
		DatabaseFile: filepath.Join(t.TempDir(), "idp.db"),
		Issuer:       "localidp-test",
		ServiceKey:   testServiceKey,
		SigningKey:   []byte("test-signing-key"),
		Logger:       slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	return server, provider.NewClient(ts.URL, testServiceKey, testAnonKey)
}

func TestPasswordGrantRoundTrip(t *testing.T) {
	idp, client := newTestIDP(t)
	ctx := context.Background()

	userID, err := idp.SeedUser(ctx, testEmail, testPassword, false)
	require.NoError(t, err)

	session, err := client.PasswordGrant(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)
	require.Equal(t, userID, session.User.ID)

	// The token validates back to the same identity.
	identity, err := client.UserFromToken(ctx, session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, userID, identity.ID)
	require.Equal(t, testEmail, identity.Email)

	// Password grant yields a password AMR entry and no TOTP.
	claims, err := jwtx.ParseUnverified(session.AccessToken)
	require.NoError(t, err)
	require.Len(t, claims.AMR, 1)
	require.Equal(t, "password", claims.AMR[0].Method)
	require.False(t, claims.HasTOTP())
}

func TestPasswordGrantFailures(t *testing.T) {
	idp, client := newTestIDP(t)
	ctx := context.Background()

	userID, err := idp.SeedUser(ctx, testEmail, testPassword, false)
	require.NoError(t, err)

	_, err = client.PasswordGrant(ctx, testEmail, "wrong-password")
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.CodeInvalidCredentials, pe.Code)

	_, err = client.PasswordGrant(ctx, "nobody@example.com", testPassword)
	pe, ok = provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.CodeInvalidCredentials, pe.Code)

	require.NoError(t, idp.SetEmailDisabled(ctx, userID, true))
	_, err = client.PasswordGrant(ctx, testEmail, testPassword)
	require.True(t, provider.IsEmailProviderDisabled(err))
}

func TestInvalidTokenRejected(t *testing.T) {
	_, client := newTestIDP(t)

	_, err := client.UserFromToken(context.Background(), "not-a-jwt")
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, 401, pe.Status)
	require.Equal(t, provider.CodeInvalidToken, pe.Code)
}

func TestAdminSurface(t *testing.T) {
	idp, client := newTestIDP(t)
	ctx := context.Background()

	userID, err := idp.SeedUser(ctx, testEmail, testPassword, false)
	require.NoError(t, err)

	identity, err := client.AdminUserByEmail(ctx, testEmail)
	require.NoError(t, err)
	require.Equal(t, userID, identity.ID)

	_, err = client.AdminUserByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, provider.ErrNotFound)

	factors, err := client.AdminListFactors(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, factors)

	// The admin surface rejects the anon key.
	unprivileged := provider.NewClient(client.BaseURL, "wrong-key", testAnonKey)
	_, err = unprivileged.AdminUserByEmail(ctx, testEmail)
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, 401, pe.Status)
}

func TestMagicLinkExchange(t *testing.T) {
	idp, client := newTestIDP(t)
	ctx := context.Background()

	userID, err := idp.SeedUser(ctx, testEmail, testPassword, false)
	require.NoError(t, err)

	hash, err := client.GenerateMagicLink(ctx, testEmail)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	session, err := client.VerifyMagicLink(ctx, testEmail, hash)
	require.NoError(t, err)
	require.Equal(t, userID, session.User.ID)

	claims, err := jwtx.ParseUnverified(session.AccessToken)
	require.NoError(t, err)
	require.Len(t, claims.AMR, 1)
	require.Equal(t, "magiclink", claims.AMR[0].Method)
	require.False(t, claims.HasTOTP(), "magic link must not count as TOTP")

	// One-time use.
	_, err = client.VerifyMagicLink(ctx, testEmail, hash)
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.CodeOTPExpired, pe.Code)
}

// fallbackRecords backs the sign-in service with the seeded user's real
// password hash, standing in for the direct identity-store read.
type fallbackRecords struct {
	gatestore.RecordStore

	userID string
	hash   string
}

func (r *fallbackRecords) QueryPasswordHash(ctx context.Context, userID string) (string, error) {
	if userID != r.userID {
		return "", gatestore.ErrNotFound
	}
	return r.hash, nil
}

func TestFallbackSignInRoundTrip(t *testing.T) {
	idp, client := newTestIDP(t)
	ctx := context.Background()

	userID, err := idp.SeedUser(ctx, testEmail, testPassword, true)
	require.NoError(t, err)

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	signIn := &service.SignInService{
		Provider: client,
		Records:  &fallbackRecords{userID: userID, hash: hash},
	}

	result, err := signIn.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NotNil(t, result.Fallback)
	require.Equal(t, domain.FallbackTokenType, result.Fallback.Type)
	require.Equal(t, testEmail, result.Fallback.Email)

	// Second round-trip: the caller exchanges the hashed token for a session.
	session, err := client.VerifyMagicLink(ctx, result.Fallback.Email, result.Fallback.TokenHash)
	require.NoError(t, err)
	require.Equal(t, userID, session.User.ID)
	require.NotEmpty(t, session.AccessToken)
}

func TestMFAEnrollmentFlow(t *testing.T) {
	idp, client := newTestIDP(t)
	ctx := context.Background()

	userID, err := idp.SeedUser(ctx, testEmail, testPassword, false)
	require.NoError(t, err)

	session, err := client.PasswordGrant(ctx, testEmail, testPassword)
	require.NoError(t, err)

	user := client.WithToken(session.AccessToken, session.RefreshToken)
	flow := mfaflow.New(user)

	step, err := flow.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, mfaflow.StepEnroll, step)

	factor := flow.Factor()
	require.NotEmpty(t, factor.Secret)
	require.NotEmpty(t, factor.URI)

	// A junk code is rejected before any request is made.
	_, err = flow.SubmitCode(ctx, "12345")
	require.ErrorIs(t, err, mfaflow.ErrCodeFormat)

	// A wrong (but well-formed) code is rejected by the provider and the
	// flow stays in the same step.
	wrong := "000000"
	if code, _ := totp.GenerateCode(factor.Secret, time.Now()); code == wrong {
		wrong = "000001"
	}
	step, err = flow.SubmitCode(ctx, wrong)
	require.Error(t, err)
	require.Equal(t, mfaflow.StepEnroll, step)

	code, err := totp.GenerateCode(factor.Secret, time.Now())
	require.NoError(t, err)
	step, err = flow.SubmitCode(ctx, code)
	require.NoError(t, err)
	require.Equal(t, mfaflow.StepDone, step)

	// The stepped-up token now carries the TOTP method.
	claims, err := jwtx.ParseUnverified(user.AccessToken())
	require.NoError(t, err)
	require.True(t, claims.HasTOTP())
	require.NotNil(t, claims.TOTPVerifiedAt())

	// The factor is verified on the admin surface.
	factors, err := client.AdminListFactors(ctx, userID)
	require.NoError(t, err)
	require.Len(t, factors, 1)
	require.True(t, factors[0].VerifiedTOTP())
}

func TestMFAResetFlow(t *testing.T) {
	idp, client := newTestIDP(t)
	ctx := context.Background()

	userID, err := idp.SeedUser(ctx, testEmail, testPassword, false)
	require.NoError(t, err)

	session, err := client.PasswordGrant(ctx, testEmail, testPassword)
	require.NoError(t, err)
	user := client.WithToken(session.AccessToken, session.RefreshToken)

	// Enroll and verify a first factor.
	flow := mfaflow.New(user)
	_, err = flow.Start(ctx)
	require.NoError(t, err)
	code, err := totp.GenerateCode(flow.Factor().Secret, time.Now())
	require.NoError(t, err)
	_, err = flow.SubmitCode(ctx, code)
	require.NoError(t, err)
	firstFactorID := flow.Factor().ID

	// A fresh session for the same user lands in verify; resetting swaps
	// the factor out for a new enrollment.
	session2, err := client.PasswordGrant(ctx, testEmail, testPassword)
	require.NoError(t, err)
	user2 := client.WithToken(session2.AccessToken, session2.RefreshToken)
	flow2 := mfaflow.New(user2)

	step, err := flow2.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, mfaflow.StepVerify, step)

	step, err = flow2.Reset(ctx)
	require.NoError(t, err)
	require.Equal(t, mfaflow.StepEnroll, step)
	require.NotEqual(t, firstFactorID, flow2.Factor().ID)

	// The old factor is gone; only the new unverified one remains.
	factors, err := client.AdminListFactors(ctx, userID)
	require.NoError(t, err)
	require.Len(t, factors, 1)
	require.Equal(t, domain.FactorStatusUnverified, factors[0].Status)

	code, err = totp.GenerateCode(flow2.Factor().Secret, time.Now())
	require.NoError(t, err)
	step, err = flow2.SubmitCode(ctx, code)
	require.NoError(t, err)
	require.Equal(t, mfaflow.StepDone, step)
}

func TestRefreshGrantPreservesAMR(t *testing.T) {
	idp, client := newTestIDP(t)
	ctx := context.Background()

	_, err := idp.SeedUser(ctx, testEmail, testPassword, false)
	require.NoError(t, err)

	session, err := client.PasswordGrant(ctx, testEmail, testPassword)
	require.NoError(t, err)
	user := client.WithToken(session.AccessToken, session.RefreshToken)

	flow := mfaflow.New(user)
	_, err = flow.Start(ctx)
	require.NoError(t, err)
	code, err := totp.GenerateCode(flow.Factor().Secret, time.Now())
	require.NoError(t, err)
	_, err = flow.SubmitCode(ctx, code)
	require.NoError(t, err)

	refreshed, err := user.RefreshSession(ctx)
	require.NoError(t, err)

	claims, err := jwtx.ParseUnverified(refreshed.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.HasTOTP(), "step-up must survive token rotation")
}
