// Package provider speaks the identity provider's HTTP API. The rest of the
// service depends only on the interfaces here, so any identity backend that
// offers a password grant, an admin surface and TOTP factors can be swapped
// in.
package provider

import (
	"context"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
)

// IdentityProvider covers the provider operations the sign-in and
// session-audit flows need.
type IdentityProvider interface {
	// PasswordGrant attempts the provider's standard email/password grant.
	// Failures are returned as *Error preserving the upstream status and
	// code.
	PasswordGrant(ctx context.Context, email, password string) (domain.Session, error)

	// UserFromToken validates a bearer token with the provider and returns
	// the caller's own identity. This uses a client scoped to the presented
	// token, not a privileged one.
	UserFromToken(ctx context.Context, accessToken string) (domain.Identity, error)

	// AdminUserByEmail resolves an identity by email via the privileged
	// admin surface. Returns ErrNotFound when no identity matches.
	AdminUserByEmail(ctx context.Context, email string) (domain.Identity, error)

	// AdminListFactors lists a user's MFA factors via the admin surface.
	AdminListFactors(ctx context.Context, userID string) ([]domain.Factor, error)

	// GenerateMagicLink creates a one-time magic-link token for the email
	// and returns its hashed form.
	GenerateMagicLink(ctx context.Context, email string) (string, error)

	// VerifyMagicLink exchanges a hashed magic-link token for a session.
	VerifyMagicLink(ctx context.Context, email, tokenHash string) (domain.Session, error)
}

// Authenticator is the token-scoped factor surface the MFA enrollment flow
// drives. Implemented by *UserClient.
type Authenticator interface {
	ListFactors(ctx context.Context) ([]domain.Factor, error)
	EnrollTOTP(ctx context.Context) (domain.Factor, error)
	CreateChallenge(ctx context.Context, factorID string) (domain.Challenge, error)
	VerifyChallenge(ctx context.Context, challenge domain.Challenge, code string) error
	Unenroll(ctx context.Context, factorID string) error
	RefreshSession(ctx context.Context) (domain.Session, error)
}
