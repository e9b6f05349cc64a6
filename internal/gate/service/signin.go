package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
	"github.com/opsdeskhq/opsgate/internal/gate/provider"
	"github.com/opsdeskhq/opsgate/internal/gate/store"
	"github.com/opsdeskhq/opsgate/pkg/cryptox"
	"github.com/opsdeskhq/opsgate/pkg/slogx"
)

// enumerationDecoy is a valid hash compared against when no identity matches
// the email, so the unknown-user path costs the same as a wrong-password
// verification.
var enumerationDecoy = func() string {
	hash, err := cryptox.HashPassword(cryptox.FingerprintToken("opsgate-decoy"))
	if err != nil {
		panic(fmt.Sprintf("decoy hash generation failed: %v", err))
	}
	return hash
}()

// SignInService verifies credentials and issues sessions. The common path is
// the provider's own password grant; when that grant is administratively
// disabled it falls back to a manual hash check plus a one-time magic-link
// token.
type SignInService struct {
	Provider provider.IdentityProvider
	Records  store.RecordStore
}

// SignInResult carries exactly one of a full session or a fallback token.
type SignInResult struct {
	Session  *domain.Session
	Fallback *domain.FallbackToken
}

// SignIn exchanges email+password for a session or a magic-link fallback
// token. Grant failures other than email-provider-disabled are returned as
// the provider's own *provider.Error, to be propagated verbatim. On the
// fallback path, unknown-user and wrong-password collapse into the same
// ErrInvalidCredentials.
func (s *SignInService) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	log := slogx.FromContext(ctx)

	if email == "" || password == "" {
		return SignInResult{}, ErrInvalidRequest
	}

	session, err := s.Provider.PasswordGrant(ctx, email, password)
	if err == nil {
		return SignInResult{Session: &session}, nil
	}
	if !provider.IsEmailProviderDisabled(err) {
		// Distinct failure reasons (wrong password, rate limiting, ...)
		// must pass through unchanged.
		return SignInResult{}, err
	}

	log.Info("password grant disabled, using manual verification", "email", email)
	return s.fallbackSignIn(ctx, email, password)
}

func (s *SignInService) fallbackSignIn(ctx context.Context, email, password string) (SignInResult, error) {
	log := slogx.FromContext(ctx)

	identity, err := s.Provider.AdminUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			// Burn the same verification cost as a real mismatch so the
			// response is indistinguishable in content and timing.
			_ = cryptox.VerifyPassword(password, enumerationDecoy)
			return SignInResult{}, ErrInvalidCredentials
		}
		return SignInResult{}, fmt.Errorf("admin user lookup: %w", err)
	}

	hash, err := s.Records.QueryPasswordHash(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = cryptox.VerifyPassword(password, enumerationDecoy)
			return SignInResult{}, ErrInvalidCredentials
		}
		return SignInResult{}, fmt.Errorf("password hash query: %w", err)
	}

	if err := cryptox.VerifyPassword(password, hash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			// Malformed stored hash. Fail closed as a credential failure,
			// detail stays server-side.
			log.Error("stored hash unusable", "user_id", identity.ID, "err", err)
		}
		return SignInResult{}, ErrInvalidCredentials
	}

	tokenHash, err := s.Provider.GenerateMagicLink(ctx, email)
	if err != nil {
		return SignInResult{}, fmt.Errorf("magic link generation: %w", err)
	}

	log.Info("magiclink fallback issued", "user_id", identity.ID)
	return SignInResult{
		Fallback: &domain.FallbackToken{
			Type:      domain.FallbackTokenType,
			TokenHash: tokenHash,
			Email:     email,
		},
	}, nil
}
