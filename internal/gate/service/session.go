package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
	"github.com/opsdeskhq/opsgate/internal/gate/provider"
	"github.com/opsdeskhq/opsgate/internal/gate/store"
	"github.com/opsdeskhq/opsgate/pkg/idx"
	"github.com/opsdeskhq/opsgate/pkg/jwtx"
	"github.com/opsdeskhq/opsgate/pkg/slogx"
)

// Session-audit quota: 20 requests per 60 seconds per caller address.
const (
	CheckQuota  = 20
	CheckWindow = 60 * time.Second
)

// SessionService resolves the full authorization picture for a bearer token:
// role memberships, allowlist membership, and MFA state, recomputed from
// source on every call. Nothing is cached.
type SessionService struct {
	Provider provider.IdentityProvider
	Records  store.RecordStore
	Limiter  *RateLimiter
}

// NewSessionService wires a session auditor with the standard quota.
func NewSessionService(p provider.IdentityProvider, r store.RecordStore) *SessionService {
	return &SessionService{
		Provider: p,
		Records:  r,
		Limiter:  NewRateLimiter(CheckQuota, CheckWindow),
	}
}

// CheckSession validates the bearer token and computes an authorization
// snapshot. A missing token fails before the rate limiter or any I/O.
func (s *SessionService) CheckSession(ctx context.Context, bearerToken, callerIP string) (domain.AuthorizationSnapshot, error) {
	log := slogx.FromContext(ctx)

	if bearerToken == "" {
		return domain.AuthorizationSnapshot{}, ErrInvalidSession
	}

	if !s.Limiter.Allow(callerIP) {
		return domain.AuthorizationSnapshot{}, ErrRateLimited
	}

	identity, err := s.Provider.UserFromToken(ctx, bearerToken)
	if err != nil {
		if pe, ok := provider.AsError(err); ok &&
			(pe.Status == http.StatusUnauthorized || pe.Status == http.StatusForbidden) {
			return domain.AuthorizationSnapshot{}, ErrInvalidSession
		}
		return domain.AuthorizationSnapshot{}, fmt.Errorf("token validation: %w", err)
	}

	// The provider just authenticated the token; the unverified parse only
	// reads the AMR claims it does not echo back.
	claims, err := jwtx.ParseUnverified(bearerToken)
	if err != nil {
		return domain.AuthorizationSnapshot{}, ErrInvalidSession
	}

	// Four independent privileged lookups. Each defaults to empty on
	// no-match; only infrastructure failures error.
	allowlisted, err := s.Records.LookupAllowlist(ctx, identity.Email)
	if err != nil {
		return domain.AuthorizationSnapshot{}, fmt.Errorf("allowlist lookup: %w", err)
	}
	roles, err := s.Records.LookupRoles(ctx, identity.ID)
	if err != nil {
		return domain.AuthorizationSnapshot{}, fmt.Errorf("roles lookup: %w", err)
	}
	displayName, err := s.Records.LookupProfile(ctx, identity.ID)
	if err != nil {
		return domain.AuthorizationSnapshot{}, fmt.Errorf("profile lookup: %w", err)
	}
	factors, err := s.Provider.AdminListFactors(ctx, identity.ID)
	if err != nil {
		return domain.AuthorizationSnapshot{}, fmt.Errorf("factor lookup: %w", err)
	}

	mfaEnabled := false
	for _, f := range factors {
		if f.VerifiedTOTP() {
			mfaEnabled = true
			break
		}
	}

	snapshot := domain.AuthorizationSnapshot{
		UserID:        identity.ID,
		Email:         identity.Email,
		DisplayName:   displayName,
		Roles:         roles,
		IsAllowlisted: allowlisted,
		IsAdmin:       containsRole(roles, domain.RoleAdmin),
		MFAEnabled:    mfaEnabled,
		MFAVerified:   claims.HasTOTP(),
		MFAVerifiedAt: claims.TOTPVerifiedAt(),
	}

	// Awaited, but a lost audit row must not turn a valid check into a
	// failure.
	if err := s.appendAudit(ctx, snapshot, callerIP); err != nil {
		log.Error("audit write failed", "user_id", identity.ID, "err", err)
	}

	return snapshot, nil
}

func (s *SessionService) appendAudit(ctx context.Context, snap domain.AuthorizationSnapshot, callerIP string) error {
	return s.Records.AppendAudit(ctx, domain.AuditEntry{
		ID:     idx.New().String(),
		UserID: snap.UserID,
		Event:  domain.EventSessionCheck,
		Details: map[string]any{
			"roles":          snap.Roles,
			"is_allowlisted": snap.IsAllowlisted,
			"is_admin":       snap.IsAdmin,
			"mfa_enabled":    snap.MFAEnabled,
			"mfa_verified":   snap.MFAVerified,
		},
		IPAddress: callerIP,
		CreatedAt: time.Now().UTC(),
	})
}

func containsRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
