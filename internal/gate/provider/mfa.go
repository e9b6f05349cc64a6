package provider

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
)

// UserClient is a provider client scoped to one end user's session tokens.
// It exposes the self-service MFA factor surface and session refresh.
type UserClient struct {
	client *Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// AccessToken returns the current access token, which changes after
// RefreshSession.
func (u *UserClient) AccessToken() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.accessToken
}

func (u *UserClient) token() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.accessToken
}

// ListFactors returns the user's enrolled MFA factors.
func (u *UserClient) ListFactors(ctx context.Context) ([]domain.Factor, error) {
	var resp struct {
		Factors []domain.Factor `json:"factors"`
	}
	if err := u.client.doJSON(ctx, http.MethodGet, "/factors", u.token(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Factors, nil
}

// EnrollTOTP creates a new unverified TOTP factor. The response carries the
// provisioning URI and raw secret for display; they are never retrievable
// again.
func (u *UserClient) EnrollTOTP(ctx context.Context) (domain.Factor, error) {
	req := map[string]string{"factor_type": domain.FactorTypeTOTP}

	var resp struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		TOTP struct {
			Secret string `json:"secret"`
			URI    string `json:"uri"`
		} `json:"totp"`
	}
	if err := u.client.doJSON(ctx, http.MethodPost, "/factors", u.token(), req, &resp); err != nil {
		return domain.Factor{}, err
	}

	return domain.Factor{
		ID:     resp.ID,
		Type:   domain.FactorTypeTOTP,
		Status: domain.FactorStatusUnverified,
		Secret: resp.TOTP.Secret,
		URI:    resp.TOTP.URI,
	}, nil
}

// CreateChallenge opens a short-lived challenge against a factor.
func (u *UserClient) CreateChallenge(ctx context.Context, factorID string) (domain.Challenge, error) {
	path := "/factors/" + url.PathEscape(factorID) + "/challenge"

	var resp struct {
		ID string `json:"id"`
	}
	if err := u.client.doJSON(ctx, http.MethodPost, path, u.token(), nil, &resp); err != nil {
		return domain.Challenge{}, err
	}
	return domain.Challenge{ID: resp.ID, FactorID: factorID}, nil
}

// VerifyChallenge submits a code against an open challenge. On success the
// provider steps up the session; the returned tokens replace the client's.
func (u *UserClient) VerifyChallenge(ctx context.Context, challenge domain.Challenge, code string) error {
	path := "/factors/" + url.PathEscape(challenge.FactorID) + "/verify"
	req := map[string]string{
		"challenge_id": challenge.ID,
		"code":         code,
	}

	var session domain.Session
	if err := u.client.doJSON(ctx, http.MethodPost, path, u.token(), req, &session); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if session.AccessToken != "" {
		u.accessToken = session.AccessToken
	}
	if session.RefreshToken != "" {
		u.refreshToken = session.RefreshToken
	}
	return nil
}

// Unenroll removes a factor. The provider treats removing an already-gone
// factor as a 404, which callers may ignore for idempotency.
func (u *UserClient) Unenroll(ctx context.Context, factorID string) error {
	path := "/factors/" + url.PathEscape(factorID)
	return u.client.doJSON(ctx, http.MethodDelete, path, u.token(), nil, nil)
}

// RefreshSession exchanges the refresh token for a fresh session so a newly
// completed TOTP challenge is reflected in the token's AMR claims.
func (u *UserClient) RefreshSession(ctx context.Context) (domain.Session, error) {
	u.mu.Lock()
	refresh := u.refreshToken
	u.mu.Unlock()

	req := map[string]string{"refresh_token": refresh}

	var session domain.Session
	err := u.client.doJSON(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", req, &session)
	if err != nil {
		return domain.Session{}, err
	}

	u.mu.Lock()
	u.accessToken = session.AccessToken
	u.refreshToken = session.RefreshToken
	u.mu.Unlock()

	return session, nil
}
