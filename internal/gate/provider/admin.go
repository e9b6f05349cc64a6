package provider

import (
	"context"
	"net/http"
	"net/url"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
)

// AdminUserByEmail resolves an identity by email through the privileged
// admin surface. Callers that need enumeration resistance must map
// ErrNotFound to the same response as a credential mismatch.
func (c *Client) AdminUserByEmail(ctx context.Context, email string) (domain.Identity, error) {
	var resp struct {
		Users []domain.Identity `json:"users"`
	}

	path := "/admin/users?email=" + url.QueryEscape(email)
	if err := c.doJSON(ctx, http.MethodGet, path, c.ServiceKey, nil, &resp); err != nil {
		return domain.Identity{}, err
	}

	for _, u := range resp.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.Identity{}, ErrNotFound
}

// AdminListFactors lists a user's MFA factors through the admin surface.
// A user with no factors yields an empty slice, not an error.
func (c *Client) AdminListFactors(ctx context.Context, userID string) ([]domain.Factor, error) {
	var resp struct {
		Factors []domain.Factor `json:"factors"`
	}

	path := "/admin/users/" + url.PathEscape(userID) + "/factors"
	if err := c.doJSON(ctx, http.MethodGet, path, c.ServiceKey, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Factors, nil
}

// GenerateMagicLink mints a one-time magic-link token for the email via the
// admin surface and returns its hashed form. The hash, not the raw token, is
// handed back to the caller for the second round-trip.
func (c *Client) GenerateMagicLink(ctx context.Context, email string) (string, error) {
	req := map[string]string{
		"type":  "magiclink",
		"email": email,
	}

	var resp struct {
		HashedToken string `json:"hashed_token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/admin/generate_link", c.ServiceKey, req, &resp); err != nil {
		return "", err
	}
	return resp.HashedToken, nil
}
