package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the default lifetime for access tokens issued by
// the local identity provider. Short-lived for security.
const DefaultAccessTokenTTL = 15 * time.Minute

// ErrMalformed reports a token that could not be parsed at all.
var ErrMalformed = errors.New("jwtx: malformed token")

// AMREntry is one Authentication Method Reference claim entry: a record of an
// authentication method used to establish the current session.
//
//	"password":  email/password grant
//	"magiclink": one-time token exchange
//	"totp":      authenticator-app challenge completed
type AMREntry struct {
	Method    string `json:"method"`
	Timestamp int64  `json:"timestamp"`
}

// Claims are the provider access-token claims this service cares about.
// The provider sets more; unknown claims are ignored on parse.
type Claims struct {
	jwt.RegisteredClaims

	// SessionID identifies the provider-side session the token belongs to.
	SessionID string `json:"session_id,omitempty"`

	// Email of the authenticated user.
	Email string `json:"email,omitempty"`

	// AMR lists the authentication methods used for this session.
	AMR []AMREntry `json:"amr,omitempty"`
}

// HasTOTP reports whether the token's AMR claims include a completed
// authenticator-app challenge. Only the "totp" method counts; magic-link
// entries use their own method name and never match.
func (c *Claims) HasTOTP() bool {
	for _, e := range c.AMR {
		if e.Method == "totp" {
			return true
		}
	}
	return false
}

// TOTPVerifiedAt returns the timestamp of the most recent TOTP AMR entry, or
// nil when the session never completed a TOTP challenge.
func (c *Claims) TOTPVerifiedAt() *time.Time {
	var latest int64
	for _, e := range c.AMR {
		if e.Method == "totp" && e.Timestamp > latest {
			latest = e.Timestamp
		}
	}
	if latest == 0 {
		return nil
	}
	t := time.Unix(latest, 0).UTC()
	return &t
}

// ParseUnverified decodes the claims of a token WITHOUT verifying its
// signature. Only call this after the token has been authenticated by the
// identity provider; it exists so the service can read AMR claims the
// provider's user endpoint does not echo back.
func ParseUnverified(token string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, ErrMalformed
	}
	return claims, nil
}
