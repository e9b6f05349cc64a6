package domain

import "time"

// RoleAdmin grants administrative access independent of the allowlist.
const RoleAdmin = "admin"

// AuthorizationSnapshot is the full authorization picture for one identity,
// computed fresh on every session check and never cached server-side.
//
// MFAEnabled is a property of the account (a verified TOTP factor exists);
// MFAVerified is a property of the presented token (its AMR claims include a
// TOTP method). A user can have MFA enabled yet hold a session established
// before the challenge was completed.
type AuthorizationSnapshot struct {
	UserID        string     `json:"userId"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName"`
	Roles         []string   `json:"roles"`
	IsAllowlisted bool       `json:"isAllowlisted"`
	IsAdmin       bool       `json:"isAdmin"`
	MFAEnabled    bool       `json:"mfaEnabled"`
	MFAVerified   bool       `json:"mfaVerified"`
	MFAVerifiedAt *time.Time `json:"mfaVerifiedAt"`
}

// FullyAuthorized reports whether this snapshot unlocks the dashboard:
// allowlisted (or admin) and the session itself passed a TOTP challenge.
func (s AuthorizationSnapshot) FullyAuthorized() bool {
	return (s.IsAllowlisted || s.IsAdmin) && s.MFAVerified
}

// HasRole reports whether the snapshot carries the named role.
func (s AuthorizationSnapshot) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
