package provider

import (
	"errors"
	"fmt"
)

// Provider error codes this service reacts to. Everything else passes
// through untouched.
const (
	CodeEmailProviderDisabled = "email_provider_disabled"
	CodeInvalidCredentials    = "invalid_credentials"
	CodeInvalidToken          = "bad_jwt"
	CodeOTPExpired            = "otp_expired"
	CodeMFAVerificationFailed = "mfa_verification_failed"
)

// ErrNotFound reports that an admin lookup matched no identity.
var ErrNotFound = errors.New("provider: not found")

// Error is a typed identity-provider error carrying the upstream HTTP status
// and error code so handlers can propagate distinct failure reasons
// verbatim.
type Error struct {
	Status      int
	Code        string
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s (status %d): %s", e.Code, e.Status, e.Description)
}

// AsError unwraps err into a provider *Error if possible.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsEmailProviderDisabled reports whether the password grant failed because
// the email provider is administratively disabled. This is a configuration
// state, not a credential failure, and triggers the manual fallback path.
func IsEmailProviderDisabled(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Code == CodeEmailProviderDisabled
}
