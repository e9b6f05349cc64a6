package service

import "errors"

// Sentinel errors forming the user-facing taxonomy. The HTTP layer maps
// these to status codes; descriptions stay deliberately generic to avoid
// user enumeration, with detail logged server-side.
var (
	// ErrInvalidRequest reports missing or malformed input (400).
	ErrInvalidRequest = errors.New("service: invalid request")

	// ErrInvalidCredentials covers both unknown-user and wrong-password
	// outcomes on the fallback path; the two must be indistinguishable
	// (401).
	ErrInvalidCredentials = errors.New("service: invalid credentials")

	// ErrInvalidSession reports a missing, invalid or expired bearer token
	// (401).
	ErrInvalidSession = errors.New("service: invalid session")

	// ErrRateLimited reports an exhausted request quota (429).
	ErrRateLimited = errors.New("service: rate limited")
)
