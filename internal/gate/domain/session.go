package domain

// Identity is the provider's view of a user, as returned by the token and
// admin user endpoints.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is issued by the identity provider on successful authentication
// and returned to the caller unchanged. The service never stores it.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	User         Identity `json:"user"`
}

// FallbackTokenType tags a magic-link fallback response so clients can tell
// it apart from a full session.
const FallbackTokenType = "magiclink_fallback"

// FallbackToken is returned instead of a Session when the provider's
// password grant is administratively disabled and the manual hash check
// succeeded. The caller must exchange it for a session in a second
// round-trip.
type FallbackToken struct {
	Type      string `json:"type"`
	TokenHash string `json:"token_hash"`
	Email     string `json:"email"`
}
