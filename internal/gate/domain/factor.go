package domain

// Factor types and statuses as the identity provider reports them.
const (
	FactorTypeTOTP = "totp"

	FactorStatusUnverified = "unverified"
	FactorStatusVerified   = "verified"
)

// Factor is a single enrolled multi-factor credential tied to an identity.
// Secret and URI are only populated on enrollment responses; factor listings
// omit them.
type Factor struct {
	ID     string `json:"id"`
	Type   string `json:"factor_type"`
	Status string `json:"status"`
	Secret string `json:"secret,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// VerifiedTOTP reports whether the factor is a verified authenticator-app
// factor.
func (f Factor) VerifiedTOTP() bool {
	return f.Type == FactorTypeTOTP && f.Status == FactorStatusVerified
}

// Challenge is a short-lived verification attempt against one factor,
// consumed exactly once by a verify call.
type Challenge struct {
	ID       string `json:"id"`
	FactorID string `json:"factor_id"`
}
