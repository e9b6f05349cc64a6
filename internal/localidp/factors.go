package localidp

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
	"github.com/opsdeskhq/opsgate/pkg/httpx"
	"github.com/opsdeskhq/opsgate/pkg/idx"
	"github.com/opsdeskhq/opsgate/pkg/jwtx"
)

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, domain.Identity{
		ID:    claims.Subject,
		Email: claims.Email,
	})
}

func (s *Server) handleListFactors(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	rows, err := s.store.factorsByUser(r.Context(), claims.Subject)
	if err != nil {
		s.internalError(w, err)
		return
	}

	factors := make([]domain.Factor, 0, len(rows))
	for _, f := range rows {
		factors = append(factors, domain.Factor{ID: f.ID, Type: f.Type, Status: f.Status})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"factors": factors})
}

func (s *Server) handleEnrollFactor(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		FactorType string `json:"factor_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FactorType != domain.FactorTypeTOTP {
		writeIDPError(w, http.StatusBadRequest, "validation_failed", "factor_type must be totp")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: claims.Email,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}

	factor := factorRow{
		ID:     idx.New().String(),
		UserID: claims.Subject,
		Type:   domain.FactorTypeTOTP,
		Status: domain.FactorStatusUnverified,
		Secret: key.Secret(),
	}
	if err := s.store.createFactor(r.Context(), factor); err != nil {
		s.internalError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"id":   factor.ID,
		"type": factor.Type,
		"totp": map[string]string{
			"secret": key.Secret(),
			"uri":    key.URL(),
		},
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	factor, err := s.ownedFactor(w, r, claims)
	if err != nil {
		return
	}

	challenge := domain.Challenge{ID: idx.New().String(), FactorID: factor.ID}
	expiresAt := time.Now().Add(challengeTTL)
	if err := s.store.createChallenge(r.Context(), challenge.ID, factor.ID, expiresAt); err != nil {
		s.internalError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"id":         challenge.ID,
		"expires_at": expiresAt.Unix(),
	})
}

func (s *Server) handleVerifyFactor(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	factor, err := s.ownedFactor(w, r, claims)
	if err != nil {
		return
	}

	var req struct {
		ChallengeID string `json:"challenge_id"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeIDPError(w, http.StatusBadRequest, "validation_failed", "could not parse request body")
		return
	}

	expiresAt, err := s.store.consumeChallenge(r.Context(), req.ChallengeID, factor.ID)
	if errors.Is(err, errNotFound) {
		writeIDPError(w, http.StatusUnprocessableEntity, "mfa_challenge_expired", "challenge not found")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	if time.Now().After(expiresAt) {
		writeIDPError(w, http.StatusUnprocessableEntity, "mfa_challenge_expired", "challenge has expired")
		return
	}

	if !totp.Validate(req.Code, factor.Secret) {
		writeIDPError(w, http.StatusUnprocessableEntity, "mfa_verification_failed", "Invalid TOTP code entered")
		return
	}

	if factor.Status != domain.FactorStatusVerified {
		if err := s.store.markFactorVerified(r.Context(), factor.ID); err != nil {
			s.internalError(w, err)
			return
		}
	}

	user, err := s.store.userByID(r.Context(), claims.Subject)
	if err != nil {
		s.internalError(w, err)
		return
	}

	// Step up the session: carry existing methods forward and append totp.
	amr := append(claims.AMR, jwtx.AMREntry{Method: "totp", Timestamp: time.Now().Unix()})
	s.writeSession(r.Context(), w, user, amr)
}

func (s *Server) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	factor, err := s.ownedFactor(w, r, claims)
	if err != nil {
		return
	}

	deleted, err := s.store.deleteFactor(r.Context(), factor.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !deleted {
		writeIDPError(w, http.StatusNotFound, "factor_not_found", "factor not found")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"id": factor.ID})
}

// ownedFactor loads the path factor and enforces that it belongs to the
// authenticated user. It writes the error response itself.
func (s *Server) ownedFactor(w http.ResponseWriter, r *http.Request, claims jwtx.Claims) (factorRow, error) {
	factor, err := s.store.factorByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, errNotFound) {
		writeIDPError(w, http.StatusNotFound, "factor_not_found", "factor not found")
		return factorRow{}, err
	}
	if err != nil {
		s.internalError(w, err)
		return factorRow{}, err
	}
	if factor.UserID != claims.Subject {
		writeIDPError(w, http.StatusForbidden, "not_admin", "factor belongs to another user")
		return factorRow{}, errNotFound
	}
	return factor, nil
}
