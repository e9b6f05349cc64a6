// Package localidp is a self-contained identity provider used for local
// development and end-to-end tests. It implements the subset of the hosted
// provider's HTTP surface the gate service talks to: password and refresh
// grants, the admin user/factor/link endpoints, magic-link verification and
// self-service TOTP factor management.
package localidp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
	"github.com/opsdeskhq/opsgate/pkg/cryptox"
	"github.com/opsdeskhq/opsgate/pkg/httpx"
	"github.com/opsdeskhq/opsgate/pkg/idx"
	"github.com/opsdeskhq/opsgate/pkg/jwtx"
)

const (
	challengeTTL = 5 * time.Minute
	magicLinkTTL = time.Hour
)

type Server struct {
	Issuer     string
	ServiceKey string
	AccessTTL  time.Duration

	store      *store
	signingKey []byte
	logger     *slog.Logger
	mux        *http.ServeMux
}

type Config struct {
	DatabaseFile string
	Issuer       string
	ServiceKey   string
	SigningKey   []byte
	Logger       *slog.Logger
}

func NewServer(cfg Config) (*Server, error) {
	st, err := newStore(cfg.DatabaseFile)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Issuer:     cfg.Issuer,
		ServiceKey: cfg.ServiceKey,
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		store:      st,
		signingKey: cfg.SigningKey,
		logger:     cfg.Logger,
		mux:        http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.routes()
	return s, nil
}

func (s *Server) Close() error { return s.store.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /token", s.handleToken)
	s.mux.HandleFunc("GET /user", s.handleUser)
	s.mux.HandleFunc("POST /verify", s.handleVerify)

	s.mux.HandleFunc("GET /admin/users", s.handleAdminUsers)
	s.mux.HandleFunc("GET /admin/users/{id}/factors", s.handleAdminFactors)
	s.mux.HandleFunc("POST /admin/generate_link", s.handleGenerateLink)

	s.mux.HandleFunc("GET /factors", s.handleListFactors)
	s.mux.HandleFunc("POST /factors", s.handleEnrollFactor)
	s.mux.HandleFunc("POST /factors/{id}/challenge", s.handleChallenge)
	s.mux.HandleFunc("POST /factors/{id}/verify", s.handleVerifyFactor)
	s.mux.HandleFunc("DELETE /factors/{id}", s.handleUnenroll)
}

// SeedUser creates a user for development or tests and returns its id.
func (s *Server) SeedUser(ctx context.Context, email, password string, emailDisabled bool) (string, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return "", err
	}
	id := idx.New().String()
	err = s.store.createUser(ctx, userRow{
		ID:                id,
		Email:             strings.ToLower(email),
		EncryptedPassword: hash,
		EmailDisabled:     emailDisabled,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetEmailDisabled flips the per-user provider-disabled switch.
func (s *Server) SetEmailDisabled(ctx context.Context, userID string, disabled bool) error {
	return s.store.setEmailDisabled(ctx, userID, disabled)
}

// --- grants ---

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.passwordGrant(w, r)
	case "refresh_token":
		s.refreshGrant(w, r)
	default:
		writeIDPError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type")
	}
}

func (s *Server) passwordGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeIDPError(w, http.StatusBadRequest, "validation_failed", "could not parse request body")
		return
	}

	user, err := s.store.userByEmail(r.Context(), strings.ToLower(req.Email))
	if errors.Is(err, errNotFound) {
		writeIDPError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	if user.EmailDisabled {
		writeIDPError(w, http.StatusBadRequest, "email_provider_disabled", "Email logins are disabled")
		return
	}

	if err := cryptox.VerifyPassword(req.Password, user.EncryptedPassword); err != nil {
		writeIDPError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		return
	}

	amr := []jwtx.AMREntry{{Method: "password", Timestamp: time.Now().Unix()}}
	s.writeSession(r.Context(), w, user, amr)
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeIDPError(w, http.StatusBadRequest, "validation_failed", "could not parse request body")
		return
	}

	userID, amrJSON, err := s.store.rotateRefreshToken(r.Context(), req.RefreshToken)
	if errors.Is(err, errNotFound) {
		writeIDPError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	user, err := s.store.userByID(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}

	var amr []jwtx.AMREntry
	if err := json.Unmarshal([]byte(amrJSON), &amr); err != nil {
		amr = nil
	}
	s.writeSession(r.Context(), w, user, amr)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type      string `json:"type"`
		Email     string `json:"email"`
		TokenHash string `json:"token_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type != "magiclink" {
		writeIDPError(w, http.StatusBadRequest, "validation_failed", "unsupported verification type")
		return
	}

	email, expiresAt, err := s.store.consumeMagicLink(r.Context(), req.TokenHash)
	if errors.Is(err, errNotFound) {
		writeIDPError(w, http.StatusForbidden, "otp_expired", "Token has expired or is invalid")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	if time.Now().After(expiresAt) || !strings.EqualFold(email, req.Email) {
		writeIDPError(w, http.StatusForbidden, "otp_expired", "Token has expired or is invalid")
		return
	}

	user, err := s.store.userByEmail(r.Context(), strings.ToLower(email))
	if err != nil {
		s.internalError(w, err)
		return
	}

	amr := []jwtx.AMREntry{{Method: "magiclink", Timestamp: time.Now().Unix()}}
	s.writeSession(r.Context(), w, user, amr)
}

// --- admin surface ---

func (s *Server) requireServiceKey(w http.ResponseWriter, r *http.Request) bool {
	token := bearer(r)
	if token == "" || token != s.ServiceKey {
		writeIDPError(w, http.StatusUnauthorized, "no_authorization", "service role key required")
		return false
	}
	return true
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireServiceKey(w, r) {
		return
	}

	email := strings.ToLower(r.URL.Query().Get("email"))
	users := []domain.Identity{}
	if email != "" {
		user, err := s.store.userByEmail(r.Context(), email)
		if err != nil && !errors.Is(err, errNotFound) {
			s.internalError(w, err)
			return
		}
		if err == nil {
			users = append(users, domain.Identity{ID: user.ID, Email: user.Email})
		}
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleAdminFactors(w http.ResponseWriter, r *http.Request) {
	if !s.requireServiceKey(w, r) {
		return
	}

	rows, err := s.store.factorsByUser(r.Context(), r.PathValue("id"))
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

func (s *Server) handleGenerateLink(w http.ResponseWriter, r *http.Request) {
	if !s.requireServiceKey(w, r) {
		return
	}

	var req struct {
		Type  string `json:"type"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type != "magiclink" {
		writeIDPError(w, http.StatusBadRequest, "validation_failed", "unsupported link type")
		return
	}

	email := strings.ToLower(req.Email)
	if _, err := s.store.userByEmail(r.Context(), email); err != nil {
		if errors.Is(err, errNotFound) {
			writeIDPError(w, http.StatusNotFound, "user_not_found", "User not found")
			return
		}
		s.internalError(w, err)
		return
	}

	raw, err := cryptox.GenerateToken(32)
	if err != nil {
		s.internalError(w, err)
		return
	}
	hash := cryptox.FingerprintToken(raw)

	if err := s.store.storeMagicLink(r.Context(), hash, email, time.Now().Add(magicLinkTTL)); err != nil {
		s.internalError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"email":        email,
		"hashed_token": hash,
	})
}

// --- session issuance ---

func (s *Server) writeSession(ctx context.Context, w http.ResponseWriter, user userRow, amr []jwtx.AMREntry) {
	session, err := s.issueSession(ctx, user, amr)
	if err != nil {
		s.internalError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session)
}

func (s *Server) issueSession(ctx context.Context, user userRow, amr []jwtx.AMREntry) (domain.Session, error) {
	now := time.Now()
	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.AccessTTL)),
		},
		SessionID: idx.New().String(),
		Email:     user.Email,
		AMR:       amr,
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return domain.Session{}, err
	}

	refresh, err := cryptox.GenerateToken(32)
	if err != nil {
		return domain.Session{}, err
	}
	amrJSON, err := json.Marshal(amr)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.store.storeRefreshToken(ctx, refresh, user.ID, string(amrJSON)); err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.AccessTTL.Seconds()),
		User:         domain.Identity{ID: user.ID, Email: user.Email},
	}, nil
}

// authenticate verifies the bearer token signature and expiry and returns
// its claims.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (jwtx.Claims, bool) {
	token := bearer(r)
	if token == "" {
		writeIDPError(w, http.StatusUnauthorized, "no_authorization", "missing bearer token")
		return jwtx.Claims{}, false
	}

	var claims jwtx.Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		writeIDPError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return jwtx.Claims{}, false
	}
	return claims, true
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("internal provider error", "error", err)
	writeIDPError(w, http.StatusInternalServerError, "unexpected_failure", "internal error")
}

func writeIDPError(w http.ResponseWriter, status int, code, msg string) {
	httpx.WriteJSON(w, status, map[string]any{
		"code":       status,
		"error_code": code,
		"msg":        msg,
	})
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
