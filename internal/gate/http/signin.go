package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/opsdeskhq/opsgate/internal/gate/provider"
	"github.com/opsdeskhq/opsgate/internal/gate/service"
	"github.com/opsdeskhq/opsgate/pkg/httpx"
	"github.com/opsdeskhq/opsgate/pkg/slogx"
)

type SignInHandler struct {
	SignInService *service.SignInService
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *SignInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := h.SignInService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeSignInError(w, log, err)
		return
	}

	if result.Fallback != nil {
		httpx.WriteJSON(w, http.StatusOK, result.Fallback)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result.Session)
}

func (h *SignInHandler) writeSignInError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		var pe *provider.Error
		if errors.As(err, &pe) {
			// Pass the upstream failure through verbatim so callers see the
			// same status and code the identity provider produced.
			httpx.WriteJSON(w, pe.Status, map[string]string{
				"error":             pe.Code,
				"error_description": pe.Description,
			})
			return
		}
		log.Error("sign-in failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
