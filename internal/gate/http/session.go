package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/opsdeskhq/opsgate/internal/gate/service"
	"github.com/opsdeskhq/opsgate/pkg/httpx"
	"github.com/opsdeskhq/opsgate/pkg/slogx"
)

type SessionHandler struct {
	SessionService *service.SessionService
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	token := bearerToken(r)
	ip := httpx.ClientIP(r)

	snapshot, err := h.SessionService.CheckSession(r.Context(), token, ip)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSession):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid session")
		case errors.Is(err, service.ErrRateLimited):
			w.Header().Set("Retry-After", "60")
			httpx.WriteError(w, http.StatusTooManyRequests, "too many requests")
		default:
			log.Error("session check failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, snapshot)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
