package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdeskhq/opsgate/internal/gate/service"
	"github.com/opsdeskhq/opsgate/internal/gate/store"
	"github.com/opsdeskhq/opsgate/pkg/httpx"
	"github.com/opsdeskhq/opsgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	records store.RecordStore

	SignInService  *service.SignInService
	SessionService *service.SessionService
}

func NewRouter(buildVersion string, records store.RecordStore, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		records:      records,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSignIn()
	r.registerSession()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSignIn() {
	h := &SignInHandler{SignInService: r.SignInService}

	// Strict rate limit by IP: authentication attempts.
	secured := httpx.Chain(h,
		httpx.CORS(),
		httpx.RateLimitByIP(httpx.StrictLimit),
	)

	r.Mux.Handle("POST /v1/auth/sign-in", secured)
	// Pre-flight must reach the CORS middleware, which short-circuits it.
	r.Mux.Handle("OPTIONS /v1/auth/sign-in", httpx.Chain(h, httpx.CORS()))
}

func (r *Router) registerSession() {
	h := &SessionHandler{SessionService: r.SessionService}

	// Quota enforcement lives in the service so the missing-bearer case can
	// bypass it; the middleware here only adds browser hardening headers.
	secured := httpx.Chain(h, httpx.SecurityHeaders())

	r.Mux.Handle("GET /v1/auth/session", secured)
	r.Mux.Handle("POST /v1/auth/session", secured)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.records),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
