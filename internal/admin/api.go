// Package admin wires the HTTP surface: routes, CSRF protection, rate limits,
// and the authentication and authorization middleware around the handlers.
package admin

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/csrf"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/handlers"
	authmw "github.com/akilapilapitiya/TrueGate-sub001/internal/auth/middleware"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/httpx"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/middleware"
)

// RateLimits carries the per-endpoint limiter settings.
type RateLimits struct {
	CSRFPerSecond  float64 `yaml:"csrf_per_second"`
	CSRFBurst      int     `yaml:"csrf_burst"`
	LoginPerSecond float64 `yaml:"login_per_second"`
	LoginBurst     int     `yaml:"login_burst"`
}

// API aggregates the handlers behind the route table the dashboard depends on.
type API struct {
	mux       *http.ServeMux
	auth      *handlers.AuthHandler
	users     *handlers.UserHandler
	security  *SecurityHandler
	protector *csrf.Protector
	authMW    *authmw.AuthMiddleware
	logger    *zap.Logger

	csrfLimiter  *middleware.ClientRateLimiter
	loginLimiter *middleware.ClientRateLimiter
}

func NewAPI(
	auth *handlers.AuthHandler,
	users *handlers.UserHandler,
	security *SecurityHandler,
	protector *csrf.Protector,
	authMW *authmw.AuthMiddleware,
	limits RateLimits,
	logger *zap.Logger,
) *API {
	a := &API{
		mux:          http.NewServeMux(),
		auth:         auth,
		users:        users,
		security:     security,
		protector:    protector,
		authMW:       authMW,
		logger:       logger,
		csrfLimiter:  middleware.NewClientRateLimiter(limits.CSRFPerSecond, limits.CSRFBurst),
		loginLimiter: middleware.NewClientRateLimiter(limits.LoginPerSecond, limits.LoginBurst),
	}
	a.registerRoutes()
	return a
}

// registerRoutes sets up the route table. Order of protections on mutating
// routes: CSRF first, then rate limiting, then authentication, so forged
// requests are rejected before anything else runs.
func (a *API) registerRoutes() {
	csrfProtected := a.protector.Protect
	authed := a.authMW.Authenticate
	adminOnly := a.authMW.RequireAdmin

	a.mux.HandleFunc("GET /api/health", a.handleHealth)

	// Anti-forgery token issuance, rate limited per client IP.
	a.mux.HandleFunc("GET /api/csrf-token", a.csrfLimiter.Wrap(a.auth.CSRFToken))

	// Credential lifecycle.
	a.mux.HandleFunc("POST /api/register", csrfProtected(a.auth.Register))
	a.mux.HandleFunc("POST /api/login", csrfProtected(a.loginLimiter.Wrap(a.auth.Login)))
	a.mux.HandleFunc("POST /api/forgot-password", csrfProtected(a.auth.ForgotPassword))
	a.mux.HandleFunc("POST /api/reset-password", csrfProtected(a.auth.ResetPassword))
	a.mux.HandleFunc("GET /api/verify-email", a.auth.VerifyEmail)
	a.mux.HandleFunc("POST /api/resend-verification", csrfProtected(authed(a.auth.ResendVerification)))

	// User management.
	a.mux.HandleFunc("POST /api/users/change-password", csrfProtected(authed(a.auth.ChangePassword)))
	a.mux.HandleFunc("GET /api/users", adminOnly(a.users.List))
	a.mux.HandleFunc("PUT /api/users/{email}", csrfProtected(authed(a.users.Update)))
	a.mux.HandleFunc("DELETE /api/users/{email}", csrfProtected(adminOnly(a.users.Delete)))
	a.mux.HandleFunc("POST /api/users/{email}/unlock", csrfProtected(adminOnly(a.users.Unlock)))

	// Security audit trail, admin-only. Append-only: no DELETE routes exist.
	a.mux.HandleFunc("GET /api/security/events", adminOnly(a.security.ListEvents))
	a.mux.HandleFunc("POST /api/security/events", csrfProtected(adminOnly(a.security.LogEvent)))
	a.mux.HandleFunc("GET /api/security/events/high-risk", adminOnly(a.security.HighRisk))
	a.mux.HandleFunc("GET /api/security/events/category/{category}", adminOnly(a.security.ByCategory))
	a.mux.HandleFunc("GET /api/security/events/ip/{ip}", adminOnly(a.security.ByIP))
	a.mux.HandleFunc("GET /api/security/events/user/{email}", adminOnly(a.security.ByUser))
	a.mux.HandleFunc("GET /api/security/stats", adminOnly(a.security.Stats))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Close stops the rate limiters' prune loops.
func (a *API) Close() {
	a.csrfLimiter.Close()
	a.loginLimiter.Close()
}

// Handler returns the route table wrapped with the global middleware chain.
func (a *API) Handler() http.Handler {
	chain := middleware.NewChain(
		middleware.NewRequestLogger(a.logger,
			"/api/login", "/api/register", "/api/reset-password"),
		middleware.DefaultSecurityHeaders(),
	)
	return chain.Then(a.mux)
}
