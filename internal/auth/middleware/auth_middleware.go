package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/audit"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/models"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/token"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/httpx"
	mw "github.com/akilapilapitiya/TrueGate-sub001/internal/middleware"
)

type contextKey struct{}

var identityKey contextKey

// Identity returns the verified caller identity, if any.
func Identity(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(identityKey).(token.Identity)
	return id, ok
}

// Auditor is the subset of the audit recorder the middleware needs.
type Auditor interface {
	Record(e audit.Event)
}

// AuthMiddleware resolves the caller's identity and role from the bearer
// token. Missing, malformed, expired, and tampered tokens all produce the
// same 401; insufficient role produces a distinct 403.
type AuthMiddleware struct {
	tokens  *token.Service
	auditor Auditor
}

func NewAuthMiddleware(tokens *token.Service, auditor Auditor) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, auditor: auditor}
}

// Authenticate wraps handlers that require a valid bearer token.
func (m *AuthMiddleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httpx.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httpx.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		identity, err := m.tokens.Verify(parts[1])
		if err != nil {
			httpx.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	}
}

// RequireAdmin wraps handlers that additionally require the admin role.
// The 403 is recorded as an access-control violation.
func (m *AuthMiddleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := Identity(r.Context())
		if identity.Role != models.RoleAdmin {
			m.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventAccessDenied,
				audit.RiskMedium, mw.ClientIP(r), r.UserAgent(), identity.Email,
				map[string]any{"path": r.URL.Path}))
			httpx.Error(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r)
	})
}
