package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/audit"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/models"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/token"
)

type captureAuditor struct {
	events []audit.Event
}

func (c *captureAuditor) Record(e audit.Event) {
	c.events = append(c.events, e)
}

func newMiddleware(t *testing.T) (*AuthMiddleware, *token.Service, *captureAuditor) {
	t.Helper()

	tokens := token.NewService([]byte("test-secret"), time.Hour)
	auditor := &captureAuditor{}
	return NewAuthMiddleware(tokens, auditor), tokens, auditor
}

func TestAuthenticateRejections(t *testing.T) {
	t.Parallel()

	m, _, _ := newMiddleware(t)
	h := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-token"} {
		r := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h(rec, r)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.JSONEq(t, `{"error":"Authentication required"}`, rec.Body.String())
	}
}

func TestAuthenticatePutsIdentityInContext(t *testing.T) {
	t.Parallel()

	m, tokens, _ := newMiddleware(t)
	signed, _, err := tokens.Issue("alice@example.com", models.RoleUser)
	require.NoError(t, err)

	var got token.Identity
	h := m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		id, ok := Identity(r.Context())
		require.True(t, ok)
		got = id
	})

	r := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, models.RoleUser, got.Role)
}

func TestRequireAdminForbidsNonAdmin(t *testing.T) {
	t.Parallel()

	m, tokens, auditor := newMiddleware(t)
	signed, _, err := tokens.Issue("alice@example.com", models.RoleUser)
	require.NoError(t, err)

	h := m.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	r := httptest.NewRequest(http.MethodGet, "/api/security/events", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Admin access required"}`, rec.Body.String())

	require.Len(t, auditor.events, 1)
	assert.Equal(t, audit.EventAccessDenied, auditor.events[0].Type)
	assert.Equal(t, "alice@example.com", auditor.events[0].Email)
}

func TestRequireAdminAllowsAdmin(t *testing.T) {
	t.Parallel()

	m, tokens, auditor := newMiddleware(t)
	signed, _, err := tokens.Issue("root@example.com", models.RoleAdmin)
	require.NoError(t, err)

	called := false
	h := m.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	r := httptest.NewRequest(http.MethodGet, "/api/security/events", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h(rec, r)

	assert.True(t, called)
	assert.Empty(t, auditor.events)
}
