package csrf

import (
	"net/http"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/audit"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/httpx"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/middleware"
)

// Auditor is the subset of the audit recorder the protector needs.
type Auditor interface {
	Record(e audit.Event)
}

// Protector rejects state-changing requests whose double-submit pair does not
// match. Rejection happens before any business logic runs and is recorded as
// a MEDIUM-risk security event.
type Protector struct {
	guard   *Guard
	auditor Auditor
}

func NewProtector(guard *Guard, auditor Auditor) *Protector {
	return &Protector{guard: guard, auditor: auditor}
}

// Protect wraps a mutating handler with the CSRF check.
func (p *Protector) Protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.guard.Validate(r); err != nil {
			p.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventCSRFRejected,
				audit.RiskMedium, middleware.ClientIP(r), r.UserAgent(), "",
				map[string]any{"path": r.URL.Path, "method": r.Method}))
			httpx.Error(w, http.StatusForbidden, "Invalid CSRF token")
			return
		}
		next(w, r)
	}
}
