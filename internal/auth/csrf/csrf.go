package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	apierr "github.com/akilapilapitiya/TrueGate-sub001/internal/auth"
)

const (
	// CookieName is the double-submit cookie the browser sends back.
	CookieName = "csrf-token"
	// HeaderName is the header the client must echo the cookie value into.
	HeaderName = "X-CSRF-Token"

	secretBytes = 32
)

// Guard implements the stateless double-submit anti-forgery scheme: the same
// secret travels in a cookie and a request header and must match exactly.
// There is no server-side session store and no cookie rotation; validity is
// scoped by the cookie lifetime.
type Guard struct {
	cookieMaxAge int
	secure       bool
}

func NewGuard(cookieMaxAge int, secure bool) *Guard {
	return &Guard{
		cookieMaxAge: cookieMaxAge,
		secure:       secure,
	}
}

// Issue generates a fresh secret and sets the cookie on the response.
// Re-requesting is harmless; the newest pair simply replaces the old one.
// The cookie is deliberately readable by the client so it can be echoed into
// the header.
func (g *Guard) Issue(w http.ResponseWriter) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    secret,
		Path:     "/",
		MaxAge:   g.cookieMaxAge,
		Secure:   g.secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})

	return secret, nil
}

// Validate checks the double-submit pair on a request. A missing header,
// missing cookie, or mismatch all fail the same way. Comparison is
// constant-time to avoid timing leaks.
func (g *Guard) Validate(r *http.Request) error {
	header := r.Header.Get(HeaderName)
	if header == "" {
		return apierr.ErrCSRFRejected
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return apierr.ErrCSRFRejected
	}

	if subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
		return apierr.ErrCSRFRejected
	}

	return nil
}
