package middleware

import (
	"net"
	"net/http"
	"strings"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware interface {
	Middleware(next http.Handler) http.Handler
}

// Chain applies middleware in the order they were added: the first middleware
// is the outermost wrapper and sees the request first.
type Chain struct {
	middlewares []Middleware
}

func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

func (c *Chain) Use(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// Then wraps the final handler with the chain.
func (c *Chain) Then(final http.Handler) http.Handler {
	if final == nil {
		final = http.DefaultServeMux
	}
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		final = c.middlewares[i].Middleware(final)
	}
	return final
}

// statusWriter captures the status code and response length for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
	length int
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	return n, err
}

// ClientIP extracts the real client IP, honoring X-Forwarded-For and
// X-Real-IP before falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
