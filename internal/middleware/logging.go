package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RequestLogger logs each request with its outcome. Paths carrying credentials
// in the body are excluded from detailed logging by the router configuration.
type RequestLogger struct {
	logger       *zap.Logger
	excludePaths map[string]struct{}
}

func NewRequestLogger(logger *zap.Logger, excludePaths ...string) *RequestLogger {
	excluded := make(map[string]struct{}, len(excludePaths))
	for _, p := range excludePaths {
		excluded[p] = struct{}{}
	}
	return &RequestLogger{logger: logger, excludePaths: excluded}
}

func (l *RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := l.excludePaths[r.URL.Path]; skip {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := newStatusWriter(w)
		next.ServeHTTP(sw, r)

		l.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Int("bytes", sw.length),
			zap.String("client_ip", ClientIP(r)),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
