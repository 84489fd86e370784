package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedSanitizer() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	sanitized := NewSanitizerCore(core, defaultSensitiveFields, "[REDACTED]")
	return zap.New(sanitized), logs
}

func TestSanitizerMasksSensitiveFields(t *testing.T) {
	t.Parallel()

	log, logs := newObservedSanitizer()

	log.Info("login attempt",
		zap.String("email", "alice@example.com"),
		zap.String("password", "Sup3rSecret"),
		zap.String("Reset_Token", "abc123"),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()

	assert.Equal(t, "alice@example.com", fields["email"])
	assert.Equal(t, "[REDACTED]", fields["password"])
	assert.Equal(t, "[REDACTED]", fields["Reset_Token"], "matching is case-insensitive")
}

func TestSanitizerMasksWithFields(t *testing.T) {
	t.Parallel()

	log, logs := newObservedSanitizer()

	log.With(zap.String("token", "bearer-secret")).Info("request")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "[REDACTED]", entries[0].ContextMap()["token"])
}
