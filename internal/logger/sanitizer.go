package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SanitizerCore wraps a zapcore.Core and masks fields whose keys match a
// sensitive-field list, case-insensitively.
type SanitizerCore struct {
	zapcore.Core
	sensitiveFields []string
	mask            string
}

func NewSanitizerCore(core zapcore.Core, sensitiveFields []string, mask string) *SanitizerCore {
	return &SanitizerCore{
		Core:            core,
		sensitiveFields: sensitiveFields,
		mask:            mask,
	}
}

func (s *SanitizerCore) With(fields []zapcore.Field) zapcore.Core {
	return &SanitizerCore{
		Core:            s.Core.With(s.sanitize(fields)),
		sensitiveFields: s.sensitiveFields,
		mask:            s.mask,
	}
}

func (s *SanitizerCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(entry.Level) {
		return checked.AddCore(entry, s)
	}
	return checked
}

func (s *SanitizerCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return s.Core.Write(entry, s.sanitize(fields))
}

func (s *SanitizerCore) Sync() error {
	return s.Core.Sync()
}

func (s *SanitizerCore) sanitize(fields []zapcore.Field) []zapcore.Field {
	masked := make([]zapcore.Field, len(fields))
	copy(masked, fields)

	for i, field := range masked {
		for _, sensitive := range s.sensitiveFields {
			if strings.EqualFold(field.Key, sensitive) {
				masked[i] = zap.String(field.Key, s.mask)
				break
			}
		}
	}

	return masked
}
