package postgres

import (
	"context"
	"fmt"
	"strings"

	gormLogger "gorm.io/gorm/logger"
)

const defaultMaxLoggedParamLength = 128

// redactingParamsLogger filters SQL parameters before GORM prints SQL logs.
// Comment bodies are truncated and email addresses are masked.
type redactingParamsLogger struct {
	gormLogger.Interface
	maxLoggedParamLength int
}

// ParamsFilter implements gorm's ParamsFilter hook.
func (l *redactingParamsLogger) ParamsFilter(_ context.Context, sql string, params ...any) (string, []any) {
	if len(params) == 0 {
		return sql, params
	}

	filtered := make([]any, len(params))
	for idx, param := range params {
		filtered[idx] = sanitizeLoggedSQLParam(param, l.maxLoggedParamLength)
	}

	return sql, filtered
}

// NewRedactingLogger wraps a GORM logger with parameter redaction.
func NewRedactingLogger(base gormLogger.Interface) gormLogger.Interface {
	return &redactingParamsLogger{
		Interface:            base,
		maxLoggedParamLength: defaultMaxLoggedParamLength,
	}
}

// sanitizeLoggedSQLParam converts sensitive or oversized parameters into log-safe summaries.
func sanitizeLoggedSQLParam(param any, maxLoggedParamLength int) any {
	switch value := param.(type) {
	case string:
		if looksLikeEmail(value) {
			return maskEmail(value)
		}
		return truncateStringForLog(value, maxLoggedParamLength)
	case []byte:
		if len(value) > maxLoggedParamLength {
			return fmt.Sprintf("<bytes:len=%d,truncated>", len(value))
		}
		return value
	default:
		return param
	}
}

// truncateStringForLog shortens a string and appends the original length.
func truncateStringForLog(raw string, maxLoggedParamLength int) string {
	if maxLoggedParamLength <= 0 || len(raw) <= maxLoggedParamLength {
		return raw
	}
	return fmt.Sprintf("%s...<truncated:len=%d>", raw[:maxLoggedParamLength], len(raw))
}

func looksLikeEmail(raw string) bool {
	at := strings.IndexByte(raw, '@')
	return at > 0 && at < len(raw)-1 && !strings.ContainsAny(raw, " \n\t") &&
		strings.Contains(raw[at:], ".")
}

// maskEmail keeps the first rune of the local part and the domain.
func maskEmail(raw string) string {
	at := strings.IndexByte(raw, '@')
	return raw[:1] + "***" + raw[at:]
}
