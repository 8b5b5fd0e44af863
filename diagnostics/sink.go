package diagnostics

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/accountguard/logger"
)

// Level classifies a diagnostic report.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Sink ingests structured diagnostic reports. Implementations receive
// already-redacted context and return an opaque report id.
type Sink interface {
	Report(ctx context.Context, level Level, category, code, message string, reportCtx map[string]any, userMessage string) string
}

// sensitiveKeys are redacted from report context before emission. Matching
// is case-insensitive on key substrings.
var sensitiveKeys = []string{
	"secret", "password", "token", "key", "mnemonic",
	"private", "seed", "pepper", "salt", "hash", "recovery_phrase",
}

// Redact returns a copy of the context with known-sensitive values masked.
func Redact(reportCtx map[string]any) map[string]any {
	if reportCtx == nil {
		return nil
	}
	out := make(map[string]any, len(reportCtx))
	for k, v := range reportCtx {
		if isSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// LogSink is the default Sink: reports go to the structured logger, and when
// a meter is installed each report increments a counter by level/category.
type LogSink struct {
	log     *logger.Logger
	counter metric.Int64Counter
}

// LogSinkOption configures a LogSink.
type LogSinkOption func(*LogSink)

// WithMeter installs an OpenTelemetry meter for report counting.
func WithMeter(meter metric.Meter) LogSinkOption {
	return func(s *LogSink) {
		counter, err := meter.Int64Counter("accountguard.diagnostics.reports",
			metric.WithDescription("Diagnostic reports by level and category"))
		if err == nil {
			s.counter = counter
		}
	}
}

// NewLogSink creates a Sink backed by the structured logger.
func NewLogSink(log *logger.Logger, opts ...LogSinkOption) *LogSink {
	if log == nil {
		log = logger.Nop()
	}
	s := &LogSink{log: log.WithComponent("diagnostics")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report redacts the context, logs the entry, counts it, and returns the
// report id.
func (s *LogSink) Report(ctx context.Context, level Level, category, code, message string, reportCtx map[string]any, userMessage string) string {
	id := uuid.NewString()

	fields := logger.Fields(
		"report_id", id,
		"category", category,
		"code", code,
	)
	for k, v := range Redact(reportCtx) {
		fields[k] = v
	}
	if userMessage != "" {
		fields["user_message"] = userMessage
	}

	switch level {
	case LevelWarning:
		s.log.Warn(message, fields)
	case LevelError, LevelCritical:
		s.log.Error(message, fields)
	default:
		s.log.Info(message, fields)
	}

	if s.counter != nil {
		s.counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("level", string(level)),
			attribute.String("category", category),
			attribute.String("code", code),
		))
	}
	return id
}
