// Package logging builds the process logger and scrubs clinical values from
// structured log fields.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maternal-guard-server/internal/domain"
)

// LogLevel constants
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
	FatalLevel = "fatal"
	PanicLevel = "panic"
)

// NewLogger creates a logrus logger from cfg. An unknown level falls back to
// info. Output is "stdout" (default), "stderr" or a file path opened in
// append mode.
func NewLogger(cfg domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)
	logger.AddHook(RedactionHook{})

	return logger, nil
}

// NewStderrLogger is NewLogger with output forced to stderr. The MCP stdio
// transport owns stdout.
func NewStderrLogger(level, format string) *logrus.Logger {
	logger, _ := NewLogger(domain.LoggingConfig{Level: level, Format: format, Output: "stderr"})
	return logger
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		return f, nil
	}
}

// vitalFields are redacted by exact name. sensitivePatterns match any
// field name containing them.
var (
	vitalFields = map[string]bool{
		"age": true, "systolic_bp": true, "diastolic_bp": true,
		"blood_sugar": true, "body_temp": true, "heart_rate": true,
	}
	sensitivePatterns = []string{"patient", "notes", "password", "token", "secret"}
)

// SanitizeFields returns a copy of fields with clinical values redacted.
func SanitizeFields(fields logrus.Fields) logrus.Fields {
	sanitized := make(logrus.Fields, len(fields))
	for k, v := range fields {
		sanitized[k] = sanitizeField(k, v)
	}
	return sanitized
}

// RedactionHook sanitizes entry fields at info level and above. Debug
// entries keep clinical values so a developer can trace an assessment.
type RedactionHook struct{}

// Levels implements logrus.Hook.
func (RedactionHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel,
		logrus.WarnLevel, logrus.InfoLevel,
	}
}

// Fire implements logrus.Hook.
func (RedactionHook) Fire(entry *logrus.Entry) error {
	if len(entry.Data) > 0 {
		entry.Data = SanitizeFields(entry.Data)
	}
	return nil
}

func sanitizeField(key string, value interface{}) interface{} {
	lowerKey := strings.ToLower(key)
	if vitalFields[lowerKey] {
		return "[REDACTED]"
	}
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerKey, pattern) {
			return "[REDACTED]"
		}
	}

	if str, ok := value.(string); ok && len(str) > 1000 {
		return str[:1000] + "... [TRUNCATED]"
	}
	return value
}

// VitalsFields renders vitals as log fields. Callers log them at debug level
// only.
func VitalsFields(v *domain.PatientVitals) logrus.Fields {
	return logrus.Fields{
		"age":          v.Age,
		"systolic_bp":  v.SystolicBP,
		"diastolic_bp": v.DiastolicBP,
		"blood_sugar":  v.BloodSugar,
		"body_temp":    v.BodyTemp,
		"heart_rate":   v.HeartRate,
		"blood_group":  v.BloodGroup.String(),
	}
}
