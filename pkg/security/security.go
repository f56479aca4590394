// Package security provides validation, sanitization, and limits for the job pipeline.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/newsdesk/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobKindLength is the maximum length for job kinds
	MaxJobKindLength = 64

	// MaxPayloadSize is the maximum size in bytes for job payloads (1MB)
	MaxPayloadSize = 1 << 20

	// MaxAttempts is the hard limit for attempts per job
	MaxAttempts = 100

	// MaxConcurrency is the hard limit for worker concurrency
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxQueueNameLength is the maximum length for queue names
	MaxQueueNameLength = 255

	// MaxUniqueKeyLength is the maximum length for unique keys
	MaxUniqueKeyLength = 255
)

// validName matches alphanumeric, hyphens, underscores, and dots
var validName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// secretPatterns match credentials that HTTP client errors tend to echo back.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_\-]+`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)=[^&\s"]+`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\._\-]+`),
}

// ValidateJobKind validates a job kind
func ValidateJobKind(kind core.JobKind) error {
	if kind == "" {
		return core.ErrInvalidJobKind
	}
	if len(kind) > MaxJobKindLength {
		return core.ErrJobKindTooLong
	}
	if !validName.MatchString(string(kind)) {
		return core.ErrInvalidJobKind
	}
	return nil
}

// ValidateQueueName validates a queue name
func ValidateQueueName(name string) error {
	if name == "" {
		return core.ErrInvalidQueueName
	}
	if len(name) > MaxQueueNameLength {
		return core.ErrQueueNameTooLong
	}
	if !validName.MatchString(name) {
		return core.ErrInvalidQueueName
	}
	return nil
}

// ValidatePayloadSize rejects payloads above MaxPayloadSize.
func ValidatePayloadSize(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return core.ErrJobPayloadTooLarge
	}
	return nil
}

// SanitizeErrorMessage redacts credentials, strips control characters and
// truncates error messages for storage.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	for _, p := range secretPatterns {
		msg = p.ReplaceAllStringFunc(msg, redact)
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

func redact(match string) string {
	if i := strings.IndexAny(match, "=: "); i >= 0 && !strings.HasPrefix(match, "bot") {
		return match[:i+1] + "[REDACTED]"
	}
	return "[REDACTED]"
}

// ClampAttempts ensures the attempt budget is within limits. Every job gets at
// least one attempt.
func ClampAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// ValidateUniqueKey validates a unique key length
func ValidateUniqueKey(key string) error {
	if len(key) > MaxUniqueKeyLength {
		return core.ErrUniqueKeyTooLong
	}
	return nil
}
