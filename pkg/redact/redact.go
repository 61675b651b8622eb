// Package redact masks contact details in transcript text before it is
// logged or written to disk. Personas recite callback numbers and email
// addresses as part of the role-play; when redaction is on those never
// leave the process in the clear.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// SetEnabled toggles redaction process-wide; wired from the
// privacy.redact_pii config key at startup.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Text masks emails and phone numbers in one transcript turn. A no-op
// when redaction is off.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}
