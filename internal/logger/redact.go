package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor scrubs credentials from log messages and fields.
type Redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

// DefaultRedactor covers auth headers, object storage keys and cookie
// material handed to the extractor.
func DefaultRedactor() *Redactor {
	return NewRedactor(
		[]string{
			"password", "token", "secret", "authorization", "cookie", "cookies",
			"api_key", "access_key", "secret_key", "session", "sessionid",
		},
		[]*regexp.Regexp{
			regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
			regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`),
			regexp.MustCompile(`(?i)((?:SAPISID|APISID|__Secure-[13]P?A?PSID|LOGIN_INFO|sessionid)=)[^;\s]+`),
		},
	)
}

// NewRedactor builds a redactor from sensitive field names and message patterns.
func NewRedactor(keys []string, patterns []*regexp.Regexp) *Redactor {
	r := &Redactor{keys: make(map[string]struct{}, len(keys)), patterns: patterns}
	for _, k := range keys {
		r.keys[strings.ToLower(k)] = struct{}{}
	}
	return r
}

// Redact masks every pattern match in msg.
func (r *Redactor) Redact(msg string) string {
	for _, p := range r.patterns {
		if p.NumSubexp() > 0 {
			msg = p.ReplaceAllString(msg, "${1}"+redacted)
			continue
		}
		msg = p.ReplaceAllString(msg, redacted)
	}
	return msg
}

// RedactFields returns a copy of fields with sensitive values masked.
func (r *Redactor) RedactFields(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if r.sensitive(k) {
			out[k] = redacted
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = r.Redact(s)
			continue
		}
		out[k] = v
	}
	return out
}

func (r *Redactor) sensitive(key string) bool {
	k := strings.ToLower(key)
	if _, ok := r.keys[k]; ok {
		return true
	}
	for name := range r.keys {
		if strings.HasSuffix(k, "_"+name) {
			return true
		}
	}
	return false
}
