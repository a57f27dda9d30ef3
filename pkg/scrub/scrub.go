// Package scrub applies a conservative PII-scrubbing pass to draft content
// before it is persisted. Drafts arrive from an external generator and are
// treated as opaque text; scrubbing is defensive, not a parser.
package scrub

import (
	"regexp"
	"strings"
)

// Scrubber masks long digit runs and credential-looking key=value tokens.
type Scrubber struct {
	digitRun   *regexp.Regexp
	credential *regexp.Regexp
	email      *regexp.Regexp
	maskEmails bool
}

// Option configures a Scrubber.
type Option func(*Scrubber)

// WithEmailMasking also masks raw email addresses. Off by default: drafts
// legitimately carry the subject's contact address for the reply path.
func WithEmailMasking() Option {
	return func(s *Scrubber) { s.maskEmails = true }
}

// New returns a Scrubber with the default rules.
func New(opts ...Option) *Scrubber {
	s := &Scrubber{
		// Nine or more consecutive digits, allowing common separators.
		// Catches SSNs, card numbers, account numbers.
		digitRun: regexp.MustCompile(`\d[\d\- ]{7,}\d`),
		// key=value or key: value where the key smells like a secret.
		credential: regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api[_-]?key|auth)\s*[:=]\s*\S+`),
		email:      regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Text masks sensitive tokens in a free-text block.
func (s *Scrubber) Text(text string) string {
	out := s.digitRun.ReplaceAllStringFunc(text, func(m string) string {
		if countDigits(m) < 9 {
			return m
		}
		return "[REDACTED_NUMBER]"
	})
	out = s.credential.ReplaceAllString(out, "[REDACTED_CREDENTIAL]")
	if s.maskEmails {
		out = s.email.ReplaceAllString(out, "[REDACTED_EMAIL]")
	}
	return out
}

// Subject scrubs and caps a draft subject line.
func (s *Scrubber) Subject(subject string, maxLen int) string {
	return truncate(s.Text(subject), maxLen)
}

// Body scrubs and caps a draft body.
func (s *Scrubber) Body(body string, maxLen int) string {
	return truncate(s.Text(body), maxLen)
}

func truncate(text string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}
	cut := strings.ToValidUTF8(text[:maxLen], "")
	return cut
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
