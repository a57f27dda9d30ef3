package scrub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMasksLongDigitRuns(t *testing.T) {
	s := New()

	assert.Equal(t, "account [REDACTED_NUMBER] closed", s.Text("account 123456789 closed"))
	assert.Equal(t, "card [REDACTED_NUMBER]", s.Text("card 4111 1111 1111 1111"))
	assert.Equal(t, "ref [REDACTED_NUMBER]", s.Text("ref 12-34-56-78-90"))
}

func TestShortDigitRunsSurvive(t *testing.T) {
	s := New()

	// Eight digits is below the masking threshold.
	assert.Equal(t, "pin 12345678 ok", s.Text("pin 12345678 ok"))
	assert.Equal(t, "call at 4pm", s.Text("call at 4pm"))
}

func TestMasksCredentialTokens(t *testing.T) {
	s := New()

	for _, in := range []string{
		"password=hunter2",
		"PASSWORD: hunter2",
		"api_key=abc123def",
		"api-key: abc123def",
		"token=eyJhbGciOi",
		"secret: s3cret",
	} {
		out := s.Text(in)
		assert.Contains(t, out, "[REDACTED_CREDENTIAL]", "input %q", in)
		assert.NotContains(t, out, "hunter2")
	}
}

func TestEmailsSurviveByDefault(t *testing.T) {
	s := New()
	assert.Equal(t, "reply to me@example.com", s.Text("reply to me@example.com"))
}

func TestEmailMaskingOption(t *testing.T) {
	s := New(WithEmailMasking())
	assert.Equal(t, "reply to [REDACTED_EMAIL]", s.Text("reply to me@example.com"))
}

func TestSubjectAndBodyCaps(t *testing.T) {
	s := New()

	long := strings.Repeat("a", 200)
	assert.Len(t, s.Subject(long, 140), 140)
	assert.Equal(t, long, s.Body(long, 1800))
	assert.Equal(t, long, s.Subject(long, 0), "zero cap means uncapped")
}
