package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/delist-labs/delist/pkg/automation"
	"github.com/delist-labs/delist/pkg/contracts"
)

// GenericHandler drives any removal form described by a ControllerProfile's
// selectors. It is the fallback strategy for controllers without a dedicated
// handler.
type GenericHandler struct{}

// NewGenericHandler returns the profile-driven fallback handler.
func NewGenericHandler() *GenericHandler { return &GenericHandler{} }

func (h *GenericHandler) Key() string       { return "generic" }
func (h *GenericHandler) Domains() []string { return nil }

func (h *GenericHandler) ResolveURL(job *contracts.WebformJob, profile *contracts.ControllerProfile) string {
	return resolveURL(job, profile, "")
}

// defaultFieldSelectors are tried when the profile names none. Ordered from
// most to least specific.
var defaultFieldSelectors = map[string][]string{
	"name":    {`input[name="name"]`, `input[name="fullname"]`, `input[id*="name"]`},
	"email":   {`input[type="email"]`, `input[name="email"]`, `input[id*="email"]`},
	"phone":   {`input[type="tel"]`, `input[name="phone"]`, `input[name="mobile"]`},
	"message": {`textarea[name="message"]`, `textarea[name="comments"]`, `textarea`},
}

var defaultSubmitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button[id*="submit"]`,
}

func (h *GenericHandler) Run(ctx context.Context, session automation.Session, job *contracts.WebformJob, profile *contracts.ControllerProfile) Result {
	url := h.ResolveURL(job, profile)
	if url == "" {
		return PermanentFailure("no submission URL resolvable")
	}
	if profile != nil && profile.CaptchaKind != "" {
		// CAPTCHA-gated forms cannot be driven unattended.
		return PermanentFailure(fmt.Sprintf("target requires %s captcha", profile.CaptchaKind))
	}

	if err := session.Navigate(ctx, url); err != nil {
		return Failure(fmt.Sprintf("navigate: %v", err))
	}

	fields := []struct {
		key   string
		value string
	}{
		{"name", job.Payload.Name},
		{"email", job.Payload.Email},
		{"phone", job.Payload.Phone},
		{"message", job.Payload.Message},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := session.Fill(ctx, h.selectorsFor(profile, f.key), f.value); err != nil {
			// Optional fields may simply not exist on this form; only
			// the message is load-bearing.
			if f.key == "message" {
				return Failure(fmt.Sprintf("fill %s: %v", f.key, err))
			}
		}
	}

	if err := session.Click(ctx, h.submitSelectors(profile)); err != nil {
		return Failure(fmt.Sprintf("submit control: %v", err))
	}

	html, err := session.Content(ctx)
	if err != nil {
		return Failure(fmt.Sprintf("post-submit content: %v", err))
	}
	return Result{OK: true, Confirmation: confirmationSnippet(html)}
}

func (h *GenericHandler) selectorsFor(profile *contracts.ControllerProfile, field string) []string {
	if profile != nil {
		if sel, ok := profile.FieldSelectors[field]; ok && sel != "" {
			return append([]string{sel}, defaultFieldSelectors[field]...)
		}
	}
	return defaultFieldSelectors[field]
}

func (h *GenericHandler) submitSelectors(profile *contracts.ControllerProfile) []string {
	if profile != nil && len(profile.SubmitSelectors) > 0 {
		return append(append([]string(nil), profile.SubmitSelectors...), defaultSubmitSelectors...)
	}
	return defaultSubmitSelectors
}

// confirmationSnippet pulls a short acknowledgement phrase out of the
// post-submit page, if one is present.
func confirmationSnippet(html string) string {
	lower := strings.ToLower(html)
	for _, marker := range []string{"thank you", "we have received", "request submitted", "successfully"} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			end := idx + 160
			if end > len(html) {
				end = len(html)
			}
			return strings.TrimSpace(html[idx:end])
		}
	}
	return ""
}
