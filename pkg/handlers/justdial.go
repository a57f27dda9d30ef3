package handlers

import (
	"context"
	"fmt"

	"github.com/delist-labs/delist/pkg/automation"
	"github.com/delist-labs/delist/pkg/contracts"
)

const justdialFeedbackURL = "https://www.justdial.com/Feedback"

// JustdialHandler drives the Justdial listing-removal feedback form.
type JustdialHandler struct{}

// NewJustdialHandler returns the Justdial strategy.
func NewJustdialHandler() *JustdialHandler { return &JustdialHandler{} }

func (h *JustdialHandler) Key() string       { return "justdial" }
func (h *JustdialHandler) Domains() []string { return []string{"justdial.com"} }

func (h *JustdialHandler) ResolveURL(job *contracts.WebformJob, profile *contracts.ControllerProfile) string {
	return resolveURL(job, profile, justdialFeedbackURL)
}

func (h *JustdialHandler) Run(ctx context.Context, session automation.Session, job *contracts.WebformJob, profile *contracts.ControllerProfile) Result {
	url := h.ResolveURL(job, profile)
	if err := session.Navigate(ctx, url); err != nil {
		return Failure(fmt.Sprintf("navigate: %v", err))
	}

	// Justdial's feedback form keeps its ids stable; the profile can still
	// override when they drift.
	steps := []struct {
		field     string
		selectors []string
		value     string
	}{
		{"name", []string{`#name`, `input[name="name"]`}, job.Payload.Name},
		{"email", []string{`#email`, `input[name="email"]`}, job.Payload.Email},
		{"phone", []string{`#mobile`, `input[name="mobile"]`}, job.Payload.Phone},
		{"message", []string{`#feedback`, `textarea[name="feedback"]`, `textarea`}, job.Payload.Message},
	}
	for _, st := range steps {
		if st.value == "" {
			continue
		}
		selectors := st.selectors
		if profile != nil {
			if sel, ok := profile.FieldSelectors[st.field]; ok && sel != "" {
				selectors = append([]string{sel}, selectors...)
			}
		}
		if err := session.Fill(ctx, selectors, st.value); err != nil {
			return Failure(fmt.Sprintf("fill %s: %v", st.field, err))
		}
	}

	submit := []string{`#submitbtn`, `button[type="submit"]`, `input[type="submit"]`}
	if profile != nil && len(profile.SubmitSelectors) > 0 {
		submit = append(append([]string(nil), profile.SubmitSelectors...), submit...)
	}
	if err := session.Click(ctx, submit); err != nil {
		return Failure(fmt.Sprintf("submit control: %v", err))
	}

	html, err := session.Content(ctx)
	if err != nil {
		return Failure(fmt.Sprintf("post-submit content: %v", err))
	}
	return Result{OK: true, Confirmation: confirmationSnippet(html)}
}
