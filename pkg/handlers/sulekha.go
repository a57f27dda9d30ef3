package handlers

import (
	"context"
	"fmt"

	"github.com/delist-labs/delist/pkg/automation"
	"github.com/delist-labs/delist/pkg/contracts"
)

const sulekhaGrievanceURL = "https://www.sulekha.com/grievance"

// SulekhaHandler drives the Sulekha grievance form.
type SulekhaHandler struct{}

// NewSulekhaHandler returns the Sulekha strategy.
func NewSulekhaHandler() *SulekhaHandler { return &SulekhaHandler{} }

func (h *SulekhaHandler) Key() string       { return "sulekha" }
func (h *SulekhaHandler) Domains() []string { return []string{"sulekha.com"} }

func (h *SulekhaHandler) ResolveURL(job *contracts.WebformJob, profile *contracts.ControllerProfile) string {
	return resolveURL(job, profile, sulekhaGrievanceURL)
}

func (h *SulekhaHandler) Run(ctx context.Context, session automation.Session, job *contracts.WebformJob, profile *contracts.ControllerProfile) Result {
	url := h.ResolveURL(job, profile)
	if err := session.Navigate(ctx, url); err != nil {
		return Failure(fmt.Sprintf("navigate: %v", err))
	}

	steps := []struct {
		field     string
		selectors []string
		value     string
	}{
		{"name", []string{`input[name="username"]`, `input[name="name"]`}, job.Payload.Name},
		{"email", []string{`input[name="emailid"]`, `input[type="email"]`}, job.Payload.Email},
		{"phone", []string{`input[name="mobileno"]`, `input[type="tel"]`}, job.Payload.Phone},
		{"message", []string{`textarea[name="grievance"]`, `textarea`}, job.Payload.Message},
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
			// Sulekha hides phone behind a login on some variants.
			if st.field == "message" || st.field == "email" {
				return Failure(fmt.Sprintf("fill %s: %v", st.field, err))
			}
		}
	}

	submit := []string{`button.submit-grievance`, `button[type="submit"]`, `input[type="submit"]`}
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
