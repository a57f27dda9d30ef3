package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delist-labs/delist/pkg/contracts"
)

func TestRegistryMatch(t *testing.T) {
	r := NewRegistry()

	// Exact controller id wins.
	h := r.Match("justdial", "")
	require.NotNil(t, h)
	assert.Equal(t, "justdial", h.Key())

	h = r.Match("sulekha", "https://justdial.com/somewhere")
	require.NotNil(t, h)
	assert.Equal(t, "sulekha", h.Key(), "key match beats domain match")

	// Unknown id falls through to a domain substring match.
	h = r.Match("scraped-9f2", "https://www.Sulekha.com/grievance")
	require.NotNil(t, h)
	assert.Equal(t, "sulekha", h.Key())

	// No key, no domain: nothing to run.
	assert.Nil(t, r.Match("scraped-9f2", "https://nowhere.example/form"))
}

func TestResolveURLPrecedence(t *testing.T) {
	profile := &contracts.ControllerProfile{
		CandidateFormURLs: []string{"https://profile.example/form-a", "https://profile.example/form-b"},
	}

	job := &contracts.WebformJob{TargetURL: "https://job.example/form"}
	assert.Equal(t, "https://job.example/form", resolveURL(job, profile, "https://default.example"))

	assert.Equal(t, "https://profile.example/form-a",
		resolveURL(&contracts.WebformJob{}, profile, "https://default.example"))

	assert.Equal(t, "https://default.example",
		resolveURL(&contracts.WebformJob{}, nil, "https://default.example"))

	assert.Equal(t, "", resolveURL(nil, nil, ""))
}

func TestProfileStoreLookup(t *testing.T) {
	s := NewProfileStore()
	s.Put(&contracts.ControllerProfile{
		ControllerID: "acme-directory",
		Domains:      []string{"acme.example"},
		ThrottleMs:   2000,
	})

	p := s.Lookup("acme-directory", "")
	require.NotNil(t, p)
	assert.Equal(t, 2000, p.ThrottleMs)

	p = s.Lookup("other", "https://www.ACME.example/contact")
	require.NotNil(t, p, "domain substring match is case-insensitive")

	assert.Nil(t, s.Lookup("other", "https://elsewhere.example"))
}
