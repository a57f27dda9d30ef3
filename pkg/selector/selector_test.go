package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/policy"
)

func newSelector(globalFloor float64) *Selector {
	table := policy.NewTable()
	resolver := policy.NewResolver(table, policy.NewOverrideStore())
	return New(resolver, policy.NewBander(table), globalFloor, nil)
}

func justdialHit(confidence float64) contracts.Hit {
	return contracts.Hit{
		Broker:     "justdial",
		URL:        "https://www.justdial.com/Pune/some-listing",
		Confidence: confidence,
		Preview:    contracts.IdentityPreview{Name: "A. Person", City: "Pune"},
	}
}

func TestConfidenceGating(t *testing.T) {
	s := newSelector(0)

	// Justdial floor is 0.84: 0.90 passes, 0.80 does not.
	accepted, rejected := s.Select([]contracts.Hit{justdialHit(0.90), justdialHit(0.80)}, "", 0)

	require.Len(t, accepted, 1)
	assert.InDelta(t, 0.90, accepted[0].Hit.Confidence, 1e-9)
	assert.Equal(t, "justdial", accepted[0].ControllerID)
	assert.Equal(t, contracts.BandHigh, accepted[0].Band)
	assert.Equal(t,
		[]string{"auto-prepare-ok", "confidence-ok", "domain-allowed", "rationale-clean"},
		accepted[0].Reasons)

	require.Len(t, rejected, 1)
	assert.Equal(t, "below-min:0.80<0.84", rejected[0].Reason)
}

func TestGlobalFloorTightens(t *testing.T) {
	s := newSelector(0.95)

	_, rejected := s.Select([]contracts.Hit{justdialHit(0.90)}, "", 0)
	require.Len(t, rejected, 1)
	assert.Equal(t, "below-min:0.90<0.95", rejected[0].Reason)
}

func TestAutoPrepareGate(t *testing.T) {
	table := policy.NewTable()
	table.Put(&contracts.ControllerCapability{
		ControllerID:         "manual-only",
		Domains:              []string{"manualonly.example"},
		CanAutoPrepare:       false,
		AllowedChannels:      []contracts.Channel{contracts.ChannelEmail},
		DefaultMinConfidence: 0.5,
	})
	resolver := policy.NewResolver(table, policy.NewOverrideStore())
	s := New(resolver, policy.NewBander(table), 0, nil)

	hit := contracts.Hit{
		URL:        "https://manualonly.example/profile",
		Confidence: 0.99,
	}
	accepted, rejected := s.Select([]contracts.Hit{hit}, "", 0)
	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Equal(t, "auto-prepare-disabled", rejected[0].Reason)
}

func TestDomainAllowList(t *testing.T) {
	s := newSelector(0)

	hit := contracts.Hit{
		// Explicit adapter tag, but the URL is off the allow-list.
		Adapter:    "justdial",
		URL:        "https://evil.example/phish",
		Confidence: 0.95,
	}
	accepted, rejected := s.Select([]contracts.Hit{hit}, "", 0)
	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Equal(t, "domain-not-allowed", rejected[0].Reason)
}

func TestAmbiguousRationaleBlocked(t *testing.T) {
	s := newSelector(0)

	hit := justdialHit(0.95)
	hit.Why = []string{"exact name match", "Possible duplicate of another listing"}

	accepted, rejected := s.Select([]contracts.Hit{hit}, "", 0)
	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Equal(t, "ambiguous-rationale:possible duplicate", rejected[0].Reason)
}

func TestRegionTightensFloor(t *testing.T) {
	s := newSelector(0)

	hit := contracts.Hit{
		Adapter:    "truecaller",
		URL:        "https://www.truecaller.com/search/someone",
		Confidence: 0.89,
	}

	accepted, _ := s.Select([]contracts.Hit{hit}, "", 0)
	require.Len(t, accepted, 1, "0.89 clears the 0.88 default floor")

	_, rejected := s.Select([]contracts.Hit{hit}, "EU", 0)
	require.Len(t, rejected, 1, "EU floor is 0.90")
	assert.Equal(t, "below-min:0.89<0.90", rejected[0].Reason)
}

func TestHitRegionOverridesCallerRegion(t *testing.T) {
	s := newSelector(0)

	hit := contracts.Hit{
		Adapter:    "truecaller",
		URL:        "https://www.truecaller.com/search/someone",
		Confidence: 0.89,
		Region:     "EU",
	}
	_, rejected := s.Select([]contracts.Hit{hit}, "IN", 0)
	require.Len(t, rejected, 1)
	assert.Equal(t, "below-min:0.89<0.90", rejected[0].Reason)
}

func TestRankingAndTruncation(t *testing.T) {
	s := newSelector(0)

	sulekha := contracts.Hit{
		URL:        "https://www.sulekha.com/profile/x",
		Confidence: 0.90,
	}
	jd := justdialHit(0.90)
	jdLower := justdialHit(0.88)

	accepted, _ := s.Select([]contracts.Hit{sulekha, jdLower, jd}, "", 2)
	require.Len(t, accepted, 2)
	// Equal confidence: justdial outranks sulekha by adapter priority.
	assert.Equal(t, "justdial", accepted[0].ControllerID)
	assert.InDelta(t, 0.90, accepted[0].Hit.Confidence, 1e-9)
	assert.Equal(t, "sulekha", accepted[1].ControllerID)
}

func TestUnknownDomainFallsToGeneric(t *testing.T) {
	table := policy.NewTable()
	resolver := policy.NewResolver(table, policy.NewOverrideStore())
	// Allow-list includes a domain no capability entry declares.
	s := New(resolver, policy.NewBander(table), 0, []string{"obscuredirectory.example"})

	hit := contracts.Hit{
		URL:        "https://obscuredirectory.example/people/1",
		Confidence: 0.93,
	}
	accepted, _ := s.Select([]contracts.Hit{hit}, "", 0)
	require.Len(t, accepted, 1)
	assert.Equal(t, policy.GenericControllerID, accepted[0].ControllerID)
	// Generic is email-only with a 0.92 floor.
	assert.Equal(t, contracts.ChannelEmail, accepted[0].Policy.PreferredChannel)
}
