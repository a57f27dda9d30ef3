package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/delist-labs/delist/pkg/contracts"
)

func TestBandDefaults(t *testing.T) {
	b := NewBander(NewTable())

	// Unknown controller falls back to 0.88/0.80.
	assert.Equal(t, contracts.BandHigh, b.Band(0.88, "unknown"))
	assert.Equal(t, contracts.BandMedium, b.Band(0.80, "unknown"))
	assert.Equal(t, contracts.BandMedium, b.Band(0.879, "unknown"))
	assert.Equal(t, contracts.BandLow, b.Band(0.799, "unknown"))
}

func TestBandControllerThresholds(t *testing.T) {
	b := NewBander(NewTable())

	// Justdial declares 0.90/0.82.
	assert.Equal(t, contracts.BandHigh, b.Band(0.90, "justdial"))
	assert.Equal(t, contracts.BandMedium, b.Band(0.89, "justdial"))
	assert.Equal(t, contracts.BandMedium, b.Band(0.82, "justdial"))
	assert.Equal(t, contracts.BandLow, b.Band(0.81, "justdial"))
}

func TestBandClamps(t *testing.T) {
	b := NewBander(NewTable())

	assert.Equal(t, contracts.BandLow, b.Band(-3.0, "unknown"))
	assert.Equal(t, contracts.BandHigh, b.Band(1.7, "unknown"))
}

func TestMatchDomain(t *testing.T) {
	table := NewTable()

	assert.Equal(t, "justdial", table.MatchDomain("https://www.justdial.com/Pune/listing"))
	assert.Equal(t, "sulekha", table.MatchDomain("https://sulekha.com/profile/x"))
	assert.Equal(t, "", table.MatchDomain("https://example.org/person"))
}

func TestAdapterRank(t *testing.T) {
	assert.Less(t, AdapterRank("justdial"), AdapterRank("sulekha"))
	assert.Less(t, AdapterRank("truecaller"), AdapterRank(GenericControllerID))
	assert.Equal(t, len(AdapterPriority), AdapterRank("unheard-of"))
}
