package policy

import "github.com/delist-labs/delist/pkg/contracts"

// Fallback banding thresholds, used when a controller declares none.
const (
	DefaultThresholdHigh   = 0.88
	DefaultThresholdMedium = 0.80
)

// Bander maps numeric match scores to qualitative bands using
// controller-specific thresholds. Pure computation, no I/O.
type Bander struct {
	table *Table
}

// NewBander returns a bander over the given capability table.
func NewBander(table *Table) *Bander {
	return &Bander{table: table}
}

// Band clamps score to [0,1] and compares it against the controller's
// thresholds, falling back to the package defaults when unset.
func (b *Bander) Band(score float64, controllerID string) contracts.ConfidenceBand {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	high, medium := DefaultThresholdHigh, DefaultThresholdMedium
	if cap, ok := b.table.Lookup(controllerID); ok {
		if cap.ThresholdHigh > 0 {
			high = cap.ThresholdHigh
		}
		if cap.ThresholdMedium > 0 {
			medium = cap.ThresholdMedium
		}
	}

	switch {
	case score >= high:
		return contracts.BandHigh
	case score >= medium:
		return contracts.BandMedium
	default:
		return contracts.BandLow
	}
}
