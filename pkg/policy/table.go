// Package policy resolves what may be attempted against a controller and
// how. It merges the static capability table, per-region overrides, live
// operator overrides, and explicit caller overrides into one EffectivePolicy
// value with a documented precedence order.
package policy

import (
	"strings"
	"sync"

	"github.com/delist-labs/delist/pkg/contracts"
)

// GenericControllerID is the capability entry used when a controller has no
// entry of its own. Conservative: email only, high confidence floor.
const GenericControllerID = "generic"

// Table holds the per-controller capability entries. Reference data:
// mutations happen only through operator bundle reloads.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*contracts.ControllerCapability
}

// NewTable returns a table seeded with the built-in entries.
func NewTable() *Table {
	t := &Table{entries: make(map[string]*contracts.ControllerCapability)}
	for _, c := range builtinCapabilities() {
		t.entries[c.ControllerID] = c
	}
	return t
}

// Put inserts or replaces an entry.
func (t *Table) Put(c *contracts.ControllerCapability) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[c.ControllerID] = c
}

// Lookup returns the entry for controllerID, or the generic entry when the
// controller is unknown. The second return reports whether the controller
// had its own entry.
func (t *Table) Lookup(controllerID string) (*contracts.ControllerCapability, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.entries[controllerID]; ok {
		return c, true
	}
	return t.entries[GenericControllerID], false
}

// MatchDomain returns the controller id whose declared domains contain a
// substring of rawURL, or "" when none match.
func (t *Table) MatchDomain(rawURL string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	lower := strings.ToLower(rawURL)
	for id, c := range t.entries {
		if id == GenericControllerID {
			continue
		}
		for _, d := range c.Domains {
			if d != "" && strings.Contains(lower, strings.ToLower(d)) {
				return id
			}
		}
	}
	return ""
}

// Domains returns every domain declared by any entry.
func (t *Table) Domains() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var domains []string
	for _, c := range t.entries {
		domains = append(domains, c.Domains...)
	}
	return domains
}

// IDs returns all known controller ids.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	return ids
}

// builtinCapabilities is the compiled-in seed set. Operators extend or
// replace these via YAML bundles.
func builtinCapabilities() []*contracts.ControllerCapability {
	return []*contracts.ControllerCapability{
		{
			ControllerID:         "justdial",
			DisplayName:          "Justdial",
			Domains:              []string{"justdial.com"},
			CanAutoPrepare:       true,
			CanAutoSubmit:        true,
			AllowedChannels:      []contracts.Channel{contracts.ChannelWebform, contracts.ChannelEmail},
			PreferredChannel:     contracts.ChannelWebform,
			DefaultMinConfidence: 0.84,
			ThresholdHigh:        0.90,
			ThresholdMedium:      0.82,
			FollowupEveryDays:    7,
			MaxFollowups:         3,
			SLAAckMinutes:        2880,
			SLAResolveMinutes:    20160,
		},
		{
			ControllerID:         "sulekha",
			DisplayName:          "Sulekha",
			Domains:              []string{"sulekha.com"},
			CanAutoPrepare:       true,
			CanAutoSubmit:        true,
			AllowedChannels:      []contracts.Channel{contracts.ChannelWebform, contracts.ChannelEmail},
			PreferredChannel:     contracts.ChannelWebform,
			DefaultMinConfidence: 0.86,
			FollowupEveryDays:    7,
			MaxFollowups:         3,
			SLAAckMinutes:        2880,
			SLAResolveMinutes:    20160,
		},
		{
			ControllerID:         "truecaller",
			DisplayName:          "Truecaller",
			Domains:              []string{"truecaller.com"},
			CanAutoPrepare:       true,
			CanAutoSubmit:        false,
			AllowedChannels:      []contracts.Channel{contracts.ChannelEmail},
			PreferredChannel:     contracts.ChannelEmail,
			DefaultMinConfidence: 0.88,
			RegionMinConfidence:  map[string]float64{"EU": 0.90},
			FollowupEveryDays:    14,
			MaxFollowups:         2,
			SLAAckMinutes:        4320,
			SLAResolveMinutes:    43200,
		},
		{
			ControllerID:         GenericControllerID,
			DisplayName:          "Generic controller",
			CanAutoPrepare:       true,
			CanAutoSubmit:        false,
			AllowedChannels:      []contracts.Channel{contracts.ChannelEmail},
			PreferredChannel:     contracts.ChannelEmail,
			DefaultMinConfidence: 0.92,
			FollowupEveryDays:    14,
			MaxFollowups:         2,
			SLAAckMinutes:        4320,
			SLAResolveMinutes:    43200,
		},
	}
}

// AdapterPriority is the fixed tie-break order used when two candidates have
// the same confidence score. Lower index wins. Unknown adapters sort last.
var AdapterPriority = []string{"justdial", "sulekha", "truecaller", GenericControllerID}

// AdapterRank returns the priority index for an adapter id.
func AdapterRank(id string) int {
	for i, a := range AdapterPriority {
		if a == id {
			return i
		}
	}
	return len(AdapterPriority)
}
