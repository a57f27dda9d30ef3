package policy

import (
	"github.com/delist-labs/delist/pkg/contracts"
)

// Resolver computes the effective policy for one controller+region.
//
// Merge precedence, lowest to highest:
//
//	compiled default → capability-table entry → per-region confidence
//	override → live operator override → explicit caller override
//
// Resolve never fails; missing data degrades to the generic entry.
type Resolver struct {
	table     *Table
	overrides *OverrideStore
}

// NewResolver builds a resolver over the given table and live overrides.
func NewResolver(table *Table, overrides *OverrideStore) *Resolver {
	return &Resolver{table: table, overrides: overrides}
}

// Table exposes the backing capability table.
func (r *Resolver) Table() *Table { return r.table }

// Resolve merges all layers into a single EffectivePolicy value.
// caller may be nil.
func (r *Resolver) Resolve(controllerID, region string, caller *Override) contracts.EffectivePolicy {
	p := defaultPolicy(controllerID, region)

	cap, _ := r.table.Lookup(controllerID)
	if cap != nil {
		applyCapability(&p, cap)

		// Region layers. Confidence floors and follow-up cadence come
		// from separately keyed tables and must never cross-feed.
		if region != "" {
			if floor, ok := cap.RegionMinConfidence[region]; ok {
				p.MinConfidence = floor
			}
			if days, ok := cap.RegionFollowupDays[region]; ok {
				p.FollowupEveryDays = days
			}
		}
	}

	if r.overrides != nil {
		r.overrides.Get(controllerID).apply(&p)
	}
	caller.apply(&p)

	if p.PreferredChannel == "" || !p.Allows(p.PreferredChannel) {
		// A preferred channel outside the allowed set is a config smell;
		// degrade to the first allowed channel.
		if len(p.AllowedChannels) > 0 {
			p.PreferredChannel = p.AllowedChannels[0]
		}
	}
	return p
}

// defaultPolicy is the compiled-in lowest layer.
func defaultPolicy(controllerID, region string) contracts.EffectivePolicy {
	return contracts.EffectivePolicy{
		ControllerID:      controllerID,
		Region:            region,
		CanAutoPrepare:    false,
		CanAutoSubmit:     false,
		PreferredChannel:  contracts.ChannelEmail,
		AllowedChannels:   []contracts.Channel{contracts.ChannelEmail},
		MinConfidence:     0.92,
		SLAAckMinutes:     4320,
		SLAResolveMinutes: 43200,
		FollowupEveryDays: 14,
		MaxFollowups:      2,
	}
}

func applyCapability(p *contracts.EffectivePolicy, cap *contracts.ControllerCapability) {
	p.CanAutoPrepare = cap.CanAutoPrepare
	p.CanAutoSubmit = cap.CanAutoSubmit
	if len(cap.AllowedChannels) > 0 {
		p.AllowedChannels = append([]contracts.Channel(nil), cap.AllowedChannels...)
	}
	if cap.PreferredChannel != "" {
		p.PreferredChannel = cap.PreferredChannel
	}
	if cap.DefaultMinConfidence > 0 {
		p.MinConfidence = cap.DefaultMinConfidence
	}
	if cap.SLAAckMinutes > 0 {
		p.SLAAckMinutes = cap.SLAAckMinutes
	}
	if cap.SLAResolveMinutes > 0 {
		p.SLAResolveMinutes = cap.SLAResolveMinutes
	}
	if cap.FollowupEveryDays > 0 {
		p.FollowupEveryDays = cap.FollowupEveryDays
	}
	if cap.MaxFollowups > 0 {
		p.MaxFollowups = cap.MaxFollowups
	}
}
