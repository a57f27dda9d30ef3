package policy

import (
	"sync"

	"github.com/delist-labs/delist/pkg/contracts"
)

// Override is a partial policy adjustment. Nil/empty fields leave the lower
// layer untouched.
type Override struct {
	PreferredChannel  contracts.Channel   `json:"preferred_channel,omitempty"`
	AllowedChannels   []contracts.Channel `json:"allowed_channels,omitempty"`
	MinConfidence     *float64            `json:"min_confidence,omitempty"`
	CanAutoPrepare    *bool               `json:"can_auto_prepare,omitempty"`
	CanAutoSubmit     *bool               `json:"can_auto_submit,omitempty"`
	SLAAckMinutes     *int                `json:"sla_ack_minutes,omitempty"`
	SLAResolveMinutes *int                `json:"sla_resolve_minutes,omitempty"`
	FollowupEveryDays *int                `json:"followup_every_days,omitempty"`
}

// OverrideStore holds live operator overrides keyed by controller id.
// Mutable at runtime; reads vastly outnumber writes.
type OverrideStore struct {
	mu        sync.RWMutex
	overrides map[string]*Override
}

// NewOverrideStore returns an empty store.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{overrides: make(map[string]*Override)}
}

// Set installs (or replaces) the live override for a controller.
func (s *OverrideStore) Set(controllerID string, o *Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[controllerID] = o
}

// Clear removes the live override for a controller.
func (s *OverrideStore) Clear(controllerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, controllerID)
}

// Get returns the live override for a controller, or nil.
func (s *OverrideStore) Get(controllerID string) *Override {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overrides[controllerID]
}

// apply layers an override onto a policy, in place.
func (o *Override) apply(p *contracts.EffectivePolicy) {
	if o == nil {
		return
	}
	if o.PreferredChannel != "" {
		p.PreferredChannel = o.PreferredChannel
	}
	if len(o.AllowedChannels) > 0 {
		p.AllowedChannels = append([]contracts.Channel(nil), o.AllowedChannels...)
	}
	if o.MinConfidence != nil {
		p.MinConfidence = *o.MinConfidence
	}
	if o.CanAutoPrepare != nil {
		p.CanAutoPrepare = *o.CanAutoPrepare
	}
	if o.CanAutoSubmit != nil {
		p.CanAutoSubmit = *o.CanAutoSubmit
	}
	if o.SLAAckMinutes != nil {
		p.SLAAckMinutes = *o.SLAAckMinutes
	}
	if o.SLAResolveMinutes != nil {
		p.SLAResolveMinutes = *o.SLAResolveMinutes
	}
	if o.FollowupEveryDays != nil {
		p.FollowupEveryDays = *o.FollowupEveryDays
	}
}
