package contracts

import "time"

// ControllerCapability is the per-controller reference entry: what may be
// attempted automatically and under which confidence floor. Operator-editable
// reference data, immutable at runtime.
type ControllerCapability struct {
	ControllerID   string   `json:"controller_id" yaml:"controller_id"`
	DisplayName    string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Domains        []string `json:"domains,omitempty" yaml:"domains,omitempty"`
	CanAutoPrepare bool     `json:"can_auto_prepare" yaml:"can_auto_prepare"`
	CanAutoSubmit  bool     `json:"can_auto_submit" yaml:"can_auto_submit"`

	AllowedChannels  []Channel `json:"allowed_channels" yaml:"allowed_channels"`
	PreferredChannel Channel   `json:"preferred_channel,omitempty" yaml:"preferred_channel,omitempty"`

	DefaultMinConfidence float64 `json:"default_min_confidence" yaml:"default_min_confidence"`
	// Per-region confidence floors, keyed by region code. Kept strictly
	// separate from the follow-up cadence table below.
	RegionMinConfidence map[string]float64 `json:"region_min_confidence,omitempty" yaml:"region_min_confidence,omitempty"`

	ThresholdHigh   float64 `json:"threshold_high,omitempty" yaml:"threshold_high,omitempty"`
	ThresholdMedium float64 `json:"threshold_medium,omitempty" yaml:"threshold_medium,omitempty"`

	FollowupEveryDays int `json:"followup_every_days,omitempty" yaml:"followup_every_days,omitempty"`
	MaxFollowups      int `json:"max_followups,omitempty" yaml:"max_followups,omitempty"`
	// Per-region follow-up cadence override in days, keyed by region code.
	RegionFollowupDays map[string]int `json:"region_followup_days,omitempty" yaml:"region_followup_days,omitempty"`

	SLAAckMinutes     int `json:"sla_ack_minutes,omitempty" yaml:"sla_ack_minutes,omitempty"`
	SLAResolveMinutes int `json:"sla_resolve_minutes,omitempty" yaml:"sla_resolve_minutes,omitempty"`
}

// Allows reports whether ch is in the capability's allowed channel set.
func (c *ControllerCapability) Allows(ch Channel) bool {
	for _, a := range c.AllowedChannels {
		if a == ch {
			return true
		}
	}
	return false
}

// EffectivePolicy is the resolved view for one controller+region. Computed on
// demand by the policy resolver; never persisted.
type EffectivePolicy struct {
	ControllerID      string    `json:"controller_id"`
	Region            string    `json:"region,omitempty"`
	CanAutoPrepare    bool      `json:"can_auto_prepare"`
	CanAutoSubmit     bool      `json:"can_auto_submit"`
	PreferredChannel  Channel   `json:"preferred_channel"`
	AllowedChannels   []Channel `json:"allowed_channels"`
	MinConfidence     float64   `json:"min_confidence"`
	SLAAckMinutes     int       `json:"sla_ack_minutes"`
	SLAResolveMinutes int       `json:"sla_resolve_minutes"`
	FollowupEveryDays int       `json:"followup_every_days"`
	MaxFollowups      int       `json:"max_followups"`
}

// Allows reports whether ch is in the resolved allowed channel set.
func (p *EffectivePolicy) Allows(ch Channel) bool {
	for _, a := range p.AllowedChannels {
		if a == ch {
			return true
		}
	}
	return false
}

// Fallback returns the designated fallback channel: the first allowed
// channel that is not the preferred one, or "" when there is no alternative.
func (p *EffectivePolicy) Fallback() Channel {
	for _, a := range p.AllowedChannels {
		if a != p.PreferredChannel {
			return a
		}
	}
	return ""
}

// NextFollowupAt computes the next follow-up anchor from the resolved
// cadence. Zero cadence means no automatic follow-up.
func (p *EffectivePolicy) NextFollowupAt(from time.Time) time.Time {
	if p.FollowupEveryDays <= 0 {
		return time.Time{}
	}
	return from.AddDate(0, 0, p.FollowupEveryDays)
}

// ControllerProfile carries optional automation hints for one controller:
// selector candidates, CAPTCHA expectations, and submission throttling.
// Looked up by controller id, then domain, then adapter defaults.
type ControllerProfile struct {
	ControllerID      string            `json:"controller_id" yaml:"controller_id"`
	Domains           []string          `json:"domains,omitempty" yaml:"domains,omitempty"`
	FieldSelectors    map[string]string `json:"field_selectors,omitempty" yaml:"field_selectors,omitempty"`
	SubmitSelectors   []string          `json:"submit_selectors,omitempty" yaml:"submit_selectors,omitempty"`
	CaptchaKind       string            `json:"captcha_kind,omitempty" yaml:"captcha_kind,omitempty"`
	ThrottleMs        int               `json:"throttle_ms,omitempty" yaml:"throttle_ms,omitempty"`
	CandidateFormURLs []string          `json:"candidate_form_urls,omitempty" yaml:"candidate_form_urls,omitempty"`
}

// ConfidenceBand is the qualitative tier derived from a numeric match score.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)
