// Package selector filters and ranks discovery hits into candidates that are
// eligible for automatic action creation. Every accept and reject carries a
// reason code so operators can audit why a hit did or did not turn into an
// action.
package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/policy"
)

// ambiguityBlocklist contains rationale phrases that mark a low-trust match.
// A hit whose rationale text contains any of these must not be auto-actioned.
var ambiguityBlocklist = []string{
	"different city",
	"possible duplicate",
	"name partially matches",
	"unverified",
	"stale listing",
}

// Candidate is an accepted hit, annotated with the resolution that accepted
// it.
type Candidate struct {
	Hit          contracts.Hit
	ControllerID string
	Policy       contracts.EffectivePolicy
	Band         contracts.ConfidenceBand
	Reasons      []string
}

// Rejection records why a hit was excluded.
type Rejection struct {
	Hit    contracts.Hit
	Reason string
}

// Selector applies the six gate steps from resolution to ranking.
type Selector struct {
	resolver *policy.Resolver
	bander   *policy.Bander

	// GlobalFloor is a caller-supplied minimum confidence applied on top
	// of the per-controller floor. The effective floor is the max of both.
	GlobalFloor float64

	// AllowedDomains is the URL allow-list. A hit whose URL contains none
	// of these is rejected.
	AllowedDomains []string
}

// New builds a selector with the default domain allow-list derived from the
// capability table's declared domains.
func New(resolver *policy.Resolver, bander *policy.Bander, globalFloor float64, allowedDomains []string) *Selector {
	if len(allowedDomains) == 0 {
		allowedDomains = resolver.Table().Domains()
	}
	return &Selector{
		resolver:       resolver,
		bander:         bander,
		GlobalFloor:    globalFloor,
		AllowedDomains: allowedDomains,
	}
}

// Select evaluates hits, returning at most maxCandidates accepted candidates
// ranked by descending confidence (ties broken by fixed adapter priority),
// plus every rejection with its reason.
func (s *Selector) Select(hits []contracts.Hit, region string, maxCandidates int) ([]Candidate, []Rejection) {
	var accepted []Candidate
	var rejected []Rejection

	for _, hit := range hits {
		cand, rej := s.evaluate(hit, region)
		if rej != nil {
			rejected = append(rejected, *rej)
			continue
		}
		accepted = append(accepted, *cand)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Hit.Confidence != accepted[j].Hit.Confidence {
			return accepted[i].Hit.Confidence > accepted[j].Hit.Confidence
		}
		return policy.AdapterRank(accepted[i].ControllerID) < policy.AdapterRank(accepted[j].ControllerID)
	})

	if maxCandidates > 0 && len(accepted) > maxCandidates {
		accepted = accepted[:maxCandidates]
	}
	return accepted, rejected
}

func (s *Selector) evaluate(hit contracts.Hit, region string) (*Candidate, *Rejection) {
	controllerID := s.resolveAdapter(hit)

	if hit.Region != "" {
		region = hit.Region
	}
	pol := s.resolver.Resolve(controllerID, region, nil)

	if !pol.CanAutoPrepare {
		return nil, &Rejection{Hit: hit, Reason: "auto-prepare-disabled"}
	}

	floor := pol.MinConfidence
	if s.GlobalFloor > floor {
		floor = s.GlobalFloor
	}
	if hit.Confidence < floor {
		return nil, &Rejection{
			Hit:    hit,
			Reason: fmt.Sprintf("below-min:%.2f<%.2f", hit.Confidence, floor),
		}
	}

	if !s.domainAllowed(hit.URL) {
		return nil, &Rejection{Hit: hit, Reason: "domain-not-allowed"}
	}

	if phrase := s.ambiguous(hit.Why); phrase != "" {
		return nil, &Rejection{Hit: hit, Reason: "ambiguous-rationale:" + phrase}
	}

	reasons := []string{
		"auto-prepare-ok",
		"confidence-ok",
		"domain-allowed",
		"rationale-clean",
	}
	return &Candidate{
		Hit:          hit,
		ControllerID: controllerID,
		Policy:       pol,
		Band:         s.bander.Band(hit.Confidence, controllerID),
		Reasons:      reasons,
	}, nil
}

// resolveAdapter picks the controller id for a hit: explicit tag first, then
// URL substring matching against the table's declared domains, then generic.
func (s *Selector) resolveAdapter(hit contracts.Hit) string {
	if hit.Adapter != "" {
		return hit.Adapter
	}
	if id := s.resolver.Table().MatchDomain(hit.URL); id != "" {
		return id
	}
	return policy.GenericControllerID
}

func (s *Selector) domainAllowed(rawURL string) bool {
	if len(s.AllowedDomains) == 0 {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, d := range s.AllowedDomains {
		if d != "" && strings.Contains(lower, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

func (s *Selector) ambiguous(why []string) string {
	for _, w := range why {
		lower := strings.ToLower(w)
		for _, phrase := range ambiguityBlocklist {
			if strings.Contains(lower, phrase) {
				return phrase
			}
		}
	}
	return ""
}
