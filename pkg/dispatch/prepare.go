package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/proof"
	"github.com/delist-labs/delist/pkg/scrub"
	"github.com/delist-labs/delist/pkg/selector"
	"github.com/delist-labs/delist/pkg/store"
)

// Preparer turns an accepted candidate plus an externally drafted message
// into a persisted, signed ActionEnvelope. Drafts are scrubbed and
// length-capped before storage; evidence URLs are deduplicated and capped.
type Preparer struct {
	scrubber *scrub.Scrubber
	ledger   *proof.Ledger
	actions  store.ActionStore
	clock    func() time.Time
}

// NewPreparer wires a preparer.
func NewPreparer(scrubber *scrub.Scrubber, ledger *proof.Ledger, actions store.ActionStore) *Preparer {
	return &Preparer{
		scrubber: scrubber,
		ledger:   ledger,
		actions:  actions,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (p *Preparer) WithClock(clock func() time.Time) *Preparer {
	p.clock = clock
	return p
}

// Prepare builds, signs, and persists the envelope for a candidate.
// When an envelope with the same (controller, proof hash) already exists,
// the stored envelope is returned with idempotent=true and nothing new is
// written.
func (p *Preparer) Prepare(ctx context.Context, cand selector.Candidate, draft contracts.Draft) (*contracts.ActionEnvelope, bool, error) {
	now := p.clock()
	e := &contracts.ActionEnvelope{
		ID:           uuid.New().String(),
		ControllerID: cand.ControllerID,
		Category:     cand.Hit.Category,
		Identity:     cand.Hit.Preview,
		EvidenceURLs: dedupeEvidence(append([]string{cand.Hit.URL}, draft.Attachments...)),
		Subject:      p.scrubber.Subject(draft.Subject, contracts.MaxSubjectLen),
		Body:         p.scrubber.Body(draft.Body, contracts.MaxBodyLen),
		Fields:       draft.Fields,
		ReplyChannel: contracts.ChannelEmail,
		Status:       contracts.ActionDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Validate(); err != nil {
		return nil, false, err
	}

	existing, idempotent, err := p.ledger.Commit(ctx, e)
	if err != nil {
		return nil, false, err
	}
	if idempotent {
		return existing, true, nil
	}

	e.Status = contracts.ActionPrepared
	if err := p.actions.InsertAction(ctx, e); err != nil {
		return nil, false, err
	}
	return e, false, nil
}

// dedupeEvidence removes duplicates preserving order and caps the list.
func dedupeEvidence(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == contracts.MaxEvidence {
			break
		}
	}
	return out
}
