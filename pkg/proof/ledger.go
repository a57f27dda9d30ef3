package proof

import (
	"context"
	"fmt"
	"time"

	"github.com/delist-labs/delist/pkg/contracts"
)

// ActionLookup finds a previously stored envelope by its idempotency key.
// Implemented by the action store; returns (nil, nil) when absent.
type ActionLookup interface {
	FindByProof(ctx context.Context, controllerID, hash string) (*contracts.ActionEnvelope, error)
}

// RecordAppender persists ProofRecords. Append-only.
type RecordAppender interface {
	AppendProof(ctx context.Context, rec *contracts.ProofRecord) error
}

// Ledger signs envelopes and enforces idempotency on (controller, hash).
type Ledger struct {
	signer  Signer
	lookup  ActionLookup
	records RecordAppender
	clock   func() time.Time
}

// NewLedger builds a ledger. lookup and records may be nil for callers that
// only need Sign (e.g. previewing a hash before persistence).
func NewLedger(signer Signer, lookup ActionLookup, records RecordAppender) *Ledger {
	return &Ledger{
		signer:  signer,
		lookup:  lookup,
		records: records,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Proof is the outcome of signing one envelope.
type Proof struct {
	Hash      string
	Signature string
	KeyID     string
	Algo      string
	SignedAt  time.Time
}

// Sign canonicalizes the envelope, hashes it, and signs the canonical bytes.
// Deterministic given identical canonical input: two calls for the same
// logical envelope produce the same Hash regardless of when they run.
func (l *Ledger) Sign(e *contracts.ActionEnvelope) (*Proof, error) {
	if l.signer == nil {
		return nil, fmt.Errorf("%w: no signing backend configured", contracts.ErrSigningUnavailable)
	}
	canonical, err := Canonicalize(e)
	if err != nil {
		return nil, err
	}
	hash, err := ContentHash(e)
	if err != nil {
		return nil, err
	}
	sig, err := l.signer.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrSigningUnavailable, err)
	}
	return &Proof{
		Hash:      hash,
		Signature: sig,
		KeyID:     l.signer.KeyID(),
		Algo:      l.signer.Algo(),
		SignedAt:  l.clock(),
	}, nil
}

// Commit signs the envelope and enforces idempotency: when an envelope with
// the same (controller, hash) already exists, the stored one is returned
// with idempotent=true and nothing is written. Otherwise the proof fields
// are stamped onto e, a ProofRecord is appended, and (e, false) is returned.
// Persisting e itself remains the caller's job.
func (l *Ledger) Commit(ctx context.Context, e *contracts.ActionEnvelope) (*contracts.ActionEnvelope, bool, error) {
	p, err := l.Sign(e)
	if err != nil {
		return nil, false, err
	}

	if l.lookup != nil {
		existing, err := l.lookup.FindByProof(ctx, e.ControllerID, p.Hash)
		if err != nil {
			return nil, false, fmt.Errorf("proof: idempotency lookup: %w", err)
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	e.ProofHash = p.Hash
	e.ProofSignature = p.Signature
	e.ProofKeyID = p.KeyID

	if l.records != nil {
		rec := &contracts.ProofRecord{
			Hash:          p.Hash,
			Signature:     p.Signature,
			KeyID:         p.KeyID,
			Algo:          p.Algo,
			SignedAt:      p.SignedAt,
			EvidenceCount: len(e.EvidenceURLs),
		}
		if err := l.records.AppendProof(ctx, rec); err != nil {
			return nil, false, fmt.Errorf("proof: append record: %w", err)
		}
	}
	return e, false, nil
}
