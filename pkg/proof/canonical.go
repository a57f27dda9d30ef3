// Package proof hashes and signs action envelopes for tamper-evident audit
// and idempotency.
//
// The content hash is the identity of the logical action: it covers only the
// stable, non-PII fields of the envelope and deliberately excludes the
// signing timestamp. Re-signing the same logical envelope at a later time
// yields the same hash; the time of signing lives in the ProofRecord, which
// is ledger metadata rather than signed content.
package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/delist-labs/delist/pkg/contracts"
)

// CanonicalEnvelope is the stable-ordered, non-PII projection of an
// ActionEnvelope used for hashing and signing. Field set changes here change
// every hash downstream; extend with care.
type CanonicalEnvelope struct {
	Controller    string   `json:"controller"`
	Category      string   `json:"category"`
	IdentityName  string   `json:"identity_name"`
	IdentityCity  string   `json:"identity_city"`
	EvidenceURLs  []string `json:"evidence_urls"`
	SubjectDigest string   `json:"subject_digest"` // sha256 of the draft subject, not the text itself
	Action        string   `json:"action"`
	LegalBasis    string   `json:"legal_basis"`
}

// Canonicalize projects an envelope into its canonical form and renders the
// RFC 8785 canonical JSON bytes.
func Canonicalize(e *contracts.ActionEnvelope) ([]byte, error) {
	subjDigest := sha256.Sum256([]byte(e.Subject))

	evidence := append([]string(nil), e.EvidenceURLs...)
	sort.Strings(evidence)
	if evidence == nil {
		evidence = []string{}
	}

	ce := CanonicalEnvelope{
		Controller:    e.ControllerID,
		Category:      e.Category,
		IdentityName:  e.Identity.Name,
		IdentityCity:  e.Identity.City,
		EvidenceURLs:  evidence,
		SubjectDigest: hex.EncodeToString(subjDigest[:]),
		Action:        e.Fields.Action,
		LegalBasis:    e.Fields.LegalBasis,
	}

	raw, err := json.Marshal(ce)
	if err != nil {
		return nil, fmt.Errorf("proof: marshal canonical envelope: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("proof: canonicalize: %w", err)
	}
	return canonical, nil
}

// ContentHash returns the hex SHA-256 digest of the canonical envelope.
func ContentHash(e *contracts.ActionEnvelope) (string, error) {
	canonical, err := Canonicalize(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
