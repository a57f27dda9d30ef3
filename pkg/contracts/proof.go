package contracts

import "time"

// ProofRecord is one append-only ledger entry for a signed envelope.
type ProofRecord struct {
	Hash          string    `json:"hash"` // hex SHA-256 of the canonical envelope
	Signature     string    `json:"signature"`
	KeyID         string    `json:"key_id"`
	Algo          string    `json:"algo"` // "hmac-sha256" | "ed25519" | "unsigned"
	SignedAt      time.Time `json:"signed_at"`
	EvidenceCount int       `json:"evidence_count"`
}
