package proof

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Signer produces signatures over canonical envelope bytes.
type Signer interface {
	Sign(data []byte) (string, error)
	KeyID() string
	Algo() string
}

// HMACSigner signs with HMAC-SHA256 under a shared key. The common
// production configuration: cheap, symmetric, verifiable by anyone holding
// the key.
type HMACSigner struct {
	key   []byte
	keyID string
}

// NewHMACSigner builds a signer from a raw key. Keys shorter than 32 bytes
// are rejected.
func NewHMACSigner(key []byte, keyID string) (*HMACSigner, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("proof: hmac key too short (%d bytes, need 32)", len(key))
	}
	return &HMACSigner{key: key, keyID: keyID}, nil
}

func (s *HMACSigner) Sign(data []byte) (string, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) KeyID() string { return s.keyID }
func (s *HMACSigner) Algo() string  { return "hmac-sha256" }

// Ed25519Signer signs with an asymmetric key, for configurations where
// verifiers must not hold signing material.
type Ed25519Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("proof: key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub, keyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		priv:  priv,
		pub:   priv.Public().(ed25519.PublicKey),
		keyID: keyID,
	}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.priv, data)), nil
}

func (s *Ed25519Signer) KeyID() string     { return s.keyID }
func (s *Ed25519Signer) Algo() string      { return "ed25519" }
func (s *Ed25519Signer) PublicKey() string { return hex.EncodeToString(s.pub) }

// VerifyEd25519 checks a hex signature against a hex public key.
func VerifyEd25519(pubHex, sigHex string, data []byte) (bool, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, fmt.Errorf("proof: invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("proof: invalid signature hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("proof: invalid public key size %d", len(pub))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}

// UnsignedSigner is the explicit development-only mode: no signature at all.
// It must be selected deliberately via configuration and it logs at Warn on
// every sign so the integrity downgrade is never silent.
type UnsignedSigner struct {
	logger *slog.Logger
}

// NewUnsignedSigner builds the unsigned mode. logger must not be nil.
func NewUnsignedSigner(logger *slog.Logger) *UnsignedSigner {
	return &UnsignedSigner{logger: logger}
}

func (s *UnsignedSigner) Sign(data []byte) (string, error) {
	s.logger.Warn("proof ledger running UNSIGNED: envelope recorded without signature",
		"bytes", len(data))
	return "", nil
}

func (s *UnsignedSigner) KeyID() string { return "" }
func (s *UnsignedSigner) Algo() string  { return "unsigned" }
