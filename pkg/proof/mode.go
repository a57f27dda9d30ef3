package proof

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/delist-labs/delist/pkg/contracts"
)

// Signing modes selectable via configuration.
const (
	ModeHMAC     = "hmac"
	ModeEd25519  = "ed25519"
	ModeUnsigned = "unsigned"
)

// NewSignerFromConfig selects a signing backend. The unsigned mode is a
// development convenience and is refused outright when environment is
// "production": the ledger fails closed rather than degrade integrity.
func NewSignerFromConfig(mode, keyHex, keyID, environment string, logger *slog.Logger) (Signer, error) {
	switch mode {
	case ModeHMAC:
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("%w: bad hmac key hex: %v", contracts.ErrSigningUnavailable, err)
		}
		return NewHMACSigner(key, keyID)

	case ModeEd25519:
		if keyHex == "" {
			return NewEd25519Signer(keyID)
		}
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("%w: bad ed25519 key hex: %v", contracts.ErrSigningUnavailable, err)
		}
		if len(raw) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes", contracts.ErrSigningUnavailable, ed25519.SeedSize)
		}
		return NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(raw), keyID), nil

	case ModeUnsigned:
		if environment == "production" {
			return nil, fmt.Errorf("%w: unsigned mode refused in production", contracts.ErrSigningUnavailable)
		}
		logger.Warn("proof signing disabled by configuration", "mode", ModeUnsigned)
		return NewUnsignedSigner(logger), nil

	default:
		return nil, fmt.Errorf("%w: unknown signing mode %q", contracts.ErrSigningUnavailable, mode)
	}
}
