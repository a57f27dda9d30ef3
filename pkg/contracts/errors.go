package contracts

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure surfaced by the engine wraps exactly one of
// these sentinels so callers can branch with errors.Is without string
// matching.
var (
	// ErrInvalidInput: required envelope fields missing. Rejected
	// immediately, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPolicyViolation: URL not allow-listed or confidence below the
	// resolved floor. Rejected at selection time.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrRateLimited: the target or transport asked us to slow down.
	// Retryable after a delay; surfaced distinctly.
	ErrRateLimited = errors.New("rate limited")

	// ErrChannelUnavailable: preferred and fallback channels disallowed or
	// unconfigured. Terminal for that dispatch attempt.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrAutomationFailed: handler failure, navigation timeout, missing
	// submit control. Retryable up to maxAttempts, then escalated.
	ErrAutomationFailed = errors.New("automation failed")

	// ErrSigningUnavailable: no signing backend configured where one is
	// required. The ledger fails closed in production.
	ErrSigningUnavailable = errors.New("signing unavailable")
)

// Retryable reports whether err belongs to the retryable part of the
// taxonomy.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAutomationFailed)
}

// PolicyError builds a PolicyViolation with a structured reason code, e.g.
// "below-min:0.80<0.84".
func PolicyError(reason string) error {
	return fmt.Errorf("%w: %s", ErrPolicyViolation, reason)
}
