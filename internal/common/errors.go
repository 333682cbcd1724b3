// Package common defines shared constants and sentinel errors used across
// client and server layers of TierGate. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRemoteUnavailable marks a network failure or timeout against the
	// remote state store. Operations failing with it are safe to retry.
	ErrRemoteUnavailable = errors.New("remote state store unavailable")

	// Service-level errors.
	ErrorInternal              = errors.New("internal error")
	ErrorUnauthorized          = errors.New("unauthorized")
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")
	ErrInvalidCredential       = errors.New("invalid credential")
	ErrTierInvariant           = errors.New("tier invariant violated")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
