package models

import "errors"

// Engine error kinds. Pure-computation errors are deterministic: an
// operation either returns a fully-updated record or one of these before
// producing anything.
var (
	// ErrInvalidArgument marks negative or out-of-range numeric input.
	// It is a programming error on the caller's side and is never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientBalance is returned when a claim exceeds
	// totalPoints - claimedPoints.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrStaleRecord is returned when an optimistic save lost the
	// read-modify-write race; the caller should reload and retry.
	ErrStaleRecord = errors.New("stale record version")

	// ErrQuotaExhausted is returned when a user has no rewarded ad views
	// left for the current calendar day.
	ErrQuotaExhausted = errors.New("daily ad quota exhausted")

	// ErrClaimBelowMinimum is returned when the requested claim converts
	// to less than the minimum payout amount.
	ErrClaimBelowMinimum = errors.New("claim below minimum payout")
)
