package model

import "errors"

// Fatal error classes surfaced to callers. Chain-client and oracle failures
// are not listed here: they degrade to a zero price for the affected
// transaction and never abort a whole computation.
var (
	// ErrStorageUnavailable means the event log could not be reached. The
	// engine does not retry; partial results are never returned.
	ErrStorageUnavailable = errors.New("event storage unavailable")

	// ErrInvalidWallet means the supplied wallet address is not a valid hex
	// address. Rejected before any query runs.
	ErrInvalidWallet = errors.New("invalid wallet address")
)
