package eventlog

import (
	"context"

	"positionScope/internal/model"
)

// Role filters which side of a transfer the wallet must appear on.
type Role int

const (
	RoleAny Role = iota
	RoleSender
	RoleReceiver
)

// Reader provides read-only access to the append-only event store. Results
// are a snapshot of the log at call time; implementations never mutate the
// store and never return partial results.
type Reader interface {
	// FetchEventsForWallet returns all transfer events involving wallet,
	// ordered ascending by block number, ties broken by log index. wallet
	// must be lower-cased by the caller.
	FetchEventsForWallet(ctx context.Context, wallet string, role Role) ([]model.Event, error)

	// LatestBlockNumber returns the highest block number present in the log,
	// or 0 for an empty log. Used as the recomputation-cache key: derived
	// results are a pure function of the log prefix.
	LatestBlockNumber(ctx context.Context) (uint64, error)
}
