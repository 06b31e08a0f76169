package cache

import (
	"context"

	"positionScope/internal/model"
)

// PositionCache memoizes computed positions keyed by (wallet, latest
// observed block). A position is a pure function of the log prefix, so a hit
// at the same block is always correct. Misses and cache errors fall through
// to recomputation.
type PositionCache interface {
	Get(ctx context.Context, wallet string, latestBlock uint64) (model.Position, bool)
	Put(ctx context.Context, wallet string, latestBlock uint64, pos model.Position)
}

// Noop disables caching.
type Noop struct{}

func (Noop) Get(context.Context, string, uint64) (model.Position, bool) {
	return model.Position{}, false
}

func (Noop) Put(context.Context, string, uint64, model.Position) {}
