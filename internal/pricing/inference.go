package pricing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"positionScope/internal/model"
)

// ChainClient supplies transaction transfer legs and block timestamps.
type ChainClient interface {
	TransactionLegs(ctx context.Context, txHash string) ([]model.TransferLeg, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Oracle is the time-indexed price series for the reference asset, queried
// by exact-minute bucket.
type Oracle interface {
	PriceAt(ctx context.Context, at time.Time) (decimal.Decimal, bool, error)
}

// Config controls price inference.
type Config struct {
	// PositionToken is the contract of the asset whose position is being
	// reconstructed (xAVAX-equivalent).
	PositionToken string
	// ReferenceToken is the wrapped collateral asset contract
	// (wsAVAX-equivalent).
	ReferenceToken string
	// StableToken, when present as a leg, marks a 50/50 collateral split.
	StableToken string
	// Workers bounds the concurrent lookups in InferBatch.
	Workers int
	// CallTimeout caps each inference; timeout degrades to an unknown price.
	CallTimeout time.Duration
}

const (
	defaultWorkers     = 4
	defaultCallTimeout = 10 * time.Second
)

// Service reconstructs the implied acquisition price of a transaction from
// its own transfer legs. Mint transactions are collateralized by the
// reference asset, optionally split with the stable asset; the price is not
// stored anywhere and must be re-derived per transaction.
type Service struct {
	cfg    Config
	chain  ChainClient
	oracle Oracle
	logger *zap.Logger

	positionToken  string
	referenceToken string
	stableToken    string
}

func NewService(cfg Config, chainClient ChainClient, oracle Oracle, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	return &Service{
		cfg:            cfg,
		chain:          chainClient,
		oracle:         oracle,
		logger:         logger,
		positionToken:  strings.ToLower(cfg.PositionToken),
		referenceToken: strings.ToLower(cfg.ReferenceToken),
		stableToken:    strings.ToLower(cfg.StableToken),
	}
}

// InferPrice returns the implied position-asset price for txHash, or zero
// when it cannot be reconstructed. Callers treat zero as "cost unknown for
// this mint"; a single bad transaction never aborts a position computation.
func (s *Service) InferPrice(ctx context.Context, txHash string) decimal.Decimal {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	legs, err := s.chain.TransactionLegs(ctx, txHash)
	if err != nil {
		s.logger.Warn("fetch transaction legs", zap.String("tx", txHash), zap.Error(err))
		return decimal.Zero
	}

	referenceLeg, positionLeg, stableLeg := s.matchLegs(legs)
	if referenceLeg == nil || positionLeg == nil {
		// Not a mint-shaped transaction; it has no implied price.
		return decimal.Zero
	}
	if positionLeg.Value.Sign() <= 0 {
		return decimal.Zero
	}

	ts, err := s.chain.BlockTimestamp(ctx, referenceLeg.BlockNumber)
	if err != nil {
		s.logger.Warn("block timestamp", zap.String("tx", txHash), zap.Uint64("block", referenceLeg.BlockNumber), zap.Error(err))
		return decimal.Zero
	}

	bucket := time.Unix(int64(ts), 0).UTC().Truncate(time.Minute)
	referencePrice, ok, err := s.oracle.PriceAt(ctx, bucket)
	if err != nil {
		s.logger.Warn("oracle lookup", zap.String("tx", txHash), zap.Uint64("ts", ts), zap.Error(err))
		return decimal.Zero
	}
	if !ok {
		s.logger.Debug("oracle bucket missing", zap.String("tx", txHash), zap.Uint64("ts", ts))
		return decimal.Zero
	}

	collateral := referencePrice.Mul(referenceLeg.Value)
	if stableLeg != nil {
		// 50/50 collateral split: the reference leg paid for half the mint.
		collateral = collateral.Div(decimal.NewFromInt(2))
	}

	return collateral.Div(positionLeg.Value)
}

// matchLegs picks the reference, position, and stable legs by token
// contract. The first leg per token wins.
func (s *Service) matchLegs(legs []model.TransferLeg) (reference, position, stable *model.TransferLeg) {
	for i := range legs {
		leg := &legs[i]
		switch strings.ToLower(leg.Token) {
		case s.referenceToken:
			if reference == nil {
				reference = leg
			}
		case s.positionToken:
			if position == nil {
				position = leg
			}
		case s.stableToken:
			if stable == nil && s.stableToken != "" {
				stable = leg
			}
		}
	}
	return reference, position, stable
}

// InferBatch resolves prices for a set of transactions on a bounded worker
// pool. Lookups are independent: a failure in one resolves to zero without
// cancelling the others.
func (s *Service) InferBatch(ctx context.Context, txHashes []string) map[string]decimal.Decimal {
	results := make(map[string]decimal.Decimal, len(txHashes))
	if len(txHashes) == 0 {
		return results
	}

	workers := s.cfg.Workers
	if workers > len(txHashes) {
		workers = len(txHashes)
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for txHash := range jobs {
				price := s.InferPrice(ctx, txHash)
				mu.Lock()
				results[txHash] = price
				mu.Unlock()
			}
		}()
	}

	for _, txHash := range txHashes {
		jobs <- txHash
	}
	close(jobs)
	wg.Wait()

	return results
}
