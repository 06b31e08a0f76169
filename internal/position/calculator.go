package position

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"positionScope/internal/classify"
	"positionScope/internal/eventlog"
	"positionScope/internal/liquidation"
	"positionScope/internal/model"
)

// DefaultDustThreshold treats positions below it as empty so that price
// inference and PnL are never attempted against a near-zero denominator.
var DefaultDustThreshold = decimal.RequireFromString("0.1")

// PriceInferrer resolves implied acquisition prices per mint transaction.
// Unknown prices come back as zero, never as an error.
type PriceInferrer interface {
	InferBatch(ctx context.Context, txHashes []string) map[string]decimal.Decimal
}

// ReferencePriceSource supplies the live reference-asset price.
type ReferencePriceSource interface {
	CurrentReferencePrice(ctx context.Context) (decimal.Decimal, error)
}

// Calculator turns the wallet's classified event history into a position
// with cost-basis accounting. Everything is recomputed from the log per
// call; the calculator holds no per-wallet state, so concurrent calls for
// different wallets are independent.
type Calculator struct {
	reader     eventlog.Reader
	classifier *classify.Classifier
	detector   *liquidation.Detector
	prices     PriceInferrer
	current    ReferencePriceSource
	dust       decimal.Decimal
	logger     *zap.Logger
}

func NewCalculator(
	reader eventlog.Reader,
	classifier *classify.Classifier,
	detector *liquidation.Detector,
	prices PriceInferrer,
	current ReferencePriceSource,
	dustThreshold decimal.Decimal,
	logger *zap.Logger,
) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dustThreshold.Sign() <= 0 {
		dustThreshold = DefaultDustThreshold
	}
	return &Calculator{
		reader:     reader,
		classifier: classifier,
		detector:   detector,
		prices:     prices,
		current:    current,
		dust:       dustThreshold,
		logger:     logger,
	}
}

// LiquidationState replays the wallet's full history and reports whether
// and where its balance last collapsed to zero.
func (c *Calculator) LiquidationState(ctx context.Context, wallet string) (model.LiquidationState, error) {
	classified, err := c.classifiedHistory(ctx, wallet)
	if err != nil {
		return model.LiquidationState{}, err
	}
	return c.detector.Detect(classified), nil
}

// ComputePosition derives the wallet's current position, average entry
// price, value, and PnL from the event log. wallet must be lower-cased.
func (c *Calculator) ComputePosition(ctx context.Context, wallet string) (model.Position, error) {
	classified, err := c.classifiedHistory(ctx, wallet)
	if err != nil {
		return model.Position{}, err
	}

	state := c.detector.Detect(classified)
	filtered := filterAfterReset(classified, state)

	pos := model.Position{WalletAddress: wallet}
	mintTxs := make([]string, 0, 8)
	mintByTx := make(map[string]decimal.Decimal, 8)

	for _, event := range filtered {
		switch event.Role {
		case model.RoleMint:
			amount := event.SignedAmount
			pos.MintedAmount = pos.MintedAmount.Add(amount)
			if _, seen := mintByTx[event.TxHash]; !seen {
				mintTxs = append(mintTxs, event.TxHash)
			}
			mintByTx[event.TxHash] = mintByTx[event.TxHash].Add(amount)
		case model.RoleBurn:
			pos.BurnedAmount = pos.BurnedAmount.Add(event.SignedAmount.Neg())
		case model.RoleTransferIn:
			pos.TransfersIn = pos.TransfersIn.Add(event.SignedAmount)
		case model.RoleTransferOut:
			pos.TransfersOut = pos.TransfersOut.Add(event.SignedAmount.Neg())
		}
	}

	pos.PositionAmount = pos.MintedAmount.
		Sub(pos.BurnedAmount).
		Add(pos.TransfersIn).
		Sub(pos.TransfersOut)

	// The live read degrades to zero rather than failing the whole query.
	currentPrice, err := c.current.CurrentReferencePrice(ctx)
	if err != nil {
		c.logger.Warn("current reference price", zap.String("wallet", wallet), zap.Error(err))
		currentPrice = decimal.Zero
	}
	pos.CurrentReferencePrice = currentPrice

	if pos.PositionAmount.Cmp(c.dust) < 0 {
		// Dust position: report the raw sums but no valuation.
		return pos, nil
	}

	if len(mintTxs) > 0 {
		prices := c.prices.InferBatch(ctx, mintTxs)

		totalCost := decimal.Zero
		pricedAmount := decimal.Zero
		for _, txHash := range mintTxs {
			amount := mintByTx[txHash]
			price := prices[txHash]
			if price.Sign() > 0 {
				pricedAmount = pricedAmount.Add(amount)
			}
			totalCost = totalCost.Add(amount.Mul(price))
		}

		if pos.MintedAmount.Sign() > 0 {
			pos.AverageEntryPrice = totalCost.Div(pos.MintedAmount)
			pos.PricedFraction = pricedAmount.Div(pos.MintedAmount)
		}
	}

	pos.PositionValue = pos.PositionAmount.Mul(currentPrice)
	if pos.AverageEntryPrice.Sign() > 0 {
		pos.PnlPercentage = currentPrice.Div(pos.AverageEntryPrice).
			Sub(decimal.NewFromInt(1)).
			Mul(decimal.NewFromInt(100))
	}

	return pos, nil
}

func (c *Calculator) classifiedHistory(ctx context.Context, wallet string) ([]model.ClassifiedEvent, error) {
	events, err := c.reader.FetchEventsForWallet(ctx, wallet, eventlog.RoleAny)
	if err != nil {
		return nil, err
	}
	return c.classifier.ClassifyAll(events, wallet)
}

// filterAfterReset drops every event at or before the liquidation reset
// block. The cost-basis clock restarts from the most recent full unwind.
func filterAfterReset(events []model.ClassifiedEvent, state model.LiquidationState) []model.ClassifiedEvent {
	if !state.IsLiquidated || state.ResetBlock == nil {
		return events
	}
	filtered := make([]model.ClassifiedEvent, 0, len(events))
	for _, event := range events {
		if event.BlockNumber > *state.ResetBlock {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
