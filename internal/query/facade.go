package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"positionScope/internal/cache"
	"positionScope/internal/classify"
	"positionScope/internal/eventlog"
	"positionScope/internal/model"
	"positionScope/internal/position"
)

// PriceInferrer resolves implied acquisition prices for transactions.
type PriceInferrer interface {
	InferPrice(ctx context.Context, txHash string) decimal.Decimal
	InferBatch(ctx context.Context, txHashes []string) map[string]decimal.Decimal
}

// TimestampSource resolves block numbers to chain timestamps.
type TimestampSource interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Facade exposes the engine's read-only operations to the external API
// layer. Wallet addresses are accepted case-insensitively and lower-cased
// before any lookup.
type Facade struct {
	reader     eventlog.Reader
	calculator *position.Calculator
	prices     PriceInferrer
	current    position.ReferencePriceSource
	timestamps TimestampSource
	system     classify.SystemAddresses
	classifier *classify.Classifier
	positions  cache.PositionCache
	decimals   int32
	logger     *zap.Logger
}

func NewFacade(
	reader eventlog.Reader,
	calculator *position.Calculator,
	prices PriceInferrer,
	current position.ReferencePriceSource,
	timestamps TimestampSource,
	system classify.SystemAddresses,
	positions cache.PositionCache,
	decimals int32,
	logger *zap.Logger,
) *Facade {
	if positions == nil {
		positions = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		reader:     reader,
		calculator: calculator,
		prices:     prices,
		current:    current,
		timestamps: timestamps,
		system:     system,
		classifier: classify.NewClassifier(system, decimals),
		positions:  positions,
		decimals:   decimals,
		logger:     logger,
	}
}

// NormalizeWallet validates and lower-cases a wallet address.
func NormalizeWallet(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if !common.IsHexAddress(wallet) {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidWallet, wallet)
	}
	return strings.ToLower(wallet), nil
}

// GetPosition returns the wallet's reconstructed position with display
// rounding applied. Results are memoized per (wallet, latest block) when a
// cache is configured.
func (f *Facade) GetPosition(ctx context.Context, wallet string) (model.Position, error) {
	wallet, err := NormalizeWallet(wallet)
	if err != nil {
		return model.Position{}, err
	}

	latest, err := f.reader.LatestBlockNumber(ctx)
	if err != nil {
		return model.Position{}, err
	}

	if pos, ok := f.positions.Get(ctx, wallet, latest); ok {
		return pos, nil
	}

	pos, err := f.calculator.ComputePosition(ctx, wallet)
	if err != nil {
		return model.Position{}, err
	}

	rounded := pos.Rounded()
	f.positions.Put(ctx, wallet, latest, rounded)
	return rounded, nil
}

// GetLiquidationHistory replays the wallet's balance and reports its most
// recent liquidation, if any.
func (f *Facade) GetLiquidationHistory(ctx context.Context, wallet string) (model.LiquidationState, error) {
	wallet, err := NormalizeWallet(wallet)
	if err != nil {
		return model.LiquidationState{}, err
	}
	return f.calculator.LiquidationState(ctx, wallet)
}

// GetEvents returns the wallet's raw transfer events as stored in the log.
func (f *Facade) GetEvents(ctx context.Context, wallet string) ([]model.Event, error) {
	wallet, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	return f.reader.FetchEventsForWallet(ctx, wallet, eventlog.RoleAny)
}

// GetTransfers returns wallet-to-wallet transfers (both sides ordinary
// wallets), one per transaction hash, newest block first.
func (f *Facade) GetTransfers(ctx context.Context, wallet string) ([]model.Transfer, error) {
	wallet, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}

	events, err := f.reader.FetchEventsForWallet(ctx, wallet, eventlog.RoleAny)
	if err != nil {
		return nil, err
	}

	byTx := make(map[string]model.Transfer)
	for _, event := range events {
		if event.EventName != model.TransferEventName {
			continue
		}
		from := strings.ToLower(event.From())
		to := strings.ToLower(event.To())
		if f.system.IsSystem(from) || f.system.IsSystem(to) {
			continue
		}

		value, err := classify.ParseTokenAmount(event.RawAmount(), f.decimals)
		if err != nil {
			return nil, fmt.Errorf("event %s/%d: %w", event.TxHash, event.LogIndex, err)
		}

		existing, seen := byTx[event.TxHash]
		if seen && existing.BlockNumber >= event.BlockNumber {
			continue
		}
		byTx[event.TxHash] = model.Transfer{
			TxHash:      event.TxHash,
			From:        from,
			To:          to,
			Value:       value.Round(model.AmountDisplayScale),
			BlockNumber: event.BlockNumber,
		}
	}

	transfers := make([]model.Transfer, 0, len(byTx))
	for _, transfer := range byTx {
		transfer.Timestamp = f.blockTimestampMillis(ctx, transfer.BlockNumber)
		transfers = append(transfers, transfer)
	}

	sort.Slice(transfers, func(i, j int) bool {
		return transfers[i].BlockNumber > transfers[j].BlockNumber
	})

	return transfers, nil
}

// GetMintedTokens returns the wallet's mint transactions with per-transaction
// cost, current value, and PnL, newest block first.
func (f *Facade) GetMintedTokens(ctx context.Context, wallet string) ([]model.MintRecord, error) {
	wallet, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}

	groups, err := f.groupByTx(ctx, wallet, model.RoleMint)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return []model.MintRecord{}, nil
	}

	currentPrice, err := f.current.CurrentReferencePrice(ctx)
	if err != nil {
		f.logger.Warn("current reference price", zap.String("wallet", wallet), zap.Error(err))
		currentPrice = decimal.Zero
	}

	txHashes := make([]string, 0, len(groups))
	for _, group := range groups {
		txHashes = append(txHashes, group.txHash)
	}
	prices := f.prices.InferBatch(ctx, txHashes)

	records := make([]model.MintRecord, 0, len(groups))
	for _, group := range groups {
		price := prices[group.txHash]
		record := model.MintRecord{
			TxHash:        group.txHash,
			WalletAddress: wallet,
			MintedAmount:  group.amount.Round(model.AmountDisplayScale),
			Cost:          group.amount.Mul(price).Round(model.AmountDisplayScale),
			CurrentValue:  group.amount.Mul(currentPrice).Round(model.AmountDisplayScale),
			BlockNumber:   group.block,
			CreatedAt:     group.createdAt,
			Timestamp:     f.blockTimestampMillis(ctx, group.block),
		}
		if price.Sign() > 0 {
			record.PnlPercentage = currentPrice.Div(price).
				Sub(decimal.NewFromInt(1)).
				Mul(decimal.NewFromInt(100)).
				Round(model.PnlDisplayScale)
		}
		records = append(records, record)
	}

	return records, nil
}

// GetBurnedTokens returns the wallet's burn transactions with the value
// released at each burn's implied price, newest block first.
func (f *Facade) GetBurnedTokens(ctx context.Context, wallet string) ([]model.BurnRecord, error) {
	wallet, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}

	groups, err := f.groupByTx(ctx, wallet, model.RoleBurn)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return []model.BurnRecord{}, nil
	}

	txHashes := make([]string, 0, len(groups))
	for _, group := range groups {
		txHashes = append(txHashes, group.txHash)
	}
	prices := f.prices.InferBatch(ctx, txHashes)

	records := make([]model.BurnRecord, 0, len(groups))
	for _, group := range groups {
		price := prices[group.txHash]
		records = append(records, model.BurnRecord{
			TxHash:        group.txHash,
			WalletAddress: wallet,
			BurnedAmount:  group.amount.Round(model.AmountDisplayScale),
			Benefit:       group.amount.Mul(price).Round(model.AmountDisplayScale),
			BlockNumber:   group.block,
			CreatedAt:     group.createdAt,
			Timestamp:     f.blockTimestampMillis(ctx, group.block),
		})
	}

	return records, nil
}

// txGroup is one transaction's summed amount for a single role.
type txGroup struct {
	txHash    string
	amount    decimal.Decimal
	block     uint64
	createdAt string
}

// groupByTx classifies the wallet's history and sums events of the wanted
// role per transaction hash, newest block first.
func (f *Facade) groupByTx(ctx context.Context, wallet string, role model.Role) ([]txGroup, error) {
	logRole := eventlog.RoleAny
	switch role {
	case model.RoleMint:
		logRole = eventlog.RoleReceiver
	case model.RoleBurn:
		logRole = eventlog.RoleSender
	}

	events, err := f.reader.FetchEventsForWallet(ctx, wallet, logRole)
	if err != nil {
		return nil, err
	}

	createdAt := make(map[string]string, len(events))
	for _, event := range events {
		if _, seen := createdAt[event.TxHash]; !seen {
			createdAt[event.TxHash] = event.CreatedAt.UTC().Format("2006-01-02 15:04:05")
		}
	}

	classified, err := f.classifier.ClassifyAll(events, wallet)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(classified))
	groups := make([]txGroup, 0, len(classified))
	for _, event := range classified {
		if event.Role != role {
			continue
		}
		amount := event.SignedAmount.Abs()
		if at, ok := index[event.TxHash]; ok {
			groups[at].amount = groups[at].amount.Add(amount)
			if event.BlockNumber > groups[at].block {
				groups[at].block = event.BlockNumber
			}
			continue
		}
		index[event.TxHash] = len(groups)
		groups = append(groups, txGroup{
			txHash:    event.TxHash,
			amount:    amount,
			block:     event.BlockNumber,
			createdAt: createdAt[event.TxHash],
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].block > groups[j].block
	})

	return groups, nil
}

// blockTimestampMillis resolves a block timestamp in milliseconds, zero on
// failure. Timestamps are presentation data; a miss never fails the query.
func (f *Facade) blockTimestampMillis(ctx context.Context, block uint64) int64 {
	ts, err := f.timestamps.BlockTimestamp(ctx, block)
	if err != nil {
		f.logger.Debug("block timestamp", zap.Uint64("block", block), zap.Error(err))
		return 0
	}
	return int64(ts) * 1000
}
