package position

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"positionScope/internal/classify"
	"positionScope/internal/eventlog"
	"positionScope/internal/liquidation"
	"positionScope/internal/model"
)

const (
	wallet   = "0xaaa0000000000000000000000000000000000aaa"
	other    = "0xbbb0000000000000000000000000000000000bbb"
	burnAddr = "0x013b34dba0d6c9810f530534507144a8646e3273"
)

type fakeReader struct {
	events []model.Event
	err    error
}

func (f *fakeReader) FetchEventsForWallet(context.Context, string, eventlog.Role) ([]model.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeReader) LatestBlockNumber(context.Context) (uint64, error) {
	var latest uint64
	for _, event := range f.events {
		if event.BlockNumber > latest {
			latest = event.BlockNumber
		}
	}
	return latest, nil
}

type fakePrices struct {
	byTx map[string]decimal.Decimal
}

func (f *fakePrices) InferBatch(_ context.Context, txHashes []string) map[string]decimal.Decimal {
	results := make(map[string]decimal.Decimal, len(txHashes))
	for _, txHash := range txHashes {
		results[txHash] = f.byTx[txHash]
	}
	return results
}

type fakeCurrent struct {
	price decimal.Decimal
	err   error
}

func (f *fakeCurrent) CurrentReferencePrice(context.Context) (decimal.Decimal, error) {
	return f.price, f.err
}

// wei appends 18 zeros to a whole-token amount.
func wei(tokens string) string {
	return tokens + "000000000000000000"
}

func transfer(block, logIndex uint64, txHash, from, to, rawAmount string) model.Event {
	return model.Event{
		EventName:   model.TransferEventName,
		BlockNumber: block,
		TxHash:      txHash,
		LogIndex:    logIndex,
		ParsedData:  []string{from, to, rawAmount},
	}
}

func newTestCalculator(reader eventlog.Reader, prices PriceInferrer, current ReferencePriceSource) *Calculator {
	system := classify.NewSystemAddresses(burnAddr, nil)
	classifier := classify.NewClassifier(system, 18)
	detector := liquidation.NewDetector(liquidation.DefaultEpsilon)
	return NewCalculator(reader, classifier, detector, prices, current, DefaultDustThreshold, nil)
}

func TestComputePositionWeightedAverage(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
		transfer(2, 0, "0xmint2", classify.ZeroAddress, wallet, wei("5")),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{
		"0xmint1": decimal.RequireFromString("20"),
		"0xmint2": decimal.RequireFromString("22"),
	}}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}

	pos, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pos.MintedAmount.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("minted mismatch: %s", pos.MintedAmount)
	}
	// (10*20 + 5*22) / 15 = 20.67 at display precision.
	if got := pos.AverageEntryPrice.Round(2); !got.Equal(decimal.RequireFromString("20.67")) {
		t.Fatalf("average entry price mismatch: %s", got)
	}
	if !pos.PricedFraction.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("priced fraction mismatch: %s", pos.PricedFraction)
	}
	if !pos.PositionValue.Equal(decimal.RequireFromString("375")) {
		t.Fatalf("position value mismatch: %s", pos.PositionValue)
	}
}

func TestComputePositionConservation(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
		transfer(2, 0, "0xburn1", wallet, classify.ZeroAddress, wei("4")),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{"0xmint1": decimal.RequireFromString("20")}}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}

	pos, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := pos.MintedAmount.Sub(pos.BurnedAmount)
	if !pos.PositionAmount.Equal(want) {
		t.Fatalf("conservation violated: %s != %s", pos.PositionAmount, want)
	}
	if !pos.PositionAmount.Equal(decimal.RequireFromString("6")) {
		t.Fatalf("position amount mismatch: %s", pos.PositionAmount)
	}
}

func TestComputePositionDustFloor(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
		transfer(2, 0, "0xburn1", wallet, classify.ZeroAddress, "9950000000000000000"),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{"0xmint1": decimal.RequireFromString("20")}}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}

	pos, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pos.PositionAmount.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("position amount mismatch: %s", pos.PositionAmount)
	}
	if !pos.AverageEntryPrice.IsZero() || !pos.PositionValue.IsZero() || !pos.PnlPercentage.IsZero() {
		t.Fatalf("dust position should carry no valuation: %+v", pos)
	}
	if !pos.CurrentReferencePrice.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("current price should still be reported: %s", pos.CurrentReferencePrice)
	}
}

func TestComputePositionLiquidationReset(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
		transfer(2, 0, "0xburn1", wallet, classify.ZeroAddress, wei("10")),
		transfer(3, 0, "0xmint2", classify.ZeroAddress, wallet, wei("5")),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{
		"0xmint1": decimal.RequireFromString("99"),
		"0xmint2": decimal.RequireFromString("22"),
	}}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}

	pos, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Everything at or before the block-2 unwind is excluded.
	if !pos.PositionAmount.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("position amount mismatch: %s", pos.PositionAmount)
	}
	if !pos.MintedAmount.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("minted amount mismatch: %s", pos.MintedAmount)
	}
	if !pos.AverageEntryPrice.Equal(decimal.RequireFromString("22")) {
		t.Fatalf("average entry price should only weight post-reset mints: %s", pos.AverageEntryPrice)
	}
}

func TestComputePositionTransferOnlyWallet(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xt1", other, wallet, wei("8")),
		transfer(2, 0, "0xt2", wallet, other, wei("3")),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{}}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}

	pos, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pos.MintedAmount.IsZero() || !pos.BurnedAmount.IsZero() {
		t.Fatalf("transfer-only wallet should have no mints or burns")
	}
	if !pos.PositionAmount.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("position amount mismatch: %s", pos.PositionAmount)
	}
	if !pos.AverageEntryPrice.IsZero() || !pos.PnlPercentage.IsZero() {
		t.Fatalf("no mints means no cost basis: %+v", pos)
	}
}

func TestComputePositionUnknownPriceContributesZeroCost(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
		transfer(2, 0, "0xmint2", classify.ZeroAddress, wallet, wei("5")),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{
		"0xmint1": decimal.RequireFromString("20"),
		// 0xmint2 could not be priced.
	}}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}

	pos, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// (10*20 + 5*0) / 15
	want := decimal.RequireFromString("200").Div(decimal.RequireFromString("15"))
	if !pos.AverageEntryPrice.Equal(want) {
		t.Fatalf("average entry price mismatch: %s != %s", pos.AverageEntryPrice, want)
	}
	wantFraction := decimal.RequireFromString("10").Div(decimal.RequireFromString("15"))
	if !pos.PricedFraction.Equal(wantFraction) {
		t.Fatalf("priced fraction mismatch: %s != %s", pos.PricedFraction, wantFraction)
	}
}

func TestComputePositionPnlGuard(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{}}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}

	pos, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pos.AverageEntryPrice.IsZero() {
		t.Fatalf("average entry price should be zero: %s", pos.AverageEntryPrice)
	}
	if !pos.PnlPercentage.IsZero() {
		t.Fatalf("pnl must not divide by a zero entry price: %s", pos.PnlPercentage)
	}
}

func TestComputePositionCurrentPriceDegrades(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{"0xmint1": decimal.RequireFromString("20")}}
	current := &fakeCurrent{err: errors.New("rpc down")}

	pos, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("live price failure must not fail the query: %v", err)
	}
	if !pos.CurrentReferencePrice.IsZero() || !pos.PositionValue.IsZero() {
		t.Fatalf("degraded price should zero the valuation: %+v", pos)
	}
}

func TestComputePositionDeterministic(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
		transfer(2, 0, "0xburn1", wallet, burnAddr, wei("3")),
		transfer(3, 0, "0xt1", other, wallet, wei("2")),
	}}
	prices := &fakePrices{byTx: map[string]decimal.Decimal{"0xmint1": decimal.RequireFromString("20")}}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}
	calc := newTestCalculator(reader, prices, current)

	first, err := calc.ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := calc.ComputePosition(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !first.PositionAmount.Equal(second.PositionAmount) ||
		!first.AverageEntryPrice.Equal(second.AverageEntryPrice) ||
		!first.PnlPercentage.Equal(second.PnlPercentage) {
		t.Fatalf("replay not deterministic: %+v != %+v", first, second)
	}
}

func TestComputePositionStorageErrorIsFatal(t *testing.T) {
	reader := &fakeReader{err: model.ErrStorageUnavailable}
	prices := &fakePrices{}
	current := &fakeCurrent{price: decimal.RequireFromString("25")}

	_, err := newTestCalculator(reader, prices, current).ComputePosition(context.Background(), wallet)
	if !errors.Is(err, model.ErrStorageUnavailable) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestLiquidationStateIdempotent(t *testing.T) {
	reader := &fakeReader{events: []model.Event{
		transfer(1, 0, "0xmint1", classify.ZeroAddress, wallet, wei("10")),
		transfer(2, 0, "0xburn1", wallet, classify.ZeroAddress, wei("10")),
		transfer(3, 0, "0xmint2", classify.ZeroAddress, wallet, wei("5")),
	}}
	calc := newTestCalculator(reader, &fakePrices{}, &fakeCurrent{price: decimal.Zero})

	first, err := calc.LiquidationState(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := calc.LiquidationState(context.Background(), wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !first.IsLiquidated || first.ResetBlock == nil || *first.ResetBlock != 2 {
		t.Fatalf("liquidation state mismatch: %+v", first)
	}
	if *first.ResetBlock != *second.ResetBlock {
		t.Fatalf("state changed with no new events")
	}
}
