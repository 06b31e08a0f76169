package model

import (
	"github.com/shopspring/decimal"
)

// Display rounding used by the query facade. Internal arithmetic keeps full
// decimal precision; only final results are rounded.
const (
	AmountDisplayScale = 6
	PnlDisplayScale    = 2
)

// Position is the derived point-in-time financial state of a wallet,
// recomputed from the event log on every query.
type Position struct {
	WalletAddress         string          `json:"wallet_address"`
	PositionAmount        decimal.Decimal `json:"position_amount"`
	MintedAmount          decimal.Decimal `json:"minted_amount"`
	BurnedAmount          decimal.Decimal `json:"burned_amount"`
	TransfersIn           decimal.Decimal `json:"transfers_in"`
	TransfersOut          decimal.Decimal `json:"transfers_out"`
	AverageEntryPrice     decimal.Decimal `json:"average_entry_price"`
	PositionValue         decimal.Decimal `json:"position_value"`
	PnlPercentage         decimal.Decimal `json:"pnl_percentage"`
	CurrentReferencePrice decimal.Decimal `json:"current_reference_price"`
	// PricedFraction is the share of the minted amount whose acquisition
	// price could be reconstructed. Mints with unknown cost contribute zero
	// to the average entry price, so values below 1 mean the average
	// understates the real cost.
	PricedFraction decimal.Decimal `json:"priced_fraction"`
}

// Rounded returns a copy with display rounding applied.
func (p Position) Rounded() Position {
	p.PositionAmount = p.PositionAmount.Round(AmountDisplayScale)
	p.MintedAmount = p.MintedAmount.Round(AmountDisplayScale)
	p.BurnedAmount = p.BurnedAmount.Round(AmountDisplayScale)
	p.TransfersIn = p.TransfersIn.Round(AmountDisplayScale)
	p.TransfersOut = p.TransfersOut.Round(AmountDisplayScale)
	p.AverageEntryPrice = p.AverageEntryPrice.Round(AmountDisplayScale)
	p.PositionValue = p.PositionValue.Round(AmountDisplayScale)
	p.PnlPercentage = p.PnlPercentage.Round(PnlDisplayScale)
	p.CurrentReferencePrice = p.CurrentReferencePrice.Round(AmountDisplayScale)
	p.PricedFraction = p.PricedFraction.Round(AmountDisplayScale)
	return p
}

// Transfer is one wallet-to-wallet transfer, deduplicated per transaction.
type Transfer struct {
	TxHash      string          `json:"tx_hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       decimal.Decimal `json:"value"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   int64           `json:"timestamp"`
}

// MintRecord is one mint transaction with its reconstructed cost and PnL.
type MintRecord struct {
	TxHash        string          `json:"tx_hash"`
	WalletAddress string          `json:"wallet_address"`
	MintedAmount  decimal.Decimal `json:"minted_amount"`
	Cost          decimal.Decimal `json:"cost"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	PnlPercentage decimal.Decimal `json:"pnl_percentage"`
	BlockNumber   uint64          `json:"block_number"`
	CreatedAt     string          `json:"created_at"`
	Timestamp     int64           `json:"timestamp"`
}

// BurnRecord is one burn transaction with the value released at its implied
// price.
type BurnRecord struct {
	TxHash        string          `json:"tx_hash"`
	WalletAddress string          `json:"wallet_address"`
	BurnedAmount  decimal.Decimal `json:"burned_amount"`
	Benefit       decimal.Decimal `json:"benefit"`
	BlockNumber   uint64          `json:"block_number"`
	CreatedAt     string          `json:"created_at"`
	Timestamp     int64           `json:"timestamp"`
}

// TransferLeg is one decoded ERC-20 transfer inside a single transaction,
// used to reconstruct the implied acquisition price of a mint.
type TransferLeg struct {
	From        string
	To          string
	Value       decimal.Decimal
	Token       string
	BlockNumber uint64
}
