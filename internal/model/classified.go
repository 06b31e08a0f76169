package model

import (
	"github.com/shopspring/decimal"
)

// Role tags how a transfer relates to the wallet under reconstruction.
type Role int

const (
	RoleIrrelevant Role = iota
	RoleMint
	RoleBurn
	RoleTransferIn
	RoleTransferOut
)

// String returns the role name used in logs and query output.
func (r Role) String() string {
	switch r {
	case RoleMint:
		return "mint"
	case RoleBurn:
		return "burn"
	case RoleTransferIn:
		return "transfer_in"
	case RoleTransferOut:
		return "transfer_out"
	default:
		return "irrelevant"
	}
}

// ClassifiedEvent is one transfer tagged relative to a single wallet.
// It lives only for the duration of one query and is never persisted.
type ClassifiedEvent struct {
	BlockNumber  uint64
	LogIndex     uint64
	TxHash       string
	Role         Role
	SignedAmount decimal.Decimal
}

// LiquidationState reports whether a wallet's running balance ever collapsed
// to (near) zero. When liquidated, events at or before ResetBlock are
// excluded from cost-basis accounting.
type LiquidationState struct {
	IsLiquidated bool    `json:"is_liquidated"`
	ResetBlock   *uint64 `json:"last_liquidation,omitempty"`
}
