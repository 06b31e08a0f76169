package liquidation

import (
	"sort"

	"github.com/shopspring/decimal"

	"positionScope/internal/model"
)

// DefaultEpsilon absorbs integer-rounding dust when deciding whether a
// running balance has collapsed to zero. Inherited from the source system;
// override through config when the asset needs a different tolerance.
var DefaultEpsilon = decimal.RequireFromString("0.01")

// Detector finds the most recent point at which a wallet's running balance
// collapsed to (near) zero.
type Detector struct {
	epsilon decimal.Decimal
}

// NewDetector builds a Detector with the given epsilon threshold. A zero or
// negative epsilon falls back to DefaultEpsilon.
func NewDetector(epsilon decimal.Decimal) *Detector {
	if epsilon.Sign() <= 0 {
		epsilon = DefaultEpsilon
	}
	return &Detector{epsilon: epsilon}
}

// Detect replays the signed balance changes in block order and returns the
// wallet's liquidation state. The reset block is the last point where the
// cumulative balance fell to or below epsilon: accounting restarts from the
// most recent full unwind, not an earlier partial one. Single linear pass
// after sorting, deterministic for a fixed input.
func (d *Detector) Detect(events []model.ClassifiedEvent) model.LiquidationState {
	ordered := make([]model.ClassifiedEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	balance := decimal.Zero
	var resetBlock uint64
	liquidated := false

	for _, event := range ordered {
		balance = balance.Add(event.SignedAmount)
		if balance.Cmp(d.epsilon) <= 0 {
			liquidated = true
			resetBlock = event.BlockNumber
		}
	}

	if !liquidated {
		return model.LiquidationState{}
	}

	block := resetBlock
	return model.LiquidationState{IsLiquidated: true, ResetBlock: &block}
}
