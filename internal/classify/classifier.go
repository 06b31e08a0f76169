package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"positionScope/internal/model"
)

// ZeroAddress is the mint source and canonical burn sink.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// SystemAddresses is the set of protocol-owned addresses a classification run
// must distinguish from ordinary wallets. All comparisons are lower-cased.
type SystemAddresses struct {
	zero  string
	burn  string
	pools map[string]struct{}
}

// NewSystemAddresses builds the set from the designated burn address and any
// known pool addresses.
func NewSystemAddresses(burnAddress string, poolAddresses []string) SystemAddresses {
	pools := make(map[string]struct{}, len(poolAddresses))
	for _, pool := range poolAddresses {
		pool = strings.ToLower(strings.TrimSpace(pool))
		if pool == "" {
			continue
		}
		pools[pool] = struct{}{}
	}
	return SystemAddresses{
		zero:  ZeroAddress,
		burn:  strings.ToLower(burnAddress),
		pools: pools,
	}
}

// IsSystem reports whether addr is the zero address, the burn address, or a
// known pool.
func (s SystemAddresses) IsSystem(addr string) bool {
	addr = strings.ToLower(addr)
	if addr == s.zero || (s.burn != "" && addr == s.burn) {
		return true
	}
	_, ok := s.pools[addr]
	return ok
}

// Zero returns the zero address.
func (s SystemAddresses) Zero() string { return s.zero }

// Burn returns the designated burn address, lower-cased.
func (s SystemAddresses) Burn() string { return s.burn }

// Classifier tags transfer events as mint, burn, transfer-in, or
// transfer-out relative to one wallet.
type Classifier struct {
	system SystemAddresses
	scale  int32
}

// NewClassifier builds a Classifier. decimals is the asset's fixed-point
// scale (18 for wei-denominated tokens).
func NewClassifier(system SystemAddresses, decimals int32) *Classifier {
	return &Classifier{system: system, scale: decimals}
}

// Classify tags one event relative to wallet. The second return value is
// false for irrelevant events (wrong event name, wallet not involved, or a
// leg between system addresses only). wallet must already be lower-cased.
func (c *Classifier) Classify(event model.Event, wallet string) (model.ClassifiedEvent, bool, error) {
	if event.EventName != model.TransferEventName {
		return model.ClassifiedEvent{}, false, nil
	}

	from := strings.ToLower(event.From())
	to := strings.ToLower(event.To())

	role := c.roleFor(from, to, wallet)
	if role == model.RoleIrrelevant {
		return model.ClassifiedEvent{}, false, nil
	}

	amount, err := c.parseAmount(event.RawAmount())
	if err != nil {
		return model.ClassifiedEvent{}, false, fmt.Errorf("event %s/%d: %w", event.TxHash, event.LogIndex, err)
	}

	signed := amount
	if role == model.RoleBurn || role == model.RoleTransferOut {
		signed = amount.Neg()
	}

	return model.ClassifiedEvent{
		BlockNumber:  event.BlockNumber,
		LogIndex:     event.LogIndex,
		TxHash:       event.TxHash,
		Role:         role,
		SignedAmount: signed,
	}, true, nil
}

// roleFor evaluates the classification rules in order. Mint and burn win
// over plain transfers so that issuance from the zero address is never
// counted as an inbound transfer.
func (c *Classifier) roleFor(from, to, wallet string) model.Role {
	switch {
	case from == c.system.zero && to == wallet:
		return model.RoleMint
	case from == wallet && (to == c.system.zero || to == c.system.burn):
		return model.RoleBurn
	case to == wallet && !c.system.IsSystem(from):
		return model.RoleTransferIn
	case from == wallet && !c.system.IsSystem(to):
		return model.RoleTransferOut
	default:
		return model.RoleIrrelevant
	}
}

// ClassifyAll tags a batch of events and returns the relevant ones sorted by
// block number, ties broken by log index. Events whose amount cannot be
// parsed are returned as an error: a corrupt log row would silently skew
// every downstream balance.
func (c *Classifier) ClassifyAll(events []model.Event, wallet string) ([]model.ClassifiedEvent, error) {
	classified := make([]model.ClassifiedEvent, 0, len(events))
	for _, event := range events {
		tagged, ok, err := c.Classify(event, wallet)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		classified = append(classified, tagged)
	}

	sort.Slice(classified, func(i, j int) bool {
		if classified[i].BlockNumber != classified[j].BlockNumber {
			return classified[i].BlockNumber < classified[j].BlockNumber
		}
		return classified[i].LogIndex < classified[j].LogIndex
	})

	return classified, nil
}

func (c *Classifier) parseAmount(raw string) (decimal.Decimal, error) {
	return ParseTokenAmount(raw, c.scale)
}

// ParseTokenAmount converts a decimal-string integer in the asset's smallest
// unit into a decimal scaled to whole tokens. Raw values routinely exceed
// 64-bit range, so the string is parsed with arbitrary precision.
func ParseTokenAmount(raw string, decimals int32) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount.Shift(-decimals), nil
}
