package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const navMethod = "pricePerShare"

const navABIJSON = `[
  {"inputs": [], "name": "pricePerShare", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	navABI     abi.ABI
	navABIOnce sync.Once
	navABIErr  error
)

func navABIInstance() (abi.ABI, error) {
	navABIOnce.Do(func() {
		navABI, navABIErr = abi.JSON(strings.NewReader(navABIJSON))
	})
	return navABI, navABIErr
}

const (
	navMaxRetries = 2
	navRetryDelay = 200 * time.Millisecond
)

// NavReader reads the position asset's live net-asset-value accessor, which
// quotes the current reference price as an 18-decimal fixed-point integer.
type NavReader struct {
	client *Client
	token  common.Address
}

// NewNavReader binds a NavReader to the position asset contract.
func NewNavReader(client *Client, token common.Address) *NavReader {
	return &NavReader{client: client, token: token}
}

// CurrentReferencePrice performs the eth_call and converts the fixed-point
// result to a decimal. The read is retried on transient RPC failures since
// every position query depends on it.
func (n *NavReader) CurrentReferencePrice(ctx context.Context) (decimal.Decimal, error) {
	parsed, err := navABIInstance()
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse nav abi: %w", err)
	}

	input, err := parsed.Pack(navMethod)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pack %s: %w", navMethod, err)
	}

	msg := ethereum.CallMsg{To: &n.token, Data: input}

	var output []byte
	err = withRetry(ctx, navMaxRetries, navRetryDelay, func(ctx context.Context) error {
		var callErr error
		output, callErr = n.client.ethClient.CallContract(ctx, msg, nil)
		return callErr
	})
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("call %s: %w", navMethod, err)
	}

	values, err := parsed.Unpack(navMethod, output)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unpack %s: %w", navMethod, err)
	}
	if len(values) != 1 {
		return decimal.Decimal{}, fmt.Errorf("unexpected %s output arity: %d", navMethod, len(values))
	}

	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("unexpected %s output type: %T", navMethod, values[0])
	}

	return decimal.NewFromBigInt(raw, -n.client.decimals), nil
}
