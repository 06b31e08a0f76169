package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"positionScope/internal/model"
)

// transferTopic is topic0 of the ERC-20 Transfer event.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	decimals  int32

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL. decimals is the
// fixed-point scale applied to transfer-leg values (18 for wei).
func NewClient(ctx context.Context, rpcURL string, decimals int32) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		decimals:  decimals,
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
// Historical headers never change, so entries are kept forever.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// TransactionLegs fetches the receipt for txHash and decodes every ERC-20
// Transfer log into a leg. Non-transfer logs are skipped.
func (c *Client) TransactionLegs(ctx context.Context, txHash string) ([]model.TransferLeg, error) {
	hash := common.HexToHash(txHash)
	receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", txHash, err)
	}

	legs := make([]model.TransferLeg, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		leg, ok := decodeTransferLog(log, c.decimals)
		if !ok {
			continue
		}
		legs = append(legs, leg)
	}

	return legs, nil
}

func decodeTransferLog(log *types.Log, decimals int32) (model.TransferLeg, bool) {
	if log == nil || len(log.Topics) != 3 || log.Topics[0] != transferTopic {
		return model.TransferLeg{}, false
	}

	value := new(big.Int).SetBytes(log.Data)
	return model.TransferLeg{
		From:        common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		To:          common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		Value:       decimal.NewFromBigInt(value, -decimals),
		Token:       log.Address.Hex(),
		BlockNumber: log.BlockNumber,
	}, true
}
