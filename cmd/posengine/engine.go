package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"positionScope/internal/cache"
	"positionScope/internal/chain"
	"positionScope/internal/classify"
	"positionScope/internal/config"
	"positionScope/internal/eventlog/postgres"
	"positionScope/internal/liquidation"
	"positionScope/internal/position"
	"positionScope/internal/pricing"
	"positionScope/internal/query"
)

// buildEngine wires the engine bottom-up: event store, chain client, price
// oracle, inference service, calculator, facade.
func buildEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*query.Facade, func(), error) {
	if cfg.PGDSN == "" {
		return nil, nil, fmt.Errorf("pg dsn is required")
	}
	if cfg.RPCURL == "" {
		return nil, nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.PositionToken) {
		return nil, nil, fmt.Errorf("position token address is required")
	}
	if !common.IsHexAddress(cfg.ReferenceToken) {
		return nil, nil, fmt.Errorf("reference token address is required")
	}

	epsilon, err := decimal.NewFromString(cfg.LiquidationEpsilon)
	if err != nil {
		return nil, nil, fmt.Errorf("parse liquidation epsilon: %w", err)
	}
	dust, err := decimal.NewFromString(cfg.DustThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dust threshold: %w", err)
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.TokenDecimals)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	cleanup := func() {
		chainClient.Close()
		store.Close()
	}

	system := classify.NewSystemAddresses(cfg.BurnAddress, cfg.PoolAddresses)
	classifier := classify.NewClassifier(system, cfg.TokenDecimals)
	detector := liquidation.NewDetector(epsilon)

	inference := pricing.NewService(pricing.Config{
		PositionToken:  cfg.PositionToken,
		ReferenceToken: cfg.ReferenceToken,
		StableToken:    cfg.StableToken,
		Workers:        cfg.PriceWorkers,
		CallTimeout:    cfg.CallTimeout,
	}, chainClient, store, logger)

	nav := chain.NewNavReader(chainClient, common.HexToAddress(cfg.PositionToken))

	calculator := position.NewCalculator(store, classifier, detector, inference, nav, dust, logger)

	var positions cache.PositionCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		positions = cache.NewRedisCache(rdb, "posengine", cfg.CacheTTL, logger)
	}

	facade := query.NewFacade(store, calculator, inference, nav, chainClient, system, positions, cfg.TokenDecimals, logger)

	logger.Info("engine ready",
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("rpc", cfg.RPCURL),
		zap.String("position_token", cfg.PositionToken),
		zap.String("reference_token", cfg.ReferenceToken),
		zap.Bool("cache", cfg.RedisAddr != ""),
	)

	return facade, cleanup, nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
