package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"positionScope/internal/config"
	"positionScope/internal/query"
)

func main() {
	root := &cobra.Command{
		Use:          "posengine",
		Short:        "Wallet position and cost-basis query engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	queries := []struct {
		use   string
		short string
		run   func(ctx context.Context, facade *query.Facade, wallet string) (interface{}, error)
	}{
		{
			use:   "position <wallet>",
			short: "Reconstruct a wallet's position, cost basis, and PnL",
			run: func(ctx context.Context, facade *query.Facade, wallet string) (interface{}, error) {
				return facade.GetPosition(ctx, wallet)
			},
		},
		{
			use:   "liquidation <wallet>",
			short: "Report whether a wallet's balance ever collapsed to zero",
			run: func(ctx context.Context, facade *query.Facade, wallet string) (interface{}, error) {
				return facade.GetLiquidationHistory(ctx, wallet)
			},
		},
		{
			use:   "transfers <wallet>",
			short: "List wallet-to-wallet transfers",
			run: func(ctx context.Context, facade *query.Facade, wallet string) (interface{}, error) {
				return facade.GetTransfers(ctx, wallet)
			},
		},
		{
			use:   "minted <wallet>",
			short: "List mint transactions with cost, value, and PnL",
			run: func(ctx context.Context, facade *query.Facade, wallet string) (interface{}, error) {
				return facade.GetMintedTokens(ctx, wallet)
			},
		},
		{
			use:   "burned <wallet>",
			short: "List burn transactions with released value",
			run: func(ctx context.Context, facade *query.Facade, wallet string) (interface{}, error) {
				return facade.GetBurnedTokens(ctx, wallet)
			},
		},
		{
			use:   "events <wallet>",
			short: "Dump raw transfer events for a wallet",
			run: func(ctx context.Context, facade *query.Facade, wallet string) (interface{}, error) {
				return facade.GetEvents(ctx, wallet)
			},
		},
	}

	for _, q := range queries {
		run := q.run
		cmd := &cobra.Command{
			Use:   q.use,
			Short: q.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(cmd, args[0], run)
			},
		}
		addEngineFlags(cmd)
		root.AddCommand(cmd)
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("pg-dsn", "", "Postgres DSN of the event store")
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("position-token", "", "position asset contract address")
	cmd.Flags().String("reference-token", "", "wrapped reference asset contract address")
	cmd.Flags().String("stable-token", "", "stable asset contract address (optional)")
	cmd.Flags().String("burn-address", "0x013b34DBA0d6c9810F530534507144a8646E3273", "designated burn address")
	cmd.Flags().StringSlice("pool-address", nil, "known pool addresses (comma-separated)")
	cmd.Flags().Int32("token-decimals", 18, "asset fixed-point decimals")
	cmd.Flags().String("liquidation-epsilon", "0.01", "balance threshold treated as a full unwind")
	cmd.Flags().String("dust-threshold", "0.1", "position size treated as empty")
	cmd.Flags().Int("price-workers", 4, "concurrent price inference lookups")
	cmd.Flags().Duration("call-timeout", 10*time.Second, "per external call timeout")
	cmd.Flags().String("redis-addr", "", "Redis address for the position cache (empty disables)")
	cmd.Flags().Duration("cache-ttl", 30*time.Second, "position cache TTL")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runQuery(cmd *cobra.Command, wallet string, run func(context.Context, *query.Facade, string) (interface{}, error)) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	facade, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := run(ctx, facade, wallet)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
