package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "incentives",
		Short:        "Range liquidity incentive accrual",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay archived pool logs into the accrual state",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input raw logs JSONL")
	replayCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	addIncentiveFlags(replayCmd)
	addStateFlags(replayCmd)

	root.AddCommand(replayCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Follow pool logs over RPC and accrue incentives",
		RunE:  runSync,
	}

	syncCmd.Flags().String("rpc", "", "RPC URL")
	syncCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	syncCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means safe head")
	syncCmd.Flags().Uint64("confirmations", 12, "blocks to stay behind the head")
	syncCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	syncCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	syncCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	syncCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	syncCmd.Flags().String("out", "", "optional raw logs JSONL archive")
	syncCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	syncCmd.Flags().Bool("seed", true, "seed pool price from slot0 at from-1")
	addIncentiveFlags(syncCmd)
	addStateFlags(syncCmd)

	root.AddCommand(syncCmd)

	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Pay out the accrued balance of a beneficiary",
		RunE:  runClaim,
	}

	claimCmd.Flags().String("rpc", "", "RPC URL")
	claimCmd.Flags().String("reward-token", "", "reward ERC20 token address")
	claimCmd.Flags().String("reserve", "", "address holding the reward token")
	claimCmd.Flags().String("payouts", "./data/payouts.jsonl", "payout queue JSONL (ignored with pg-dsn)")
	claimCmd.Flags().String("beneficiary", "", "beneficiary address")
	addStateFlags(claimCmd)

	root.AddCommand(claimCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print range readings and accrued balances",
		RunE:  runInspect,
	}

	inspectCmd.Flags().String("pool", "", "pool address")
	inspectCmd.Flags().String("owner", "", "position owner")
	inspectCmd.Flags().Int32("lower", 0, "lower tick")
	inspectCmd.Flags().Int32("upper", 0, "upper tick")
	inspectCmd.Flags().String("salt", "", "position salt (32-byte hex)")
	inspectCmd.Flags().String("beneficiary", "", "beneficiary address")
	addStateFlags(inspectCmd)

	root.AddCommand(inspectCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addIncentiveFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("pools", nil, "incentivised pool addresses (comma-separated)")
	cmd.Flags().String("reward-rates", "", "pool->reward per second (comma-separated key=value)")
	cmd.Flags().String("tick-spacing", "", "pool->tick spacing (comma-separated key=value)")
	cmd.Flags().String("admin", "", "rate admin address")
	cmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
}

func addStateFlags(cmd *cobra.Command) {
	cmd.Flags().String("state-file", "./data/state.json", "local state file")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN, replaces the state file")
	cmd.Flags().String("state-name", "incentives", "state name in Postgres")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
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

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
