package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const (
	poolA = "0x1111111111111111111111111111111111111111"
	poolB = "0x2222222222222222222222222222222222222222"
)

func syncFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("sync", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Uint64("from", 0, "")
	flags.Uint64("confirmations", 12, "")
	flags.StringSlice("pools", nil, "")
	flags.String("reward-rates", "", "")
	flags.String("log-level", "info", "")
	return flags
}

func TestLoadSyncFromFlags(t *testing.T) {
	flags := syncFlags()
	require.NoError(t, flags.Parse([]string{
		"--rpc", "http://localhost:8545",
		"--from", "100",
		"--confirmations", "3",
		"--pools", poolA + "," + poolB,
		"--reward-rates", poolA + "=1000," + poolB + "=5",
	}))

	cfg, err := LoadSync("", flags)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8545", cfg.RPCURL)
	require.Equal(t, uint64(100), cfg.FromBlock)
	require.Equal(t, uint64(3), cfg.Confirmations)
	require.Equal(t, uint64(2000), cfg.BatchSize)
	require.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	require.Equal(t, "./data/state.json", cfg.StateFile)
	require.True(t, cfg.Seed)

	specs, err := cfg.PoolSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	require.Equal(t, common.HexToAddress(poolA), specs[0].Address)
	require.Equal(t, uint64(1000), specs[0].RewardRate.Uint64())
	require.Equal(t, int32(0), specs[0].TickSpacing)
	require.Equal(t, uint64(5), specs[1].RewardRate.Uint64())
}

func TestLoadSyncFromEnv(t *testing.T) {
	t.Setenv("INCENTIVES_RPC", "http://env:8545")
	t.Setenv("INCENTIVES_POOLS", poolA)
	t.Setenv("INCENTIVES_REWARD_RATES", poolA+"=7")
	t.Setenv("INCENTIVES_LOG_LEVEL", "debug")

	cfg, err := LoadSync("", syncFlags())
	require.NoError(t, err)
	require.Equal(t, "http://env:8545", cfg.RPCURL)
	require.Equal(t, "debug", cfg.LogLevel)

	specs, err := cfg.PoolSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, uint64(7), specs[0].RewardRate.Uint64())
}

func TestLoadReplayFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incentives.yaml")
	body := `
in: ./logs.jsonl
admin: "0xadadadadadadadadadadadadadadadadadadadad"
state-file: ./state.json
pools:
  - "` + poolA + `"
tick-spacing:
  "` + poolA + `": 60
reward-rates:
  "` + poolA + `": "340282366920938463463374607431768211455"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadReplay(path, nil)
	require.NoError(t, err)
	require.Equal(t, "./logs.jsonl", cfg.In)
	require.Equal(t, "./state.json", cfg.StateFile)
	require.Equal(t, "./data/decode_errors.jsonl", cfg.Errors)

	admin, err := cfg.AdminAddress()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xadadadadadadadadadadadadadadadadadadadad"), admin)

	specs, err := cfg.PoolSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, int32(60), specs[0].TickSpacing)
	require.Equal(t, 128, specs[0].RewardRate.BitLen())
}

func TestPoolSpecsErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Incentives
	}{
		{"bad pool", Incentives{Pools: []string{"nope"}}},
		{"duplicate", Incentives{Pools: []string{poolA, poolA}, RewardRates: map[string]string{poolA: "1"}}},
		{"missing rate", Incentives{Pools: []string{poolA}}},
		{"bad rate", Incentives{Pools: []string{poolA}, RewardRates: map[string]string{poolA: "-1"}}},
		{"wide rate", Incentives{Pools: []string{poolA}, RewardRates: map[string]string{poolA: "340282366920938463463374607431768211456"}}},
		{"bad spacing", Incentives{Pools: []string{poolA}, RewardRates: map[string]string{poolA: "1"}, TickSpacing: map[string]string{poolA: "0"}}},
		{"unlisted rate", Incentives{Pools: []string{poolA}, RewardRates: map[string]string{poolA: "1", poolB: "1"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.PoolSpecs()
			require.Error(t, err)
		})
	}
}

func TestAdminAddress(t *testing.T) {
	admin, err := Incentives{}.AdminAddress()
	require.NoError(t, err)
	require.Equal(t, common.Address{}, admin)

	_, err = Incentives{Admin: "0x12"}.AdminAddress()
	require.Error(t, err)
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap(" a = 1 ,broken,, b=2,c= ")
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}
