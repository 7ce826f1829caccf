package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for replaying a JSONL log file.
type ReplayConfig struct {
	Common
	Incentives
	In     string
	Errors string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"errors": "./data/decode_errors.jsonl",
	})
	if err != nil {
		return ReplayConfig{}, err
	}
	return ReplayConfig{
		Common:     loadCommon(v),
		Incentives: loadIncentives(v),
		In:         v.GetString("in"),
		Errors:     v.GetString("errors"),
	}, nil
}

// SyncConfig holds configuration for following pools over RPC.
type SyncConfig struct {
	Common
	Incentives
	RPCURL        string
	FromBlock     uint64
	ToBlock       uint64
	Confirmations uint64
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	Checkpoint    string
	Out           string
	Errors        string
	Seed          bool
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"batch-size":    uint64(2000),
		"confirmations": uint64(12),
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"checkpoint":    "./data/checkpoint.json",
		"errors":        "./data/decode_errors.jsonl",
		"seed":          true,
	})
	if err != nil {
		return SyncConfig{}, err
	}
	return SyncConfig{
		Common:        loadCommon(v),
		Incentives:    loadIncentives(v),
		RPCURL:        v.GetString("rpc"),
		FromBlock:     v.GetUint64("from"),
		ToBlock:       v.GetUint64("to"),
		Confirmations: v.GetUint64("confirmations"),
		BatchSize:     v.GetUint64("batch-size"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		Checkpoint:    v.GetString("checkpoint"),
		Out:           v.GetString("out"),
		Errors:        v.GetString("errors"),
		Seed:          v.GetBool("seed"),
	}, nil
}

// ClaimConfig holds configuration for paying out a beneficiary.
type ClaimConfig struct {
	Common
	RPCURL      string
	RewardToken string
	Reserve     string
	Payouts     string
	Beneficiary string
}

// LoadClaim merges config file, environment variables, and flags into ClaimConfig.
func LoadClaim(cfgFile string, flags *pflag.FlagSet) (ClaimConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"payouts": "./data/payouts.jsonl",
	})
	if err != nil {
		return ClaimConfig{}, err
	}
	return ClaimConfig{
		Common:      loadCommon(v),
		RPCURL:      v.GetString("rpc"),
		RewardToken: v.GetString("reward-token"),
		Reserve:     v.GetString("reserve"),
		Payouts:     v.GetString("payouts"),
		Beneficiary: v.GetString("beneficiary"),
	}, nil
}

// InspectConfig holds configuration for reading accrual state.
type InspectConfig struct {
	Common
	Pool        string
	Owner       string
	Lower       int32
	Upper       int32
	Salt        string
	Beneficiary string
}

// LoadInspect merges config file, environment variables, and flags into InspectConfig.
func LoadInspect(cfgFile string, flags *pflag.FlagSet) (InspectConfig, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return InspectConfig{}, err
	}
	return InspectConfig{
		Common:      loadCommon(v),
		Pool:        v.GetString("pool"),
		Owner:       v.GetString("owner"),
		Lower:       v.GetInt32("lower"),
		Upper:       v.GetInt32("upper"),
		Salt:        v.GetString("salt"),
		Beneficiary: v.GetString("beneficiary"),
	}, nil
}
