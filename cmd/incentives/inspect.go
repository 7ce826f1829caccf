package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"liquidityIncentives/internal/config"
	"liquidityIncentives/internal/incentive"
)

type positionReport struct {
	Pool        string `json:"pool"`
	Owner       string `json:"owner,omitempty"`
	Key         string `json:"key,omitempty"`
	Lower       int32  `json:"lower"`
	Upper       int32  `json:"upper"`
	Inside      string `json:"inside"`
	Checkpoint  string `json:"checkpoint,omitempty"`
	Liquidity   string `json:"liquidity,omitempty"`
	Unrealized  string `json:"unrealized,omitempty"`
	RewardRate  string `json:"reward_rate"`
	LastUpdate  uint64 `json:"last_update"`
	ActiveTick  *int32 `json:"active_tick,omitempty"`
	TickSpacing int32  `json:"tick_spacing"`
}

type inspectReport struct {
	LastBlock   uint64          `json:"last_block"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
	Position    *positionReport `json:"position,omitempty"`
	Beneficiary string          `json:"beneficiary,omitempty"`
	Accrued     string          `json:"accrued,omitempty"`
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadInspect(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Pool == "" && cfg.Beneficiary == "" {
		return fmt.Errorf("pool or beneficiary is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openState(ctx, cfg.Common, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	sess, err := restoreSession(ctx, backend.states, common.Address{}, nil, logger)
	if err != nil {
		return err
	}
	if !sess.found {
		return fmt.Errorf("no accrual state found")
	}

	report := inspectReport{LastBlock: sess.state.LastBlock, UpdatedAt: sess.state.UpdatedAt}
	if cfg.Pool != "" {
		position, err := inspectPosition(ctx, sess, cfg)
		if err != nil {
			return err
		}
		report.Position = position
	}
	if cfg.Beneficiary != "" {
		beneficiary, err := parseAddress("beneficiary", cfg.Beneficiary)
		if err != nil {
			return err
		}
		report.Beneficiary = beneficiary.Hex()
		report.Accrued = sess.engine.Accrued(beneficiary).Dec()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func inspectPosition(ctx context.Context, sess *session, cfg config.InspectConfig) (*positionReport, error) {
	pool, err := parseAddress("pool", cfg.Pool)
	if err != nil {
		return nil, err
	}
	lower, upper := incentive.Tick(cfg.Lower), incentive.Tick(cfg.Upper)
	inside, err := sess.engine.InsideReading(pool, lower, upper)
	if err != nil {
		return nil, err
	}

	store := sess.engine.Store()
	report := &positionReport{
		Pool:        pool.Hex(),
		Lower:       cfg.Lower,
		Upper:       cfg.Upper,
		Inside:      inside.Dec(),
		RewardRate:  sess.engine.RewardRate(pool).Dec(),
		LastUpdate:  store.LastUpdate(pool),
		TickSpacing: store.TickSpacing(pool),
	}
	if tick, ok := store.ActiveTick(pool); ok {
		t := int32(tick)
		report.ActiveTick = &t
	}

	if cfg.Owner == "" {
		return report, nil
	}
	owner, err := parseAddress("owner", cfg.Owner)
	if err != nil {
		return nil, err
	}
	var salt common.Hash
	if cfg.Salt != "" {
		salt = common.HexToHash(cfg.Salt)
	}
	key := incentive.DerivePositionKey(owner, lower, upper, salt)
	report.Owner = owner.Hex()
	report.Key = key.Hex()

	liquidity, err := sess.sim.PositionLiquidity(ctx, pool, key)
	if err != nil {
		return nil, err
	}
	report.Liquidity = liquidity.Dec()

	checkpoint, ok := store.Checkpoint(pool, key)
	if !ok {
		return report, nil
	}
	report.Checkpoint = checkpoint.Dec()
	unrealized, err := incentive.RewardDelta(inside, checkpoint, liquidity, sess.engine.RewardRate(pool))
	if err != nil {
		return nil, err
	}
	report.Unrealized = unrealized.Dec()
	return report, nil
}
