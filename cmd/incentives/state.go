package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityIncentives/internal/config"
	"liquidityIncentives/internal/dex"
	"liquidityIncentives/internal/feed"
	"liquidityIncentives/internal/host"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/storage"
	"liquidityIncentives/internal/storage/postgres"
)

// stateBackend is the persistence chosen by the common flags. pg is nil when
// state lives in a local file.
type stateBackend struct {
	states storage.StateStore
	pg     *postgres.Store
}

func (b *stateBackend) Close() {
	if b.pg != nil {
		b.pg.Close()
	}
}

func openState(ctx context.Context, cfg config.Common, logger *zap.Logger) (*stateBackend, error) {
	if cfg.PGDSN == "" {
		if cfg.StateFile == "" {
			return nil, fmt.Errorf("state file or pg dsn is required")
		}
		logger.Info("state backend", zap.String("state_file", cfg.StateFile))
		return &stateBackend{states: &storage.FileStateStore{Path: cfg.StateFile}}, nil
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	logger.Info("state backend", zap.String("pg_dsn", redactDSN(cfg.PGDSN)), zap.String("state_name", cfg.StateName))
	return &stateBackend{
		states: &postgres.StateStore{Store: store, Name: cfg.StateName},
		pg:     store,
	}, nil
}

// session is an engine and host simulator restored from persisted state.
type session struct {
	engine *incentive.Engine
	sim    *host.Simulator
	state  storage.State
	found  bool
}

func restoreSession(ctx context.Context, states storage.StateStore, admin common.Address, reserve incentive.FundingReserve, logger *zap.Logger) (*session, error) {
	state, found, err := states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var store *incentive.Store
	if found {
		store, err = incentive.RestoreStore(state.Engine)
		if err != nil {
			return nil, fmt.Errorf("restore engine state: %w", err)
		}
	}
	sim, err := host.Restore(state.Host, logger)
	if err != nil {
		return nil, fmt.Errorf("restore host state: %w", err)
	}

	if found {
		logger.Info("state restored",
			zap.Uint64("last_block", state.LastBlock),
			zap.String("updated_at", state.UpdatedAt),
			zap.Int("pools", len(state.Engine.Pools)),
			zap.Int("balances", len(state.Engine.Balances)),
		)
	}

	return &session{
		engine: incentive.NewEngine(incentive.Config{Admin: admin}, store, sim, reserve, logger),
		sim:    sim,
		state:  state,
		found:  found,
	}, nil
}

func (s *session) save(ctx context.Context, states storage.StateStore, lastBlock uint64) error {
	if lastBlock < s.state.LastBlock {
		lastBlock = s.state.LastBlock
	}
	s.state = storage.State{
		Engine:    s.engine.Snapshot(),
		Host:      s.sim.Snapshot(),
		LastBlock: lastBlock,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.found = true
	if err := states.Save(ctx, s.state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func poolConfigs(specs []config.PoolSpec) map[incentive.PoolID]host.PoolConfig {
	pools := make(map[incentive.PoolID]host.PoolConfig, len(specs))
	for _, spec := range specs {
		pools[spec.Address] = host.PoolConfig{TickSpacing: spec.TickSpacing, RewardRate: spec.RewardRate}
	}
	return pools
}

// newDecoder checks the extra topic0 keys before building the pool decoder.
func newDecoder(topic0Map map[string]string) (*dex.V3PoolDecoder, error) {
	keys := make([]string, 0, len(topic0Map))
	for k := range topic0Map {
		keys = append(keys, k)
	}
	if _, err := feed.ParseTopic0(keys); err != nil {
		return nil, fmt.Errorf("topic0-map: %w", err)
	}
	return dex.NewV3PoolDecoder(topic0Map)
}

func parseAddress(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("%s is required", name)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, value)
	}
	return common.HexToAddress(value), nil
}
