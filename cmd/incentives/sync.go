package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityIncentives/internal/chain"
	"liquidityIncentives/internal/config"
	"liquidityIncentives/internal/dex"
	"liquidityIncentives/internal/feed"
	"liquidityIncentives/internal/host"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/model"
	"liquidityIncentives/internal/storage"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSync(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	specs, err := cfg.PoolSpecs()
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("pool list is required")
	}
	admin, err := cfg.AdminAddress()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	backend, err := openState(ctx, cfg.Common, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	sess, err := restoreSession(ctx, backend.states, admin, nil, logger)
	if err != nil {
		return err
	}

	if err := seedPools(ctx, chainClient, sess, specs, cfg, logger); err != nil {
		return err
	}

	decoder, err := newDecoder(cfg.Topic0Map)
	if err != nil {
		return err
	}

	var errSink host.ErrorSink
	if cfg.Errors != "" {
		errSink = storage.NewJsonlStorage(cfg.Errors)
	}
	replayer, err := host.NewReplayer(sess.engine, sess.sim, decoder, admin, poolConfigs(specs), errSink, logger)
	if err != nil {
		return err
	}

	var archive storage.Storage
	if cfg.Out != "" {
		archive = storage.NewJsonlStorage(cfg.Out)
	}

	addresses := make([]common.Address, 0, len(specs))
	for _, spec := range specs {
		addresses = append(addresses, spec.Address)
	}
	topic0 := decoder.Topics()

	runner := feed.NewRunner(feed.RunConfig{
		FromBlock:      cfg.FromBlock,
		ToBlock:        cfg.ToBlock,
		Confirmations:  cfg.Confirmations,
		Addresses:      addresses,
		Topic0:         topic0,
		BatchSize:      cfg.BatchSize,
		CheckpointPath: cfg.Checkpoint,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		LastProcessed:  sess.state.LastBlock,
		HaveProgress:   sess.found,
	}, chainClient, &syncHandler{
		replayer: replayer,
		sess:     sess,
		states:   backend.states,
		logger:   logger,
	}, archive, logger)

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Int("pools", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}

	stats := replayer.Stats()
	logger.Info("sync done",
		zap.Int("logs", stats.Logs),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Uint64("last_block", sess.state.LastBlock),
	)
	return nil
}

// seedPools reads price, liquidity and tick spacing for pools the restored
// state knows nothing about. Without a seed the pool's first swap sets the
// price.
func seedPools(ctx context.Context, caller dex.ContractCaller, sess *session, specs []config.PoolSpec, cfg config.SyncConfig, logger *zap.Logger) error {
	for i := range specs {
		spec := &specs[i]
		needSeed := cfg.Seed && cfg.FromBlock > 0 && !sess.sim.Known(spec.Address)
		needSpacing := spec.TickSpacing == 0 && !sess.engine.Store().Initialized(spec.Address)
		if !needSeed && !needSpacing {
			continue
		}

		var block uint64
		if needSeed {
			block = cfg.FromBlock - 1
		}
		state, err := dex.FetchPoolState(ctx, caller, spec.Address, block)
		if err != nil {
			if needSpacing {
				return fmt.Errorf("pool %s: tick spacing not configured and not readable: %w", spec.Address.Hex(), err)
			}
			logger.Warn("seed pool state", zap.String("pool", spec.Address.Hex()), zap.Uint64("block", block), zap.Error(err))
			continue
		}
		if needSpacing {
			spec.TickSpacing = state.TickSpacing
		}
		if needSeed {
			sess.sim.Seed(spec.Address, incentive.Tick(state.Tick), state.Liquidity)
			logger.Info("pool seeded",
				zap.String("pool", spec.Address.Hex()),
				zap.Uint64("block", block),
				zap.Int32("tick", state.Tick),
				zap.String("liquidity", state.Liquidity.Dec()),
				zap.Int32("tick_spacing", state.TickSpacing),
			)
		}
	}
	return nil
}

// syncHandler applies each confirmed batch and persists the state before the
// runner checkpoints it.
type syncHandler struct {
	replayer *host.Replayer
	sess     *session
	states   storage.StateStore
	logger   *zap.Logger
}

func (h *syncHandler) HandleBatch(ctx context.Context, blockRange feed.BlockRange, records []model.LogRecord) error {
	for _, rec := range records {
		if err := h.replayer.ApplyLog(ctx, rec); err != nil {
			return err
		}
	}
	if err := h.sess.save(ctx, h.states, blockRange.To); err != nil {
		return err
	}
	h.logger.Debug("state saved", zap.Uint64("last_block", blockRange.To), zap.Int("logs", len(records)))
	return nil
}
