package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityIncentives/internal/config"
	"liquidityIncentives/internal/host"
	"liquidityIncentives/internal/model"
	"liquidityIncentives/internal/storage"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
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

	backend, err := openState(ctx, cfg.Common, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	sess, err := restoreSession(ctx, backend.states, admin, nil, logger)
	if err != nil {
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

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("errors", cfg.Errors),
		zap.Int("pools", len(specs)),
		zap.Uint64("resume_after", sess.state.LastBlock),
	)

	var before int
	onBadLine := func(line int, err error) {
		logger.Warn("bad log line", zap.Int("line", line), zap.Error(err))
		if errSink == nil {
			return
		}
		if sinkErr := errSink.PutDecodeError(model.DecodeError{Stage: "parse", Error: err.Error()}); sinkErr != nil {
			logger.Error("write decode error", zap.Error(sinkErr))
		}
	}
	err = storage.ReadLogRecords(ctx, cfg.In, func(rec model.LogRecord) error {
		if sess.found && rec.BlockNumber <= sess.state.LastBlock {
			before++
			return nil
		}
		return replayer.ApplyLog(ctx, rec)
	}, onBadLine)

	stats := replayer.Stats()
	if err != nil {
		// state is only written for a fully replayed input
		logger.Error("replay aborted", zap.Int("logs", stats.Logs), zap.Uint64("last_block", stats.LastBlock), zap.Error(err))
		return err
	}
	if err := sess.save(ctx, backend.states, stats.LastBlock); err != nil {
		return err
	}

	logger.Info("replay done",
		zap.Int("logs", stats.Logs),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped+before),
		zap.Int("failed", stats.Failed),
		zap.Uint64("last_block", sess.state.LastBlock),
	)
	return nil
}
