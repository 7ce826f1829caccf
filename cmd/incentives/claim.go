package main

import (
	"context"
	"errors"
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
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/reserve"
	"liquidityIncentives/internal/storage"
)

func runClaim(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadClaim(cfgFile, cmd.Flags())
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
	token, err := parseAddress("reward-token", cfg.RewardToken)
	if err != nil {
		return err
	}
	custody, err := parseAddress("reserve", cfg.Reserve)
	if err != nil {
		return err
	}
	beneficiary, err := parseAddress("beneficiary", cfg.Beneficiary)
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

	var queue storage.PayoutQueue
	if backend.pg != nil {
		queue = backend.pg
	} else {
		if cfg.Payouts == "" {
			return fmt.Errorf("payouts path is required")
		}
		queue = storage.NewJsonlPayoutQueue(cfg.Payouts)
	}

	funding, err := reserve.NewERC20(chainClient, token, custody, queue, logger)
	if err != nil {
		return err
	}

	sess, err := restoreSession(ctx, backend.states, common.Address{}, funding, logger)
	if err != nil {
		return err
	}

	meta, err := dex.FetchTokenMeta(ctx, chainClient, token, logger)
	if err != nil {
		logger.Warn("reward token metadata", zap.Error(err))
	}

	logger.Info("claim start",
		zap.String("beneficiary", beneficiary.Hex()),
		zap.String("token", token.Hex()),
		zap.String("symbol", meta.Symbol),
		zap.Uint8("decimals", meta.Decimals),
		zap.String("reserve", custody.Hex()),
		zap.String("accrued", sess.engine.Accrued(beneficiary).Dec()),
	)

	amount, err := sess.engine.Claim(ctx, beneficiary)
	if err != nil {
		if errors.Is(err, incentive.ErrNoClaimableBalance) {
			logger.Info("nothing to claim", zap.String("beneficiary", beneficiary.Hex()))
			return nil
		}
		return err
	}

	// the payout is already queued, so a failed save must be reconciled by hand
	if err := sess.save(ctx, backend.states, sess.state.LastBlock); err != nil {
		logger.Error("payout queued but state not saved",
			zap.String("beneficiary", beneficiary.Hex()),
			zap.String("amount", amount.Dec()),
			zap.Error(err),
		)
		return err
	}

	logger.Info("claim queued",
		zap.String("beneficiary", beneficiary.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("symbol", meta.Symbol),
	)
	return nil
}
