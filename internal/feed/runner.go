package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityIncentives/internal/model"
	"liquidityIncentives/internal/storage"
)

// Chain is the RPC surface the runner reads logs from.
type Chain interface {
	ChainID(ctx context.Context) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Handler consumes the logs of one block range in chain order. The range is
// only checkpointed after HandleBatch returns nil.
type Handler interface {
	HandleBatch(ctx context.Context, blockRange BlockRange, records []model.LogRecord) error
}

// RunConfig holds runtime settings for the feed.
type RunConfig struct {
	FromBlock      uint64
	ToBlock        uint64
	Confirmations  uint64
	Addresses      []common.Address
	Topic0         []common.Hash
	BatchSize      uint64
	CheckpointPath string
	MaxRetries     int
	RetryBackoff   time.Duration
	// progress recorded with the engine state, if any
	LastProcessed uint64
	HaveProgress  bool
}

// Runner streams pool logs from the chain to a Handler.
type Runner struct {
	cfg        RunConfig
	chain      Chain
	handler    Handler
	archive    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner. archive is optional and receives every batch
// before the handler does.
func NewRunner(cfg RunConfig, chain Chain, handler Handler, archive storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chain,
		handler:    handler,
		archive:    archive,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath),
	}
}

// Run fetches and hands over every batch up to the target block.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.handler == nil {
		return fmt.Errorf("handler is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	chainID, err := r.chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	latest, err := r.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	head, ok := SafeHead(latest, r.cfg.Confirmations)
	if !ok {
		r.logger.Info("chain shorter than confirmation depth", zap.Uint64("latest", latest), zap.Uint64("confirmations", r.cfg.Confirmations))
		return nil
	}
	to := r.cfg.ToBlock
	if to == 0 || to > head {
		to = head
	}

	from := ResumeFrom(r.cfg.FromBlock, r.cfg.LastProcessed, r.cfg.HaveProgress)
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok {
		if cp.ChainID != 0 && cp.ChainID != chainID {
			return fmt.Errorf("checkpoint is for chain %d, rpc serves chain %d", cp.ChainID, chainID)
		}
		if resume := ResumeFrom(r.cfg.FromBlock, cp.LastProcessedBlock, true); resume > from {
			from = resume
		}
	}
	if from != r.cfg.FromBlock {
		r.logger.Info("resume", zap.Uint64("from", from))
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}
		sortChainOrder(logs)

		ingestedAt := time.Now().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if r.isDuplicate(log) {
				continue
			}

			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, buildLogRecord(chainID, log, ts, ingestedAt))
		}

		if r.archive != nil {
			if err := r.archive.PutLogBatch(records); err != nil {
				return fmt.Errorf("archive logs: %w", err)
			}
		}
		if err := r.handler.HandleBatch(ctx, blockRange, records); err != nil {
			return fmt.Errorf("handle blocks %d-%d: %w", blockRange.From, blockRange.To, err)
		}
		if err := r.checkpoint.Save(chainID, blockRange.To); err != nil {
			return err
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
