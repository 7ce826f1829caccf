package host

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityIncentives/internal/dex"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/model"
)

// PoolConfig is the incentive setup of one pool.
type PoolConfig struct {
	TickSpacing int32
	RewardRate  *uint256.Int
}

// ErrorSink receives logs that could not be decoded.
type ErrorSink interface {
	PutDecodeError(rec model.DecodeError) error
}

// Stats counts what a Replayer did with its input.
type Stats struct {
	Logs      int
	Applied   int
	Skipped   int
	Failed    int
	LastBlock uint64
}

// Replayer decodes pool logs in chain order and drives them through the
// simulator and the incentive engine. Logs of pools without a PoolConfig are
// ignored.
type Replayer struct {
	engine  *incentive.Engine
	sim     *Simulator
	decoder dex.Decoder
	admin   common.Address
	pools   map[incentive.PoolID]PoolConfig
	errSink ErrorSink
	logger  *zap.Logger
	// logs of the newest block seen so far; older blocks are already applied
	frontier uint64
	seen     map[string]struct{}
	stats    Stats
}

func NewReplayer(
	engine *incentive.Engine,
	sim *Simulator,
	decoder dex.Decoder,
	admin common.Address,
	pools map[incentive.PoolID]PoolConfig,
	errSink ErrorSink,
	logger *zap.Logger,
) (*Replayer, error) {
	if engine == nil || sim == nil || decoder == nil {
		return nil, fmt.Errorf("engine, simulator and decoder are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for pool, cfg := range pools {
		if cfg.TickSpacing == 0 {
			continue
		}
		if err := engine.SetTickSpacing(pool, cfg.TickSpacing); err != nil {
			return nil, fmt.Errorf("pool %s: %w", pool.Hex(), err)
		}
	}
	return &Replayer{
		engine:  engine,
		sim:     sim,
		decoder: decoder,
		admin:   admin,
		pools:   pools,
		errSink: errSink,
		logger:  logger,
		seen:    make(map[string]struct{}),
	}, nil
}

// Stats returns the counters accumulated so far.
func (r *Replayer) Stats() Stats {
	return r.stats
}

// ApplyLog decodes and applies one raw log. Logs must arrive in chain order:
// duplicates within the newest block and anything from an older block are
// skipped. Undecodable logs are reported to the error sink and skipped; engine
// failures are returned.
func (r *Replayer) ApplyLog(ctx context.Context, rec model.LogRecord) error {
	r.stats.Logs++
	if rec.Removed {
		r.stats.Skipped++
		r.logger.Warn("removed log skipped", zap.String("id", rec.ID()))
		return nil
	}
	if rec.BlockNumber < r.frontier {
		r.stats.Skipped++
		r.logger.Debug("log behind replay frontier skipped", zap.String("id", rec.ID()), zap.Uint64("frontier", r.frontier))
		return nil
	}
	if rec.BlockNumber > r.frontier {
		r.frontier = rec.BlockNumber
		clear(r.seen)
	}
	if _, ok := r.seen[rec.ID()]; ok {
		r.stats.Skipped++
		return nil
	}
	r.seen[rec.ID()] = struct{}{}

	if !common.IsHexAddress(rec.Address) {
		return r.decodeFailed(rec, "address", fmt.Errorf("invalid pool address: %s", rec.Address))
	}
	if _, ok := r.pools[common.HexToAddress(rec.Address)]; !ok || !r.decoder.CanDecode(rec.Topic0()) {
		r.stats.Skipped++
		return nil
	}

	event, err := r.decoder.Decode(rec)
	if err != nil {
		return r.decodeFailed(rec, "decode", err)
	}
	return r.ApplyEvent(ctx, event)
}

// ApplyEvent applies a decoded event. The first swap of a pool whose price
// was never seeded establishes it.
func (r *Replayer) ApplyEvent(ctx context.Context, event model.PoolEvent) error {
	cfg, ok := r.pools[event.Pool]
	if !ok {
		r.stats.Skipped++
		return nil
	}

	if !r.sim.Known(event.Pool) && event.Kind == model.EventSwap && event.Swap != nil {
		r.sim.Seed(event.Pool, incentive.Tick(event.Swap.Tick), event.Swap.Liquidity)
		r.logger.Info("pool price observed", zap.String("pool", event.Pool.Hex()), zap.Int32("tick", event.Swap.Tick), zap.Uint64("block", event.BlockNumber))
	}
	if r.sim.Known(event.Pool) {
		if err := r.syncRate(ctx, event.Pool, cfg.RewardRate, event.Timestamp); err != nil {
			return err
		}
	}

	if err := r.sim.Apply(ctx, r.engine, event); err != nil {
		return fmt.Errorf("apply %s at block %d log %d: %w", event.Kind, event.BlockNumber, event.LogIndex, err)
	}
	r.stats.Applied++
	if event.BlockNumber > r.stats.LastBlock {
		r.stats.LastBlock = event.BlockNumber
	}
	return nil
}

func (r *Replayer) syncRate(ctx context.Context, pool incentive.PoolID, want *uint256.Int, now uint64) error {
	if want == nil {
		want = new(uint256.Int)
	}
	if r.engine.RewardRate(pool).Eq(want) {
		return nil
	}
	if err := r.engine.SetRewardRate(ctx, r.admin, pool, want, now); err != nil {
		return fmt.Errorf("set reward rate for %s: %w", pool.Hex(), err)
	}
	return nil
}

func (r *Replayer) decodeFailed(rec model.LogRecord, stage string, err error) error {
	r.stats.Failed++
	r.logger.Warn("decode log", zap.String("id", rec.ID()), zap.String("stage", stage), zap.Error(err))
	if r.errSink == nil {
		return nil
	}
	if sinkErr := r.errSink.PutDecodeError(model.DecodeError{
		ChainID:     rec.ChainID,
		BlockNumber: rec.BlockNumber,
		TxHash:      rec.TxHash,
		LogIndex:    rec.LogIndex,
		Address:     rec.Address,
		Topic0:      rec.Topic0(),
		Stage:       stage,
		Error:       err.Error(),
	}); sinkErr != nil {
		return fmt.Errorf("write decode error: %w", sinkErr)
	}
	return nil
}
