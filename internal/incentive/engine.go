package incentive

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Host is the read-only view of the concentrated-liquidity market.
type Host interface {
	ActiveTick(ctx context.Context, pool PoolID) (Tick, error)
	ActiveLiquidity(ctx context.Context, pool PoolID) (*uint256.Int, error)
	// PositionLiquidity returns the position's liquidity before any pending mutation.
	PositionLiquidity(ctx context.Context, pool PoolID, key PositionKey) (*uint256.Int, error)
}

// FundingReserve holds the reward asset paid out on claims.
type FundingReserve interface {
	Available(ctx context.Context) (*uint256.Int, error)
	Payout(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Config controls engine behavior.
type Config struct {
	// Admin is the only caller allowed to change reward rates.
	Admin common.Address
}

// Engine exposes the trigger points a host invokes around swaps, liquidity
// mutations and claims. Each trigger runs to completion under one lock.
type Engine struct {
	cfg     Config
	mu      sync.Mutex
	store   *Store
	host    Host
	reserve FundingReserve
	logger  *zap.Logger
}

func NewEngine(cfg Config, store *Store, host Host, reserve FundingReserve, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewStore()
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		host:    host,
		reserve: reserve,
		logger:  logger,
	}
}

// Store returns the underlying state for introspection. Callers must not
// mutate it while triggers are running.
func (e *Engine) Store() *Store {
	return e.store
}

// BeforeSwap refreshes the global accumulator with the liquidity that was
// active up to now, ahead of a swap that may change it.
func (e *Engine) BeforeSwap(ctx context.Context, pool PoolID, now uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.RewardRate(pool).IsZero() {
		return nil
	}
	if !e.store.Initialized(pool) {
		return e.initPool(ctx, pool, now)
	}
	liquidity, err := e.host.ActiveLiquidity(ctx, pool)
	if err != nil {
		return fmt.Errorf("active liquidity: %w", err)
	}
	return e.fatal(pool, e.store.RefreshGlobal(pool, now, liquidity))
}

// OnActiveTickChanged is called once per observed price movement, after the
// host applied it. The previous tick is the last one the engine observed.
func (e *Engine) OnActiveTickChanged(ctx context.Context, pool PoolID, newTick Tick, now uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.RewardRate(pool).IsZero() {
		return nil
	}
	if !e.store.Initialized(pool) {
		e.store.initPool(pool, now, newTick)
		e.logger.Debug("pool initialized", zap.String("pool", pool.Hex()), zap.Int32("tick", int32(newTick)), zap.Uint64("ts", now))
		return nil
	}
	liquidity, err := e.host.ActiveLiquidity(ctx, pool)
	if err != nil {
		return fmt.Errorf("active liquidity: %w", err)
	}
	return e.fatal(pool, e.moveTick(pool, newTick, now, liquidity))
}

func (e *Engine) moveTick(pool PoolID, newTick Tick, now uint64, liquidity *uint256.Int) error {
	if err := e.store.RefreshGlobal(pool, now, liquidity); err != nil {
		return err
	}
	oldTick, _ := e.store.ActiveTick(pool)
	swept, err := e.store.CrossTicks(pool, newTick)
	if err != nil {
		return err
	}
	if swept > 0 {
		e.logger.Debug("ticks crossed",
			zap.String("pool", pool.Hex()),
			zap.Int32("from", int32(oldTick)),
			zap.Int32("to", int32(newTick)),
			zap.Stringer("direction", DirectionOf(oldTick, newTick)),
			zap.Int("swept", swept),
		)
	}
	return nil
}

// OnPositionTouched settles a position before the host applies a liquidity
// mutation to it and returns the reward credited to its owner.
func (e *Engine) OnPositionTouched(ctx context.Context, ref PositionRef, now uint64) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.RewardRate(ref.Pool).IsZero() {
		return zero(), nil
	}
	if err := checkRange(ref.Lower, ref.Upper, e.store.TickSpacing(ref.Pool)); err != nil {
		return nil, e.fatal(ref.Pool, err)
	}

	tick, err := e.host.ActiveTick(ctx, ref.Pool)
	if err != nil {
		return nil, fmt.Errorf("active tick: %w", err)
	}
	liquidity, err := e.host.ActiveLiquidity(ctx, ref.Pool)
	if err != nil {
		return nil, fmt.Errorf("active liquidity: %w", err)
	}
	key := ref.Key()
	before, err := e.host.PositionLiquidity(ctx, ref.Pool, key)
	if err != nil {
		return nil, fmt.Errorf("position liquidity: %w", err)
	}

	// the drift sweep and the touch commit together
	e.store.begin()
	defer e.store.rollback()

	if !e.store.Initialized(ref.Pool) {
		e.store.initPool(ref.Pool, now, tick)
	} else if last, _ := e.store.ActiveTick(ref.Pool); last != tick {
		// a tick change the engine was not told about
		e.logger.Warn("active tick drift", zap.String("pool", ref.Pool.Hex()), zap.Int32("stored", int32(last)), zap.Int32("host", int32(tick)))
		if err := e.moveTick(ref.Pool, tick, now, liquidity); err != nil {
			return nil, e.fatal(ref.Pool, err)
		}
	}

	reward, err := e.store.TouchPosition(ref, now, liquidity, before)
	if err != nil {
		return nil, e.fatal(ref.Pool, err)
	}
	e.store.commit()
	if !reward.IsZero() {
		e.logger.Debug("reward credited",
			zap.String("pool", ref.Pool.Hex()),
			zap.String("position", key.Hex()),
			zap.String("owner", ref.Owner.Hex()),
			zap.String("amount", reward.Dec()),
		)
	}
	return reward, nil
}

// SetRewardRate changes a pool's reward rate. Enabling a pool anchors its
// clock at now; disabling it first settles the accumulator up to now.
func (e *Engine) SetRewardRate(ctx context.Context, caller common.Address, pool PoolID, rate *uint256.Int, now uint64) error {
	if caller != e.cfg.Admin {
		return fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
	}
	rate = orZero(rate)
	if rate.BitLen() > 128 {
		return fmt.Errorf("reward rate %s exceeds 128 bits", rate.Dec())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.store.RewardRate(pool)
	switch {
	case prev.IsZero() && !rate.IsZero():
		if err := e.activate(ctx, pool, now); err != nil {
			return err
		}
	case !prev.IsZero() && rate.IsZero():
		liquidity, err := e.host.ActiveLiquidity(ctx, pool)
		if err != nil {
			return fmt.Errorf("active liquidity: %w", err)
		}
		if err := e.store.RefreshGlobal(pool, now, liquidity); err != nil {
			return e.fatal(pool, err)
		}
	}
	e.store.setRewardRate(pool, rate)

	e.logger.Info("reward rate set", zap.String("pool", pool.Hex()), zap.String("rate", rate.Dec()), zap.String("previous", prev.Dec()))
	return nil
}

func (e *Engine) activate(ctx context.Context, pool PoolID, now uint64) error {
	if !e.store.Initialized(pool) {
		return e.initPool(ctx, pool, now)
	}
	tick, err := e.host.ActiveTick(ctx, pool)
	if err != nil {
		return fmt.Errorf("active tick: %w", err)
	}
	e.store.begin()
	defer e.store.rollback()
	if err := e.store.reanchor(pool, now); err != nil {
		return e.fatal(pool, err)
	}
	// growth up to the pause happened on the stored side of every boundary
	if _, err := e.store.CrossTicks(pool, tick); err != nil {
		return e.fatal(pool, err)
	}
	e.store.commit()
	return nil
}

func (e *Engine) initPool(ctx context.Context, pool PoolID, now uint64) error {
	tick, err := e.host.ActiveTick(ctx, pool)
	if err != nil {
		return fmt.Errorf("active tick: %w", err)
	}
	e.store.initPool(pool, now, tick)
	e.logger.Debug("pool initialized", zap.String("pool", pool.Hex()), zap.Int32("tick", int32(tick)), zap.Uint64("ts", now))
	return nil
}

func (e *Engine) fatal(pool PoolID, err error) error {
	if err != nil {
		e.logger.Error("incentive state invariant", zap.String("pool", pool.Hex()), zap.Error(err))
	}
	return err
}

// InsideReading returns the range reading as of the pool's last refresh.
func (e *Engine) InsideReading(pool PoolID, lower, upper Tick) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.InsideReading(pool, lower, upper)
}

// SetTickSpacing configures a pool's boundary grid before its first touch.
func (e *Engine) SetTickSpacing(pool PoolID, spacing int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.SetTickSpacing(pool, spacing)
}

// RewardRate returns the pool's current reward rate.
func (e *Engine) RewardRate(pool PoolID) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.RewardRate(pool)
}

// Accrued returns the redeemable balance of a beneficiary.
func (e *Engine) Accrued(beneficiary common.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Accrued(beneficiary)
}

// Snapshot copies the engine state for persistence.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Snapshot()
}
