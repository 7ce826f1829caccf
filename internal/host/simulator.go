package host

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/model"
)

// ErrPoolUnknown is returned while a pool's price has not been observed yet.
var ErrPoolUnknown = errors.New("pool state unknown")

// Triggers are the engine entry points driven by pool events.
type Triggers interface {
	BeforeSwap(ctx context.Context, pool incentive.PoolID, now uint64) error
	OnActiveTickChanged(ctx context.Context, pool incentive.PoolID, newTick incentive.Tick, now uint64) error
	OnPositionTouched(ctx context.Context, ref incentive.PositionRef, now uint64) (*uint256.Int, error)
}

type poolView struct {
	known     bool
	tick      incentive.Tick
	liquidity *uint256.Int
	// positions minted before the first observed price
	pending map[incentive.PositionKey]incentive.PositionRef
}

type positionSlot struct {
	Pool incentive.PoolID
	Key  incentive.PositionKey
}

// Simulator replays pool events into the price and liquidity view the
// incentive engine reads. It is not safe for concurrent use.
type Simulator struct {
	pools     map[incentive.PoolID]*poolView
	positions map[positionSlot]*uint256.Int
	logger    *zap.Logger
}

func NewSimulator(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		pools:     make(map[incentive.PoolID]*poolView),
		positions: make(map[positionSlot]*uint256.Int),
		logger:    logger,
	}
}

func (s *Simulator) view(pool incentive.PoolID) *poolView {
	v, ok := s.pools[pool]
	if !ok {
		v = &poolView{liquidity: new(uint256.Int), pending: make(map[incentive.PositionKey]incentive.PositionRef)}
		s.pools[pool] = v
	}
	return v
}

// Seed sets a pool's price and active liquidity, typically from slot0 and
// liquidity() read at the block before replay starts.
func (s *Simulator) Seed(pool incentive.PoolID, tick incentive.Tick, liquidity *uint256.Int) {
	v := s.view(pool)
	v.known = true
	v.tick = tick
	v.liquidity = new(uint256.Int)
	if liquidity != nil {
		v.liquidity.Set(liquidity)
	}
}

// Known reports whether the pool's price has been seeded or observed.
func (s *Simulator) Known(pool incentive.PoolID) bool {
	v, ok := s.pools[pool]
	return ok && v.known
}

func (s *Simulator) ActiveTick(_ context.Context, pool incentive.PoolID) (incentive.Tick, error) {
	v, ok := s.pools[pool]
	if !ok || !v.known {
		return 0, fmt.Errorf("%w: %s", ErrPoolUnknown, pool.Hex())
	}
	return v.tick, nil
}

func (s *Simulator) ActiveLiquidity(_ context.Context, pool incentive.PoolID) (*uint256.Int, error) {
	v, ok := s.pools[pool]
	if !ok || !v.known {
		return nil, fmt.Errorf("%w: %s", ErrPoolUnknown, pool.Hex())
	}
	return v.liquidity.Clone(), nil
}

func (s *Simulator) PositionLiquidity(_ context.Context, pool incentive.PoolID, key incentive.PositionKey) (*uint256.Int, error) {
	if l, ok := s.positions[positionSlot{Pool: pool, Key: key}]; ok {
		return l.Clone(), nil
	}
	return new(uint256.Int), nil
}

// Apply feeds one decoded pool event through the engine triggers and then
// applies it to the simulated pool.
func (s *Simulator) Apply(ctx context.Context, triggers Triggers, event model.PoolEvent) error {
	if err := s.flushPending(ctx, triggers, event.Pool, event.Timestamp); err != nil {
		return err
	}
	switch event.Kind {
	case model.EventSwap:
		if event.Swap == nil {
			return fmt.Errorf("swap event without payload at block %d", event.BlockNumber)
		}
		return s.applySwap(ctx, triggers, event)
	case model.EventMint, model.EventBurn:
		if event.Position == nil {
			return fmt.Errorf("%s event without payload at block %d", event.Kind, event.BlockNumber)
		}
		return s.applyPosition(ctx, triggers, event)
	default:
		return fmt.Errorf("unsupported event kind: %s", event.Kind)
	}
}

// flushPending checkpoints positions that were minted while the pool price
// was unknown, once it is known.
func (s *Simulator) flushPending(ctx context.Context, triggers Triggers, pool incentive.PoolID, now uint64) error {
	v, ok := s.pools[pool]
	if !ok || !v.known || len(v.pending) == 0 {
		return nil
	}
	refs := make([]incentive.PositionRef, 0, len(v.pending))
	for _, ref := range v.pending {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Key().Hex() < refs[j].Key().Hex()
	})
	for _, ref := range refs {
		if _, err := triggers.OnPositionTouched(ctx, ref, now); err != nil {
			return fmt.Errorf("touch pending position %s: %w", ref.Key().Hex(), err)
		}
		delete(v.pending, ref.Key())
	}
	s.logger.Debug("pending positions checkpointed", zap.String("pool", pool.Hex()), zap.Int("positions", len(refs)))
	return nil
}

func (s *Simulator) applySwap(ctx context.Context, triggers Triggers, event model.PoolEvent) error {
	v := s.view(event.Pool)
	newTick := incentive.Tick(event.Swap.Tick)

	if v.known {
		if err := triggers.BeforeSwap(ctx, event.Pool, event.Timestamp); err != nil {
			return fmt.Errorf("before swap: %w", err)
		}
	}

	firstPrice := !v.known
	v.known = true
	v.tick = newTick
	v.liquidity = new(uint256.Int)
	if event.Swap.Liquidity != nil {
		v.liquidity.Set(event.Swap.Liquidity)
	}

	if err := triggers.OnActiveTickChanged(ctx, event.Pool, newTick, event.Timestamp); err != nil {
		return fmt.Errorf("tick changed: %w", err)
	}
	if firstPrice {
		return s.flushPending(ctx, triggers, event.Pool, event.Timestamp)
	}
	return nil
}

func (s *Simulator) applyPosition(ctx context.Context, triggers Triggers, event model.PoolEvent) error {
	change := event.Position
	ref := incentive.PositionRef{
		Pool:  event.Pool,
		Owner: change.Owner,
		Lower: incentive.Tick(change.TickLower),
		Upper: incentive.Tick(change.TickUpper),
		Salt:  change.Salt,
	}
	v := s.view(event.Pool)

	if v.known {
		if _, err := triggers.OnPositionTouched(ctx, ref, event.Timestamp); err != nil {
			return fmt.Errorf("touch position %s: %w", ref.Key().Hex(), err)
		}
	} else {
		v.pending[ref.Key()] = ref
	}

	amount := new(uint256.Int)
	if change.Amount != nil {
		amount.Set(change.Amount)
	}
	slot := positionSlot{Pool: event.Pool, Key: ref.Key()}
	current := s.positions[slot]
	if current == nil {
		current = new(uint256.Int)
	}

	var next *uint256.Int
	if event.Kind == model.EventMint {
		next = new(uint256.Int).Add(current, amount)
	} else {
		delta := amount
		if current.Lt(amount) {
			// minted before the replay window
			s.logger.Warn("burn exceeds tracked liquidity",
				zap.String("pool", event.Pool.Hex()),
				zap.String("position", ref.Key().Hex()),
				zap.String("tracked", current.Dec()),
				zap.String("burned", amount.Dec()),
			)
			delta = current
		}
		next = new(uint256.Int).Sub(current, delta)
	}
	if next.IsZero() {
		delete(s.positions, slot)
	} else {
		s.positions[slot] = next
	}

	if v.known && ref.Lower <= v.tick && v.tick < ref.Upper {
		if event.Kind == model.EventMint {
			v.liquidity.Add(v.liquidity, amount)
		} else if v.liquidity.Lt(amount) {
			s.logger.Warn("burn exceeds active liquidity", zap.String("pool", event.Pool.Hex()), zap.String("active", v.liquidity.Dec()))
			v.liquidity.Clear()
		} else {
			v.liquidity.Sub(v.liquidity, amount)
		}
	}
	return nil
}
