package incentive

import (
	"github.com/holiman/uint256"
)

// InsideReading returns the time-weighted-inside measure of [lower, upper] as
// of the pool's last refresh. It writes nothing: boundaries whose growth has
// not been attributed yet are brought current on copies.
func (s *Store) InsideReading(id PoolID, lower, upper Tick) (*uint256.Int, error) {
	ps, err := s.initializedPool(id)
	if err != nil {
		return nil, err
	}
	if err := checkRange(lower, upper, ps.tickSpacing); err != nil {
		return nil, err
	}
	lo, err := s.boundaries[tickSlot{Pool: id, Tick: lower}].Touch(ps.global, ps.activeTick < lower)
	if err != nil {
		return nil, err
	}
	hi, err := s.boundaries[tickSlot{Pool: id, Tick: upper}].Touch(ps.global, ps.activeTick < upper)
	if err != nil {
		return nil, err
	}
	return InsideBetween(lo.Outside, hi.Outside)
}

// TouchPosition settles a position ahead of a liquidity mutation. The interval
// since the previous checkpoint is paid to the owner using liquidityBefore, the
// amount actually deployed over that interval, and the checkpoint moves to the
// current inside reading. Pools without a reward rate are left untouched.
//
// All values are computed before anything is written, so a failing call leaves
// the store unchanged.
func (s *Store) TouchPosition(ref PositionRef, now uint64, activeLiquidity, liquidityBefore *uint256.Int) (*uint256.Int, error) {
	ps, err := s.initializedPool(ref.Pool)
	if err != nil {
		return nil, err
	}
	if ps.rate.IsZero() {
		return zero(), nil
	}
	if err := checkRange(ref.Lower, ref.Upper, ps.tickSpacing); err != nil {
		return nil, err
	}
	if err := checkLiquidity("position liquidity", liquidityBefore); err != nil {
		return nil, err
	}

	global, err := AdvanceGlobal(ps.global, ps.lastUpdate, now, activeLiquidity)
	if err != nil {
		return nil, err
	}

	lowerSlot := tickSlot{Pool: ref.Pool, Tick: ref.Lower}
	upperSlot := tickSlot{Pool: ref.Pool, Tick: ref.Upper}
	lower, err := s.boundaries[lowerSlot].Touch(global, ps.activeTick < ref.Lower)
	if err != nil {
		return nil, err
	}
	upper := lower
	if ref.Upper != ref.Lower {
		upper, err = s.boundaries[upperSlot].Touch(global, ps.activeTick < ref.Upper)
		if err != nil {
			return nil, err
		}
	}

	inside, err := InsideBetween(lower.Outside, upper.Outside)
	if err != nil {
		return nil, err
	}

	slot := positionSlot{Pool: ref.Pool, Key: ref.Key()}
	reward := zero()
	if checkpoint, ok := s.checkpoints[slot]; ok {
		reward, err = RewardDelta(inside, checkpoint, liquidityBefore, ps.rate)
		if err != nil {
			return nil, err
		}
	}

	balance := orZero(s.balances[ref.Owner])
	if _, overflow := balance.AddOverflow(balance, reward); overflow {
		return nil, invariantf("accrued balance overflow for %s", ref.Owner.Hex())
	}

	s.notePool(ref.Pool)
	ps.global = global
	ps.lastUpdate = now
	s.setBoundary(lowerSlot, lower)
	s.setBoundary(upperSlot, upper)
	s.checkpoints[slot] = inside
	s.balances[ref.Owner] = balance
	return reward, nil
}
