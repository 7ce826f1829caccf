package incentive

import (
	"github.com/holiman/uint256"
)

// RefreshGlobal brings the pool accumulator forward to now using the liquidity
// that was active over the elapsed interval. The clock moves to now even when
// that liquidity is zero, so idle time is never credited later.
func (s *Store) RefreshGlobal(id PoolID, now uint64, activeLiquidity *uint256.Int) error {
	ps, err := s.initializedPool(id)
	if err != nil {
		return err
	}
	global, err := AdvanceGlobal(ps.global, ps.lastUpdate, now, activeLiquidity)
	if err != nil {
		return err
	}
	s.notePool(id)
	ps.global = global
	ps.lastUpdate = now
	return nil
}

// TouchBoundary attributes accumulator growth since the boundary's last touch
// and records the current global value as its snapshot.
func (s *Store) TouchBoundary(id PoolID, tick Tick, activeBelow bool) error {
	ps, err := s.initializedPool(id)
	if err != nil {
		return err
	}
	slot := tickSlot{Pool: id, Tick: tick}
	b, err := s.boundaries[slot].Touch(ps.global, activeBelow)
	if err != nil {
		return err
	}
	s.setBoundary(slot, b)
	return nil
}

// CrossTicks records a move of the active tick from its last observed value to
// newTick. Every grid tick in the closed interval between the two is touched,
// classified by where the active tick sat before the move. The move is assumed
// monotone between observations. The global accumulator must already be
// current. Returns the number of boundaries swept.
func (s *Store) CrossTicks(id PoolID, newTick Tick) (int, error) {
	ps, err := s.initializedPool(id)
	if err != nil {
		return 0, err
	}
	oldTick := ps.activeTick
	if oldTick == newTick {
		return 0, nil
	}

	lo, hi := oldTick, newTick
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < MinTick {
		lo = MinTick
	}
	if hi > MaxTick {
		hi = MaxTick
	}

	step := Tick(ps.tickSpacing)
	first := gridStart(lo, ps.tickSpacing)
	var staged []Boundary
	if first <= hi {
		staged = make([]Boundary, 0, int((hi-first)/step)+1)
	}
	for t := first; t <= hi; t += step {
		b, err := s.boundaries[tickSlot{Pool: id, Tick: t}].Touch(ps.global, oldTick < t)
		if err != nil {
			return 0, err
		}
		staged = append(staged, b)
	}

	for i, b := range staged {
		s.setBoundary(tickSlot{Pool: id, Tick: first + Tick(i)*step}, b)
	}
	s.notePool(id)
	ps.activeTick = newTick
	return len(staged), nil
}
