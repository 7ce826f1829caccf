package incentive

import (
	"github.com/holiman/uint256"
)

// AdvanceGlobal returns the seconds-per-liquidity accumulator brought forward
// from last to now, assuming activeLiquidity was constant over the interval.
// Idle intervals (zero liquidity) add nothing.
func AdvanceGlobal(global *uint256.Int, last, now uint64, activeLiquidity *uint256.Int) (*uint256.Int, error) {
	if now < last {
		return nil, invariantf("clock regression: now %d before last update %d", now, last)
	}
	out := orZero(global)
	if now == last || activeLiquidity == nil || activeLiquidity.IsZero() {
		return out, nil
	}
	if err := checkLiquidity("active liquidity", activeLiquidity); err != nil {
		return nil, err
	}

	growth := new(uint256.Int).Lsh(uint256.NewInt(now-last), scaleBits)
	growth.Div(growth, activeLiquidity)
	if _, overflow := out.AddOverflow(out, growth); overflow {
		return nil, invariantf("global accumulator overflow")
	}
	return out, nil
}

// Boundary is the lazily maintained state of one boundary tick.
//
// Outside holds the part of the global accumulator accrued while the active
// tick was strictly below the boundary; Snapshot is the global value at the
// boundary's last touch. Growth between Snapshot and the current global value
// has not been attributed yet.
type Boundary struct {
	Outside  *uint256.Int
	Snapshot *uint256.Int
}

// Touch attributes the accumulator growth since the last touch. activeBelow
// reports which side of the boundary the active tick sat on over that
// interval; it cannot have changed sides without a crossing touching it.
func (b Boundary) Touch(global *uint256.Int, activeBelow bool) (Boundary, error) {
	outside, snapshot := orZero(b.Outside), orZero(b.Snapshot)
	delta, underflow := new(uint256.Int).SubOverflow(global, snapshot)
	if underflow {
		return Boundary{}, invariantf("boundary snapshot %s ahead of global %s", snapshot.Dec(), global.Dec())
	}
	if activeBelow && !delta.IsZero() {
		if _, overflow := outside.AddOverflow(outside, delta); overflow {
			return Boundary{}, invariantf("outside accumulator overflow")
		}
	}
	return Boundary{Outside: outside, Snapshot: global.Clone()}, nil
}

// InsideBetween derives the time-weighted-inside reading of a range from its
// two freshly touched boundaries.
func InsideBetween(lowerOutside, upperOutside *uint256.Int) (*uint256.Int, error) {
	lower, upper := orZero(lowerOutside), orZero(upperOutside)
	inside, underflow := new(uint256.Int).SubOverflow(upper, lower)
	if underflow {
		return nil, invariantf("inside reading underflow: upper %s < lower %s", upper.Dec(), lower.Dec())
	}
	return inside, nil
}

// RewardDelta converts growth of the inside reading since checkpoint into
// reward units: (inside-checkpoint) * liquidity * rate / Scale.
func RewardDelta(inside, checkpoint, liquidity, rate *uint256.Int) (*uint256.Int, error) {
	now, prev := orZero(inside), orZero(checkpoint)
	growth, underflow := new(uint256.Int).SubOverflow(now, prev)
	if underflow {
		return nil, invariantf("checkpoint %s ahead of inside reading %s", prev.Dec(), now.Dec())
	}
	if growth.IsZero() || liquidity == nil || liquidity.IsZero() || rate == nil || rate.IsZero() {
		return zero(), nil
	}
	if err := checkLiquidity("position liquidity", liquidity); err != nil {
		return nil, err
	}
	if rate.BitLen() > 128 {
		return nil, invariantf("reward rate %s exceeds 128 bits", rate.Dec())
	}

	weight := new(uint256.Int).Mul(liquidity, rate)
	reward, overflow := new(uint256.Int).MulDivOverflow(growth, weight, Scale)
	if overflow {
		return nil, invariantf("reward overflow")
	}
	return reward, nil
}
