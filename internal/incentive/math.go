package incentive

import (
	"github.com/holiman/uint256"
)

// scaleBits is the fixed-point width of the seconds-per-liquidity accumulator.
// elapsed is a uint64, so elapsed<<scaleBits stays below 2^192.
const scaleBits = 128

var (
	// Scale is one unit of the seconds-per-liquidity accumulator (Q128).
	Scale = new(uint256.Int).Lsh(uint256.NewInt(1), scaleBits)

	maxLiquidity = new(uint256.Int).Sub(Scale, uint256.NewInt(1))
)

func zero() *uint256.Int {
	return new(uint256.Int)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return zero()
	}
	return v.Clone()
}

// checkLiquidity rejects liquidity magnitudes wider than 128 bits, which is
// what keeps liquidity*rate inside 256 bits.
func checkLiquidity(name string, v *uint256.Int) error {
	if v != nil && v.BitLen() > 128 {
		return invariantf("%s %s exceeds 128 bits", name, v.Dec())
	}
	return nil
}

func checkRange(lower, upper Tick, spacing int32) error {
	if lower > upper {
		return invariantf("lower tick %d above upper tick %d", lower, upper)
	}
	if lower < MinTick || upper > MaxTick {
		return invariantf("range [%d, %d] outside tick bounds", lower, upper)
	}
	if spacing > 1 && (int32(lower)%spacing != 0 || int32(upper)%spacing != 0) {
		return invariantf("range [%d, %d] not aligned to spacing %d", lower, upper, spacing)
	}
	return nil
}

// gridStart returns the first multiple of spacing that is >= t.
func gridStart(t Tick, spacing int32) Tick {
	q := int32(t) / spacing
	if int32(t)%spacing != 0 && t > 0 {
		q++
	}
	return Tick(q * spacing)
}
