package incentive

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTimeProportionality(t *testing.T) {
	h := newHarness(t, 10, 5)
	short := position(alice, 0, 100)
	long := position(bob, 0, 100)

	h.modify(short, int64(unitLiquidity), startTS)
	h.modify(long, int64(unitLiquidity), startTS)

	const T = 120
	h.modify(short, -int64(unitLiquidity), startTS+T)
	h.modify(long, -int64(unitLiquidity), startTS+2*T)

	require.Equal(t, uint64(250*T), h.accrued(alice))
	require.Equal(t, 2*h.accrued(alice), h.accrued(bob))
}

func TestLiquidityProportionality(t *testing.T) {
	h := newHarness(t, 10, 5)
	small := position(alice, 0, 100)
	large := position(bob, 0, 100)

	h.modify(small, int64(unitLiquidity), startTS)
	h.modify(large, int64(2*unitLiquidity), startTS)

	h.poke(small, startTS+300)
	h.poke(large, startTS+300)

	require.Equal(t, uint64(250*300), h.accrued(alice))
	require.Equal(t, 2*h.accrued(alice), h.accrued(bob))
}

func TestOutOfRangeAccruesNothing(t *testing.T) {
	h := newHarness(t, 10, 5)
	above := position(alice, 200, 300)
	below := position(bob, -300, -200)

	h.modify(above, int64(unitLiquidity), startTS)
	h.modify(below, int64(unitLiquidity), startTS)
	h.swapTo(90, poolLiquidity, startTS+100)
	h.swapTo(-150, poolLiquidity, startTS+200)
	h.swapTo(150, poolLiquidity, startTS+300)

	h.poke(above, startTS+1000)
	h.poke(below, startTS+1000)

	require.Zero(t, h.accrued(alice))
	require.Zero(t, h.accrued(bob))
}

func TestSplitTimeFairness(t *testing.T) {
	h := newHarness(t, 10, 5)
	rangeA := position(alice, 0, 100)
	rangeB := position(bob, 100, 200)
	la, lb := unitLiquidity, 2*unitLiquidity

	h.modify(rangeA, int64(la), startTS)
	h.modify(rangeB, int64(lb), startTS)

	// f = 0.3 of T = 100s in A, the rest in B
	h.swapTo(150, poolLiquidity, startTS+30)
	h.poke(rangeA, startTS+100)
	h.poke(rangeB, startTS+100)

	accA, accB := h.accrued(alice), h.accrued(bob)
	require.Equal(t, uint64(7500), accA)
	require.Equal(t, uint64(35000), accB)
	// accA : accB == f*la : (1-f)*lb
	require.Equal(t, accA*70*lb, accB*30*la)
}

func TestThreeRangeSweep(t *testing.T) {
	h := newHarness(t, 10, 50)
	r1 := position(alice, 0, 100)
	r2 := position(bob, 100, 200)

	h.modify(r1, int64(unitLiquidity), startTS)
	h.modify(r2, int64(unitLiquidity), startTS)
	r3Start, err := h.engine.InsideReading(testPool, 200, 300)
	require.NoError(t, err)

	const T = 60
	h.swapTo(150, poolLiquidity, startTS+T)
	// R3 holds no liquidity
	h.swapTo(250, 0, startTS+2*T)
	h.swapTo(150, poolLiquidity, startTS+3*T)

	h.poke(r1, startTS+4*T)
	h.poke(r2, startTS+4*T)

	require.Equal(t, uint64(250*T), h.accrued(alice))
	require.Equal(t, uint64(250*2*T), h.accrued(bob))

	r3End, err := h.engine.InsideReading(testPool, 200, 300)
	require.NoError(t, err)
	require.True(t, r3Start.Eq(r3End), "R3 reading moved: %s -> %s", r3Start.Dec(), r3End.Dec())
}

func TestLiquidityBeforeMutationIsUsed(t *testing.T) {
	h := newHarness(t, 1, 5)
	ref := position(alice, 0, 10)

	h.modify(ref, int64(unitLiquidity), startTS)
	reward := h.modify(ref, int64(unitLiquidity), startTS+40)
	require.Equal(t, uint64(250*40), reward)

	reward = h.modify(ref, -int64(2*unitLiquidity), startTS+80)
	require.Equal(t, uint64(500*40), reward)
	require.Equal(t, uint64(250*40+500*40), h.accrued(alice))
}

func TestReentryAfterZeroLiquidity(t *testing.T) {
	h := newHarness(t, 1, 5)
	ref := position(alice, 0, 10)

	h.modify(ref, int64(unitLiquidity), startTS)
	h.modify(ref, -int64(unitLiquidity), startTS+10)
	require.Equal(t, uint64(2500), h.accrued(alice))

	// idle while empty, then re-enter
	reward := h.modify(ref, int64(unitLiquidity), startTS+500)
	require.Zero(t, reward)

	reward = h.poke(ref, startTS+520)
	require.Equal(t, uint64(250*20), reward)
}

func TestFirstTouchOnlyCheckpoints(t *testing.T) {
	h := newHarness(t, 1, 5)
	ref := position(alice, 0, 10)
	h.host.positions[ref.Key()] = uint256.NewInt(unitLiquidity)

	// liquidity predates the first observation, nothing is owed yet
	reward, err := h.engine.OnPositionTouched(h.ctx, ref, startTS+100)
	require.NoError(t, err)
	require.Zero(t, reward.Uint64())

	_, ok := h.engine.Store().Checkpoint(testPool, ref.Key())
	require.True(t, ok)
}

func TestZeroRatePoolIsUntouched(t *testing.T) {
	host := newFakeHost(5, poolLiquidity)
	engine := NewEngine(Config{Admin: testAdmin}, NewStore(), host, newFakeReserve(0), zap.NewNop())
	ref := position(alice, 0, 10)
	host.positions[ref.Key()] = uint256.NewInt(unitLiquidity)

	reward, err := engine.OnPositionTouched(context.Background(), ref, startTS)
	require.NoError(t, err)
	require.True(t, reward.IsZero())
	require.NoError(t, engine.OnActiveTickChanged(context.Background(), testPool, 50, startTS+10))

	require.False(t, engine.Store().Initialized(testPool))
	_, ok := engine.Store().Checkpoint(testPool, ref.Key())
	require.False(t, ok)
	require.Empty(t, engine.Store().Snapshot().Boundaries)
}

func TestRewardRateRequiresAdmin(t *testing.T) {
	h := newHarness(t, 1, 0)
	err := h.engine.SetRewardRate(h.ctx, alice, testPool, uint256.NewInt(1), startTS+1)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, testRate, h.engine.Store().RewardRate(testPool).Uint64())
}

func TestPausedIntervalIsNotCredited(t *testing.T) {
	h := newHarness(t, 10, 5)
	ref := position(alice, 0, 100)
	h.modify(ref, int64(unitLiquidity), startTS)

	require.NoError(t, h.engine.SetRewardRate(h.ctx, testAdmin, testPool, new(uint256.Int), startTS+100))
	// price leaves and re-enters the range while incentives are off
	h.swapTo(250, poolLiquidity, startTS+150)
	h.host.tick = 40
	require.NoError(t, h.engine.SetRewardRate(h.ctx, testAdmin, testPool, uint256.NewInt(testRate), startTS+1000))

	reward := h.poke(ref, startTS+1010)
	require.Equal(t, uint64(250*110), reward)
}

func TestUnreportedTickMoveIsSwept(t *testing.T) {
	h := newHarness(t, 10, 5)
	ref := position(alice, 0, 100)
	h.modify(ref, int64(unitLiquidity), startTS)

	// the host moved out of range without telling the engine
	require.NoError(t, h.engine.BeforeSwap(h.ctx, testPool, startTS+50))
	h.host.tick = 150

	reward := h.poke(ref, startTS+50)
	require.Equal(t, uint64(250*50), reward)
	reward = h.poke(ref, startTS+90)
	require.Zero(t, reward)
}

func TestFailedTouchUndoesDriftSweep(t *testing.T) {
	h := newHarness(t, 10, 5)
	ref := position(alice, 0, 100)
	h.modify(ref, int64(unitLiquidity), startTS)
	before := h.engine.Store().Snapshot()

	// the host moved out of range and reports a position wider than 128 bits
	h.host.tick = 150
	key := ref.Key()
	h.host.positions[key] = new(uint256.Int).Lsh(uint256.NewInt(1), 129)

	_, err := h.engine.OnPositionTouched(h.ctx, ref, startTS+50)
	require.ErrorIs(t, err, ErrInvariantViolation)
	require.Equal(t, before, h.engine.Store().Snapshot())

	h.host.positions[key] = uint256.NewInt(unitLiquidity)
	reward := h.poke(ref, startTS+50)
	require.Equal(t, uint64(250*50), reward)
}

func TestInvalidRangeIsInvariantViolation(t *testing.T) {
	h := newHarness(t, 10, 5)

	_, err := h.engine.OnPositionTouched(h.ctx, position(alice, 100, 0), startTS)
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = h.engine.OnPositionTouched(h.ctx, position(alice, 0, 15), startTS)
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = h.engine.InsideReading(testPool, 100, 0)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestClockRegressionLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, 10, 5)
	ref := position(alice, 0, 100)
	h.modify(ref, int64(unitLiquidity), startTS+100)

	before := h.engine.Store().Snapshot()
	_, err := h.engine.OnPositionTouched(h.ctx, ref, startTS+50)
	require.ErrorIs(t, err, ErrInvariantViolation)
	require.Equal(t, before, h.engine.Store().Snapshot())
}

func TestReadIdempotence(t *testing.T) {
	h := newHarness(t, 10, 5)
	ref := position(alice, 0, 100)
	h.modify(ref, int64(unitLiquidity), startTS)
	h.swapTo(150, poolLiquidity, startTS+70)

	first, err := h.engine.InsideReading(testPool, 0, 100)
	require.NoError(t, err)
	second, err := h.engine.InsideReading(testPool, 0, 100)
	require.NoError(t, err)
	require.True(t, first.Eq(second))
	require.False(t, first.IsZero())
}

func TestSnapshotResumesAccrual(t *testing.T) {
	run := func(t *testing.T, restart bool) uint64 {
		h := newHarness(t, 10, 5)
		ref := position(alice, 0, 100)
		h.modify(ref, int64(unitLiquidity), startTS)
		h.swapTo(150, poolLiquidity, startTS+40)

		if restart {
			data, err := json.Marshal(h.engine.Store().Snapshot())
			require.NoError(t, err)
			var snap Snapshot
			require.NoError(t, json.Unmarshal(data, &snap))
			store, err := RestoreStore(snap)
			require.NoError(t, err)
			h.engine = NewEngine(Config{Admin: testAdmin}, store, h.host, h.reserve, zap.NewNop())
		}

		h.swapTo(60, poolLiquidity, startTS+100)
		h.poke(ref, startTS+130)
		return h.accrued(alice)
	}

	straight := run(t, false)
	resumed := run(t, true)
	require.Equal(t, uint64(250*70), straight)
	require.Equal(t, straight, resumed)
}
