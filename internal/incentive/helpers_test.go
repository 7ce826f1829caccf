package incentive

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testPool  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testAdmin = common.HexToAddress("0xadadadadadadadadadadadadadadadadadadadad")
	alice     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob       = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

// Active liquidity is a power of two so that every accumulator step divides
// exactly: T seconds add T<<108 and a 2^18 position at rate 1000 earns 250*T.
const (
	poolLiquidity = uint64(1) << 20
	unitLiquidity = uint64(1) << 18
	testRate      = uint64(1000)
	startTS       = uint64(1_700_000_000)
)

type fakeHost struct {
	tick      Tick
	liquidity *uint256.Int
	positions map[PositionKey]*uint256.Int
	err       error
}

func newFakeHost(tick Tick, liquidity uint64) *fakeHost {
	return &fakeHost{
		tick:      tick,
		liquidity: uint256.NewInt(liquidity),
		positions: make(map[PositionKey]*uint256.Int),
	}
}

func (h *fakeHost) ActiveTick(context.Context, PoolID) (Tick, error) {
	return h.tick, h.err
}

func (h *fakeHost) ActiveLiquidity(context.Context, PoolID) (*uint256.Int, error) {
	return h.liquidity.Clone(), h.err
}

func (h *fakeHost) PositionLiquidity(_ context.Context, _ PoolID, key PositionKey) (*uint256.Int, error) {
	if l, ok := h.positions[key]; ok {
		return l.Clone(), h.err
	}
	return new(uint256.Int), h.err
}

type fakeReserve struct {
	available *uint256.Int
	paid      map[common.Address]*uint256.Int
	payoutErr error
	onPayout  func()
}

func newFakeReserve(available uint64) *fakeReserve {
	return &fakeReserve{available: uint256.NewInt(available), paid: make(map[common.Address]*uint256.Int)}
}

func (r *fakeReserve) Available(context.Context) (*uint256.Int, error) {
	return r.available.Clone(), nil
}

func (r *fakeReserve) Payout(_ context.Context, to common.Address, amount *uint256.Int) error {
	if r.onPayout != nil {
		r.onPayout()
	}
	if r.payoutErr != nil {
		return r.payoutErr
	}
	if r.available.Lt(amount) {
		return errors.New("reserve overdrawn")
	}
	r.available.Sub(r.available, amount)
	total := r.paid[to]
	if total == nil {
		total = new(uint256.Int)
	}
	r.paid[to] = total.Add(total, amount)
	return nil
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	host    *fakeHost
	reserve *fakeReserve
	engine  *Engine
}

func newHarness(t *testing.T, spacing int32, tick Tick) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		host:    newFakeHost(tick, poolLiquidity),
		reserve: newFakeReserve(0),
	}
	store := NewStore()
	require.NoError(t, store.SetTickSpacing(testPool, spacing))
	h.engine = NewEngine(Config{Admin: testAdmin}, store, h.host, h.reserve, zap.NewNop())
	require.NoError(t, h.engine.SetRewardRate(h.ctx, testAdmin, testPool, uint256.NewInt(testRate), startTS))
	return h
}

func position(owner common.Address, lower, upper Tick) PositionRef {
	return PositionRef{Pool: testPool, Owner: owner, Lower: lower, Upper: upper}
}

// modify touches the position and then applies the liquidity change, the way
// a host calls the engine before mutating.
func (h *harness) modify(ref PositionRef, delta int64, now uint64) uint64 {
	h.t.Helper()
	reward, err := h.engine.OnPositionTouched(h.ctx, ref, now)
	require.NoError(h.t, err)

	key := ref.Key()
	current := h.host.positions[key]
	if current == nil {
		current = new(uint256.Int)
	}
	if delta >= 0 {
		current = new(uint256.Int).Add(current, uint256.NewInt(uint64(delta)))
	} else {
		current = new(uint256.Int).Sub(current, uint256.NewInt(uint64(-delta)))
	}
	h.host.positions[key] = current
	return reward.Uint64()
}

func (h *harness) poke(ref PositionRef, now uint64) uint64 {
	return h.modify(ref, 0, now)
}

// swapTo moves the active tick; liquidity becomes the active liquidity after
// the swap.
func (h *harness) swapTo(tick Tick, liquidity uint64, now uint64) {
	h.t.Helper()
	require.NoError(h.t, h.engine.BeforeSwap(h.ctx, testPool, now))
	h.host.tick = tick
	h.host.liquidity = uint256.NewInt(liquidity)
	require.NoError(h.t, h.engine.OnActiveTickChanged(h.ctx, testPool, tick, now))
}

func (h *harness) accrued(who common.Address) uint64 {
	return h.engine.Accrued(who).Uint64()
}
