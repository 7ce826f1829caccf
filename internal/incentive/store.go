package incentive

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type tickSlot struct {
	Pool PoolID
	Tick Tick
}

type positionSlot struct {
	Pool PoolID
	Key  PositionKey
}

type poolState struct {
	initialized bool
	tickSpacing int32
	activeTick  Tick
	lastUpdate  uint64
	global      *uint256.Int
	rate        *uint256.Int
}

// Store holds the accumulator, boundary, checkpoint and balance state of every
// pool. Pool identity is explicit in every key. Store is not safe for
// concurrent use; Engine serialises access.
type Store struct {
	pools       map[PoolID]*poolState
	boundaries  map[tickSlot]Boundary
	checkpoints map[positionSlot]*uint256.Int
	balances    map[common.Address]*uint256.Int
	undo        *undoLog
}

func NewStore() *Store {
	return &Store{
		pools:       make(map[PoolID]*poolState),
		boundaries:  make(map[tickSlot]Boundary),
		checkpoints: make(map[positionSlot]*uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
	}
}

func (s *Store) pool(id PoolID) *poolState {
	ps, ok := s.pools[id]
	if !ok {
		ps = &poolState{tickSpacing: 1, global: zero(), rate: zero()}
		s.pools[id] = ps
	}
	return ps
}

func (s *Store) initializedPool(id PoolID) (*poolState, error) {
	ps, ok := s.pools[id]
	if !ok || !ps.initialized {
		return nil, invariantf("pool %s not initialized", id.Hex())
	}
	return ps, nil
}

// initPool anchors the pool clock and active tick without crediting time.
func (s *Store) initPool(id PoolID, now uint64, tick Tick) {
	s.notePool(id)
	ps := s.pool(id)
	ps.initialized = true
	ps.lastUpdate = now
	ps.activeTick = tick
}

// reanchor moves the pool clock to now without crediting the gap.
func (s *Store) reanchor(id PoolID, now uint64) error {
	ps, err := s.initializedPool(id)
	if err != nil {
		return err
	}
	if now < ps.lastUpdate {
		return invariantf("clock regression: now %d before last update %d", now, ps.lastUpdate)
	}
	s.notePool(id)
	ps.lastUpdate = now
	return nil
}

func (s *Store) setRewardRate(id PoolID, rate *uint256.Int) {
	s.pool(id).rate = orZero(rate)
}

func (s *Store) credit(beneficiary common.Address, amount *uint256.Int) error {
	bal := orZero(s.balances[beneficiary])
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		return invariantf("accrued balance overflow for %s", beneficiary.Hex())
	}
	s.balances[beneficiary] = bal
	return nil
}

// SetTickSpacing configures the boundary grid swept on crossings. It can only
// change before the pool is first touched.
func (s *Store) SetTickSpacing(id PoolID, spacing int32) error {
	if spacing <= 0 {
		return fmt.Errorf("tick spacing must be positive: %d", spacing)
	}
	ps := s.pool(id)
	if ps.initialized && ps.tickSpacing != spacing {
		return fmt.Errorf("pool %s already initialized with tick spacing %d", id.Hex(), ps.tickSpacing)
	}
	ps.tickSpacing = spacing
	return nil
}

// Initialized reports whether the pool clock has been anchored.
func (s *Store) Initialized(id PoolID) bool {
	ps, ok := s.pools[id]
	return ok && ps.initialized
}

func (s *Store) TickSpacing(id PoolID) int32 {
	if ps, ok := s.pools[id]; ok {
		return ps.tickSpacing
	}
	return 1
}

// Global returns the pool's seconds-per-liquidity accumulator.
func (s *Store) Global(id PoolID) *uint256.Int {
	if ps, ok := s.pools[id]; ok {
		return ps.global.Clone()
	}
	return zero()
}

// LastUpdate returns the timestamp of the last accumulator refresh.
func (s *Store) LastUpdate(id PoolID) uint64 {
	if ps, ok := s.pools[id]; ok {
		return ps.lastUpdate
	}
	return 0
}

// ActiveTick returns the last observed active tick.
func (s *Store) ActiveTick(id PoolID) (Tick, bool) {
	ps, ok := s.pools[id]
	if !ok || !ps.initialized {
		return 0, false
	}
	return ps.activeTick, true
}

func (s *Store) RewardRate(id PoolID) *uint256.Int {
	if ps, ok := s.pools[id]; ok {
		return ps.rate.Clone()
	}
	return zero()
}

// Boundary returns the stored state of a boundary tick.
func (s *Store) Boundary(id PoolID, tick Tick) Boundary {
	b := s.boundaries[tickSlot{Pool: id, Tick: tick}]
	return Boundary{Outside: orZero(b.Outside), Snapshot: orZero(b.Snapshot)}
}

// Outside returns the outside accumulator of a boundary tick as of its last touch.
func (s *Store) Outside(id PoolID, tick Tick) *uint256.Int {
	return s.Boundary(id, tick).Outside
}

// Checkpoint returns the inside reading recorded at the position's last touch.
func (s *Store) Checkpoint(id PoolID, key PositionKey) (*uint256.Int, bool) {
	cp, ok := s.checkpoints[positionSlot{Pool: id, Key: key}]
	if !ok {
		return zero(), false
	}
	return cp.Clone(), true
}

// Accrued returns the redeemable balance of a beneficiary.
func (s *Store) Accrued(beneficiary common.Address) *uint256.Int {
	return orZero(s.balances[beneficiary])
}
