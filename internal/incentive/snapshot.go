package incentive

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Snapshot is a serializable copy of a Store. Amounts are decimal strings.
type Snapshot struct {
	Pools      []PoolSnapshot       `json:"pools"`
	Boundaries []BoundarySnapshot   `json:"boundaries"`
	Positions  []CheckpointSnapshot `json:"positions"`
	Balances   []BalanceSnapshot    `json:"balances"`
}

type PoolSnapshot struct {
	Pool        common.Address `json:"pool"`
	Initialized bool           `json:"initialized"`
	TickSpacing int32          `json:"tick_spacing"`
	ActiveTick  int32          `json:"active_tick"`
	LastUpdate  uint64         `json:"last_update"`
	Global      string         `json:"global"`
	RewardRate  string         `json:"reward_rate"`
}

type BoundarySnapshot struct {
	Pool     common.Address `json:"pool"`
	Tick     int32          `json:"tick"`
	Outside  string         `json:"outside"`
	Snapshot string         `json:"snapshot"`
}

type CheckpointSnapshot struct {
	Pool       common.Address `json:"pool"`
	Key        common.Hash    `json:"key"`
	Checkpoint string         `json:"checkpoint"`
}

type BalanceSnapshot struct {
	Beneficiary common.Address `json:"beneficiary"`
	Amount      string         `json:"amount"`
}

// Snapshot copies the store in a deterministic order.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Pools:      make([]PoolSnapshot, 0, len(s.pools)),
		Boundaries: make([]BoundarySnapshot, 0, len(s.boundaries)),
		Positions:  make([]CheckpointSnapshot, 0, len(s.checkpoints)),
		Balances:   make([]BalanceSnapshot, 0, len(s.balances)),
	}
	for id, ps := range s.pools {
		snap.Pools = append(snap.Pools, PoolSnapshot{
			Pool:        id,
			Initialized: ps.initialized,
			TickSpacing: ps.tickSpacing,
			ActiveTick:  int32(ps.activeTick),
			LastUpdate:  ps.lastUpdate,
			Global:      ps.global.Dec(),
			RewardRate:  ps.rate.Dec(),
		})
	}
	for slot, b := range s.boundaries {
		snap.Boundaries = append(snap.Boundaries, BoundarySnapshot{
			Pool:     slot.Pool,
			Tick:     int32(slot.Tick),
			Outside:  orZero(b.Outside).Dec(),
			Snapshot: orZero(b.Snapshot).Dec(),
		})
	}
	for slot, cp := range s.checkpoints {
		snap.Positions = append(snap.Positions, CheckpointSnapshot{Pool: slot.Pool, Key: slot.Key, Checkpoint: cp.Dec()})
	}
	for addr, bal := range s.balances {
		if bal.IsZero() {
			continue
		}
		snap.Balances = append(snap.Balances, BalanceSnapshot{Beneficiary: addr, Amount: bal.Dec()})
	}

	sort.Slice(snap.Pools, func(i, j int) bool {
		return bytes.Compare(snap.Pools[i].Pool.Bytes(), snap.Pools[j].Pool.Bytes()) < 0
	})
	sort.Slice(snap.Boundaries, func(i, j int) bool {
		a, b := snap.Boundaries[i], snap.Boundaries[j]
		if c := bytes.Compare(a.Pool.Bytes(), b.Pool.Bytes()); c != 0 {
			return c < 0
		}
		return a.Tick < b.Tick
	})
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if c := bytes.Compare(a.Pool.Bytes(), b.Pool.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Key.Bytes(), b.Key.Bytes()) < 0
	})
	sort.Slice(snap.Balances, func(i, j int) bool {
		return bytes.Compare(snap.Balances[i].Beneficiary.Bytes(), snap.Balances[j].Beneficiary.Bytes()) < 0
	})
	return snap
}

// RestoreStore rebuilds a Store from a snapshot.
func RestoreStore(snap Snapshot) (*Store, error) {
	s := NewStore()
	for _, p := range snap.Pools {
		global, err := parseAmount("global", p.Global)
		if err != nil {
			return nil, err
		}
		rate, err := parseAmount("reward rate", p.RewardRate)
		if err != nil {
			return nil, err
		}
		spacing := p.TickSpacing
		if spacing <= 0 {
			spacing = 1
		}
		s.pools[p.Pool] = &poolState{
			initialized: p.Initialized,
			tickSpacing: spacing,
			activeTick:  Tick(p.ActiveTick),
			lastUpdate:  p.LastUpdate,
			global:      global,
			rate:        rate,
		}
	}
	for _, b := range snap.Boundaries {
		outside, err := parseAmount("outside", b.Outside)
		if err != nil {
			return nil, err
		}
		snapshot, err := parseAmount("snapshot", b.Snapshot)
		if err != nil {
			return nil, err
		}
		s.boundaries[tickSlot{Pool: b.Pool, Tick: Tick(b.Tick)}] = Boundary{Outside: outside, Snapshot: snapshot}
	}
	for _, p := range snap.Positions {
		cp, err := parseAmount("checkpoint", p.Checkpoint)
		if err != nil {
			return nil, err
		}
		s.checkpoints[positionSlot{Pool: p.Pool, Key: p.Key}] = cp
	}
	for _, b := range snap.Balances {
		amount, err := parseAmount("balance", b.Amount)
		if err != nil {
			return nil, err
		}
		s.balances[b.Beneficiary] = amount
	}
	return s, nil
}

func parseAmount(name, value string) (*uint256.Int, error) {
	if value == "" {
		return zero(), nil
	}
	v, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", name, value, err)
	}
	return v, nil
}
