package host

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityIncentives/internal/incentive"
)

// Snapshot is a serializable copy of a Simulator.
type Snapshot struct {
	Pools     []PoolSnapshot     `json:"pools"`
	Positions []PositionSnapshot `json:"positions"`
}

type PoolSnapshot struct {
	Pool      common.Address    `json:"pool"`
	Known     bool              `json:"known"`
	Tick      int32             `json:"tick"`
	Liquidity string            `json:"liquidity"`
	Pending   []PendingPosition `json:"pending,omitempty"`
}

type PendingPosition struct {
	Owner common.Address `json:"owner"`
	Lower int32          `json:"lower"`
	Upper int32          `json:"upper"`
	Salt  common.Hash    `json:"salt"`
}

type PositionSnapshot struct {
	Pool      common.Address `json:"pool"`
	Key       common.Hash    `json:"key"`
	Liquidity string         `json:"liquidity"`
}

// Snapshot copies the simulator in a deterministic order.
func (s *Simulator) Snapshot() Snapshot {
	snap := Snapshot{
		Pools:     make([]PoolSnapshot, 0, len(s.pools)),
		Positions: make([]PositionSnapshot, 0, len(s.positions)),
	}
	for id, v := range s.pools {
		ps := PoolSnapshot{Pool: id, Known: v.known, Tick: int32(v.tick), Liquidity: v.liquidity.Dec()}
		for _, ref := range v.pending {
			ps.Pending = append(ps.Pending, PendingPosition{Owner: ref.Owner, Lower: int32(ref.Lower), Upper: int32(ref.Upper), Salt: ref.Salt})
		}
		sort.Slice(ps.Pending, func(i, j int) bool {
			a, b := ps.Pending[i], ps.Pending[j]
			if a.Owner != b.Owner {
				return bytes.Compare(a.Owner.Bytes(), b.Owner.Bytes()) < 0
			}
			if a.Lower != b.Lower {
				return a.Lower < b.Lower
			}
			if a.Upper != b.Upper {
				return a.Upper < b.Upper
			}
			return bytes.Compare(a.Salt.Bytes(), b.Salt.Bytes()) < 0
		})
		snap.Pools = append(snap.Pools, ps)
	}
	for slot, l := range s.positions {
		snap.Positions = append(snap.Positions, PositionSnapshot{Pool: slot.Pool, Key: slot.Key, Liquidity: l.Dec()})
	}

	sort.Slice(snap.Pools, func(i, j int) bool {
		return bytes.Compare(snap.Pools[i].Pool.Bytes(), snap.Pools[j].Pool.Bytes()) < 0
	})
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if a.Pool != b.Pool {
			return bytes.Compare(a.Pool.Bytes(), b.Pool.Bytes()) < 0
		}
		return bytes.Compare(a.Key.Bytes(), b.Key.Bytes()) < 0
	})
	return snap
}

// Restore rebuilds a Simulator from a snapshot.
func Restore(snap Snapshot, logger *zap.Logger) (*Simulator, error) {
	s := NewSimulator(logger)
	for _, ps := range snap.Pools {
		liquidity, err := uint256.FromDecimal(ps.Liquidity)
		if err != nil {
			return nil, fmt.Errorf("pool %s liquidity: %w", ps.Pool.Hex(), err)
		}
		v := s.view(ps.Pool)
		v.known = ps.Known
		v.tick = incentive.Tick(ps.Tick)
		v.liquidity = liquidity
		for _, p := range ps.Pending {
			ref := incentive.PositionRef{
				Pool:  ps.Pool,
				Owner: p.Owner,
				Lower: incentive.Tick(p.Lower),
				Upper: incentive.Tick(p.Upper),
				Salt:  p.Salt,
			}
			v.pending[ref.Key()] = ref
		}
	}
	for _, p := range snap.Positions {
		liquidity, err := uint256.FromDecimal(p.Liquidity)
		if err != nil {
			return nil, fmt.Errorf("position %s liquidity: %w", p.Key.Hex(), err)
		}
		if liquidity.IsZero() {
			continue
		}
		s.positions[positionSlot{Pool: p.Pool, Key: p.Key}] = liquidity
	}
	return s, nil
}
