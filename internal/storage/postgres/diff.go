package postgres

import (
	"reflect"

	"github.com/ethereum/go-ethereum/common"

	"liquidityIncentives/internal/host"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/storage"
)

type slotKey struct {
	pool common.Address
	tick int32
}

type positionKey struct {
	pool common.Address
	key  common.Hash
}

// stateDiff lists the rows a save must write. With full set, the balance and
// host position tables are cleared for the state name and fully rewritten.
type stateDiff struct {
	full bool

	pools       []incentive.PoolSnapshot
	boundaries  []incentive.BoundarySnapshot
	checkpoints []incentive.CheckpointSnapshot

	balances        []incentive.BalanceSnapshot
	removedBalances []incentive.BalanceSnapshot

	hostPools            []host.PoolSnapshot
	hostPositions        []host.PositionSnapshot
	removedHostPositions []host.PositionSnapshot
}

// diffState compares next against the state last written or read under the
// same name. Without a previous state every row is written.
func diffState(prev storage.State, havePrev bool, next storage.State) stateDiff {
	if !havePrev {
		return stateDiff{
			full:          true,
			pools:         next.Engine.Pools,
			boundaries:    next.Engine.Boundaries,
			checkpoints:   next.Engine.Positions,
			balances:      next.Engine.Balances,
			hostPools:     next.Host.Pools,
			hostPositions: next.Host.Positions,
		}
	}

	var d stateDiff
	d.pools, _ = changedRows(prev.Engine.Pools, next.Engine.Pools,
		func(p incentive.PoolSnapshot) common.Address { return p.Pool }, equalRows[incentive.PoolSnapshot])
	d.boundaries, _ = changedRows(prev.Engine.Boundaries, next.Engine.Boundaries,
		func(b incentive.BoundarySnapshot) slotKey { return slotKey{b.Pool, b.Tick} }, equalRows[incentive.BoundarySnapshot])
	d.checkpoints, _ = changedRows(prev.Engine.Positions, next.Engine.Positions,
		func(c incentive.CheckpointSnapshot) positionKey { return positionKey{c.Pool, c.Key} }, equalRows[incentive.CheckpointSnapshot])
	d.balances, d.removedBalances = changedRows(prev.Engine.Balances, next.Engine.Balances,
		func(b incentive.BalanceSnapshot) common.Address { return b.Beneficiary }, equalRows[incentive.BalanceSnapshot])
	d.hostPools, _ = changedRows(prev.Host.Pools, next.Host.Pools,
		func(p host.PoolSnapshot) common.Address { return p.Pool }, equalHostPools)
	d.hostPositions, d.removedHostPositions = changedRows(prev.Host.Positions, next.Host.Positions,
		func(p host.PositionSnapshot) positionKey { return positionKey{p.Pool, p.Key} }, equalRows[host.PositionSnapshot])
	return d
}

// changedRows returns the rows of next that are new or differ from prev, and
// the rows of prev whose key is gone from next.
func changedRows[K comparable, V any](prev, next []V, key func(V) K, equal func(a, b V) bool) (upserts, removed []V) {
	old := make(map[K]V, len(prev))
	for _, row := range prev {
		old[key(row)] = row
	}
	for _, row := range next {
		k := key(row)
		if was, ok := old[k]; !ok || !equal(was, row) {
			upserts = append(upserts, row)
		}
		delete(old, k)
	}
	for _, row := range prev {
		if _, gone := old[key(row)]; gone {
			removed = append(removed, row)
		}
	}
	return upserts, removed
}

func equalRows[V comparable](a, b V) bool { return a == b }

func equalHostPools(a, b host.PoolSnapshot) bool {
	if len(a.Pending) == 0 && len(b.Pending) == 0 {
		a.Pending, b.Pending = nil, nil
	}
	return reflect.DeepEqual(a, b)
}
