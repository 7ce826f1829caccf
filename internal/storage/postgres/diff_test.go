package postgres

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityIncentives/internal/host"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/storage"
)

func diffFixture() storage.State {
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	var boundaries []incentive.BoundarySnapshot
	for tick := int32(-600); tick <= 600; tick += 60 {
		boundaries = append(boundaries, incentive.BoundarySnapshot{Pool: pool, Tick: tick, Outside: "7", Snapshot: "0"})
	}
	return storage.State{
		Engine: incentive.Snapshot{
			Pools:      []incentive.PoolSnapshot{{Pool: pool, Initialized: true, TickSpacing: 60, LastUpdate: 100, Global: "0", RewardRate: "1"}},
			Boundaries: boundaries,
			Positions: []incentive.CheckpointSnapshot{
				{Pool: pool, Key: common.HexToHash("0x01"), Checkpoint: "1"},
				{Pool: pool, Key: common.HexToHash("0x02"), Checkpoint: "2"},
			},
			Balances: []incentive.BalanceSnapshot{
				{Beneficiary: common.HexToAddress("0xaa"), Amount: "10"},
				{Beneficiary: common.HexToAddress("0xbb"), Amount: "20"},
			},
		},
		Host: host.Snapshot{
			Pools:     []host.PoolSnapshot{{Pool: pool, Known: true, Liquidity: "5", Pending: []host.PendingPosition{}}},
			Positions: []host.PositionSnapshot{{Pool: pool, Key: common.HexToHash("0x01"), Liquidity: "5"}},
		},
		LastBlock: 10,
	}
}

func TestDiffStateWithoutPreviousWritesEverything(t *testing.T) {
	next := diffFixture()
	d := diffState(storage.State{}, false, next)
	require.True(t, d.full)
	require.Len(t, d.boundaries, len(next.Engine.Boundaries))
	require.Len(t, d.balances, 2)
	require.Empty(t, d.removedBalances)
}

func TestDiffStateWritesOnlyChangedRows(t *testing.T) {
	prev := diffFixture()
	next := diffFixture()
	next.Engine.Boundaries[3].Outside = "8"
	next.Engine.Pools[0].LastUpdate = 160
	next.Engine.Balances = next.Engine.Balances[1:]
	next.Engine.Positions = append(next.Engine.Positions, incentive.CheckpointSnapshot{
		Pool: prev.Engine.Pools[0].Pool, Key: common.HexToHash("0x03"), Checkpoint: "0",
	})
	next.Host.Pools[0].Pending = nil
	next.Host.Positions = nil
	next.LastBlock = 11

	d := diffState(prev, true, next)
	require.False(t, d.full)
	require.Equal(t, []incentive.BoundarySnapshot{next.Engine.Boundaries[3]}, d.boundaries)
	require.Equal(t, next.Engine.Pools, d.pools)
	require.Equal(t, []incentive.CheckpointSnapshot{next.Engine.Positions[2]}, d.checkpoints)
	require.Empty(t, d.balances)
	require.Equal(t, []incentive.BalanceSnapshot{prev.Engine.Balances[0]}, d.removedBalances)
	require.Empty(t, d.hostPools, "empty and nil pending lists are the same row")
	require.Empty(t, d.hostPositions)
	require.Equal(t, prev.Host.Positions, d.removedHostPositions)
}

func TestDiffStateUnchangedWritesNothing(t *testing.T) {
	d := diffState(diffFixture(), true, diffFixture())
	require.Empty(t, d.pools)
	require.Empty(t, d.boundaries)
	require.Empty(t, d.checkpoints)
	require.Empty(t, d.balances)
	require.Empty(t, d.removedBalances)
	require.Empty(t, d.hostPools)
	require.Empty(t, d.hostPositions)
	require.Empty(t, d.removedHostPositions)
}
