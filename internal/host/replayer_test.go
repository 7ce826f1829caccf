package host

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidityIncentives/internal/dex"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/model"
)

type errorCollector struct {
	records []model.DecodeError
	err     error
}

func (c *errorCollector) PutDecodeError(rec model.DecodeError) error {
	c.records = append(c.records, rec)
	return c.err
}

func newReplayRig(t *testing.T, sink ErrorSink) (*Replayer, *Simulator, *incentive.Engine) {
	t.Helper()
	sim := NewSimulator(nil)
	engine := incentive.NewEngine(incentive.Config{Admin: testAdmin}, nil, sim, nil, zap.NewNop())
	decoder, err := dex.NewV3PoolDecoder(nil)
	require.NoError(t, err)
	replayer, err := NewReplayer(engine, sim, decoder, testAdmin, map[incentive.PoolID]PoolConfig{
		testPool: {TickSpacing: spacing, RewardRate: uint256.NewInt(rate)},
	}, sink, nil)
	require.NoError(t, err)
	return replayer, sim, engine
}

func TestReplayerActivatesOnFirstPrice(t *testing.T) {
	ctx := context.Background()
	replayer, sim, engine := newReplayRig(t, nil)

	require.NoError(t, replayer.ApplyEvent(ctx, positionEvent(model.EventMint, -60, 60, unit, t0)))
	require.True(t, engine.RewardRate(testPool).IsZero())
	require.False(t, sim.Known(testPool))

	require.NoError(t, replayer.ApplyEvent(ctx, swapEvent(0, 4*unit, t0+10)))
	require.Equal(t, uint64(rate), engine.RewardRate(testPool).Uint64())
	require.Equal(t, spacing, engine.Store().TickSpacing(testPool))

	key := incentive.DerivePositionKey(owner, -60, 60, common.Hash{})
	_, ok := engine.Store().Checkpoint(testPool, key)
	require.True(t, ok)

	require.NoError(t, replayer.ApplyEvent(ctx, positionEvent(model.EventBurn, -60, 60, unit, t0+110)))
	require.Equal(t, uint64(25_000), engine.Accrued(owner).Uint64())

	stats := replayer.Stats()
	require.Equal(t, 3, stats.Applied)
}

func TestReplayerIgnoresUnconfiguredPools(t *testing.T) {
	replayer, sim, _ := newReplayRig(t, nil)
	event := swapEvent(0, unit, t0)
	event.Pool = common.HexToAddress("0x9999999999999999999999999999999999999999")

	require.NoError(t, replayer.ApplyEvent(context.Background(), event))
	require.False(t, sim.Known(event.Pool))
	require.Equal(t, 1, replayer.Stats().Skipped)
}

func TestReplayerApplyLog(t *testing.T) {
	ctx := context.Background()
	sink := &errorCollector{}
	replayer, sim, _ := newReplayRig(t, sink)

	poolABI, err := dex.V3PoolABI()
	require.NoError(t, err)
	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(10), big.NewInt(-10), big.NewInt(1), big.NewInt(int64(4*unit)), big.NewInt(-30),
	)
	require.NoError(t, err)

	swapLog := model.LogRecord{
		BlockNumber: 100,
		TxHash:      "0x01",
		LogIndex:    3,
		Address:     testPool.Hex(),
		Topics: []string{
			poolABI.Events["Swap"].ID.Hex(),
			common.BytesToHash(owner.Bytes()).Hex(),
			common.BytesToHash(owner.Bytes()).Hex(),
		},
		Data:      hexutil.Encode(data),
		Timestamp: t0,
	}

	require.NoError(t, replayer.ApplyLog(ctx, swapLog))
	tick, err := sim.ActiveTick(ctx, testPool)
	require.NoError(t, err)
	require.Equal(t, incentive.Tick(-30), tick)

	// duplicate
	require.NoError(t, replayer.ApplyLog(ctx, swapLog))

	removed := swapLog
	removed.LogIndex = 4
	removed.Removed = true
	require.NoError(t, replayer.ApplyLog(ctx, removed))

	broken := swapLog
	broken.LogIndex = 5
	broken.Data = "0x01"
	require.NoError(t, replayer.ApplyLog(ctx, broken))

	stats := replayer.Stats()
	require.Equal(t, 4, stats.Logs)
	require.Equal(t, 1, stats.Applied)
	require.Equal(t, 2, stats.Skipped)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, uint64(100), stats.LastBlock)

	require.Len(t, sink.records, 1)
	require.Equal(t, "decode", sink.records[0].Stage)
	require.Equal(t, uint64(5), sink.records[0].LogIndex)

	sink.err = errors.New("disk full")
	broken.LogIndex = 6
	require.Error(t, replayer.ApplyLog(ctx, broken))
}

func TestReplayerDedupeWindowFollowsNewestBlock(t *testing.T) {
	ctx := context.Background()
	replayer, _, _ := newReplayRig(t, nil)
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")

	logAt := func(block, index uint64) model.LogRecord {
		return model.LogRecord{BlockNumber: block, TxHash: "0x01", LogIndex: index, Address: other.Hex(), Topics: []string{"0x00"}}
	}

	for index := uint64(0); index < 3; index++ {
		require.NoError(t, replayer.ApplyLog(ctx, logAt(100, index)))
	}
	require.Len(t, replayer.seen, 3)

	require.NoError(t, replayer.ApplyLog(ctx, logAt(101, 0)))
	require.Len(t, replayer.seen, 1)

	// an earlier block arriving again was applied before
	require.NoError(t, replayer.ApplyLog(ctx, logAt(100, 7)))
	require.NoError(t, replayer.ApplyLog(ctx, logAt(101, 0)))
	require.Len(t, replayer.seen, 1)

	stats := replayer.Stats()
	require.Equal(t, 6, stats.Logs)
	require.Equal(t, 6, stats.Skipped)
	require.Equal(t, uint64(101), replayer.frontier)
}

func TestReplayerRequiresDependencies(t *testing.T) {
	_, err := NewReplayer(nil, nil, nil, testAdmin, nil, nil, nil)
	require.Error(t, err)
}
