package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityIncentives/internal/host"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/model"
)

func TestFileStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "nested", "state.json")}

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	state := State{
		Engine: incentive.Snapshot{
			Pools: []incentive.PoolSnapshot{{Pool: pool, Initialized: true, TickSpacing: 60, ActiveTick: -120, LastUpdate: 42, Global: "123", RewardRate: "1000"}},
		},
		Host: host.Snapshot{
			Pools: []host.PoolSnapshot{{Pool: pool, Known: true, Tick: -120, Liquidity: "99"}},
		},
		LastBlock: 77,
	}
	require.NoError(t, store.Save(ctx, state))

	loaded, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, loaded.UpdatedAt)
	loaded.UpdatedAt = ""
	require.Equal(t, state, loaded)

	_, err = os.Stat(store.Path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestFileStateStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, _, err := (&FileStateStore{Path: path}).Load(context.Background())
	require.Error(t, err)
}

func TestJsonlLogsRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	sink := NewJsonlStorage(path)

	require.NoError(t, sink.PutLogBatch([]model.LogRecord{
		{BlockNumber: 1, TxHash: "0xa", LogIndex: 0, Address: "0x01", Topics: []string{"0xt"}},
		{BlockNumber: 2, TxHash: "0xb", LogIndex: 1, Address: "0x01"},
	}))
	require.NoError(t, sink.PutLogBatch(nil))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\nnot json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, sink.PutLogBatch([]model.LogRecord{{BlockNumber: 3}}))

	var blocks []uint64
	var badLines []int
	err = ReadLogRecords(ctx, path, func(rec model.LogRecord) error {
		blocks = append(blocks, rec.BlockNumber)
		return nil
	}, func(line int, _ error) {
		badLines = append(badLines, line)
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, blocks)
	require.Equal(t, []int{4}, badLines)

	require.Error(t, ReadLogRecords(ctx, filepath.Join(t.TempDir(), "missing.jsonl"), func(model.LogRecord) error { return nil }, nil))
}

func TestJsonlPayoutQueue(t *testing.T) {
	ctx := context.Background()
	queue := NewJsonlPayoutQueue(filepath.Join(t.TempDir(), "payouts.jsonl"))

	pending, err := queue.PendingPayouts(ctx, "0xToken", "0xReserve")
	require.NoError(t, err)
	require.True(t, pending.IsZero())

	require.NoError(t, queue.AppendPayout(ctx, model.PayoutRecord{Token: "0xtoken", Reserve: "0xreserve", Beneficiary: "0x01", Amount: "1500"}))
	require.NoError(t, queue.AppendPayout(ctx, model.PayoutRecord{Token: "0xTOKEN", Reserve: "0xRESERVE", Beneficiary: "0x02", Amount: "500"}))
	require.NoError(t, queue.AppendPayout(ctx, model.PayoutRecord{Token: "0xother", Reserve: "0xreserve", Beneficiary: "0x01", Amount: "9"}))

	pending, err = queue.PendingPayouts(ctx, "0xToken", "0xReserve")
	require.NoError(t, err)
	require.Equal(t, uint64(2000), pending.Uint64())
}
