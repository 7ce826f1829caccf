package storage

import (
	"context"

	"github.com/holiman/uint256"

	"liquidityIncentives/internal/host"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/model"
)

// State is everything needed to resume accrual after a restart.
type State struct {
	Engine    incentive.Snapshot `json:"engine"`
	Host      host.Snapshot      `json:"host"`
	LastBlock uint64             `json:"last_block"`
	UpdatedAt string             `json:"updated_at"`
}

// StateStore persists State.
type StateStore interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, state State) error
}

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// PayoutQueue records payout instructions for the custody process.
type PayoutQueue interface {
	AppendPayout(ctx context.Context, rec model.PayoutRecord) error
	// PendingPayouts sums queued payouts of token from reserve.
	PendingPayouts(ctx context.Context, token, reserve string) (*uint256.Int, error)
}
