package reserve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityIncentives/internal/dex"
	"liquidityIncentives/internal/model"
	"liquidityIncentives/internal/storage"
)

// ERC20 is a reserve held as a token balance of a custody address. Payouts
// are queued for the custody process, so queued amounts are not available.
type ERC20 struct {
	caller  dex.ContractCaller
	token   common.Address
	reserve common.Address
	queue   storage.PayoutQueue
	logger  *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

func NewERC20(caller dex.ContractCaller, token, reserve common.Address, queue storage.PayoutQueue, logger *zap.Logger) (*ERC20, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if queue == nil {
		return nil, fmt.Errorf("payout queue is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ERC20{
		caller:  caller,
		token:   token,
		reserve: reserve,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Available is balanceOf(reserve) less payouts still queued.
func (r *ERC20) Available(ctx context.Context) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available(ctx)
}

func (r *ERC20) available(ctx context.Context) (*uint256.Int, error) {
	balance, err := dex.FetchTokenBalance(ctx, r.caller, r.token, r.reserve, 0)
	if err != nil {
		return nil, fmt.Errorf("reserve balance: %w", err)
	}
	pending, err := r.queue.PendingPayouts(ctx, r.token.Hex(), r.reserve.Hex())
	if err != nil {
		return nil, fmt.Errorf("pending payouts: %w", err)
	}
	if balance.Lt(pending) {
		r.logger.Warn("queued payouts exceed reserve balance",
			zap.String("token", r.token.Hex()),
			zap.String("balance", balance.Dec()),
			zap.String("pending", pending.Dec()),
		)
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(balance, pending), nil
}

// Payout queues a transfer of amount to the beneficiary.
func (r *ERC20) Payout(ctx context.Context, to common.Address, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	available, err := r.available(ctx)
	if err != nil {
		return err
	}
	if available.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientReserve, available.Dec(), amount.Dec())
	}

	rec := model.PayoutRecord{
		Token:       r.token.Hex(),
		Reserve:     r.reserve.Hex(),
		Beneficiary: to.Hex(),
		Amount:      amount.Dec(),
		RequestedAt: r.now().UTC().Format(time.RFC3339Nano),
	}
	if err := r.queue.AppendPayout(ctx, rec); err != nil {
		return fmt.Errorf("queue payout: %w", err)
	}
	r.logger.Info("payout queued", zap.String("beneficiary", rec.Beneficiary), zap.String("amount", rec.Amount), zap.String("token", rec.Token))
	return nil
}
