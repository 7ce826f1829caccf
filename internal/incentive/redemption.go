package incentive

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Claim pays out the whole accrued balance of beneficiary.
//
// The balance is zeroed before the reserve is asked to pay and the lock is not
// held during payout, so a reentrant claim sees nothing to claim. A payout
// that fails restores the balance. A reserve drained by another claim between
// the funding check and the payout is reported as ErrInsufficientFundedBalance.
func (e *Engine) Claim(ctx context.Context, beneficiary common.Address) (*uint256.Int, error) {
	amount, err := e.reserveClaim(ctx, beneficiary)
	if err != nil {
		return nil, err
	}

	if err := e.reserve.Payout(ctx, beneficiary, amount); err != nil {
		e.mu.Lock()
		restoreErr := e.store.credit(beneficiary, amount)
		e.mu.Unlock()
		if restoreErr != nil {
			return nil, restoreErr
		}
		return nil, e.payoutFailed(ctx, amount, err)
	}

	e.logger.Info("reward claimed", zap.String("beneficiary", beneficiary.Hex()), zap.String("amount", amount.Dec()))
	return amount, nil
}

func (e *Engine) reserveClaim(ctx context.Context, beneficiary common.Address) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reserve == nil {
		return nil, fmt.Errorf("funding reserve is nil")
	}
	amount := e.store.Accrued(beneficiary)
	if amount.IsZero() {
		return nil, ErrNoClaimableBalance
	}
	available, err := e.reserve.Available(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve balance: %w", err)
	}
	if available.Lt(amount) {
		return nil, fmt.Errorf("%w: need %s, reserve holds %s", ErrInsufficientFundedBalance, amount.Dec(), available.Dec())
	}

	delete(e.store.balances, beneficiary)
	return amount, nil
}

// payoutFailed classifies a payout error. Reserves that do not wrap
// ErrInsufficientFundedBalance themselves are checked for a shortfall.
func (e *Engine) payoutFailed(ctx context.Context, amount *uint256.Int, err error) error {
	if errors.Is(err, ErrInsufficientFundedBalance) {
		return fmt.Errorf("payout: %w", err)
	}
	available, availErr := e.reserve.Available(ctx)
	if availErr == nil && available.Lt(amount) {
		return fmt.Errorf("payout: %w: need %s, reserve holds %s: %v", ErrInsufficientFundedBalance, amount.Dec(), available.Dec(), err)
	}
	return fmt.Errorf("payout: %w", err)
}
