package reserve

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityIncentives/internal/incentive"
)

// ErrInsufficientReserve is returned when a payout exceeds the reserve. It
// wraps incentive.ErrInsufficientFundedBalance so claims report the shortfall
// the same way whether it was seen before or during payout.
var ErrInsufficientReserve = fmt.Errorf("%w: reserve short", incentive.ErrInsufficientFundedBalance)

// Memory is an in-process reserve for dry runs and tests.
type Memory struct {
	mu        sync.Mutex
	available *uint256.Int
	paid      map[common.Address]*uint256.Int
}

func NewMemory(initial *uint256.Int) *Memory {
	m := &Memory{available: new(uint256.Int), paid: make(map[common.Address]*uint256.Int)}
	if initial != nil {
		m.available.Set(initial)
	}
	return m
}

// Fund adds amount to the reserve.
func (m *Memory) Fund(amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, overflow := m.available.AddOverflow(m.available, amount); overflow {
		return fmt.Errorf("reserve overflow")
	}
	return nil
}

func (m *Memory) Available(ctx context.Context) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available.Clone(), nil
}

func (m *Memory) Payout(ctx context.Context, to common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.available.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientReserve, m.available.Dec(), amount.Dec())
	}
	m.available.Sub(m.available, amount)
	total, ok := m.paid[to]
	if !ok {
		total = new(uint256.Int)
		m.paid[to] = total
	}
	total.Add(total, amount)
	return nil
}

// Paid returns the total paid out to a beneficiary.
func (m *Memory) Paid(to common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if total, ok := m.paid[to]; ok {
		return total.Clone()
	}
	return new(uint256.Int)
}
