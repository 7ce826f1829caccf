package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"

	"liquidityIncentives/internal/model"
)

// JsonlPayoutQueue keeps payout instructions in a JSONL file. The custody
// process removes lines once it has settled them.
type JsonlPayoutQueue struct {
	out *JsonlStorage
}

func NewJsonlPayoutQueue(path string) *JsonlPayoutQueue {
	return &JsonlPayoutQueue{out: NewJsonlStorage(path)}
}

func (q *JsonlPayoutQueue) AppendPayout(ctx context.Context, rec model.PayoutRecord) error {
	return q.out.appendLines([]interface{}{rec})
}

func (q *JsonlPayoutQueue) PendingPayouts(ctx context.Context, token, reserve string) (*uint256.Int, error) {
	total := new(uint256.Int)
	if _, err := os.Stat(q.out.path); os.IsNotExist(err) {
		return total, nil
	}

	q.out.mu.Lock()
	defer q.out.mu.Unlock()

	err := scanLines(ctx, q.out.path, func(lineNo int, line []byte) error {
		var rec model.PayoutRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("payout line %d: %w", lineNo, err)
		}
		if !strings.EqualFold(rec.Token, token) || !strings.EqualFold(rec.Reserve, reserve) {
			return nil
		}
		amount, err := uint256.FromDecimal(rec.Amount)
		if err != nil {
			return fmt.Errorf("payout line %d amount: %w", lineNo, err)
		}
		if _, overflow := total.AddOverflow(total, amount); overflow {
			return fmt.Errorf("payout total overflow at line %d", lineNo)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}
