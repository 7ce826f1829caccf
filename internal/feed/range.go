package feed

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return ranges, nil
}

// SafeHead is the highest block considered final given a confirmation depth.
// ok is false while the chain is shorter than the depth.
func SafeHead(latest, confirmations uint64) (uint64, bool) {
	if latest < confirmations {
		return 0, false
	}
	return latest - confirmations, true
}

// ResumeFrom returns the first block to fetch given a configured start and
// the last block already processed.
func ResumeFrom(from uint64, lastProcessed uint64, haveProgress bool) uint64 {
	if haveProgress && lastProcessed >= from {
		return lastProcessed + 1
	}
	return from
}
