package dex

import "liquidityIncentives/internal/model"

// Decoder turns raw pool logs into PoolEvents.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (model.PoolEvent, error)
}
