package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names the pool events that drive incentive accrual.
type EventKind string

const (
	EventSwap EventKind = "swap"
	EventMint EventKind = "mint"
	EventBurn EventKind = "burn"
)

// PoolEvent is a decoded pool event in chain order.
type PoolEvent struct {
	Kind        EventKind
	Pool        common.Address
	BlockNumber uint64
	LogIndex    uint64
	TxHash      string
	Timestamp   uint64

	Swap     *SwapData
	Position *PositionChange
}

// SwapData is the post-swap pool state carried by a Swap event.
type SwapData struct {
	Tick      int32
	Liquidity *uint256.Int
}

// PositionChange is the liquidity delta of a Mint or Burn event. Amount is
// always the magnitude; Kind gives the sign.
type PositionChange struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
	Salt      common.Hash
	Amount    *uint256.Int
}
