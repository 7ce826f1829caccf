package incentive

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolID scopes all accumulator state to one market.
type PoolID = common.Address

// PositionKey is the stable identity of a position within a pool.
type PositionKey = common.Hash

// Tick is a discretized price coordinate (int24 on-chain).
type Tick int32

const (
	MinTick Tick = -887272
	MaxTick Tick = 887272
)

// Direction describes an observed movement of the active tick.
type Direction int8

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// DirectionOf classifies a move from oldTick to newTick.
func DirectionOf(oldTick, newTick Tick) Direction {
	switch {
	case newTick > oldTick:
		return DirectionUp
	case newTick < oldTick:
		return DirectionDown
	default:
		return DirectionNone
	}
}

// PositionRef names a position by its owner, range and salt.
type PositionRef struct {
	Pool  PoolID
	Owner common.Address
	Lower Tick
	Upper Tick
	Salt  common.Hash
}

// Key derives the position key for r.
func (r PositionRef) Key() PositionKey {
	return DerivePositionKey(r.Owner, r.Lower, r.Upper, r.Salt)
}

// DerivePositionKey hashes owner, both ticks (as packed int24) and salt,
// matching keccak256(abi.encodePacked(owner, lower, upper, salt)).
func DerivePositionKey(owner common.Address, lower, upper Tick, salt common.Hash) PositionKey {
	buf := make([]byte, 0, common.AddressLength+3+3+common.HashLength)
	buf = append(buf, owner.Bytes()...)
	buf = appendInt24(buf, lower)
	buf = appendInt24(buf, upper)
	buf = append(buf, salt.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

func appendInt24(buf []byte, t Tick) []byte {
	u := uint32(int32(t)) & 0xffffff
	return append(buf, byte(u>>16), byte(u>>8), byte(u))
}
