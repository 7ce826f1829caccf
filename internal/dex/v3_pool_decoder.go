package dex

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"liquidityIncentives/internal/model"
)

// V3PoolDecoder decodes Uniswap V3 style Swap, Mint and Burn pool events.
type V3PoolDecoder struct {
	poolABI     abi.ABI
	topicToKind map[string]model.EventKind
}

// NewV3PoolDecoder builds a V3 pool decoder. extraTopics maps additional
// topic0 hashes (forks with renamed events) to swap, mint or burn.
func NewV3PoolDecoder(extraTopics map[string]string) (*V3PoolDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}

	topicToKind := map[string]model.EventKind{
		strings.ToLower(poolABI.Events["Swap"].ID.Hex()): model.EventSwap,
		strings.ToLower(poolABI.Events["Mint"].ID.Hex()): model.EventMint,
		strings.ToLower(poolABI.Events["Burn"].ID.Hex()): model.EventBurn,
	}
	for topic0, name := range extraTopics {
		kind := parseEventKind(name)
		if kind == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", name)
		}
		if topic0 == "" {
			continue
		}
		topicToKind[strings.ToLower(topic0)] = kind
	}

	return &V3PoolDecoder{poolABI: poolABI, topicToKind: topicToKind}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *V3PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToKind[strings.ToLower(topic0)]
	return ok
}

// Topics lists every topic0 the decoder accepts, for log filters.
func (d *V3PoolDecoder) Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(d.topicToKind))
	for topic0 := range d.topicToKind {
		topics = append(topics, common.HexToHash(topic0))
	}
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Hex() < topics[j].Hex()
	})
	return topics
}

// Decode converts a LogRecord into a PoolEvent.
func (d *V3PoolDecoder) Decode(log model.LogRecord) (model.PoolEvent, error) {
	kind, ok := d.topicToKind[strings.ToLower(log.Topic0())]
	if !ok {
		return model.PoolEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}
	if !common.IsHexAddress(log.Address) {
		return model.PoolEvent{}, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	event := model.PoolEvent{
		Kind:        kind,
		Pool:        common.HexToAddress(log.Address),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.LogIndex,
		TxHash:      log.TxHash,
		Timestamp:   log.Timestamp,
	}

	var err error
	switch kind {
	case model.EventSwap:
		event.Swap, err = d.decodeSwap(log)
	case model.EventMint:
		event.Position, err = d.decodeMint(log)
	case model.EventBurn:
		event.Position, err = d.decodeBurn(log)
	}
	if err != nil {
		return model.PoolEvent{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	return event, nil
}

func parseEventKind(name string) model.EventKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "swap":
		return model.EventSwap
	case "mint":
		return model.EventMint
	case "burn":
		return model.EventBurn
	default:
		return ""
	}
}

func (d *V3PoolDecoder) decodeSwap(log model.LogRecord) (*model.SwapData, error) {
	event := d.poolABI.Events["Swap"]
	if _, err := parseIndexedTopics(event, log.Topics); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	liquidity, err := asUint128(values[3])
	if err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return nil, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return nil, err
	}

	return &model.SwapData{Tick: tick, Liquidity: liquidity}, nil
}

type positionTopics struct {
	Owner     common.Address
	TickLower *big.Int
	TickUpper *big.Int
}

func (d *V3PoolDecoder) decodeMint(log model.LogRecord) (*model.PositionChange, error) {
	event := d.poolABI.Events["Mint"]
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected mint values: %d", len(values))
	}
	// values[0] is the sender; liquidity belongs to the indexed owner
	return d.positionChange(event, log.Topics, values[1])
}

func (d *V3PoolDecoder) decodeBurn(log model.LogRecord) (*model.PositionChange, error) {
	event := d.poolABI.Events["Burn"]
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected burn values: %d", len(values))
	}
	return d.positionChange(event, log.Topics, values[0])
}

func (d *V3PoolDecoder) positionChange(event abi.Event, topics []string, amountValue interface{}) (*model.PositionChange, error) {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return nil, err
	}
	var indexed positionTopics
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	amount, err := asUint128(amountValue)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	tickLower, err := int24FromBig(indexed.TickLower)
	if err != nil {
		return nil, err
	}
	tickUpper, err := int24FromBig(indexed.TickUpper)
	if err != nil {
		return nil, err
	}

	return &model.PositionChange{
		Owner:     indexed.Owner,
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    amount,
	}, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	out := make([]common.Hash, 0, indexedCount)
	for _, topic := range topics[1:] {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asUint128(value interface{}) (*uint256.Int, error) {
	b, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	if b.Sign() < 0 || b.BitLen() > 128 {
		return nil, fmt.Errorf("uint128 overflow: %s", b.String())
	}
	u, _ := uint256.FromBig(b)
	return u, nil
}
