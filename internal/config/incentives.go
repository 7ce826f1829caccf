package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"
)

// Incentives describes which pools are incentivised and how.
type Incentives struct {
	Pools       []string
	TickSpacing map[string]string
	RewardRates map[string]string
	Admin       string
	Topic0Map   map[string]string
}

// PoolSpec is the parsed incentive setup of one pool. A zero TickSpacing
// means it was not configured.
type PoolSpec struct {
	Address     common.Address
	TickSpacing int32
	RewardRate  *uint256.Int
}

func loadIncentives(v *viper.Viper) Incentives {
	return Incentives{
		Pools:       getStringSlice(v, "pools"),
		TickSpacing: getStringMap(v, "tick-spacing"),
		RewardRates: getStringMap(v, "reward-rates"),
		Admin:       v.GetString("admin"),
		Topic0Map:   getStringMap(v, "topic0-map"),
	}
}

// AdminAddress returns the configured admin, or the zero address.
func (c Incentives) AdminAddress() (common.Address, error) {
	if strings.TrimSpace(c.Admin) == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(c.Admin) {
		return common.Address{}, fmt.Errorf("invalid admin address: %s", c.Admin)
	}
	return common.HexToAddress(c.Admin), nil
}

// PoolSpecs resolves the pool list against the spacing and rate maps. Map
// keys are matched by address, not by spelling.
func (c Incentives) PoolSpecs() ([]PoolSpec, error) {
	spacings, err := addressKeyed(c.TickSpacing, "tick-spacing")
	if err != nil {
		return nil, err
	}
	rates, err := addressKeyed(c.RewardRates, "reward-rates")
	if err != nil {
		return nil, err
	}

	specs := make([]PoolSpec, 0, len(c.Pools))
	seen := make(map[common.Address]struct{}, len(c.Pools))
	for _, raw := range c.Pools {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid pool address: %s", raw)
		}
		addr := common.HexToAddress(raw)
		if _, ok := seen[addr]; ok {
			return nil, fmt.Errorf("pool %s listed twice", addr.Hex())
		}
		seen[addr] = struct{}{}

		spec := PoolSpec{Address: addr}
		if s, ok := spacings[addr]; ok {
			spacing, err := strconv.ParseInt(s, 10, 32)
			if err != nil || spacing <= 0 {
				return nil, fmt.Errorf("invalid tick spacing for %s: %q", addr.Hex(), s)
			}
			spec.TickSpacing = int32(spacing)
		}
		r, ok := rates[addr]
		if !ok {
			return nil, fmt.Errorf("no reward rate configured for pool %s", addr.Hex())
		}
		rate, err := uint256.FromDecimal(r)
		if err != nil {
			return nil, fmt.Errorf("invalid reward rate for %s: %w", addr.Hex(), err)
		}
		if rate.BitLen() > 128 {
			return nil, fmt.Errorf("reward rate for %s exceeds 128 bits", addr.Hex())
		}
		spec.RewardRate = rate
		specs = append(specs, spec)
	}

	for addr := range rates {
		if _, ok := seen[addr]; !ok {
			return nil, fmt.Errorf("reward rate configured for unlisted pool %s", addr.Hex())
		}
	}
	return specs, nil
}

func addressKeyed(in map[string]string, key string) (map[common.Address]string, error) {
	out := make(map[common.Address]string, len(in))
	for k, v := range in {
		if !common.IsHexAddress(k) {
			return nil, fmt.Errorf("%s: invalid pool address %q", key, k)
		}
		out[common.HexToAddress(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
