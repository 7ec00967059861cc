package ethcontract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
)

// CallOption configures a contract call.
type CallOption func(*callConfig)

// callConfig holds configuration for one eth_call.
type callConfig struct {
	from        common.Address
	value       *big.Int
	blockNumber *big.Int
	overrides   map[common.Address]gethclient.OverrideAccount
}

func applyCallOptions(opts []CallOption) *callConfig {
	cfg := &callConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithFrom sets the nominal caller of the call.
func WithFrom(from common.Address) CallOption {
	return func(c *callConfig) {
		c.from = from
	}
}

// WithValue attaches ETH value to the call.
func WithValue(value *big.Int) CallOption {
	return func(c *callConfig) {
		c.value = new(big.Int).Set(value)
	}
}

// WithBlockNumber pins the call to a specific block.
// Default is the latest block.
func WithBlockNumber(number *big.Int) CallOption {
	return func(c *callConfig) {
		c.blockNumber = new(big.Int).Set(number)
	}
}

// WithStateOverrides substitutes account state for the duration of the
// call without mutating real chain state. Overriding a storage slot via
// StateDiff lets the call observe an injected value, which is how located
// mapping slots are verified.
func WithStateOverrides(overrides map[common.Address]gethclient.OverrideAccount) CallOption {
	return func(c *callConfig) {
		c.overrides = overrides
	}
}

// LocatorOption configures a SlotLocator.
type LocatorOption func(*SlotLocator)

// WithVerification enables or disables override-based verification of
// located slots. When enabled (default), every located slot is checked by
// injecting a random value at the derived child slot and observing it
// through the view call before the slot is returned.
func WithVerification(enabled bool) LocatorOption {
	return func(l *SlotLocator) {
		l.verify = enabled
	}
}

// WithMulticall sets the multicall contract used for batch location.
// Default is the canonical Multicall3 deployment.
func WithMulticall(address common.Address) LocatorOption {
	return func(l *SlotLocator) {
		l.multicall = address
	}
}
