package ethcontract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract wraps an Ethereum contract ABI bound to an address.
type Contract struct {
	address common.Address
	abi     abi.ABI
}

// NewContract creates a Contract wrapper for the contract deployed at
// address.
func NewContract(address common.Address, contractABI abi.ABI) *Contract {
	return &Contract{address: address, abi: contractABI}
}

// Address returns the contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// ABI returns the contract ABI.
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// At returns a copy of the contract bound to a different address. Useful
// for ABI templates like ERC20 that apply to many deployments.
func (c *Contract) At(address common.Address) *Contract {
	return &Contract{address: address, abi: c.abi}
}

// Fn builds a ContractFunction for the named method with the given
// arguments encoded as calldata. Overloaded methods use geth's suffixed
// naming ("transfer0").
func (c *Contract) Fn(methodName string, args ...any) (*ContractFunction, error) {
	method, ok := c.abi.Methods[methodName]
	if !ok {
		return nil, &MethodNotFoundError{Contract: c.address, Method: methodName}
	}
	data, err := c.abi.Pack(methodName, args...)
	if err != nil {
		return nil, &ArgumentError{Method: methodName, Err: err}
	}
	return &ContractFunction{contract: c, method: method, data: data}, nil
}

// MustFn is like Fn but panics on error.
func (c *Contract) MustFn(methodName string, args ...any) *ContractFunction {
	fn, err := c.Fn(methodName, args...)
	if err != nil {
		panic(err)
	}
	return fn
}

// HasMethod returns true if the contract has a method with the given name.
func (c *Contract) HasMethod(methodName string) bool {
	_, ok := c.abi.Methods[methodName]
	return ok
}

// MethodNames returns all method names in the contract ABI.
func (c *Contract) MethodNames() []string {
	names := make([]string, 0, len(c.abi.Methods))
	for name := range c.abi.Methods {
		names = append(names, name)
	}
	return names
}

// EventTopic returns the topic-0 hash of the named event.
func (c *Contract) EventTopic(eventName string) (common.Hash, bool) {
	ev, ok := c.abi.Events[eventName]
	if !ok {
		return common.Hash{}, false
	}
	return ev.ID, true
}

// ConstructorData encodes constructor arguments for appending to the
// contract's creation bytecode.
func (c *Contract) ConstructorData(args ...any) ([]byte, error) {
	data, err := c.abi.Pack("", args...)
	if err != nil {
		return nil, &ArgumentError{Method: "constructor", Err: err}
	}
	return data, nil
}

// ParseABI parses a JSON ABI string into an abi.ABI.
// This is a convenience function for creating contracts from ABI JSON.
func ParseABI(abiJSON string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(abiJSON))
}

// MustParseABI is like ParseABI but panics on error.
func MustParseABI(abiJSON string) abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}
