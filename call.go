package ethcontract

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ContractFunction is a contract method invocation with its arguments
// already encoded as calldata. It is immutable once built; the same
// function can be called repeatedly or embedded in a multicall batch.
type ContractFunction struct {
	contract *Contract
	method   abi.Method
	data     []byte
}

// Contract returns the contract this function is bound to.
func (f *ContractFunction) Contract() *Contract {
	return f.contract
}

// Method returns the ABI method.
func (f *ContractFunction) Method() abi.Method {
	return f.method
}

// Data returns the encoded calldata (selector plus arguments).
func (f *ContractFunction) Data() []byte {
	return f.data
}

// Selector returns the 4-byte function selector.
func (f *ContractFunction) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], f.method.ID[:4])
	return sel
}

// CallMsg builds the eth_call message for this function, applying any
// call options that affect the message itself.
func (f *ContractFunction) CallMsg(opts ...CallOption) ethereum.CallMsg {
	cfg := applyCallOptions(opts)
	to := f.contract.address
	return ethereum.CallMsg{
		From:  cfg.from,
		To:    &to,
		Value: cfg.value,
		Data:  f.data,
	}
}

// Call executes the function as a read-only call through the client and
// decodes the return values. State overrides and a block number can be
// supplied via options.
func (f *ContractFunction) Call(ctx context.Context, client *Client, opts ...CallOption) ([]any, error) {
	cfg := applyCallOptions(opts)
	ret, err := client.CallContract(ctx, f.CallMsg(opts...), cfg.blockNumber, cfg.overrides)
	if err != nil {
		return nil, err
	}
	return f.Decode(ret)
}

// Decode unpacks raw return data into the method's output values.
func (f *ContractFunction) Decode(ret []byte) ([]any, error) {
	values, err := f.method.Outputs.UnpackValues(ret)
	if err != nil {
		return nil, &ArgumentError{Method: f.method.Name, Err: err}
	}
	return values, nil
}
