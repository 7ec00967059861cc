package ethcontract

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3Address is the canonical Multicall3 deployment, identical on
// every chain it has been deployed to.
//
// https://github.com/mds1/multicall3#deployments
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// Multicall3ABI covers the aggregate3 entry point used for batching
// read-only calls.
var Multicall3ABI = MustParseSignatures(
	"function aggregate3((address target, bool allowFailure, bytes callData)[] calls) payable returns ((bool success, bytes returnData)[] returnData)",
)

// Multicall3 is the canonical Multicall3 contract.
var Multicall3 = NewContract(Multicall3Address, Multicall3ABI)

// Call3 is one entry of an aggregate3 batch.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Call3Result is the per-call outcome of an aggregate3 batch.
type Call3Result struct {
	Success    bool
	ReturnData []byte
}

// PackAggregate3 encodes an aggregate3(calls) invocation.
func PackAggregate3(calls []Call3) ([]byte, error) {
	data, err := Multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, &ArgumentError{Method: "aggregate3", Err: err}
	}
	return data, nil
}

// UnpackAggregate3 decodes the return data of an aggregate3 invocation.
func UnpackAggregate3(data []byte) ([]Call3Result, error) {
	out, err := Multicall3ABI.Unpack("aggregate3", data)
	if err != nil {
		return nil, &ArgumentError{Method: "aggregate3", Err: err}
	}
	return *abi.ConvertType(out[0], new([]Call3Result)).(*[]Call3Result), nil
}

// Multicall executes several contract functions in one aggregate3 batch
// and decodes each return value. Failed or empty-returning calls yield a
// nil entry instead of aborting the batch.
func Multicall(ctx context.Context, client *Client, fns []*ContractFunction, opts ...CallOption) ([][]any, error) {
	calls := make([]Call3, len(fns))
	for i, fn := range fns {
		calls[i] = Call3{
			Target:       fn.Contract().Address(),
			AllowFailure: true,
			CallData:     fn.Data(),
		}
	}
	data, err := PackAggregate3(calls)
	if err != nil {
		return nil, err
	}

	cfg := applyCallOptions(opts)
	to := Multicall3Address
	msg := ethereum.CallMsg{From: cfg.from, To: &to, Data: data}
	ret, err := client.CallContract(ctx, msg, cfg.blockNumber, cfg.overrides)
	if err != nil {
		return nil, err
	}
	results, err := UnpackAggregate3(ret)
	if err != nil {
		return nil, err
	}

	values := make([][]any, len(fns))
	for i, res := range results {
		if i >= len(fns) {
			break
		}
		if !res.Success || len(res.ReturnData) == 0 {
			continue
		}
		decoded, err := fns[i].Decode(res.ReturnData)
		if err != nil {
			continue
		}
		values[i] = decoded
	}
	return values, nil
}
