package ethcontract

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client bundles the two node interfaces the package consumes: raw
// JSON-RPC for debug_traceCall and geth's client for eth_call with state
// overrides. The scanners themselves are offline; Client only acquires
// their inputs and verifies their outputs.
type Client struct {
	rpc  *rpc.Client
	geth *gethclient.Client
}

// NewClient creates a client around an existing RPC connection.
func NewClient(rpcClient *rpc.Client) *Client {
	return &Client{
		rpc:  rpcClient,
		geth: gethclient.New(rpcClient),
	}
}

// Dial connects a client to the given JSON-RPC URL. The node must expose
// the debug namespace for tracing to work.
func Dial(ctx context.Context, rawurl string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return NewClient(rpcClient), nil
}

// RPC returns the underlying RPC connection.
func (c *Client) RPC() *rpc.Client {
	return c.rpc
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// traceConfig selects the struct logger with memory capture, which the
// preimage tracker needs to read KECCAK256 inputs. Storage capture is
// noise here and disabled.
type traceConfig struct {
	EnableMemory   bool `json:"enableMemory"`
	DisableStack   bool `json:"disableStack"`
	DisableStorage bool `json:"disableStorage"`
	Limit          int  `json:"limit,omitempty"`
}

// TraceCall executes msg as a read-only call with per-opcode tracing and
// returns the normalized step sequence. A reverting call yields
// ErrTraceFailed since its reads can't be trusted.
func (c *Client) TraceCall(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]TraceStep, error) {
	target := common.Address{}
	if msg.To != nil {
		target = *msg.To
	}
	var result TraceResult
	err := c.rpc.CallContext(ctx, &result, "debug_traceCall",
		toCallArg(msg), toBlockNumArg(blockNumber),
		&traceConfig{EnableMemory: true, DisableStorage: true})
	if err != nil {
		return nil, &TraceError{Contract: target, Err: err}
	}
	if result.Failed {
		return nil, &TraceError{Contract: target, Err: ErrTraceFailed}
	}
	return ParseStructLogs(result.StructLogs), nil
}

// CallContract executes a read-only call, optionally with state
// overrides. A non-nil overrides map substitutes account state for the
// duration of the call without mutating real chain state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int, overrides map[common.Address]gethclient.OverrideAccount) ([]byte, error) {
	var overridesArg *map[common.Address]gethclient.OverrideAccount
	if overrides != nil {
		overridesArg = &overrides
	}
	return c.geth.CallContract(ctx, msg, blockNumber, overridesArg)
}

func toCallArg(msg ethereum.CallMsg) any {
	arg := map[string]any{
		"from": msg.From,
		"to":   msg.To,
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	return arg
}

func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}
