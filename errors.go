package ethcontract

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for common failure conditions.
var (
	// ErrSlotNotFound indicates no mapping read in the trace matched the
	// probe key. This is a normal outcome for proxies with unusual storage
	// layouts or inline-assembly accessors.
	ErrSlotNotFound = errors.New("ethcontract: storage slot not found in trace")

	// ErrSlotMismatch indicates a located slot failed verification: a value
	// injected at the derived slot was not observed by the view call.
	ErrSlotMismatch = errors.New("ethcontract: located slot failed override verification")

	// ErrTraceFailed indicates the traced call itself reverted.
	ErrTraceFailed = errors.New("ethcontract: traced call reverted")
)

// MethodNotFoundError indicates the contract ABI doesn't have the requested method.
type MethodNotFoundError struct {
	Contract common.Address
	Method   string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("ethcontract: method %q not found in contract %s", e.Method, e.Contract.Hex())
}

// ArgumentError indicates an issue encoding a function argument.
type ArgumentError struct {
	Method string
	Err    error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("ethcontract: arguments for method %q: %v", e.Method, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// SignatureError indicates a human-readable ABI signature that could not be parsed.
type SignatureError struct {
	Signature string
	Reason    string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("ethcontract: invalid signature %q: %s", e.Signature, e.Reason)
}

// TraceError wraps failures while acquiring or decoding an execution trace.
type TraceError struct {
	Contract common.Address
	Err      error
}

func (e *TraceError) Error() string {
	return fmt.Sprintf("ethcontract: tracing call to %s: %v", e.Contract.Hex(), e.Err)
}

func (e *TraceError) Unwrap() error {
	return e.Err
}
