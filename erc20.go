package ethcontract

import (
	"github.com/ethereum/go-ethereum/common"
)

// ERC20ABI is the canonical ERC-20 interface.
var ERC20ABI = MustParseSignatures(
	"function name() view returns (string)",
	"function symbol() view returns (string)",
	"function decimals() view returns (uint8)",
	"function totalSupply() view returns (uint256)",
	"function balanceOf(address owner) view returns (uint256)",
	"function transfer(address to, uint256 value) returns (bool)",
	"function transferFrom(address from, address to, uint256 value) returns (bool)",
	"function approve(address spender, uint256 value) returns (bool)",
	"function allowance(address owner, address spender) view returns (uint256)",
	"event Transfer(address indexed from, address indexed to, uint256 value)",
	"event Approval(address indexed owner, address indexed spender, uint256 value)",
)

// ERC20 is an unbound ERC-20 contract template. Bind it to a deployment
// with ERC20.At(token).
var ERC20 = NewContract(common.Address{}, ERC20ABI)

// PackBalanceOf encodes balanceOf(owner) calldata.
func PackBalanceOf(owner common.Address) []byte {
	return ERC20.MustFn("balanceOf", owner).Data()
}

// PackAllowance encodes allowance(owner, spender) calldata.
func PackAllowance(owner, spender common.Address) []byte {
	return ERC20.MustFn("allowance", owner, spender).Data()
}
