package ethcontract

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CreateXFactoryAddress is the canonical CreateX factory deployment.
//
// https://github.com/pcaversaccio/createx#new-deployments
var CreateXFactoryAddress = common.HexToAddress("0xba5Ed099633D3B313e4D5F7bdc1305d3c28ba5Ed")

// create3ProxyCodeHash is keccak256 of the fixed CREATE3 proxy initcode
// 0x67363d3d37363d34f03d5260086018f3.
var create3ProxyCodeHash = common.HexToHash("0x21c35dbe1b344a2488cf3321d6ce542f8e9f305544ff09e4993a62319a497c1f")

// CreateXABI covers the deployCreate3 entry point.
var CreateXABI = MustParseSignatures(
	"function deployCreate3(bytes32 salt, bytes initCode) payable returns (address newContract)",
)

// CreateX is the canonical CreateX factory contract.
var CreateX = NewContract(CreateXFactoryAddress, CreateXABI)

// Create3Address computes the deterministic CREATE3 deployment address
// for a salt. The factory first CREATE2-deploys a fixed proxy using the
// guarded salt keccak256(salt), then the proxy CREATEs the real contract
// with nonce 1, so the result depends only on factory and salt, never on
// the initcode.
func Create3Address(salt [32]byte, factory common.Address) common.Address {
	proxy := crypto.CreateAddress2(factory, crypto.Keccak256Hash(salt[:]), create3ProxyCodeHash[:])
	return crypto.CreateAddress(proxy, 1)
}

// Create3DeployFn builds the deployCreate3(salt, initcode) invocation for
// the CreateX factory.
func Create3DeployFn(salt [32]byte, initcode []byte) *ContractFunction {
	return CreateX.MustFn("deployCreate3", salt, initcode)
}
