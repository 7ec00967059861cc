package ethcontract

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Create2FactoryAddress is the deterministic deployment proxy present at
// the same address on virtually every chain.
//
// https://github.com/Arachnid/deterministic-deployment-proxy
var Create2FactoryAddress = common.HexToAddress("0x4e59b44847b379578588920ca78fbf26c0b4956c")

// Create2Address computes the address of a CREATE2 deployment:
// keccak256(0xff || deployer || salt || keccak256(initcode))[12:].
func Create2Address(deployer common.Address, salt [32]byte, initcode []byte) common.Address {
	return crypto.CreateAddress2(deployer, salt, crypto.Keccak256(initcode))
}

// Create2DeployData builds the calldata for deploying initcode through
// the deterministic deployment proxy, which expects salt || initcode.
func Create2DeployData(salt [32]byte, initcode []byte) []byte {
	data := make([]byte, 0, len(salt)+len(initcode))
	data = append(data, salt[:]...)
	return append(data, initcode...)
}
