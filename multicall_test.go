package ethcontract

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPackAggregate3(t *testing.T) {
	calls := []Call3{
		{Target: tokenA, AllowFailure: true, CallData: PackBalanceOf(userU)},
		{Target: tokenB, AllowFailure: false, CallData: PackBalanceOf(spenderS)},
	}
	data, err := PackAggregate3(calls)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data[:4], []byte{0x82, 0xad, 0x56, 0xcb}) {
		t.Errorf("selector = %x", data[:4])
	}

	// the arguments must round-trip through the ABI definition
	values, err := Multicall3ABI.Methods["aggregate3"].Inputs.UnpackValues(data[4:])
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 {
		t.Fatalf("values = %v", values)
	}
}

func TestUnpackAggregate3(t *testing.T) {
	results := []Call3Result{
		{Success: true, ReturnData: common.BigToHash(big.NewInt(42)).Bytes()},
		{Success: false, ReturnData: nil},
	}
	packed, err := Multicall3ABI.Methods["aggregate3"].Outputs.Pack(results)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := UnpackAggregate3(packed)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if !decoded[0].Success || new(big.Int).SetBytes(decoded[0].ReturnData).Int64() != 42 {
		t.Errorf("first result = %+v", decoded[0])
	}
	if decoded[1].Success || len(decoded[1].ReturnData) != 0 {
		t.Errorf("second result = %+v", decoded[1])
	}
}
