package ethcontract

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// stackOf builds an operand stack, bottom to top.
func stackOf(words ...any) []uint256.Int {
	stack := make([]uint256.Int, len(words))
	for i, w := range words {
		switch v := w.(type) {
		case int:
			stack[i] = *uint256.NewInt(uint64(v))
		case uint64:
			stack[i] = *uint256.NewInt(v)
		case common.Hash:
			var u uint256.Int
			u.SetBytes(v[:])
			stack[i] = u
		case common.Address:
			var u uint256.Int
			u.SetBytes(v[:])
			stack[i] = u
		default:
			panic("unsupported stack word type")
		}
	}
	return stack
}

// keccakStep records a KECCAK256 over the 64-byte concatenation of two
// words placed at memory offset 0.
func keccakStep(depth int, v0, v1 common.Hash) TraceStep {
	mem := make([]byte, 0, 64)
	mem = append(mem, v0[:]...)
	mem = append(mem, v1[:]...)
	return TraceStep{
		Op:     "KECCAK256",
		Depth:  depth,
		Stack:  stackOf(64, 0), // size below offset; offset on top
		Memory: mem,
	}
}

// sloadStep loads the given slot; its stack top also serves as the
// visibility point for a hash pushed by the preceding step.
func sloadStep(depth int, slot common.Hash) TraceStep {
	return TraceStep{Op: "SLOAD", Depth: depth, Stack: stackOf(slot)}
}

// callStep enters target at depth+1. Stack top is gas, target below it.
func callStep(op string, depth int, target common.Address) TraceStep {
	return TraceStep{Op: op, Depth: depth, Stack: stackOf(target, 100000)}
}

// touchStep is a neutral step exposing a value at the stack top, standing
// in for the MSTORE/SWAP traffic that follows a real KECCAK256.
func touchStep(depth int, top common.Hash) TraceStep {
	return TraceStep{Op: "MSTORE", Depth: depth, Stack: stackOf(0, top)}
}

func hashPair(v0, v1 common.Hash) common.Hash {
	return crypto.Keccak256Hash(v0[:], v1[:])
}

func addrWord(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

var (
	tokenT = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	proxyP = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	logicL = common.HexToAddress("0x00000000000000000000000000000000000000dd")

	userU    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	spenderS = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

// balanceTrace is the minimal two-step balanceOf trace: hash of
// (user, index) followed by an SLOAD of the result.
func balanceTrace(user common.Address, index uint64) []TraceStep {
	v0 := addrWord(user)
	v1 := common.BigToHash(new(big.Int).SetUint64(index))
	return []TraceStep{
		keccakStep(1, v0, v1),
		sloadStep(1, hashPair(v0, v1)),
	}
}

func TestParseMappingReads(t *testing.T) {
	v0 := addrWord(userU)
	v1 := common.BigToHash(big9())
	slot := hashPair(v0, v1)

	t.Run("single read", func(t *testing.T) {
		reads := ParseMappingReads(tokenT, balanceTrace(userU, 9))
		if len(reads) != 1 {
			t.Fatalf("expected 1 read, got %d", len(reads))
		}
		r := reads[0]
		if r.Contract != tokenT {
			t.Errorf("contract = %s, want %s", r.Contract, tokenT)
		}
		if r.V0 != v0 || r.V1 != v1 {
			t.Errorf("preimage = (%s, %s), want (%s, %s)", r.V0, r.V1, v0, v1)
		}
		if r.Slot != slot {
			t.Errorf("slot = %s, want %s", r.Slot, slot)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		trace := balanceTrace(userU, 9)
		first := ParseMappingReads(tokenT, trace)
		second := ParseMappingReads(tokenT, trace)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("scans differ: %v vs %v", first, second)
		}
	})

	t.Run("ordinary sload ignored", func(t *testing.T) {
		trace := []TraceStep{sloadStep(1, common.HexToHash("0x03"))}
		if reads := ParseMappingReads(tokenT, trace); len(reads) != 0 {
			t.Errorf("expected no reads, got %v", reads)
		}
	})

	t.Run("non 64 byte hash ignored", func(t *testing.T) {
		step := keccakStep(1, addrWord(userU), common.Hash{})
		step.Stack = stackOf(32, 0)
		trace := []TraceStep{step, sloadStep(1, crypto.Keccak256Hash(addrWord(userU).Bytes()))}
		if reads := ParseMappingReads(tokenT, trace); len(reads) != 0 {
			t.Errorf("expected no reads, got %v", reads)
		}
	})

	t.Run("malformed sload skipped", func(t *testing.T) {
		trace := append(balanceTrace(userU, 9), TraceStep{Op: "SLOAD", Depth: 1, Stack: []uint256.Int{}})
		if reads := ParseMappingReads(tokenT, trace); len(reads) != 1 {
			t.Errorf("expected malformed step to be skipped, got %d reads", len(reads))
		}
	})

	t.Run("call attribution", func(t *testing.T) {
		trace := []TraceStep{
			callStep("CALL", 1, tokenA),
			keccakStep(2, v0, v1),
			sloadStep(2, slot),
		}
		reads := ParseMappingReads(tokenT, trace)
		if len(reads) != 1 || reads[0].Contract != tokenA {
			t.Fatalf("expected read attributed to %s, got %v", tokenA, reads)
		}
	})

	t.Run("delegatecall keeps storage context", func(t *testing.T) {
		trace := []TraceStep{
			callStep("CALL", 1, proxyP),
			callStep("DELEGATECALL", 2, logicL),
			keccakStep(3, v0, v1),
			sloadStep(3, slot),
		}
		reads := ParseMappingReads(tokenT, trace)
		if len(reads) != 1 {
			t.Fatalf("expected 1 read, got %d", len(reads))
		}
		if reads[0].Contract != proxyP {
			t.Errorf("delegatecall read attributed to %s, want proxy %s", reads[0].Contract, proxyP)
		}
	})
}

func TestParseNestedMappingReads(t *testing.T) {
	owner := addrWord(userU)
	spender := addrWord(spenderS)
	index := common.BigToHash(big9())
	inner := hashPair(owner, index)
	outer := hashPair(spender, inner)

	allowanceTrace := []TraceStep{
		keccakStep(1, owner, index),
		touchStep(1, inner),
		keccakStep(1, spender, inner),
		sloadStep(1, outer),
	}

	t.Run("unfolds inner hash", func(t *testing.T) {
		reads, ambiguous := ParseNestedMappingReads(tokenT, allowanceTrace)
		if len(ambiguous) != 0 {
			t.Fatalf("unexpected ambiguous reads: %v", ambiguous)
		}
		if len(reads) != 1 {
			t.Fatalf("expected 1 read, got %d", len(reads))
		}
		r := reads[0]
		if r.V0 != owner || r.V1 != index || r.V2 != spender {
			t.Errorf("read = (%s, %s, %s), want (%s, %s, %s)", r.V0, r.V1, r.V2, owner, index, spender)
		}
		if r.Slot != outer {
			t.Errorf("slot = %s, want %s", r.Slot, outer)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		r1, a1 := ParseNestedMappingReads(tokenT, allowanceTrace)
		r2, a2 := ParseNestedMappingReads(tokenT, allowanceTrace)
		if !reflect.DeepEqual(r1, r2) || !reflect.DeepEqual(a1, a2) {
			t.Error("scans differ between runs")
		}
	})

	t.Run("single level read emitted by neither list", func(t *testing.T) {
		reads, ambiguous := ParseNestedMappingReads(tokenT, balanceTrace(userU, 9))
		if len(reads) != 0 || len(ambiguous) != 0 {
			t.Errorf("expected nothing, got reads=%v ambiguous=%v", reads, ambiguous)
		}
	})

	t.Run("both resolving is ambiguous", func(t *testing.T) {
		a, b := common.HexToHash("0x0a"), common.HexToHash("0x0b")
		c, d := common.HexToHash("0x0c"), common.HexToHash("0x0d")
		h1, h2 := hashPair(a, b), hashPair(c, d)
		top := hashPair(h1, h2)
		trace := []TraceStep{
			keccakStep(1, a, b),
			touchStep(1, h1),
			keccakStep(1, c, d),
			touchStep(1, h2),
			keccakStep(1, h1, h2),
			sloadStep(1, top),
		}
		reads, ambiguous := ParseNestedMappingReads(tokenT, trace)
		if len(reads) != 0 {
			t.Errorf("expected no clean reads, got %v", reads)
		}
		if len(ambiguous) != 1 {
			t.Fatalf("expected 1 ambiguous read, got %d", len(ambiguous))
		}
		if ambiguous[0].N0 != h1 || ambiguous[0].N1 != h2 || ambiguous[0].Slot != top {
			t.Errorf("ambiguous read = %+v", ambiguous[0])
		}
	})
}

func TestMappingSlotValue(t *testing.T) {
	index := MappingSlotFromIndex(9, true)
	key := addrWord(userU)

	t.Run("solidity order", func(t *testing.T) {
		got := index.Value(userU.Bytes()).Slot()
		want := crypto.Keccak256Hash(key[:], index.Slot().Bytes())
		if got != want {
			t.Errorf("value slot = %s, want %s", got, want)
		}
	})

	t.Run("vyper order", func(t *testing.T) {
		vyper := NewMappingSlot(index.Slot(), false)
		got := vyper.Value(userU.Bytes()).Slot()
		want := crypto.Keccak256Hash(index.Slot().Bytes(), key[:])
		if got != want {
			t.Errorf("value slot = %s, want %s", got, want)
		}
	})

	t.Run("convention is inherited", func(t *testing.T) {
		if !index.Value(userU.Bytes()).IsSolidity() {
			t.Error("solidity flag lost on derivation")
		}
		if NewMappingSlot(common.Hash{}, false).Value(key[:]).IsSolidity() {
			t.Error("vyper flag lost on derivation")
		}
	})

	t.Run("short keys are left padded", func(t *testing.T) {
		a := index.Value([]byte{0x01})
		b := index.Value(common.HexToHash("0x01").Bytes())
		if a.Slot() != b.Slot() {
			t.Error("padded and unpadded keys should derive the same slot")
		}
	})
}

func TestParseBalanceSlot(t *testing.T) {
	t.Run("solidity token", func(t *testing.T) {
		slot, ok := ParseBalanceSlot(tokenT, userU, balanceTrace(userU, 9))
		if !ok {
			t.Fatal("slot not found")
		}
		if slot.Slot() != common.BigToHash(big9()) {
			t.Errorf("slot = %s, want index 9", slot.Slot())
		}
		if !slot.IsSolidity() {
			t.Error("expected solidity convention")
		}
	})

	t.Run("vyper token", func(t *testing.T) {
		index := common.BigToHash(big9())
		user := addrWord(userU)
		trace := []TraceStep{
			keccakStep(1, index, user),
			sloadStep(1, hashPair(index, user)),
		}
		slot, ok := ParseBalanceSlot(tokenT, userU, trace)
		if !ok {
			t.Fatal("slot not found")
		}
		if slot.IsSolidity() {
			t.Error("expected vyper convention")
		}
		if slot.Slot() != index {
			t.Errorf("slot = %s, want index 9", slot.Slot())
		}
	})

	t.Run("key colliding with index prefers solidity", func(t *testing.T) {
		key := addrWord(userU)
		trace := []TraceStep{
			keccakStep(1, key, key),
			sloadStep(1, hashPair(key, key)),
		}
		slot, ok := ParseBalanceSlot(tokenT, userU, trace)
		if !ok {
			t.Fatal("slot not found")
		}
		if !slot.IsSolidity() {
			t.Error("tie-break should prefer solidity ordering")
		}
	})

	t.Run("foreign contract reads are filtered", func(t *testing.T) {
		trace := []TraceStep{
			callStep("STATICCALL", 1, tokenA),
			keccakStep(2, addrWord(userU), common.BigToHash(big9())),
			sloadStep(2, hashPair(addrWord(userU), common.BigToHash(big9()))),
		}
		if _, ok := ParseBalanceSlot(tokenT, userU, trace); ok {
			t.Error("read in another contract must not match the token")
		}
	})

	t.Run("unknown user not found", func(t *testing.T) {
		if _, ok := ParseBalanceSlot(tokenT, spenderS, balanceTrace(userU, 9)); ok {
			t.Error("expected not found for a key absent from the trace")
		}
	})
}

func TestParseAllowanceSlot(t *testing.T) {
	owner := addrWord(userU)
	spender := addrWord(spenderS)
	index := common.BigToHash(big9())
	inner := hashPair(owner, index)
	outer := hashPair(spender, inner)
	trace := []TraceStep{
		keccakStep(1, owner, index),
		touchStep(1, inner),
		keccakStep(1, spender, inner),
		sloadStep(1, outer),
	}

	slot, ok := ParseAllowanceSlot(tokenT, userU, spenderS, trace)
	if !ok {
		t.Fatal("slot not found")
	}
	if slot.Slot() != index || !slot.IsSolidity() {
		t.Fatalf("slot = (%s, solidity=%v), want (index 9, true)", slot.Slot(), slot.IsSolidity())
	}

	// deriving owner then spender must land on the slot the trace read
	derived := slot.Value(userU.Bytes()).Value(spenderS.Bytes())
	if derived.Slot() != outer {
		t.Errorf("derived slot = %s, want traced slot %s", derived.Slot(), outer)
	}

	if _, ok := ParseAllowanceSlot(tokenT, userU, userU, trace); ok {
		t.Error("wrong spender must not match")
	}
}

func TestParseBatchBalanceSlots(t *testing.T) {
	user := addrWord(userU)
	indexA := common.BigToHash(big9())
	indexB := common.HexToHash("0x02")
	tokenC := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	trace := []TraceStep{
		callStep("CALL", 1, tokenA),
		keccakStep(2, user, indexA),
		sloadStep(2, hashPair(user, indexA)),
		callStep("CALL", 1, tokenB),
		keccakStep(2, indexB, user), // vyper-style token
		sloadStep(2, hashPair(indexB, user)),
		callStep("CALL", 1, tokenC), // observed but not a candidate
		keccakStep(2, user, indexA),
		sloadStep(2, hashPair(user, indexA)),
	}

	slots := ParseBatchBalanceSlots([]common.Address{tokenA, tokenB}, userU, trace)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d: %v", len(slots), slots)
	}
	if slot := slots[tokenA]; slot.Slot() != indexA || !slot.IsSolidity() {
		t.Errorf("tokenA slot = (%s, %v)", slot.Slot(), slot.IsSolidity())
	}
	if slot := slots[tokenB]; slot.Slot() != indexB || slot.IsSolidity() {
		t.Errorf("tokenB slot = (%s, %v)", slot.Slot(), slot.IsSolidity())
	}
	if _, ok := slots[tokenC]; ok {
		t.Error("non-candidate contract must be excluded")
	}
}

func TestParseBatchAllowanceSlots(t *testing.T) {
	owner := addrWord(userU)
	spender := addrWord(spenderS)
	index := common.BigToHash(big9())
	inner := hashPair(owner, index)
	outer := hashPair(spender, inner)

	trace := []TraceStep{
		callStep("STATICCALL", 1, tokenA),
		keccakStep(2, owner, index),
		touchStep(2, inner),
		keccakStep(2, spender, inner),
		sloadStep(2, outer),
	}

	slots := ParseBatchAllowanceSlots([]common.Address{tokenA}, userU, spenderS, trace)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slot := slots[tokenA]; slot.Slot() != index || !slot.IsSolidity() {
		t.Errorf("tokenA slot = (%s, %v), want (index 9, true)", slot.Slot(), slot.IsSolidity())
	}
}

func big9() *big.Int {
	return big.NewInt(9)
}
