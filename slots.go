package ethcontract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MappingSlot is the storage slot of a Solidity or Vyper mapping field,
// typically recovered from an execution trace. It is immutable; Value
// derives child slots for successive nesting levels.
type MappingSlot struct {
	slot       common.Hash
	isSolidity bool
}

// NewMappingSlot wraps a raw 32-byte slot value. isSolidity selects the
// hash order used by Value: keccak(key || slot) when true (Solidity),
// keccak(slot || key) when false (Vyper).
func NewMappingSlot(slot common.Hash, isSolidity bool) MappingSlot {
	return MappingSlot{slot: slot, isSolidity: isSolidity}
}

// MappingSlotFromIndex builds a MappingSlot from a declared field index,
// e.g. index 9 for the 10th storage variable.
func MappingSlotFromIndex(index uint64, isSolidity bool) MappingSlot {
	return MappingSlot{slot: common.BigToHash(new(big.Int).SetUint64(index)), isSolidity: isSolidity}
}

// Slot returns the 32-byte slot value.
func (s MappingSlot) Slot() common.Hash {
	return s.slot
}

// IsSolidity reports whether the slot uses Solidity's keccak(key || slot)
// ordering rather than Vyper's keccak(slot || key).
func (s MappingSlot) IsSolidity() bool {
	return s.isSolidity
}

// Value computes the storage slot holding the mapping entry for key.
// Keys shorter than 32 bytes are left-padded the way the EVM word-extends
// addresses; longer keys keep their low-order 32 bytes. The result is
// itself a MappingSlot, so nested mappings chain:
//
//	allowance.Value(owner.Bytes()).Value(spender.Bytes()).Slot()
func (s MappingSlot) Value(key []byte) MappingSlot {
	k := common.BytesToHash(key)
	var slot common.Hash
	if s.isSolidity {
		slot = crypto.Keccak256Hash(k[:], s.slot[:])
	} else {
		slot = crypto.Keccak256Hash(s.slot[:], k[:])
	}
	return MappingSlot{slot: slot, isSolidity: s.isSolidity}
}

// hashPreimages records the operands of 64-byte KECCAK256 instructions,
// keyed by their output. The EVM pushes a hash result only after the
// instruction retires, so it becomes visible on the *following* recorded
// step's stack top; pending is that one-step buffer. Hashes over any other
// length are ignored: mapping slots are always keccak over two words.
type hashPreimages struct {
	hashed  map[common.Hash][2]common.Hash
	pending *[2]common.Hash
}

func newHashPreimages() *hashPreimages {
	return &hashPreimages{hashed: make(map[common.Hash][2]common.Hash)}
}

// observe must see every step in trace order, before any other handling of
// the step, so a pending preimage is paired with its result first.
func (h *hashPreimages) observe(step *TraceStep) {
	if h.pending != nil {
		if top, ok := step.StackBack(0); ok {
			h.hashed[common.Hash(top.Bytes32())] = *h.pending
		}
		h.pending = nil
	}

	if step.Op != "KECCAK256" {
		return
	}
	offset, ok0 := step.StackBack(0)
	size, ok1 := step.StackBack(1)
	if !ok0 || !ok1 {
		return
	}
	if !size.IsUint64() || size.Uint64() != 64 || !offset.IsUint64() {
		return
	}
	mem := step.MemorySlice(offset.Uint64(), 64)
	pre := [2]common.Hash{common.BytesToHash(mem[:32]), common.BytesToHash(mem[32:])}
	h.pending = &pre
}

func (h *hashPreimages) lookup(slot common.Hash) ([2]common.Hash, bool) {
	pre, ok := h.hashed[slot]
	return pre, ok
}

// callContexts tracks which contract's storage is addressed at each call
// depth. CALL and STATICCALL enter the target's storage; DELEGATECALL runs
// foreign code against the caller's storage, so the current address is
// inherited at depth+1.
type callContexts struct {
	byDepth map[int]common.Address
}

func newCallContexts(top common.Address) *callContexts {
	return &callContexts{byDepth: map[int]common.Address{1: top}}
}

func (c *callContexts) observe(step *TraceStep) {
	switch step.Op {
	case "CALL", "STATICCALL":
		// target address is the second operand, below gas
		if target, ok := step.StackBack(1); ok {
			c.byDepth[step.Depth+1] = common.Address(target.Bytes20())
		}
	case "DELEGATECALL":
		if addr, ok := c.byDepth[step.Depth]; ok {
			c.byDepth[step.Depth+1] = addr
		}
	}
}

func (c *callContexts) current(depth int) (common.Address, bool) {
	addr, ok := c.byDepth[depth]
	return addr, ok
}

// MappingRead is one observed single-level mapping access:
// Slot = keccak256(V0 || V1) was loaded while executing in Contract.
// Under Solidity V0 is the mapping key and V1 the field's slot index;
// Vyper reverses the two.
type MappingRead struct {
	Contract common.Address
	V0, V1   common.Hash
	Slot     common.Hash
}

// NestedMappingRead is one observed two-level mapping access:
// Slot = keccak256 over the outer key V2 and an inner hash whose operands
// were V0 and V1.
type NestedMappingRead struct {
	Contract   common.Address
	V0, V1, V2 common.Hash
	Slot       common.Hash
}

// AmbiguousNestedRead records an SLOAD whose outer-hash operands N0 and N1
// both resolve to earlier hash results, leaving the nesting structure
// undecidable. Surfaced so callers can observe the gap instead of losing
// the read silently.
type AmbiguousNestedRead struct {
	Contract common.Address
	N0, N1   common.Hash
	Slot     common.Hash
}

// ParseMappingReads scans an execution trace for single-level mapping
// reads. A `balances[user]` access compiles to
//
//	slot = KECCAK256(v0 || v1)
//	SLOAD(slot)
//
// so every SLOAD whose address is a recorded two-word hash result is
// emitted, attributed to the contract whose storage the current call frame
// addresses. top seeds the depth-1 context with the call's target.
//
// The scan owns all of its state, so concurrent scans over different
// traces need no locking. Malformed steps are skipped, never fatal.
func ParseMappingReads(top common.Address, steps []TraceStep) []MappingRead {
	contexts := newCallContexts(top)
	hashes := newHashPreimages()

	var reads []MappingRead
	for i := range steps {
		step := &steps[i]
		hashes.observe(step)

		if step.Op == "SLOAD" {
			if slotW, ok := step.StackBack(0); ok {
				slot := common.Hash(slotW.Bytes32())
				if pre, ok := hashes.lookup(slot); ok {
					if contract, ok := contexts.current(step.Depth); ok {
						reads = append(reads, MappingRead{
							Contract: contract,
							V0:       pre[0],
							V1:       pre[1],
							Slot:     slot,
						})
					}
				}
			}
		}

		contexts.observe(step)
	}
	return reads
}

// ParseNestedMappingReads scans an execution trace for two-level mapping
// reads. An `allowances[owner][spender]` access compiles to
//
//	tmp  = KECCAK256(v0 || v1)
//	slot = KECCAK256(v2 || tmp)   // or KECCAK256(tmp || v2)
//	SLOAD(slot)
//
// On a hit, whichever outer operand is itself a recorded hash result is
// unfolded into (v0, v1) and the other becomes V2. Reads where both outer
// operands resolve are returned separately as ambiguous; reads where
// neither resolves are plain single-level accesses and emitted by neither
// list (ParseMappingReads sees those).
func ParseNestedMappingReads(top common.Address, steps []TraceStep) ([]NestedMappingRead, []AmbiguousNestedRead) {
	contexts := newCallContexts(top)
	hashes := newHashPreimages()

	var (
		reads     []NestedMappingRead
		ambiguous []AmbiguousNestedRead
	)
	for i := range steps {
		step := &steps[i]
		hashes.observe(step)

		if step.Op == "SLOAD" {
			if slotW, ok := step.StackBack(0); ok {
				slot := common.Hash(slotW.Bytes32())
				if outer, ok := hashes.lookup(slot); ok {
					if contract, ok := contexts.current(step.Depth); ok {
						n0, n1 := outer[0], outer[1]
						inner0, ok0 := hashes.lookup(n0)
						inner1, ok1 := hashes.lookup(n1)
						switch {
						case ok0 && ok1:
							ambiguous = append(ambiguous, AmbiguousNestedRead{
								Contract: contract,
								N0:       n0,
								N1:       n1,
								Slot:     slot,
							})
						case ok0:
							reads = append(reads, NestedMappingRead{
								Contract: contract,
								V0:       inner0[0],
								V1:       inner0[1],
								V2:       n1,
								Slot:     slot,
							})
						case ok1:
							reads = append(reads, NestedMappingRead{
								Contract: contract,
								V0:       inner1[0],
								V1:       inner1[1],
								V2:       n0,
								Slot:     slot,
							})
						}
					}
				}
			}
		}

		contexts.observe(step)
	}
	return reads, ambiguous
}

// matchMappingKey matches a known probe key against the two hash operands
// of a mapping read. The matched position decides the language convention;
// Solidity ordering wins the tie when the key numerically collides with
// the slot index and both operands match.
func matchMappingKey(key, v0, v1 common.Hash) (MappingSlot, bool) {
	if v0 == key {
		return MappingSlot{slot: v1, isSolidity: true}, true
	}
	if v1 == key {
		return MappingSlot{slot: v0, isSolidity: false}, true
	}
	return MappingSlot{}, false
}

// ParseBalanceSlot locates the balance-mapping slot of token from the
// trace of a balanceOf(user) call. The second return is false when no
// mapping read in the trace matches user, a normal outcome for tokens
// that don't keep balances in a plain mapping.
func ParseBalanceSlot(token, user common.Address, steps []TraceStep) (MappingSlot, bool) {
	key := common.BytesToHash(user.Bytes())
	for _, r := range ParseMappingReads(token, steps) {
		if r.Contract != token {
			continue
		}
		if slot, ok := matchMappingKey(key, r.V0, r.V1); ok {
			return slot, true
		}
	}
	return MappingSlot{}, false
}

// ParseAllowanceSlot locates the allowance-mapping slot of token from the
// trace of an allowance(owner, spender) call. The outer key is always the
// spender; the owner decides the Solidity/Vyper convention.
func ParseAllowanceSlot(token, owner, spender common.Address, steps []TraceStep) (MappingSlot, bool) {
	ownerKey := common.BytesToHash(owner.Bytes())
	spenderKey := common.BytesToHash(spender.Bytes())
	reads, _ := ParseNestedMappingReads(token, steps)
	for _, r := range reads {
		if r.Contract != token || r.V2 != spenderKey {
			continue
		}
		if slot, ok := matchMappingKey(ownerKey, r.V0, r.V1); ok {
			return slot, true
		}
	}
	return MappingSlot{}, false
}

// ParseBatchBalanceSlots locates balance-mapping slots for several tokens
// at once from the trace of a multicall batching balanceOf(user) calls.
// The nominal caller is the batching contract, not any one token, so the
// top-level context is seeded with the zero address and only reads
// attributed to candidate tokens are matched. Tokens with no match are
// omitted from the result; the first match per token wins.
func ParseBatchBalanceSlots(tokens []common.Address, user common.Address, steps []TraceStep) map[common.Address]MappingSlot {
	candidates := make(map[common.Address]bool, len(tokens))
	for _, t := range tokens {
		candidates[t] = true
	}
	key := common.BytesToHash(user.Bytes())

	result := make(map[common.Address]MappingSlot)
	for _, r := range ParseMappingReads(common.Address{}, steps) {
		if !candidates[r.Contract] {
			continue
		}
		if _, done := result[r.Contract]; done {
			continue
		}
		if slot, ok := matchMappingKey(key, r.V0, r.V1); ok {
			result[r.Contract] = slot
		}
	}
	return result
}

// ParseBatchAllowanceSlots is the nested-mapping analogue of
// ParseBatchBalanceSlots, over a multicall of allowance(owner, spender)
// calls.
func ParseBatchAllowanceSlots(tokens []common.Address, owner, spender common.Address, steps []TraceStep) map[common.Address]MappingSlot {
	candidates := make(map[common.Address]bool, len(tokens))
	for _, t := range tokens {
		candidates[t] = true
	}
	ownerKey := common.BytesToHash(owner.Bytes())
	spenderKey := common.BytesToHash(spender.Bytes())

	result := make(map[common.Address]MappingSlot)
	reads, _ := ParseNestedMappingReads(common.Address{}, steps)
	for _, r := range reads {
		if !candidates[r.Contract] || r.V2 != spenderKey {
			continue
		}
		if _, done := result[r.Contract]; done {
			continue
		}
		if slot, ok := matchMappingKey(ownerKey, r.V0, r.V1); ok {
			result[r.Contract] = slot
		}
	}
	return result
}
