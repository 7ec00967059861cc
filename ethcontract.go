// Package ethcontract provides helpers for building, encoding and sending
// Ethereum contract calls, plus a trace-based locator for mapping storage
// slots of contracts whose source is unavailable.
//
// # Storage slot location
//
// ERC-20 tokens don't standardize where `balances` and `allowances` live in
// contract storage. When source code and compiler output are unavailable,
// the slot can still be recovered from the per-opcode trace of a view call:
// a mapping read compiles down to
//
//	slot = KECCAK256(v0 || v1)
//	SLOAD(slot)
//
// so correlating 64-byte KECCAK256 preimages with later SLOAD addresses
// reveals which slot holds a given key's entry. The scanners in this
// package replay exactly that correlation:
//
//	steps, err := client.TraceCall(ctx, msg, nil)
//	slot, ok := ethcontract.ParseBalanceSlot(token, user, steps)
//	if ok {
//	    // slot.Value(otherUser).Slot() addresses any user's balance
//	}
//
// The technique is heuristic and best-effort: proxies with unusual storage
// layouts, inline-assembly accessors or absent probe keys all yield a
// normal "not found" outcome rather than an error. Located slots should be
// verified with a state-override call before being relied on; SlotLocator
// automates the trace, scan and verify round trip:
//
//	locator := ethcontract.NewSlotLocator(client)
//	slot, err := locator.BalanceSlot(ctx, token, user)
//
// # Contract calls
//
// Contract wraps an ABI bound to an address. ABIs can be parsed from the
// usual JSON form or from human-readable signatures:
//
//	abi := ethcontract.MustParseSignatures(
//	    "function balanceOf(address owner) view returns (uint256)",
//	)
//	token := ethcontract.NewContract(addr, abi)
//	data := token.MustFn("balanceOf", owner).Data()
//
// Multicall3 batching, CREATE2/CREATE3 deterministic deployment addresses
// and a canonical ERC-20 ABI round out the convenience layer.
//
// # References
//
//   - https://github.com/halo3mic/token-bss (slot detection technique)
//   - https://github.com/mds1/multicall3
//   - https://github.com/Arachnid/deterministic-deployment-proxy
//   - https://github.com/pcaversaccio/createx
package ethcontract
