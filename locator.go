package ethcontract

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"golang.org/x/sync/errgroup"
)

// SlotLocator discovers the storage slots behind ERC-20 balance and
// allowance mappings by tracing view calls against a node and scanning
// the step stream. Located slots are verified by default: a random value
// is injected at the derived child slot through a state override and must
// be observed by the same view call.
//
// Location is best-effort. Tokens that answer balanceOf without a plain
// mapping read (unusual proxies, inline-assembly accessors) yield
// ErrSlotNotFound, not a failure.
type SlotLocator struct {
	client    *Client
	verify    bool
	multicall common.Address
}

// NewSlotLocator creates a locator around a client with the given
// options.
func NewSlotLocator(client *Client, opts ...LocatorOption) *SlotLocator {
	l := &SlotLocator{
		client:    client,
		verify:    true,
		multicall: Multicall3Address,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BalanceSlot locates the balance-mapping slot of token. user must be an
// address whose balance the token will actually read; any address works
// since a zero balance still touches the mapping.
func (l *SlotLocator) BalanceSlot(ctx context.Context, token, user common.Address) (MappingSlot, error) {
	fn := ERC20.At(token).MustFn("balanceOf", user)
	steps, err := l.client.TraceCall(ctx, fn.CallMsg(), nil)
	if err != nil {
		return MappingSlot{}, err
	}
	slot, ok := ParseBalanceSlot(token, user, steps)
	if !ok {
		return MappingSlot{}, ErrSlotNotFound
	}
	if l.verify {
		if err := l.verifySlot(ctx, token, fn, slot.Value(user.Bytes())); err != nil {
			return MappingSlot{}, err
		}
	}
	return slot, nil
}

// AllowanceSlot locates the allowance-mapping slot of token from an
// allowance(owner, spender) trace.
func (l *SlotLocator) AllowanceSlot(ctx context.Context, token, owner, spender common.Address) (MappingSlot, error) {
	fn := ERC20.At(token).MustFn("allowance", owner, spender)
	steps, err := l.client.TraceCall(ctx, fn.CallMsg(), nil)
	if err != nil {
		return MappingSlot{}, err
	}
	slot, ok := ParseAllowanceSlot(token, owner, spender, steps)
	if !ok {
		return MappingSlot{}, ErrSlotNotFound
	}
	if l.verify {
		derived := slot.Value(owner.Bytes()).Value(spender.Bytes())
		if err := l.verifySlot(ctx, token, fn, derived); err != nil {
			return MappingSlot{}, err
		}
	}
	return slot, nil
}

// BalanceSlots locates balance-mapping slots for several tokens with one
// traced multicall. Tokens whose slot can't be located (or doesn't
// verify) are omitted from the result.
func (l *SlotLocator) BalanceSlots(ctx context.Context, tokens []common.Address, user common.Address) (map[common.Address]MappingSlot, error) {
	fns := make(map[common.Address]*ContractFunction, len(tokens))
	calls := make([]Call3, 0, len(tokens))
	for _, token := range tokens {
		fn := ERC20.At(token).MustFn("balanceOf", user)
		fns[token] = fn
		calls = append(calls, Call3{Target: token, AllowFailure: true, CallData: fn.Data()})
	}

	steps, err := l.traceBatch(ctx, calls)
	if err != nil {
		return nil, err
	}
	found := ParseBatchBalanceSlots(tokens, user, steps)
	if !l.verify {
		return found, nil
	}
	return l.verifySlots(ctx, found, fns, func(slot MappingSlot) MappingSlot {
		return slot.Value(user.Bytes())
	})
}

// AllowanceSlots is the nested-mapping analogue of BalanceSlots, batching
// allowance(owner, spender) calls.
func (l *SlotLocator) AllowanceSlots(ctx context.Context, tokens []common.Address, owner, spender common.Address) (map[common.Address]MappingSlot, error) {
	fns := make(map[common.Address]*ContractFunction, len(tokens))
	calls := make([]Call3, 0, len(tokens))
	for _, token := range tokens {
		fn := ERC20.At(token).MustFn("allowance", owner, spender)
		fns[token] = fn
		calls = append(calls, Call3{Target: token, AllowFailure: true, CallData: fn.Data()})
	}

	steps, err := l.traceBatch(ctx, calls)
	if err != nil {
		return nil, err
	}
	found := ParseBatchAllowanceSlots(tokens, owner, spender, steps)
	if !l.verify {
		return found, nil
	}
	return l.verifySlots(ctx, found, fns, func(slot MappingSlot) MappingSlot {
		return slot.Value(owner.Bytes()).Value(spender.Bytes())
	})
}

func (l *SlotLocator) traceBatch(ctx context.Context, calls []Call3) ([]TraceStep, error) {
	data, err := PackAggregate3(calls)
	if err != nil {
		return nil, err
	}
	to := l.multicall
	return l.client.TraceCall(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// verifySlot injects a random value at the derived slot and checks the
// view call observes it through a state override.
func (l *SlotLocator) verifySlot(ctx context.Context, token common.Address, fn *ContractFunction, derived MappingSlot) error {
	want, err := randomWord()
	if err != nil {
		return err
	}
	overrides := map[common.Address]gethclient.OverrideAccount{
		token: {StateDiff: map[common.Hash]common.Hash{derived.Slot(): want}},
	}
	ret, err := l.client.CallContract(ctx, fn.CallMsg(), nil, overrides)
	if err != nil {
		return err
	}
	if common.BytesToHash(ret) != want {
		return ErrSlotMismatch
	}
	return nil
}

// verifySlots checks each located slot concurrently, dropping entries
// that don't verify. Transport errors abort the whole batch.
func (l *SlotLocator) verifySlots(ctx context.Context, found map[common.Address]MappingSlot, fns map[common.Address]*ContractFunction, derive func(MappingSlot) MappingSlot) (map[common.Address]MappingSlot, error) {
	var mu sync.Mutex
	verified := make(map[common.Address]MappingSlot, len(found))

	g, gctx := errgroup.WithContext(ctx)
	for token, slot := range found {
		g.Go(func() error {
			err := l.verifySlot(gctx, token, fns[token], derive(slot))
			if errors.Is(err, ErrSlotMismatch) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			verified[token] = slot
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verified, nil
}

// randomWord returns a 32-byte word with 16 random low-order bytes, large
// enough to be unmistakable for a real balance yet always a sane uint256.
func randomWord() (common.Hash, error) {
	var w common.Hash
	if _, err := rand.Read(w[16:]); err != nil {
		return common.Hash{}, err
	}
	return w, nil
}
