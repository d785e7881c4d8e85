package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"listchain/core/events"
	"listchain/core/types"
)

var errNilState = errors.New("escrow engine: state not configured")

// engineState is the ledger surface the engine mutates. The host serializes
// all operations against the same record, so the engine needs no internal
// locking; operations against distinct records are fully independent.
type engineState interface {
	EscrowPut(*Record) error
	EscrowGet(addr [20]byte) (*Record, bool)
	VaultPut(*Vault) error
	VaultGet(addr [20]byte) (*Vault, bool)
	VaultDelete(addr [20]byte) error
	BalanceOf(mint, holder [20]byte) (*big.Int, error)
	Transfer(mint, from, to [20]byte, amount *big.Int) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow state machine with external state and event
// emitters. Every public entry point is a guarded transition: it validates
// signer, state, and value-movement preconditions, then applies its effects
// atomically or fails with a named taxonomy error and no partial change.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	slotFn  func() uint64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		slotFn:  func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetSlotFunc configures the ledger slot source stamped into terms updates.
func (e *Engine) SetSlotFunc(slot func() uint64) {
	if slot == nil {
		e.slotFn = func() uint64 { return 0 }
		return
	}
	e.slotFn = slot
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) slot() uint64 {
	if e == nil || e.slotFn == nil {
		return 0
	}
	return e.slotFn()
}

func (e *Engine) loadRecord(addr [20]byte) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, ok := e.state.EscrowGet(addr)
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return record, nil
}

func (e *Engine) storeRecord(record *Record) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.EscrowPut(record)
}

// Get returns the record stored at addr, if any.
func (e *Engine) Get(addr [20]byte) (*Record, error) {
	record, err := e.loadRecord(addr)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// GetBySellerID resolves the record through address derivation.
func (e *Engine) GetBySellerID(seller [20]byte, id uint64) (*Record, error) {
	addr, _, err := DeriveRecordAddress(seller, id)
	if err != nil {
		return nil, err
	}
	return e.Get(addr)
}

// Create allocates a new escrow record at its derived address. The caller
// must sign as the intended seller. No tokens move.
func (e *Engine) Create(seller [20]byte, id uint64, terms Terms) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := requireWellFormedTerms(seller, terms); err != nil {
		return nil, err
	}
	addr, bump, err := DeriveRecordAddress(seller, id)
	if err != nil {
		return nil, err
	}
	if _, ok := e.state.EscrowGet(addr); ok {
		return nil, ErrEscrowExists
	}
	record := &Record{
		Version:              RecordVersion,
		State:                StateCreated,
		ID:                   id,
		Seller:               seller,
		Buyer:                terms.Buyer,
		Arbiter:              terms.Arbiter,
		TokenMint:            terms.TokenMint,
		Amount:               new(big.Int).Set(terms.Amount),
		AutoCompleteDuration: terms.AutoCompleteDuration,
		TermsUpdateSlot:      e.slot(),
		Address:              addr,
		Bump:                 bump,
	}
	if err := e.storeRecord(record); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(record))
	return record.Clone(), nil
}

// UpdateTerms replaces the terms bundle of an unfunded record and re-stamps
// the terms slot, invalidating any Fund call built on the previous snapshot.
// The caller must sign as the record's seller.
func (e *Engine) UpdateTerms(seller [20]byte, id uint64, terms Terms) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addr, _, err := DeriveRecordAddress(seller, id)
	if err != nil {
		return nil, err
	}
	record, err := e.loadRecord(addr)
	if err != nil {
		return nil, err
	}
	if err := requireSigner(seller, record.Seller, ErrInvalidSeller); err != nil {
		return nil, err
	}
	if err := requireState(record, StateCreated); err != nil {
		return nil, err
	}
	if err := requireWellFormedTerms(seller, terms); err != nil {
		return nil, err
	}
	record.Buyer = terms.Buyer
	record.Arbiter = terms.Arbiter
	record.TokenMint = terms.TokenMint
	record.Amount = new(big.Int).Set(terms.Amount)
	record.AutoCompleteDuration = terms.AutoCompleteDuration
	record.TermsUpdateSlot = e.slot()
	if err := e.storeRecord(record); err != nil {
		return nil, err
	}
	e.emit(NewTermsUpdatedEvent(record))
	return record.Clone(), nil
}

// Fund moves the escrow amount from the buyer into the record's vault and
// advances the state to Funded. The caller must sign as the record's buyer
// and present the terms slot observed when deciding to commit; a stale slot
// aborts with ErrTermsChanged before any value moves.
func (e *Engine) Fund(buyer [20]byte, addr [20]byte, mint [20]byte, observedSlot uint64) error {
	record, err := e.loadRecord(addr)
	if err != nil {
		return err
	}
	if err := requireSigner(buyer, record.Buyer, ErrInvalidBuyer); err != nil {
		return err
	}
	if err := requireState(record, StateCreated); err != nil {
		return err
	}
	if err := requireMint(record, mint); err != nil {
		return err
	}
	if err := requireFreshTerms(record, observedSlot); err != nil {
		return err
	}
	balance, err := e.state.BalanceOf(mint, buyer)
	if err != nil {
		return err
	}
	if balance.Cmp(record.Amount) < 0 {
		return ErrInsufficientFunds
	}
	vaultAddr, vaultBump, err := DeriveVaultAddress(record.Address, mint)
	if err != nil {
		return err
	}
	if _, ok := e.state.VaultGet(vaultAddr); !ok {
		vault := &Vault{
			Address: vaultAddr,
			Record:  record.Address,
			Mint:    mint,
			Bump:    vaultBump,
		}
		if err := e.state.VaultPut(vault); err != nil {
			return err
		}
	}
	if err := e.state.Transfer(mint, buyer, vaultAddr, record.Amount); err != nil {
		return err
	}
	record.State = StateFunded
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewFundedEvent(record))
	return nil
}

// MarkShipped records the shipment timestamp and advances the state to
// MarkedAsShipped. The caller must sign as the seller. No fund movement.
func (e *Engine) MarkShipped(seller [20]byte, addr [20]byte) error {
	record, err := e.loadRecord(addr)
	if err != nil {
		return err
	}
	if err := requireSigner(seller, record.Seller, ErrInvalidSeller); err != nil {
		return err
	}
	if err := requireState(record, StateFunded); err != nil {
		return err
	}
	record.State = StateMarkedAsShipped
	record.MarkedShippedAt = e.now()
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewMarkedShippedEvent(record))
	return nil
}

// BuyerConfirm is the buyer's explicit acceptance path, advancing the state
// from MarkedAsShipped to BuyerConfirmed. No fund movement.
func (e *Engine) BuyerConfirm(buyer [20]byte, addr [20]byte) error {
	record, err := e.loadRecord(addr)
	if err != nil {
		return err
	}
	if err := requireSigner(buyer, record.Buyer, ErrInvalidBuyer); err != nil {
		return err
	}
	if err := requireState(record, StateMarkedAsShipped); err != nil {
		return err
	}
	record.State = StateBuyerConfirmed
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewBuyerConfirmedEvent(record))
	return nil
}

// Withdraw releases the full vault balance to the seller, either after the
// buyer confirmed or once the auto-complete timeout has elapsed since
// shipment. The vault is removed and the record reaches its terminal
// FundsReleased state.
func (e *Engine) Withdraw(seller [20]byte, addr [20]byte) error {
	record, err := e.loadRecord(addr)
	if err != nil {
		return err
	}
	if err := requireSigner(seller, record.Seller, ErrInvalidSeller); err != nil {
		return err
	}
	switch record.State {
	case StateBuyerConfirmed:
	case StateMarkedAsShipped:
		if err := requireShippedElapsed(record, e.now()); err != nil {
			return err
		}
	default:
		return ErrInvalidEscrowState
	}
	vaultAddr, _, err := DeriveVaultAddress(record.Address, record.TokenMint)
	if err != nil {
		return err
	}
	if _, ok := e.state.VaultGet(vaultAddr); !ok {
		return ErrInvalidVaultBalance
	}
	balance, err := e.state.BalanceOf(record.TokenMint, vaultAddr)
	if err != nil {
		return err
	}
	if err := requireExactBalance(balance, record.Amount); err != nil {
		return err
	}
	if err := e.state.Transfer(record.TokenMint, vaultAddr, record.Seller, balance); err != nil {
		return err
	}
	if err := e.state.VaultDelete(vaultAddr); err != nil {
		return err
	}
	record.State = StateFundsReleased
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewFundsReleasedEvent(record))
	return nil
}

// Cancel retires an unfunded record. Only the seller may cancel, and only
// while no funds are in custody; the arbiter field stays reserved for a
// future dispute path and grants no authority here.
func (e *Engine) Cancel(seller [20]byte, addr [20]byte) error {
	record, err := e.loadRecord(addr)
	if err != nil {
		return err
	}
	if err := requireSigner(seller, record.Seller, ErrInvalidSeller); err != nil {
		return err
	}
	if err := requireState(record, StateCreated); err != nil {
		return err
	}
	record.State = StateCancelled
	if err := e.storeRecord(record); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(record))
	return nil
}

// VaultBalance reports the current custody balance for the record at addr.
func (e *Engine) VaultBalance(addr [20]byte) (*big.Int, error) {
	record, err := e.loadRecord(addr)
	if err != nil {
		return nil, err
	}
	vaultAddr, _, err := DeriveVaultAddress(record.Address, record.TokenMint)
	if err != nil {
		return nil, err
	}
	if _, ok := e.state.VaultGet(vaultAddr); !ok {
		return big.NewInt(0), nil
	}
	balance, err := e.state.BalanceOf(record.TokenMint, vaultAddr)
	if err != nil {
		return nil, fmt.Errorf("escrow: vault balance lookup: %w", err)
	}
	return balance, nil
}
