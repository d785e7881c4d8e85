package core

import (
	"fmt"
	"math/big"
	"sync"

	"listchain/core/events"
	"listchain/core/state"
	"listchain/core/types"
	"listchain/native/escrow"
	"listchain/observability"
	"listchain/storage"
)

// maxEventBuffer bounds the in-memory event history served over RPC.
const maxEventBuffer = 1024

// SequencedEvent pairs an emitted event with its position in the node's
// all-time emission order. The sequence is assigned at capture and survives
// buffer trimming, so readers can use it as a stable cursor.
type SequencedEvent struct {
	Sequence uint64
	Event    types.Event
}

// Node owns the ledger state and serializes every operation against it,
// mirroring the execution model in which the host ledger applies handlers as
// atomic, single-threaded units per account.
type Node struct {
	mu       sync.Mutex
	db       storage.Database
	manager  *state.Manager
	engine   *escrow.Engine
	events   []SequencedEvent
	eventSeq uint64
}

// NewNode wires a node over the provided database.
func NewNode(db storage.Database) *Node {
	manager := state.NewManager(db)
	node := &Node{
		db:      db,
		manager: manager,
	}
	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(node)
	engine.SetSlotFunc(func() uint64 {
		slot, err := manager.LedgerSlot()
		if err != nil {
			return 0
		}
		return slot
	})
	node.engine = engine
	return node
}

// Emit implements events.Emitter, capturing typed events into the bounded
// history buffer. Emit is only invoked while the node mutex is held.
func (n *Node) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	n.eventSeq++
	n.events = append(n.events, SequencedEvent{Sequence: n.eventSeq, Event: *payload})
	if len(n.events) > maxEventBuffer {
		n.events = n.events[len(n.events)-maxEventBuffer:]
	}
}

// Events returns a copy of the captured event history.
func (n *Node) Events() []SequencedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SequencedEvent, len(n.events))
	copy(out, n.events)
	return out
}

// SetNowFunc overrides the engine clock, for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetNowFunc(now)
}

// WithState runs fn with exclusive access to the state manager.
func (n *Node) WithState(fn func(m *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.manager)
}

// commit advances the ledger slot after a successful mutation so subsequent
// terms stamps observe a fresh version. A slot-advance failure is a store
// error reported to the caller; the engine mutation itself is already
// durable at that point, which the returned error spells out.
func (n *Node) commit(op string, err error) error {
	observability.EscrowMetrics().ObserveTransition(op, err)
	if err != nil {
		return err
	}
	if _, bumpErr := n.manager.BumpLedgerSlot(); bumpErr != nil {
		return fmt.Errorf("%s applied but ledger slot advance failed: %w", op, bumpErr)
	}
	return nil
}

// EscrowCreate allocates a new escrow record signed by seller.
func (n *Node) EscrowCreate(seller [20]byte, id uint64, terms escrow.Terms) (*escrow.Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	record, err := n.engine.Create(seller, id, terms)
	if err := n.commit("create", err); err != nil {
		return nil, err
	}
	return record, nil
}

// EscrowUpdateTerms replaces the terms of an unfunded record.
func (n *Node) EscrowUpdateTerms(seller [20]byte, id uint64, terms escrow.Terms) (*escrow.Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	record, err := n.engine.UpdateTerms(seller, id, terms)
	if err := n.commit("update_terms", err); err != nil {
		return nil, err
	}
	return record, nil
}

// EscrowFund commits the buyer's funds into the record's vault.
func (n *Node) EscrowFund(buyer [20]byte, addr [20]byte, mint [20]byte, observedSlot uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commit("fund", n.engine.Fund(buyer, addr, mint, observedSlot))
}

// EscrowMarkShipped records shipment by the seller.
func (n *Node) EscrowMarkShipped(seller [20]byte, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commit("mark_shipped", n.engine.MarkShipped(seller, addr))
}

// EscrowBuyerConfirm records the buyer's acceptance.
func (n *Node) EscrowBuyerConfirm(buyer [20]byte, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commit("buyer_confirm", n.engine.BuyerConfirm(buyer, addr))
}

// EscrowWithdraw releases the vault balance to the seller.
func (n *Node) EscrowWithdraw(seller [20]byte, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commit("withdraw", n.engine.Withdraw(seller, addr))
}

// EscrowCancel retires an unfunded record.
func (n *Node) EscrowCancel(seller [20]byte, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commit("cancel", n.engine.Cancel(seller, addr))
}

// EscrowGet returns the record stored at addr.
func (n *Node) EscrowGet(addr [20]byte) (*escrow.Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Get(addr)
}

// EscrowVaultBalance reports the custody balance held for the record.
func (n *Node) EscrowVaultBalance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.VaultBalance(addr)
}

// TokenRegister adds a fungible token to the mint registry.
func (n *Node) TokenRegister(symbol, name string, decimals uint8) (*state.TokenMetadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.manager.RegisterToken(symbol, name, decimals)
}

// TokenCredit seeds a holder balance; used by genesis allocation.
func (n *Node) TokenCredit(mint, holder [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.manager.Credit(mint, holder, amount)
}

// TokenBalance reads a holder balance.
func (n *Node) TokenBalance(mint, holder [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.manager.BalanceOf(mint, holder)
}

// LedgerSlot returns the current terms-stamp version of the ledger.
func (n *Node) LedgerSlot() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.manager.LedgerSlot()
}
