package core

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"listchain/native/escrow"
	"listchain/storage"
)

func nodeTestAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func nodeTestTerms() escrow.Terms {
	return escrow.Terms{
		Buyer:                nodeTestAddr(0x02),
		Arbiter:              nodeTestAddr(0x03),
		TokenMint:            nodeTestAddr(0x04),
		Amount:               big.NewInt(1000),
		AutoCompleteDuration: 0,
	}
}

// faultyDB passes writes through until its budget is spent, then fails every
// subsequent Put.
type faultyDB struct {
	storage.Database
	putsLeft int
	failErr  error
}

func (db *faultyDB) Put(key, value []byte) error {
	if db.putsLeft <= 0 {
		return db.failErr
	}
	db.putsLeft--
	return db.Database.Put(key, value)
}

func TestSlotAdvanceFailureReportsAppliedOperation(t *testing.T) {
	diskErr := errors.New("write failed")
	// EscrowCreate issues exactly two writes: the record, then the slot
	// advance. Allow the first so only the advance fails.
	db := &faultyDB{Database: storage.NewMemDB(), putsLeft: 1, failErr: diskErr}
	node := NewNode(db)
	seller := nodeTestAddr(0x01)

	_, err := node.EscrowCreate(seller, 1, nodeTestTerms())
	if !errors.Is(err, diskErr) {
		t.Fatalf("expected the store error to surface, got %v", err)
	}
	if !strings.Contains(err.Error(), "applied") {
		t.Fatalf("error should state the operation remains applied, got %q", err)
	}

	addr, _, deriveErr := escrow.DeriveRecordAddress(seller, 1)
	if deriveErr != nil {
		t.Fatalf("derive: %v", deriveErr)
	}
	record, getErr := node.EscrowGet(addr)
	if getErr != nil {
		t.Fatalf("record should be durable despite the failed slot advance: %v", getErr)
	}
	if record.State != escrow.StateCreated {
		t.Fatalf("unexpected record state %s", record.State)
	}
	slot, slotErr := node.LedgerSlot()
	if slotErr != nil {
		t.Fatalf("slot: %v", slotErr)
	}
	if slot != 0 {
		t.Fatalf("slot should not have advanced, got %d", slot)
	}
}

func TestEventsCarryMonotonicSequences(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node := NewNode(db)
	seller := nodeTestAddr(0x01)
	buyer := nodeTestAddr(0x02)

	terms := nodeTestTerms()
	meta, err := node.TokenRegister("USDL", "Listchain Dollar", 6)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	terms.TokenMint = meta.Address
	if err := node.TokenCredit(meta.Address, buyer, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	record, err := node.EscrowCreate(seller, 1, terms)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := node.EscrowFund(buyer, record.Address, meta.Address, record.TermsUpdateSlot); err != nil {
		t.Fatalf("fund: %v", err)
	}

	events := node.Events()
	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	if events[0].Sequence != 1 || events[1].Sequence != 2 {
		t.Fatalf("sequences not monotonic from 1: %d, %d", events[0].Sequence, events[1].Sequence)
	}
	if events[0].Event.Type != escrow.EventTypeCreated || events[1].Event.Type != escrow.EventTypeFunded {
		t.Fatalf("unexpected event order: %s, %s", events[0].Event.Type, events[1].Event.Type)
	}
}
