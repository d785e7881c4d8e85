package escrow

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"testing"

	"listchain/core/events"
	"listchain/core/types"
)

type mockState struct {
	records  map[[20]byte]*Record
	vaults   map[[20]byte]*Vault
	balances map[[20]byte]map[[20]byte]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		records:  make(map[[20]byte]*Record),
		vaults:   make(map[[20]byte]*Vault),
		balances: make(map[[20]byte]map[[20]byte]*big.Int),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) EscrowPut(r *Record) error {
	sanitized, err := SanitizeRecord(r)
	if err != nil {
		return err
	}
	m.records[sanitized.Address] = sanitized.Clone()
	return nil
}

func (m *mockState) EscrowGet(addr [20]byte) (*Record, bool) {
	record, ok := m.records[addr]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

func (m *mockState) VaultPut(v *Vault) error {
	if v == nil {
		return fmt.Errorf("nil vault")
	}
	m.vaults[v.Address] = v.Clone()
	return nil
}

func (m *mockState) VaultGet(addr [20]byte) (*Vault, bool) {
	vault, ok := m.vaults[addr]
	if !ok {
		return nil, false
	}
	return vault.Clone(), true
}

func (m *mockState) VaultDelete(addr [20]byte) error {
	delete(m.vaults, addr)
	return nil
}

func (m *mockState) BalanceOf(mint, holder [20]byte) (*big.Int, error) {
	holders, ok := m.balances[mint]
	if !ok {
		return big.NewInt(0), nil
	}
	balance, ok := holders[holder]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (m *mockState) setBalance(mint, holder [20]byte, amount *big.Int) {
	holders, ok := m.balances[mint]
	if !ok {
		holders = make(map[[20]byte]*big.Int)
		m.balances[mint] = holders
	}
	holders[holder] = new(big.Int).Set(amount)
}

func (m *mockState) Transfer(mint, from, to [20]byte, amount *big.Int) error {
	fromBalance, err := m.BalanceOf(mint, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	toBalance, err := m.BalanceOf(mint, to)
	if err != nil {
		return err
	}
	m.setBalance(mint, from, new(big.Int).Sub(fromBalance, amount))
	m.setBalance(mint, to, new(big.Int).Add(toBalance, amount))
	return nil
}

type capturingEmitter struct {
	types []string
}

func (c *capturingEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	if payload := carrier.Event(); payload != nil {
		c.types = append(c.types, payload.Type)
	}
}

type testHarness struct {
	engine  *Engine
	state   *mockState
	emitter *capturingEmitter
	now     int64
	slot    uint64
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		state:   newMockState(),
		emitter: &capturingEmitter{},
		now:     1_700_000_000,
		slot:    1,
	}
	h.engine = NewEngine()
	h.engine.SetState(h.state)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetNowFunc(func() int64 { return h.now })
	h.engine.SetSlotFunc(func() uint64 { return h.slot })
	return h
}

var (
	testSeller  = newTestAddress(0x01)
	testBuyer   = newTestAddress(0x02)
	testArbiter = newTestAddress(0x03)
	testMint    = newTestAddress(0x04)
)

func testTerms() Terms {
	return Terms{
		Buyer:                testBuyer,
		Arbiter:              testArbiter,
		TokenMint:            testMint,
		Amount:               big.NewInt(69_000_000),
		AutoCompleteDuration: 0,
	}
}

func (h *testHarness) mustCreate(t *testing.T, id uint64, terms Terms) *Record {
	t.Helper()
	record, err := h.engine.Create(testSeller, id, terms)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return record
}

func (h *testHarness) mustFund(t *testing.T, record *Record) {
	t.Helper()
	h.state.setBalance(record.TokenMint, testBuyer, record.Amount)
	if err := h.engine.Fund(testBuyer, record.Address, record.TokenMint, record.TermsUpdateSlot); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func TestCreateDerivesDeterministicAddress(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())

	derived, bump, err := DeriveRecordAddress(testSeller, 1)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if record.Address != derived {
		t.Fatalf("record address %x does not match derivation %x", record.Address, derived)
	}
	if record.Bump != bump {
		t.Fatalf("record bump %d does not match derivation %d", record.Bump, bump)
	}
	if record.State != StateCreated {
		t.Fatalf("expected created state, got %s", record.State)
	}
	if record.TermsUpdateSlot != 1 {
		t.Fatalf("expected terms slot 1, got %d", record.TermsUpdateSlot)
	}
	if got, err := h.engine.GetBySellerID(testSeller, 1); err != nil || got.Address != derived {
		t.Fatalf("GetBySellerID: %v", err)
	}
}

func TestCreateRejectsMalformedTerms(t *testing.T) {
	h := newTestHarness(t)

	cases := []struct {
		name   string
		mutate func(*Terms)
		want   error
	}{
		{"zero amount", func(tm *Terms) { tm.Amount = big.NewInt(0) }, ErrInvalidAmount},
		{"negative amount", func(tm *Terms) { tm.Amount = big.NewInt(-1) }, ErrInvalidAmount},
		{"nil amount", func(tm *Terms) { tm.Amount = nil }, ErrInvalidAmount},
		{"buyer is seller", func(tm *Terms) { tm.Buyer = testSeller }, ErrBuyerCannotBeSeller},
		{"zero buyer", func(tm *Terms) { tm.Buyer = [20]byte{} }, ErrInvalidBuyerAddress},
		{"zero arbiter", func(tm *Terms) { tm.Arbiter = [20]byte{} }, ErrInvalidArbiterAddress},
		{"zero mint", func(tm *Terms) { tm.TokenMint = [20]byte{} }, ErrInvalidTokenMint},
		{"negative duration", func(tm *Terms) { tm.AutoCompleteDuration = -1 }, ErrInvalidDuration},
		{"excessive duration", func(tm *Terms) { tm.AutoCompleteDuration = MaxAutoCompleteDuration + 1 }, ErrInvalidDuration},
		{"max int64 duration", func(tm *Terms) { tm.AutoCompleteDuration = math.MaxInt64 }, ErrInvalidDuration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terms := testTerms()
			tc.mutate(&terms)
			if _, err := h.engine.Create(testSeller, 99, terms); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	h := newTestHarness(t)
	h.mustCreate(t, 1, testTerms())
	if _, err := h.engine.Create(testSeller, 1, testTerms()); !errors.Is(err, ErrEscrowExists) {
		t.Fatalf("expected ErrEscrowExists, got %v", err)
	}
}

func TestUpdateTermsRestampsSlot(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	staleSlot := record.TermsUpdateSlot

	h.slot = 7
	updated := testTerms()
	updated.Amount = big.NewInt(120_000_000)
	revised, err := h.engine.UpdateTerms(testSeller, 1, updated)
	if err != nil {
		t.Fatalf("update terms: %v", err)
	}
	if revised.TermsUpdateSlot != 7 {
		t.Fatalf("expected re-stamped slot 7, got %d", revised.TermsUpdateSlot)
	}
	if revised.Amount.Cmp(big.NewInt(120_000_000)) != 0 {
		t.Fatalf("expected amount replaced, got %s", revised.Amount)
	}

	// A Fund built on the pre-update snapshot must abort before value moves.
	h.state.setBalance(testMint, testBuyer, big.NewInt(200_000_000))
	err = h.engine.Fund(testBuyer, record.Address, testMint, staleSlot)
	if !errors.Is(err, ErrTermsChanged) {
		t.Fatalf("expected ErrTermsChanged, got %v", err)
	}
	balance, _ := h.state.BalanceOf(testMint, testBuyer)
	if balance.Cmp(big.NewInt(200_000_000)) != 0 {
		t.Fatalf("buyer balance mutated on aborted fund: %s", balance)
	}
}

func TestUpdateTermsGuards(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())

	if _, err := h.engine.UpdateTerms(newTestAddress(0x09), 1, testTerms()); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected ErrEscrowNotFound for foreign seller derivation, got %v", err)
	}

	h.mustFund(t, record)
	if _, err := h.engine.UpdateTerms(testSeller, 1, testTerms()); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState after funding, got %v", err)
	}
}

func TestFundMovesAmountIntoVault(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.state.setBalance(testMint, testBuyer, big.NewInt(100_000_000))

	if err := h.engine.Fund(testBuyer, record.Address, testMint, record.TermsUpdateSlot); err != nil {
		t.Fatalf("fund: %v", err)
	}

	stored, err := h.engine.Get(record.Address)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != StateFunded {
		t.Fatalf("expected funded state, got %s", stored.State)
	}

	vaultAddr, _, err := DeriveVaultAddress(record.Address, testMint)
	if err != nil {
		t.Fatalf("derive vault: %v", err)
	}
	if _, ok := h.state.VaultGet(vaultAddr); !ok {
		t.Fatal("expected vault record after fund")
	}
	vaultBalance, _ := h.state.BalanceOf(testMint, vaultAddr)
	if vaultBalance.Cmp(big.NewInt(69_000_000)) != 0 {
		t.Fatalf("expected vault balance 69000000, got %s", vaultBalance)
	}
	buyerBalance, _ := h.state.BalanceOf(testMint, testBuyer)
	if buyerBalance.Cmp(big.NewInt(31_000_000)) != 0 {
		t.Fatalf("expected buyer remainder 31000000, got %s", buyerBalance)
	}
}

func TestFundGuards(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())

	if err := h.engine.Fund(newTestAddress(0x0F), record.Address, testMint, record.TermsUpdateSlot); !errors.Is(err, ErrInvalidBuyer) {
		t.Fatalf("expected ErrInvalidBuyer, got %v", err)
	}
	if err := h.engine.Fund(testBuyer, record.Address, newTestAddress(0x0E), record.TermsUpdateSlot); !errors.Is(err, ErrInvalidTokenMint) {
		t.Fatalf("expected ErrInvalidTokenMint, got %v", err)
	}
	if err := h.engine.Fund(testBuyer, record.Address, testMint, record.TermsUpdateSlot); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := h.engine.Fund(testBuyer, newTestAddress(0x0D), testMint, record.TermsUpdateSlot); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected ErrEscrowNotFound, got %v", err)
	}

	h.mustFund(t, record)
	h.state.setBalance(testMint, testBuyer, big.NewInt(100_000_000))
	if err := h.engine.Fund(testBuyer, record.Address, testMint, record.TermsUpdateSlot); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState on double fund, got %v", err)
	}
}

func TestMarkShippedRecordsTimestamp(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.mustFund(t, record)

	h.now = 1_700_000_500
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	stored, _ := h.engine.Get(record.Address)
	if stored.State != StateMarkedAsShipped {
		t.Fatalf("expected marked_as_shipped, got %s", stored.State)
	}
	if stored.MarkedShippedAt != 1_700_000_500 {
		t.Fatalf("expected shipment timestamp 1700000500, got %d", stored.MarkedShippedAt)
	}

	if err := h.engine.MarkShipped(testBuyer, record.Address); !errors.Is(err, ErrInvalidSeller) {
		t.Fatalf("expected ErrInvalidSeller, got %v", err)
	}
	if err := h.engine.MarkShipped(testSeller, record.Address); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState on double ship, got %v", err)
	}
}

func TestMarkShippedRequiresFunded(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	if err := h.engine.MarkShipped(testSeller, record.Address); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState before funding, got %v", err)
	}
}

func TestBuyerConfirmGuards(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.mustFund(t, record)

	if err := h.engine.BuyerConfirm(testBuyer, record.Address); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState before shipment, got %v", err)
	}
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if err := h.engine.BuyerConfirm(testSeller, record.Address); !errors.Is(err, ErrInvalidBuyer) {
		t.Fatalf("expected ErrInvalidBuyer, got %v", err)
	}
	if err := h.engine.BuyerConfirm(testBuyer, record.Address); err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}
	stored, _ := h.engine.Get(record.Address)
	if stored.State != StateBuyerConfirmed {
		t.Fatalf("expected buyer_confirmed, got %s", stored.State)
	}
}

func TestWithdrawAfterBuyerConfirm(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.mustFund(t, record)
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if err := h.engine.BuyerConfirm(testBuyer, record.Address); err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}
	if err := h.engine.Withdraw(testSeller, record.Address); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	stored, _ := h.engine.Get(record.Address)
	if stored.State != StateFundsReleased {
		t.Fatalf("expected funds_released, got %s", stored.State)
	}
	sellerBalance, _ := h.state.BalanceOf(testMint, testSeller)
	if sellerBalance.Cmp(big.NewInt(69_000_000)) != 0 {
		t.Fatalf("expected seller payout 69000000, got %s", sellerBalance)
	}
	vaultAddr, _, _ := DeriveVaultAddress(record.Address, testMint)
	if _, ok := h.state.VaultGet(vaultAddr); ok {
		t.Fatal("expected vault removed after withdraw")
	}

	if err := h.engine.Withdraw(testSeller, record.Address); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState on double withdraw, got %v", err)
	}
}

func TestWithdrawTimeoutPath(t *testing.T) {
	h := newTestHarness(t)
	terms := testTerms()
	terms.AutoCompleteDuration = 3600
	record := h.mustCreate(t, 1, terms)
	h.mustFund(t, record)

	h.now = 1_700_000_500
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}

	h.now = 1_700_000_500 + 3599
	if err := h.engine.Withdraw(testSeller, record.Address); !errors.Is(err, ErrWithdrawTooEarly) {
		t.Fatalf("expected ErrWithdrawTooEarly, got %v", err)
	}

	h.now = 1_700_000_500 + 3600
	if err := h.engine.Withdraw(testSeller, record.Address); err != nil {
		t.Fatalf("withdraw at timeout boundary: %v", err)
	}
	sellerBalance, _ := h.state.BalanceOf(testMint, testSeller)
	if sellerBalance.Cmp(big.NewInt(69_000_000)) != 0 {
		t.Fatalf("expected seller payout, got %s", sellerBalance)
	}
}

func TestWithdrawNeverReleasesOnDeadlineOverflow(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.mustFund(t, record)
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}

	// A record written before the duration cap may carry a duration whose
	// deadline exceeds the int64 horizon. The wrapped sum must read as "not
	// yet elapsed", never as an already-passed deadline.
	stored, ok := h.state.EscrowGet(record.Address)
	if !ok {
		t.Fatal("record missing after mark shipped")
	}
	stored.AutoCompleteDuration = math.MaxInt64
	h.state.records[stored.Address] = stored

	h.now = stored.MarkedShippedAt + 1
	if err := h.engine.Withdraw(testSeller, record.Address); !errors.Is(err, ErrWithdrawTooEarly) {
		t.Fatalf("expected ErrWithdrawTooEarly with max duration, got %v", err)
	}
	vaultAddr, _, _ := DeriveVaultAddress(record.Address, testMint)
	balance, _ := h.state.BalanceOf(testMint, vaultAddr)
	if balance.Cmp(big.NewInt(69_000_000)) != 0 {
		t.Fatalf("custody balance moved despite unelapsed timeout: %s", balance)
	}
}

func TestWithdrawZeroDurationReleasesImmediately(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.mustFund(t, record)
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if err := h.engine.Withdraw(testSeller, record.Address); err != nil {
		t.Fatalf("withdraw with zero duration: %v", err)
	}
}

func TestWithdrawGuards(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())

	if err := h.engine.Withdraw(testSeller, record.Address); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState before funding, got %v", err)
	}

	h.mustFund(t, record)
	if err := h.engine.Withdraw(testSeller, record.Address); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState while funded, got %v", err)
	}
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if err := h.engine.BuyerConfirm(testBuyer, record.Address); err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}
	if err := h.engine.Withdraw(testBuyer, record.Address); !errors.Is(err, ErrInvalidSeller) {
		t.Fatalf("expected ErrInvalidSeller, got %v", err)
	}
}

func TestWithdrawDetectsVaultMismatch(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.mustFund(t, record)
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if err := h.engine.BuyerConfirm(testBuyer, record.Address); err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}

	vaultAddr, _, _ := DeriveVaultAddress(record.Address, testMint)
	h.state.setBalance(testMint, vaultAddr, big.NewInt(1))
	if err := h.engine.Withdraw(testSeller, record.Address); !errors.Is(err, ErrInvalidVaultBalance) {
		t.Fatalf("expected ErrInvalidVaultBalance, got %v", err)
	}
}

func TestCancelRetiresUnfundedRecord(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())

	if err := h.engine.Cancel(testBuyer, record.Address); !errors.Is(err, ErrInvalidSeller) {
		t.Fatalf("expected ErrInvalidSeller, got %v", err)
	}
	if err := h.engine.Cancel(testSeller, record.Address); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	stored, _ := h.engine.Get(record.Address)
	if stored.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", stored.State)
	}
	if err := h.engine.Cancel(testSeller, record.Address); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState on double cancel, got %v", err)
	}
}

func TestCancelRejectedAfterFund(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.mustFund(t, record)
	if err := h.engine.Cancel(testSeller, record.Address); !errors.Is(err, ErrInvalidEscrowState) {
		t.Fatalf("expected ErrInvalidEscrowState, got %v", err)
	}
}

func TestVaultBalanceLifecycle(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())

	balance, err := h.engine.VaultBalance(record.Address)
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance before fund, got %s", balance)
	}

	h.mustFund(t, record)
	balance, err = h.engine.VaultBalance(record.Address)
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if balance.Cmp(big.NewInt(69_000_000)) != 0 {
		t.Fatalf("expected vault balance 69000000, got %s", balance)
	}
}

func TestLifecycleEmitsEvents(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	h.mustFund(t, record)
	if err := h.engine.MarkShipped(testSeller, record.Address); err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if err := h.engine.BuyerConfirm(testBuyer, record.Address); err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}
	if err := h.engine.Withdraw(testSeller, record.Address); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	want := []string{
		EventTypeCreated,
		EventTypeFunded,
		EventTypeMarkedShipped,
		EventTypeBuyerConfirmed,
		EventTypeFundsReleased,
	}
	if len(h.emitter.types) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), h.emitter.types)
	}
	for i, eventType := range want {
		if h.emitter.types[i] != eventType {
			t.Fatalf("event %d: expected %s, got %s", i, eventType, h.emitter.types[i])
		}
	}
}

func TestFailedOperationEmitsNothing(t *testing.T) {
	h := newTestHarness(t)
	record := h.mustCreate(t, 1, testTerms())
	emitted := len(h.emitter.types)

	if err := h.engine.Fund(testBuyer, record.Address, testMint, record.TermsUpdateSlot); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(h.emitter.types) != emitted {
		t.Fatalf("failed fund emitted events: %v", h.emitter.types[emitted:])
	}
}
