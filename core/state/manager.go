package state

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"listchain/native/escrow"
	"listchain/storage"
)

// Manager reads and writes ledger state as RLP-encoded records stored under
// keccak-hashed prefixed keys. It implements the state surface the escrow
// engine mutates. Manager is not safe for concurrent use; the node serializes
// access.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// TokenMetadata describes a registered fungible token mint. The mint address
// is derived from the symbol so any party can locate the registry entry.
type TokenMetadata struct {
	Address  [20]byte
	Symbol   string
	Name     string
	Decimals uint8
}

var (
	mintPrefix    = []byte("mint:")
	mintListKey   = ethcrypto.Keccak256([]byte("mint-list"))
	balancePrefix = []byte("balance:")
	escrowPrefix  = []byte("escrow:")
	vaultPrefix   = []byte("vault:")
	ledgerSlotKey = ethcrypto.Keccak256([]byte("ledger-slot"))
)

func mintKey(addr [20]byte) []byte {
	buf := make([]byte, len(mintPrefix)+len(addr))
	copy(buf, mintPrefix)
	copy(buf[len(mintPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func balanceKey(mint, holder [20]byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(mint)+1+len(holder))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], mint[:])
	buf[len(balancePrefix)+len(mint)] = ':'
	copy(buf[len(balancePrefix)+len(mint)+1:], holder[:])
	return ethcrypto.Keccak256(buf)
}

func escrowKey(addr [20]byte) []byte {
	buf := make([]byte, len(escrowPrefix)+len(addr))
	copy(buf, escrowPrefix)
	copy(buf[len(escrowPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func vaultKey(addr [20]byte) []byte {
	buf := make([]byte, len(vaultPrefix)+len(addr))
	copy(buf, vaultPrefix)
	copy(buf[len(vaultPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// --- Token registry ---

// MintAddress derives the deterministic mint address for a token symbol.
func MintAddress(symbol string) [20]byte {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	digest := ethcrypto.Keccak256([]byte("listchain/mint/" + normalized))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// RegisterToken stores the metadata for a fungible token and records it in
// the mint index. Symbols are canonicalised to upper case.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) (*TokenMetadata, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return nil, fmt.Errorf("state: token symbol required")
	}
	addr := MintAddress(normalized)
	if _, ok, err := m.TokenGet(addr); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("state: token %s already registered", normalized)
	}
	meta := &TokenMetadata{
		Address:  addr,
		Symbol:   normalized,
		Name:     strings.TrimSpace(name),
		Decimals: decimals,
	}
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return nil, err
	}
	if err := m.db.Put(mintKey(addr), encoded); err != nil {
		return nil, err
	}
	list, err := m.tokenSymbols()
	if err != nil {
		return nil, err
	}
	list = append(list, normalized)
	encodedList, err := rlp.EncodeToBytes(list)
	if err != nil {
		return nil, err
	}
	if err := m.db.Put(mintListKey, encodedList); err != nil {
		return nil, err
	}
	return meta, nil
}

// TokenGet loads the registry entry stored at the mint address.
func (m *Manager) TokenGet(addr [20]byte) (*TokenMetadata, bool, error) {
	data, ok, err := m.get(mintKey(addr))
	if err != nil || !ok {
		return nil, false, err
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

// TokenBySymbol resolves a registry entry by its canonical symbol.
func (m *Manager) TokenBySymbol(symbol string) (*TokenMetadata, bool, error) {
	return m.TokenGet(MintAddress(symbol))
}

func (m *Manager) tokenSymbols() ([]string, error) {
	data, ok, err := m.get(mintListKey)
	if err != nil || !ok {
		return []string{}, err
	}
	var list []string
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// TokenList returns every registered token in registration order.
func (m *Manager) TokenList() ([]TokenMetadata, error) {
	symbols, err := m.tokenSymbols()
	if err != nil {
		return nil, err
	}
	out := make([]TokenMetadata, 0, len(symbols))
	for _, symbol := range symbols {
		meta, ok, err := m.TokenBySymbol(symbol)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: token %s indexed but missing", symbol)
		}
		out = append(out, *meta)
	}
	return out, nil
}

// --- Balances ---

func (m *Manager) requireMint(mint [20]byte) error {
	_, ok, err := m.TokenGet(mint)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: unknown token mint %x", mint)
	}
	return nil
}

// BalanceOf returns the holder's balance of the given mint. Missing entries
// read as zero.
func (m *Manager) BalanceOf(mint, holder [20]byte) (*big.Int, error) {
	if err := m.requireMint(mint); err != nil {
		return nil, err
	}
	data, ok, err := m.get(balanceKey(mint, holder))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (m *Manager) writeBalance(mint, holder [20]byte, balance *big.Int) error {
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return err
	}
	return m.db.Put(balanceKey(mint, holder), encoded)
}

// Credit adds amount to the holder's balance of mint.
func (m *Manager) Credit(mint, holder [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	balance, err := m.BalanceOf(mint, holder)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	return m.writeBalance(mint, holder, new(big.Int).Add(balance, amount))
}

// Debit removes amount from the holder's balance of mint, failing without
// mutation when the balance is insufficient.
func (m *Manager) Debit(mint, holder [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: debit amount must be non-negative")
	}
	balance, err := m.BalanceOf(mint, holder)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: insufficient balance")
	}
	if amount.Sign() == 0 {
		return nil
	}
	return m.writeBalance(mint, holder, new(big.Int).Sub(balance, amount))
}

// Transfer moves amount of mint between holders. The debit check runs before
// any write so a failed transfer leaves both balances untouched.
func (m *Manager) Transfer(mint, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := m.BalanceOf(mint, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("state: insufficient balance")
	}
	toBalance, err := m.BalanceOf(mint, to)
	if err != nil {
		return err
	}
	if err := m.writeBalance(mint, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.writeBalance(mint, to, new(big.Int).Add(toBalance, amount))
}

// --- Escrow records ---

// storedRecord is the RLP form of an escrow record. RLP has no signed
// integers, so the duration and shipment timestamp are stored as uint64.
type storedRecord struct {
	Version              uint8
	State                uint8
	ID                   uint64
	Seller               [20]byte
	Buyer                [20]byte
	Arbiter              [20]byte
	TokenMint            [20]byte
	Amount               *big.Int
	AutoCompleteDuration uint64
	TermsUpdateSlot      uint64
	MarkedShippedAt      uint64
	Address              [20]byte
	Bump                 uint8
}

// EscrowPut validates and persists the escrow record under its address.
func (m *Manager) EscrowPut(r *escrow.Record) error {
	sanitized, err := escrow.SanitizeRecord(r)
	if err != nil {
		return err
	}
	stored := &storedRecord{
		Version:              sanitized.Version,
		State:                uint8(sanitized.State),
		ID:                   sanitized.ID,
		Seller:               sanitized.Seller,
		Buyer:                sanitized.Buyer,
		Arbiter:              sanitized.Arbiter,
		TokenMint:            sanitized.TokenMint,
		Amount:               sanitized.Amount,
		AutoCompleteDuration: uint64(sanitized.AutoCompleteDuration),
		TermsUpdateSlot:      sanitized.TermsUpdateSlot,
		MarkedShippedAt:      uint64(sanitized.MarkedShippedAt),
		Address:              sanitized.Address,
		Bump:                 sanitized.Bump,
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return m.db.Put(escrowKey(sanitized.Address), encoded)
}

// EscrowGet loads the escrow record stored at addr.
func (m *Manager) EscrowGet(addr [20]byte) (*escrow.Record, bool) {
	data, ok, err := m.get(escrowKey(addr))
	if err != nil || !ok {
		return nil, false
	}
	stored := new(storedRecord)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	record := &escrow.Record{
		Version:              stored.Version,
		State:                escrow.State(stored.State),
		ID:                   stored.ID,
		Seller:               stored.Seller,
		Buyer:                stored.Buyer,
		Arbiter:              stored.Arbiter,
		TokenMint:            stored.TokenMint,
		Amount:               stored.Amount,
		AutoCompleteDuration: int64(stored.AutoCompleteDuration),
		TermsUpdateSlot:      stored.TermsUpdateSlot,
		MarkedShippedAt:      int64(stored.MarkedShippedAt),
		Address:              stored.Address,
		Bump:                 stored.Bump,
	}
	return record, true
}

// --- Vaults ---

// VaultPut persists the custody vault record under its address.
func (m *Manager) VaultPut(v *escrow.Vault) error {
	if v == nil {
		return fmt.Errorf("state: nil vault")
	}
	encoded, err := rlp.EncodeToBytes(v)
	if err != nil {
		return err
	}
	return m.db.Put(vaultKey(v.Address), encoded)
}

// VaultGet loads the vault record stored at addr.
func (m *Manager) VaultGet(addr [20]byte) (*escrow.Vault, bool) {
	data, ok, err := m.get(vaultKey(addr))
	if err != nil || !ok {
		return nil, false
	}
	vault := new(escrow.Vault)
	if err := rlp.DecodeBytes(data, vault); err != nil {
		return nil, false
	}
	return vault, true
}

// VaultDelete removes the vault record at addr.
func (m *Manager) VaultDelete(addr [20]byte) error {
	return m.db.Delete(vaultKey(addr))
}

// --- Ledger slot ---

// LedgerSlot returns the current ledger version stamp. A fresh database
// reads as slot zero.
func (m *Manager) LedgerSlot() (uint64, error) {
	data, ok, err := m.get(ledgerSlotKey)
	if err != nil || !ok {
		return 0, err
	}
	var slot uint64
	if err := rlp.DecodeBytes(data, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// BumpLedgerSlot advances the ledger version stamp and returns the new value.
func (m *Manager) BumpLedgerSlot() (uint64, error) {
	slot, err := m.LedgerSlot()
	if err != nil {
		return 0, err
	}
	slot++
	encoded, err := rlp.EncodeToBytes(slot)
	if err != nil {
		return 0, err
	}
	if err := m.db.Put(ledgerSlotKey, encoded); err != nil {
		return 0, err
	}
	return slot, nil
}
