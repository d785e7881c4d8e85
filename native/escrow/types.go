package escrow

import (
	"fmt"
	"math/big"
)

// State represents the lifecycle states of a marketplace escrow record.
type State uint8

const (
	StateCreated State = iota
	StateFunded
	StateMarkedAsShipped
	StateBuyerConfirmed
	StateFundsReleased
	StateCancelled
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateFunded, StateMarkedAsShipped, StateBuyerConfirmed, StateFundsReleased, StateCancelled:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFunded:
		return "funded"
	case StateMarkedAsShipped:
		return "marked_as_shipped"
	case StateBuyerConfirmed:
		return "buyer_confirmed"
	case StateFundsReleased:
		return "funds_released"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition may leave the state.
func (s State) Terminal() bool {
	return s == StateFundsReleased || s == StateCancelled
}

// RecordVersion is the current on-ledger format tag for escrow records.
const RecordVersion uint8 = 1

// Terms bundles the seller-chosen trade parameters. The bundle is fixed at
// creation and may only be replaced through UpdateTerms while the record is
// still in StateCreated.
type Terms struct {
	Buyer                [20]byte
	Arbiter              [20]byte
	TokenMint            [20]byte
	Amount               *big.Int
	AutoCompleteDuration int64
}

// Clone returns a deep copy of the terms bundle.
func (t Terms) Clone() Terms {
	clone := t
	if t.Amount != nil {
		clone.Amount = new(big.Int).Set(t.Amount)
	}
	return clone
}

// Record is the durable state for one trade: identity, parties, terms and
// lifecycle state. Its address is a pure function of (seller, id) so any
// party can locate it without a directory service.
type Record struct {
	Version uint8
	State   State

	// ID and Seller are the derivation seeds for Address.
	ID     uint64
	Seller [20]byte

	Buyer                [20]byte
	Arbiter              [20]byte
	TokenMint            [20]byte
	Amount               *big.Int
	AutoCompleteDuration int64

	// TermsUpdateSlot is the ledger slot at which the terms were last
	// written. Fund callers must present their observed value of it.
	TermsUpdateSlot uint64
	// MarkedShippedAt is the unix timestamp recorded by MarkShipped.
	// Zero until the record reaches StateMarkedAsShipped.
	MarkedShippedAt int64

	Address [20]byte
	Bump    uint8
}

// Clone returns a deep copy of the record so callers can safely mutate the
// copy without affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeRecord validates the supplied record and returns a cloned instance
// with a non-nil amount. The original value is not mutated.
func SanitizeRecord(r *Record) (*Record, error) {
	if r == nil {
		return nil, fmt.Errorf("nil escrow record")
	}
	clone := r.Clone()
	if !clone.State.Valid() {
		return nil, fmt.Errorf("invalid escrow state: %d", clone.State)
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow amount must be non-negative")
	}
	if clone.AutoCompleteDuration < 0 {
		return nil, fmt.Errorf("escrow auto-complete duration must be non-negative")
	}
	return clone, nil
}

// Vault is the custody account holding the escrowed amount. It is owned by
// the escrow record rather than any party and exists only while funds are
// held: created on Fund, removed on Withdraw.
type Vault struct {
	Address [20]byte
	Record  [20]byte
	Mint    [20]byte
	Bump    uint8
}

// Clone returns a copy of the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
