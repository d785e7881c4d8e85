package escrow

import "math/big"

// Cross-cutting checks applied by every handler before any mutation. Keeping
// them as small composable predicates keeps the all-or-nothing transaction
// property easy to audit.

var zeroAddress [20]byte

// MaxAutoCompleteDuration bounds the seller-chosen timeout to one year. The
// cap keeps markedShippedAt+duration far from the int64 horizon so the
// deadline arithmetic in requireShippedElapsed cannot wrap.
const MaxAutoCompleteDuration int64 = 365 * 24 * 60 * 60

func requireSigner(caller, required [20]byte, mismatch error) error {
	if caller != required {
		return mismatch
	}
	return nil
}

func requireState(r *Record, allowed ...State) error {
	for _, s := range allowed {
		if r.State == s {
			return nil
		}
	}
	return ErrInvalidEscrowState
}

func requireFreshTerms(r *Record, observedSlot uint64) error {
	if r.TermsUpdateSlot != observedSlot {
		return ErrTermsChanged
	}
	return nil
}

func requireMint(r *Record, mint [20]byte) error {
	if r.TokenMint != mint {
		return ErrInvalidTokenMint
	}
	return nil
}

// requireShippedElapsed enforces the auto-complete timeout on the withdraw
// path taken from StateMarkedAsShipped.
func requireShippedElapsed(r *Record, now int64) error {
	if r.MarkedShippedAt == 0 {
		return ErrEscrowNotShipped
	}
	deadline := r.MarkedShippedAt + r.AutoCompleteDuration
	if deadline < r.MarkedShippedAt {
		// Saturate instead of wrapping: an overflowing deadline can never
		// have elapsed.
		return ErrWithdrawTooEarly
	}
	if now < deadline {
		return ErrWithdrawTooEarly
	}
	return nil
}

func requireWellFormedTerms(seller [20]byte, terms Terms) error {
	if terms.Amount == nil || terms.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if terms.Buyer == seller {
		return ErrBuyerCannotBeSeller
	}
	if terms.Buyer == zeroAddress {
		return ErrInvalidBuyerAddress
	}
	if terms.Arbiter == zeroAddress {
		return ErrInvalidArbiterAddress
	}
	if terms.TokenMint == zeroAddress {
		return ErrInvalidTokenMint
	}
	if terms.AutoCompleteDuration < 0 || terms.AutoCompleteDuration > MaxAutoCompleteDuration {
		return ErrInvalidDuration
	}
	return nil
}

func requireExactBalance(balance, amount *big.Int) error {
	if balance == nil || amount == nil || balance.Cmp(amount) != 0 {
		return ErrInvalidVaultBalance
	}
	return nil
}
