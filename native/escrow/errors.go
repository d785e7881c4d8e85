package escrow

import "errors"

// The error taxonomy surfaced by every operation. Each guard failure aborts
// the whole operation with no partial state change; callers map these stable
// identifiers to user-facing messages and retry prompts.
var (
	// Validation errors: malformed Create/UpdateTerms input.
	ErrInvalidAmount         = errors.New("escrow: invalid amount")
	ErrBuyerCannotBeSeller   = errors.New("escrow: buyer cannot be the seller")
	ErrInvalidBuyerAddress   = errors.New("escrow: invalid buyer address")
	ErrInvalidArbiterAddress = errors.New("escrow: invalid arbiter address")
	ErrInvalidDuration       = errors.New("escrow: invalid duration")
	ErrInvalidTokenMint      = errors.New("escrow: invalid token mint")

	// Authorization errors: the caller is not the required signer.
	ErrInvalidBuyer  = errors.New("escrow: invalid buyer")
	ErrInvalidSeller = errors.New("escrow: invalid seller")

	// State errors: the record is not in the state the handler requires.
	ErrInvalidEscrowState = errors.New("escrow: invalid escrow state")
	ErrEscrowNotShipped   = errors.New("escrow: escrow not shipped")

	// Concurrency error: the caller's terms snapshot is stale.
	ErrTermsChanged = errors.New("escrow: terms have changed")

	// Resource errors: value-movement preconditions unmet.
	ErrInsufficientFunds   = errors.New("escrow: insufficient funds")
	ErrInvalidVaultBalance = errors.New("escrow: invalid vault balance")

	// Timing error: the auto-complete timeout has not elapsed.
	ErrWithdrawTooEarly = errors.New("escrow: withdraw too early")

	// Lookup errors.
	ErrEscrowNotFound = errors.New("escrow: escrow not found")
	ErrEscrowExists   = errors.New("escrow: escrow already exists")
)

// Identifier returns the stable wire identifier for a taxonomy error, or the
// empty string for errors outside the taxonomy.
func Identifier(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrBuyerCannotBeSeller):
		return "BuyerCannotBeSeller"
	case errors.Is(err, ErrInvalidBuyerAddress):
		return "InvalidBuyerAddress"
	case errors.Is(err, ErrInvalidArbiterAddress):
		return "InvalidArbiterAddress"
	case errors.Is(err, ErrInvalidDuration):
		return "InvalidDuration"
	case errors.Is(err, ErrInvalidTokenMint):
		return "InvalidTokenMint"
	case errors.Is(err, ErrInvalidBuyer):
		return "InvalidBuyer"
	case errors.Is(err, ErrInvalidSeller):
		return "InvalidSeller"
	case errors.Is(err, ErrInvalidEscrowState):
		return "InvalidEscrowState"
	case errors.Is(err, ErrEscrowNotShipped):
		return "EscrowNotShipped"
	case errors.Is(err, ErrTermsChanged):
		return "TermsChanged"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrInvalidVaultBalance):
		return "InvalidVaultBalance"
	case errors.Is(err, ErrWithdrawTooEarly):
		return "WithdrawTooEarly"
	case errors.Is(err, ErrEscrowNotFound):
		return "EscrowNotFound"
	case errors.Is(err, ErrEscrowExists):
		return "EscrowExists"
	default:
		return ""
	}
}
