package escrow

import (
	"strconv"

	"listchain/core/types"
	"listchain/crypto"
)

const (
	EventTypeCreated        = "escrow.created"
	EventTypeTermsUpdated   = "escrow.terms_updated"
	EventTypeFunded         = "escrow.funded"
	EventTypeMarkedShipped  = "escrow.marked_shipped"
	EventTypeBuyerConfirmed = "escrow.buyer_confirmed"
	EventTypeFundsReleased  = "escrow.funds_released"
	EventTypeCancelled      = "escrow.cancelled"
)

// NewCreatedEvent returns the canonical payload for a newly created record.
func NewCreatedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeCreated, r) }

// NewTermsUpdatedEvent returns the payload emitted when the seller replaces
// the terms bundle of an unfunded record.
func NewTermsUpdatedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeTermsUpdated, r) }

// NewFundedEvent returns the payload emitted when the buyer commits funds
// into the vault.
func NewFundedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeFunded, r) }

// NewMarkedShippedEvent returns the payload emitted when the seller claims
// shipment.
func NewMarkedShippedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeMarkedShipped, r) }

// NewBuyerConfirmedEvent returns the payload for the buyer's acceptance.
func NewBuyerConfirmedEvent(r *Record) *types.Event {
	return newRecordEvent(EventTypeBuyerConfirmed, r)
}

// NewFundsReleasedEvent returns the payload emitted when the vault balance is
// released to the seller.
func NewFundsReleasedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeFundsReleased, r) }

// NewCancelledEvent returns the payload emitted when the seller retires an
// unfunded record.
func NewCancelledEvent(r *Record) *types.Event { return newRecordEvent(EventTypeCancelled, r) }

func newRecordEvent(eventType string, r *Record) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeRecord(r)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["address"] = crypto.NewAddress(crypto.ListPrefix, sanitized.Address[:]).String()
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["seller"] = crypto.NewAddress(crypto.ListPrefix, sanitized.Seller[:]).String()
	attrs["buyer"] = crypto.NewAddress(crypto.ListPrefix, sanitized.Buyer[:]).String()
	attrs["tokenMint"] = crypto.NewAddress(crypto.MintPrefix, sanitized.TokenMint[:]).String()
	attrs["amount"] = sanitized.Amount.String()
	attrs["state"] = sanitized.State.String()
	attrs["termsUpdateSlot"] = strconv.FormatUint(sanitized.TermsUpdateSlot, 10)
	if sanitized.Arbiter != zeroAddress {
		attrs["arbiter"] = crypto.NewAddress(crypto.ListPrefix, sanitized.Arbiter[:]).String()
	}
	if sanitized.MarkedShippedAt != 0 {
		attrs["markedShippedAt"] = strconv.FormatInt(sanitized.MarkedShippedAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
