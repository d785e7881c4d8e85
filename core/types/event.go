package types

// Event is the canonical payload for a state change emitted by the ledger.
// Attributes are flat string pairs so downstream consumers (RPC readers,
// marketplace UI) can render them without schema knowledge.
type Event struct {
	Type       string
	Attributes map[string]string
}
