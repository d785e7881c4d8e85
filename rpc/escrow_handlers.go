package rpc

import (
	"errors"
	"math/big"
	"net/http"
	"strings"

	"listchain/core/state"
	"listchain/crypto"
	"listchain/native/escrow"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type escrowTermsParams struct {
	Buyer                string `json:"buyer"`
	Arbiter              string `json:"arbiter"`
	TokenMint            string `json:"tokenMint"`
	Amount               string `json:"amount"`
	AutoCompleteDuration int64  `json:"autoCompleteDuration"`
}

type escrowCreateParams struct {
	Seller string            `json:"seller"`
	ID     uint64            `json:"id"`
	Terms  escrowTermsParams `json:"terms"`
}

type escrowFundParams struct {
	Buyer           string `json:"buyer"`
	Address         string `json:"address"`
	TokenMint       string `json:"tokenMint"`
	TermsUpdateSlot uint64 `json:"termsUpdateSlot"`
}

type escrowActorParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type escrowAddressParams struct {
	Address string `json:"address"`
}

type escrowDeriveParams struct {
	Seller string `json:"seller"`
	ID     uint64 `json:"id"`
}

type escrowEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

type tokenBalanceParams struct {
	TokenMint string `json:"tokenMint"`
	Holder    string `json:"holder"`
}

type escrowJSON struct {
	Address              string  `json:"address"`
	ID                   uint64  `json:"id"`
	Version              uint8   `json:"version"`
	State                string  `json:"state"`
	Seller               string  `json:"seller"`
	Buyer                string  `json:"buyer"`
	Arbiter              string  `json:"arbiter"`
	TokenMint            string  `json:"tokenMint"`
	Amount               string  `json:"amount"`
	AutoCompleteDuration int64   `json:"autoCompleteDuration"`
	TermsUpdateSlot      uint64  `json:"termsUpdateSlot"`
	MarkedShippedAt      *int64  `json:"markedShippedAt,omitempty"`
	Bump                 uint8   `json:"bump"`
	VaultAddress         *string `json:"vaultAddress,omitempty"`
	VaultBalance         *string `json:"vaultBalance,omitempty"`
}

type escrowDeriveResult struct {
	Address      string `json:"address"`
	Bump         uint8  `json:"bump"`
	VaultAddress string `json:"vaultAddress,omitempty"`
}

type escrowEventResult struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func parsePartyAddress(raw, field string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, errParam(field, err)
	}
	if decoded.Prefix() != crypto.ListPrefix {
		return out, errParamMsg(field, "expected lst address")
	}
	return decoded.Fixed(), nil
}

func parseMintAddress(raw, field string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		// Accept registered token symbols as a convenience for CLI callers.
		if isTokenSymbol(trimmed) {
			return state.MintAddress(trimmed), nil
		}
		return out, errParam(field, err)
	}
	if decoded.Prefix() != crypto.MintPrefix {
		return out, errParamMsg(field, "expected lstm address or token symbol")
	}
	return decoded.Fixed(), nil
}

// isTokenSymbol reports whether raw looks like a short registry symbol rather
// than a bech32 address.
func isTokenSymbol(raw string) bool {
	if raw == "" || len(raw) > 12 {
		return false
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

type paramError struct {
	field string
	msg   string
}

func (e *paramError) Error() string { return e.field + ": " + e.msg }

func errParam(field string, err error) error { return &paramError{field: field, msg: err.Error()} }

func errParamMsg(field, msg string) error { return &paramError{field: field, msg: msg} }

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errParamMsg("amount", "required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errParamMsg("amount", "must be a base-10 integer")
	}
	return amount, nil
}

func parseTerms(p escrowTermsParams) (escrow.Terms, error) {
	var terms escrow.Terms
	buyer, err := parsePartyAddress(p.Buyer, "buyer")
	if err != nil {
		return terms, err
	}
	arbiter, err := parsePartyAddress(p.Arbiter, "arbiter")
	if err != nil {
		return terms, err
	}
	mint, err := parseMintAddress(p.TokenMint, "tokenMint")
	if err != nil {
		return terms, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return terms, err
	}
	terms.Buyer = buyer
	terms.Arbiter = arbiter
	terms.TokenMint = mint
	terms.Amount = amount
	terms.AutoCompleteDuration = p.AutoCompleteDuration
	return terms, nil
}

// writeEscrowError maps the engine's error taxonomy onto JSON-RPC codes,
// always surfacing the stable identifier in the data field so callers can
// translate without string-matching messages.
func writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	identifier := escrow.Identifier(err)
	status := http.StatusInternalServerError
	code := codeEscrowInternal
	switch {
	case errors.Is(err, escrow.ErrEscrowNotFound):
		status, code = http.StatusNotFound, codeEscrowNotFound
	case errors.Is(err, escrow.ErrInvalidBuyer), errors.Is(err, escrow.ErrInvalidSeller):
		status, code = http.StatusForbidden, codeEscrowForbidden
	case errors.Is(err, escrow.ErrInvalidEscrowState),
		errors.Is(err, escrow.ErrEscrowNotShipped),
		errors.Is(err, escrow.ErrTermsChanged),
		errors.Is(err, escrow.ErrWithdrawTooEarly),
		errors.Is(err, escrow.ErrInsufficientFunds),
		errors.Is(err, escrow.ErrInvalidVaultBalance),
		errors.Is(err, escrow.ErrEscrowExists):
		status, code = http.StatusConflict, codeEscrowConflict
	case identifier != "":
		status, code = http.StatusBadRequest, codeEscrowInvalidParams
	}
	var data interface{}
	if identifier != "" {
		data = identifier
	}
	writeError(w, status, id, code, err.Error(), data)
}

func writeParamError(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusBadRequest, id, codeEscrowInvalidParams, err.Error(), nil)
}

func (s *Server) formatRecord(record *escrow.Record) *escrowJSON {
	if record == nil {
		return nil
	}
	amount := "0"
	if record.Amount != nil {
		amount = record.Amount.String()
	}
	out := &escrowJSON{
		Address:              crypto.NewAddress(crypto.ListPrefix, record.Address[:]).String(),
		ID:                   record.ID,
		Version:              record.Version,
		State:                record.State.String(),
		Seller:               crypto.NewAddress(crypto.ListPrefix, record.Seller[:]).String(),
		Buyer:                crypto.NewAddress(crypto.ListPrefix, record.Buyer[:]).String(),
		Arbiter:              crypto.NewAddress(crypto.ListPrefix, record.Arbiter[:]).String(),
		TokenMint:            crypto.NewAddress(crypto.MintPrefix, record.TokenMint[:]).String(),
		Amount:               amount,
		AutoCompleteDuration: record.AutoCompleteDuration,
		TermsUpdateSlot:      record.TermsUpdateSlot,
		Bump:                 record.Bump,
	}
	if record.MarkedShippedAt != 0 {
		shippedAt := record.MarkedShippedAt
		out.MarkedShippedAt = &shippedAt
	}
	if record.State == escrow.StateFunded || record.State == escrow.StateMarkedAsShipped || record.State == escrow.StateBuyerConfirmed {
		if vaultAddr, _, err := escrow.DeriveVaultAddress(record.Address, record.TokenMint); err == nil {
			formatted := crypto.NewAddress(crypto.ListPrefix, vaultAddr[:]).String()
			out.VaultAddress = &formatted
			if balance, err := s.node.EscrowVaultBalance(record.Address); err == nil {
				balanceStr := balance.String()
				out.VaultBalance = &balanceStr
			}
		}
	}
	return out
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowCreateParams
	if err := singleParam(req, &params); err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	seller, err := parsePartyAddress(params.Seller, "seller")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	terms, err := parseTerms(params.Terms)
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	record, err := s.node.EscrowCreate(seller, params.ID, terms)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, s.formatRecord(record))
}

func (s *Server) handleEscrowUpdateTerms(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowCreateParams
	if err := singleParam(req, &params); err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	seller, err := parsePartyAddress(params.Seller, "seller")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	terms, err := parseTerms(params.Terms)
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	record, err := s.node.EscrowUpdateTerms(seller, params.ID, terms)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, s.formatRecord(record))
}

func (s *Server) handleEscrowFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowFundParams
	if err := singleParam(req, &params); err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	buyer, err := parsePartyAddress(params.Buyer, "buyer")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	addr, err := parsePartyAddress(params.Address, "address")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	mint, err := parseMintAddress(params.TokenMint, "tokenMint")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	if err := s.node.EscrowFund(buyer, addr, mint, params.TermsUpdateSlot); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeRecordResult(w, req.ID, addr)
}

func (s *Server) handleEscrowMarkShipped(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleEscrowTransition(w, req, s.node.EscrowMarkShipped)
}

func (s *Server) handleEscrowBuyerConfirm(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleEscrowTransition(w, req, s.node.EscrowBuyerConfirm)
}

func (s *Server) handleEscrowWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleEscrowTransition(w, req, s.node.EscrowWithdraw)
}

func (s *Server) handleEscrowCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleEscrowTransition(w, req, s.node.EscrowCancel)
}

func (s *Server) handleEscrowTransition(w http.ResponseWriter, req *RPCRequest, fn func([20]byte, [20]byte) error) {
	var params escrowActorParams
	if err := singleParam(req, &params); err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	caller, err := parsePartyAddress(params.Caller, "caller")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	addr, err := parsePartyAddress(params.Address, "address")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	if err := fn(caller, addr); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeRecordResult(w, req.ID, addr)
}

func (s *Server) writeRecordResult(w http.ResponseWriter, id interface{}, addr [20]byte) {
	record, err := s.node.EscrowGet(addr)
	if err != nil {
		writeEscrowError(w, id, err)
		return
	}
	writeResult(w, id, s.formatRecord(record))
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowAddressParams
	if err := singleParam(req, &params); err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	addr, err := parsePartyAddress(params.Address, "address")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	s.writeRecordResult(w, req.ID, addr)
}

func (s *Server) handleEscrowDerive(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowDeriveParams
	if err := singleParam(req, &params); err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	seller, err := parsePartyAddress(params.Seller, "seller")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	addr, bump, err := escrow.DeriveRecordAddress(seller, params.ID)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	result := escrowDeriveResult{
		Address: crypto.NewAddress(crypto.ListPrefix, addr[:]).String(),
		Bump:    bump,
	}
	if record, getErr := s.node.EscrowGet(addr); getErr == nil {
		if vaultAddr, _, deriveErr := escrow.DeriveVaultAddress(addr, record.TokenMint); deriveErr == nil {
			result.VaultAddress = crypto.NewAddress(crypto.ListPrefix, vaultAddr[:]).String()
		}
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleEscrowEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowEventsParams
	if len(req.Params) > 0 {
		if err := singleParam(req, &params); err != nil {
			writeParamError(w, req.ID, err)
			return
		}
	}
	prefix := "escrow."
	if trimmed := strings.TrimSpace(params.Prefix); trimmed != "" {
		prefix = trimmed
	}
	normalizedPrefix := strings.ToLower(prefix)
	events := s.node.Events()
	results := make([]escrowEventResult, 0, len(events))
	for _, evt := range events {
		if !strings.HasPrefix(strings.ToLower(evt.Event.Type), normalizedPrefix) {
			continue
		}
		attrs := make(map[string]string, len(evt.Event.Attributes))
		for k, v := range evt.Event.Attributes {
			attrs[k] = v
		}
		results = append(results, escrowEventResult{
			Sequence:   evt.Sequence,
			Type:       evt.Event.Type,
			Attributes: attrs,
		})
	}
	if params.Limit != nil {
		limit := *params.Limit
		if limit < 0 {
			limit = 0
		}
		if limit < len(results) {
			results = results[:limit]
		}
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if err := singleParam(req, &params); err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	mint, err := parseMintAddress(params.TokenMint, "tokenMint")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	holder, err := parsePartyAddress(params.Holder, "holder")
	if err != nil {
		writeParamError(w, req.ID, err)
		return
	}
	balance, err := s.node.TokenBalance(mint, holder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeEscrowInternal, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}
