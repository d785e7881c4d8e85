package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var escrowRPCCall = callRPC

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}

	switch args[0] {
	case "create":
		return runEscrowCreate(args[1:], stdout, stderr)
	case "update-terms":
		return runEscrowUpdateTerms(args[1:], stdout, stderr)
	case "fund":
		return runEscrowFund(args[1:], stdout, stderr)
	case "mark-shipped":
		return runEscrowActor("escrow_markShipped", "escrow mark-shipped", args[1:], stdout, stderr)
	case "confirm":
		return runEscrowActor("escrow_buyerConfirm", "escrow confirm", args[1:], stdout, stderr)
	case "withdraw":
		return runEscrowActor("escrow_withdraw", "escrow withdraw", args[1:], stdout, stderr)
	case "cancel":
		return runEscrowActor("escrow_cancel", "escrow cancel", args[1:], stdout, stderr)
	case "get":
		return runEscrowGet(args[1:], stdout, stderr)
	case "derive":
		return runEscrowDerive(args[1:], stdout, stderr)
	case "events":
		return runEscrowEvents(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
}

type escrowTermsFlags struct {
	buyer    string
	arbiter  string
	token    string
	amount   string
	duration string
}

func (f *escrowTermsFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.buyer, "buyer", "", "buyer bech32 address")
	fs.StringVar(&f.arbiter, "arbiter", "", "arbiter bech32 address")
	fs.StringVar(&f.token, "token", "", "token mint address or registered symbol")
	fs.StringVar(&f.amount, "amount", "", "escrow amount in the token's smallest unit")
	fs.StringVar(&f.duration, "duration", "0", "auto-complete duration in seconds")
}

func (f *escrowTermsFlags) build(stderr io.Writer) (map[string]interface{}, int) {
	if f.buyer == "" {
		return nil, printEscrowError(stderr, "--buyer is required")
	}
	if f.arbiter == "" {
		return nil, printEscrowError(stderr, "--arbiter is required")
	}
	if f.token == "" {
		return nil, printEscrowError(stderr, "--token is required")
	}
	if f.amount == "" {
		return nil, printEscrowError(stderr, "--amount is required")
	}
	duration, err := strconv.ParseInt(f.duration, 10, 64)
	if err != nil || duration < 0 {
		return nil, printEscrowError(stderr, "--duration must be a non-negative integer")
	}
	return map[string]interface{}{
		"buyer":                f.buyer,
		"arbiter":              f.arbiter,
		"tokenMint":            f.token,
		"amount":               f.amount,
		"autoCompleteDuration": duration,
	}, 0
}

func runEscrowCreate(args []string, stdout, stderr io.Writer) int {
	return runEscrowTermsCall("escrow_create", "escrow create", args, stdout, stderr)
}

func runEscrowUpdateTerms(args []string, stdout, stderr io.Writer) int {
	return runEscrowTermsCall("escrow_updateTerms", "escrow update-terms", args, stdout, stderr)
}

func runEscrowTermsCall(method, name string, args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet(name, stderr)
	var (
		seller string
		idStr  string
		terms  escrowTermsFlags
	)
	fs.StringVar(&seller, "seller", "", "seller bech32 address")
	fs.StringVar(&idStr, "id", "", "seller-scoped escrow identifier")
	terms.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if seller == "" {
		return printEscrowError(stderr, "--seller is required")
	}
	if idStr == "" {
		return printEscrowError(stderr, "--id is required")
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return printEscrowError(stderr, "--id must be an unsigned integer")
	}
	termsParams, code := terms.build(stderr)
	if code != 0 {
		return code
	}
	params := map[string]interface{}{
		"seller": seller,
		"id":     id,
		"terms":  termsParams,
	}
	return dispatchEscrow(method, params, true, stdout, stderr)
}

func runEscrowFund(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow fund", stderr)
	var (
		buyer   string
		address string
		token   string
		slotStr string
	)
	fs.StringVar(&buyer, "buyer", "", "buyer bech32 address")
	fs.StringVar(&address, "address", "", "escrow record address")
	fs.StringVar(&token, "token", "", "token mint address or registered symbol")
	fs.StringVar(&slotStr, "terms-slot", "", "terms slot observed when reviewing the record")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if buyer == "" {
		return printEscrowError(stderr, "--buyer is required")
	}
	if address == "" {
		return printEscrowError(stderr, "--address is required")
	}
	if token == "" {
		return printEscrowError(stderr, "--token is required")
	}
	if slotStr == "" {
		return printEscrowError(stderr, "--terms-slot is required")
	}
	slot, err := strconv.ParseUint(slotStr, 10, 64)
	if err != nil {
		return printEscrowError(stderr, "--terms-slot must be an unsigned integer")
	}
	params := map[string]interface{}{
		"buyer":           buyer,
		"address":         address,
		"tokenMint":       token,
		"termsUpdateSlot": slot,
	}
	return dispatchEscrow("escrow_fund", params, true, stdout, stderr)
}

func runEscrowActor(method, name string, args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet(name, stderr)
	var (
		caller  string
		address string
	)
	fs.StringVar(&caller, "caller", "", "signing party bech32 address")
	fs.StringVar(&address, "address", "", "escrow record address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if caller == "" {
		return printEscrowError(stderr, "--caller is required")
	}
	if address == "" {
		return printEscrowError(stderr, "--address is required")
	}
	params := map[string]interface{}{
		"caller":  caller,
		"address": address,
	}
	return dispatchEscrow(method, params, true, stdout, stderr)
}

func runEscrowGet(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow get", stderr)
	var address string
	fs.StringVar(&address, "address", "", "escrow record address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printEscrowError(stderr, "--address is required")
	}
	return dispatchEscrow("escrow_get", map[string]interface{}{"address": address}, false, stdout, stderr)
}

func runEscrowDerive(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow derive", stderr)
	var (
		seller string
		idStr  string
	)
	fs.StringVar(&seller, "seller", "", "seller bech32 address")
	fs.StringVar(&idStr, "id", "", "seller-scoped escrow identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if seller == "" {
		return printEscrowError(stderr, "--seller is required")
	}
	if idStr == "" {
		return printEscrowError(stderr, "--id is required")
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return printEscrowError(stderr, "--id must be an unsigned integer")
	}
	params := map[string]interface{}{
		"seller": seller,
		"id":     id,
	}
	return dispatchEscrow("escrow_derive", params, false, stdout, stderr)
}

func runEscrowEvents(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow events", stderr)
	var (
		prefix   string
		limitStr string
	)
	fs.StringVar(&prefix, "prefix", "", "event type prefix filter")
	fs.StringVar(&limitStr, "limit", "", "maximum number of events to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	params := map[string]interface{}{}
	if strings.TrimSpace(prefix) != "" {
		params["prefix"] = prefix
	}
	if limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return printEscrowError(stderr, "--limit must be a non-negative integer")
		}
		params["limit"] = limit
	}
	return dispatchEscrow("escrow_events", params, false, stdout, stderr)
}

func dispatchEscrow(method string, params interface{}, requireAuth bool, stdout, stderr io.Writer) int {
	result, rpcErr, err := escrowRPCCall(method, params, requireAuth)
	if err != nil {
		return printEscrowError(stderr, err.Error())
	}
	if rpcErr != nil {
		msg := fmt.Sprintf("RPC error %d: %s", rpcErr.Code, rpcErr.Message)
		if len(rpcErr.Data) > 0 {
			msg += fmt.Sprintf(" (%s)", strings.Trim(string(rpcErr.Data), "\""))
		}
		fmt.Fprintln(stderr, msg)
		return 1
	}
	var pretty interface{}
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Fprintln(stdout, string(result))
		return 0
	}
	rendered, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Fprintln(stdout, string(result))
		return 0
	}
	fmt.Fprintln(stdout, string(rendered))
	return 0
}

func newEscrowFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, escrowUsage())
	}
	return fs
}

func printEscrowError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func escrowUsage() string {
	return strings.TrimSpace(`Usage:
  list-cli escrow <command> [flags]

Commands:
  create       Create a new escrow record
  update-terms Replace the terms of an unfunded record
  fund         Commit the buyer's funds into the custody vault
  mark-shipped Record shipment by the seller
  confirm      Record the buyer's acceptance
  withdraw     Release the vault balance to the seller
  cancel       Retire an unfunded record
  get          Fetch an escrow record by address
  derive       Derive the record address for a seller and id
  events       List recent escrow events
`)
}
