package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress == "" || cfg.DataDir == "" {
		t.Fatalf("default config incomplete: %+v", cfg)
	}
	if cfg.NetworkName != "listchain-local" {
		t.Fatalf("unexpected network name %q", cfg.NetworkName)
	}
	if len(cfg.Tokens) == 0 {
		t.Fatal("default config should declare a token")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := os.Stat(cfg.OperatorKeyPath); err != nil {
		t.Fatalf("operator key not written: %v", err)
	}

	// A second load must reuse the persisted file and key.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.OperatorKeyPath != cfg.OperatorKeyPath {
		t.Fatalf("operator key path changed across loads: %q vs %q", again.OperatorKeyPath, cfg.OperatorKeyPath)
	}
}

func TestLoadRejectsInconsistentGenesis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
RPCAddress = ":8080"
DataDir = "./data"

[[Tokens]]
Symbol = "USDL"
Name = "Listchain Dollar"
Decimals = 6

[[Allocations]]
Token = "MISSING"
Address = "lst1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"
Amount = "100"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected undeclared allocation token to be rejected")
	}
}

func TestValidateAllocationAmounts(t *testing.T) {
	cfg := &Config{
		Tokens: []TokenConfig{{Symbol: "USDL", Name: "Listchain Dollar", Decimals: 6}},
		Allocations: []AllocationConfig{{
			Token:   "USDL",
			Address: "not-bech32",
			Amount:  "100",
		}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected malformed address to be rejected")
	}
}
