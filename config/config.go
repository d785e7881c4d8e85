package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"listchain/crypto"

	"github.com/BurntSushi/toml"
)

// TokenConfig declares a fungible token registered at genesis.
type TokenConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// AllocationConfig seeds a holder balance at genesis. Amount is a base-10
// integer in the token's smallest unit.
type AllocationConfig struct {
	Token   string `toml:"Token"`
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	RPCAddress      string             `toml:"RPCAddress"`
	MetricsAddress  string             `toml:"MetricsAddress"`
	DataDir         string             `toml:"DataDir"`
	NetworkName     string             `toml:"NetworkName"`
	OperatorKeyPath string             `toml:"OperatorKeyPath"`
	Tokens          []TokenConfig      `toml:"Tokens"`
	Allocations     []AllocationConfig `toml:"Allocations"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "listchain-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./listchain-data"
	}
	if cfg.Tokens == nil {
		cfg.Tokens = []TokenConfig{}
	}
	if cfg.Allocations == nil {
		cfg.Allocations = []AllocationConfig{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ensureOperatorKey(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the genesis declarations for internal consistency before
// any state is written.
func (c *Config) Validate() error {
	symbols := make(map[string]bool, len(c.Tokens))
	for _, token := range c.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: token symbol required")
		}
		if symbols[symbol] {
			return fmt.Errorf("config: duplicate token symbol %s", symbol)
		}
		symbols[symbol] = true
	}
	for i, alloc := range c.Allocations {
		symbol := strings.ToUpper(strings.TrimSpace(alloc.Token))
		if !symbols[symbol] {
			return fmt.Errorf("config: allocation %d references undeclared token %s", i, alloc.Token)
		}
		if _, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address)); err != nil {
			return fmt.Errorf("config: allocation %d address: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok || amount.Sign() < 0 {
			return fmt.Errorf("config: allocation %d amount must be a non-negative base-10 integer", i)
		}
	}
	return nil
}

func ensureOperatorKey(configPath string, cfg *Config) error {
	keyPath := cfg.OperatorKeyPath
	if keyPath == "" {
		keyPath = defaultKeyPath(configPath)
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveKeyFile(keyPath, key); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeyPath != keyPath {
		cfg.OperatorKeyPath = keyPath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keyPath := defaultKeyPath(path)
	if err := crypto.SaveKeyFile(keyPath, key); err != nil {
		return nil, err
	}

	operator := key.PubKey().Address().String()
	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: "",
		DataDir:        "./listchain-data",
		NetworkName:    "listchain-local",
		Tokens: []TokenConfig{
			{Symbol: "USDL", Name: "Listchain Dollar", Decimals: 6},
		},
		Allocations: []AllocationConfig{
			{Token: "USDL", Address: operator, Amount: "1000000000000"},
		},
	}
	cfg.OperatorKeyPath = keyPath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeyPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.key")
}
