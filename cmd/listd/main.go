package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"listchain/config"
	"listchain/core"
	"listchain/core/state"
	"listchain/crypto"
	"listchain/observability/logging"
	"listchain/rpc"
	"listchain/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LISTCHAIN_ENV"))
	logger := logging.Setup("listd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node := core.NewNode(db)

	if err := seedGenesis(node, cfg, logger); err != nil {
		logger.Error("Failed to seed genesis state", slog.Any("error", err))
		os.Exit(1)
	}

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("serving metrics", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	logger.Info("starting ledger node",
		"network", cfg.NetworkName,
		"dataDir", cfg.DataDir,
	)

	server := rpc.NewServer(node)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// seedGenesis registers the configured tokens and credits the declared
// allocations, but only on a fresh database. A ledger that has already
// processed a mutation keeps its existing registry untouched.
func seedGenesis(node *core.Node, cfg *config.Config, logger *slog.Logger) error {
	slot, err := node.LedgerSlot()
	if err != nil {
		return err
	}
	if slot != 0 {
		logger.Info("existing ledger state found, skipping genesis", "slot", slot)
		return nil
	}

	for _, token := range cfg.Tokens {
		meta, err := node.TokenRegister(token.Symbol, token.Name, token.Decimals)
		if err != nil {
			return fmt.Errorf("register token %s: %w", token.Symbol, err)
		}
		logger.Info("registered token",
			"symbol", meta.Symbol,
			"mint", crypto.NewAddress(crypto.MintPrefix, meta.Address[:]).String(),
		)
	}

	for _, alloc := range cfg.Allocations {
		holder, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return fmt.Errorf("allocation address %s: %w", alloc.Address, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok {
			return fmt.Errorf("allocation amount %q is not a base-10 integer", alloc.Amount)
		}
		mint := state.MintAddress(alloc.Token)
		if err := node.TokenCredit(mint, holder.Fixed(), amount); err != nil {
			return fmt.Errorf("credit %s to %s: %w", alloc.Amount, alloc.Address, err)
		}
		logger.Info("seeded allocation",
			"token", strings.ToUpper(strings.TrimSpace(alloc.Token)),
			"address", alloc.Address,
			"amount", amount.String(),
		)
	}

	return nil
}
