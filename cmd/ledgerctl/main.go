// Command ledgerctl inspects a stored vote ledger without starting the server.
//
//	ledgerctl [chain|results|verify|status] [server flags]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pterm/pterm"
	"vote-ledger/config"
)

const usage = "usage: ledgerctl [chain|results|verify|status] [-storage dir] [-store json|mongo] [-difficulty n]"

func main() {
	handler := pterm.NewSlogHandler(&pterm.DefaultLogger)
	logger := slog.New(handler)

	if len(os.Args) < 2 {
		pterm.Println(usage)
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.Load(os.Args[2:], os.Getenv)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	if err := run(ctx, command, cfg, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, logger *slog.Logger) error {
	start := time.Now()
	state, err := loadState(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Debug("loaded ledger", "blocks", len(state.Chain), "voters", len(state.Voters), "took", time.Since(start))

	switch command {
	case "chain":
		return pterm.DefaultTable.WithHasHeader().WithData(chainTable(state.Chain)).Render()
	case "results":
		return pterm.DefaultTable.WithHasHeader().WithData(resultsTable(state.Chain)).Render()
	case "verify":
		report := verify(state, cfg.Difficulty)
		if report.Err != nil {
			pterm.Error.Printfln("chain invalid: %v", report.Err)
			return report.Err
		}
		pterm.Success.Printfln("chain of %d blocks is valid at difficulty %d", report.Blocks, cfg.Difficulty)
		return nil
	case "status":
		report := verify(state, cfg.Difficulty)
		return pterm.DefaultTable.WithData(statusTable(report)).Render()
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}
