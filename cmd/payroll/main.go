/*
main.go - Application entry point

PURPOSE:
  The payroll command line. Runs the HTTP server with its weekly scheduler,
  or performs single payroll operations against the same database.

COMMANDS:
  serve             HTTP API (and the weekly scheduler when enabled)
  run               Weekly payroll for the week containing --as-of
  process-bonuses   Attach earned bonuses to the week's open periods
  export            Write a week's periods to an xlsx file
  placement         Show (or --mark-placed) a contractor's placement progress
  import-shifts     Load a JSON shift feed file

CONFIGURATION:
  --config path.yaml, PAYROLL_* environment variables and a .env file.
  --db overrides db.path. See config/config.go.

EXAMPLES:
  payroll import-shifts shifts.json
  payroll run --as-of 2025-03-14
  payroll export --week 2025-03-10 --out march10.xlsx
  payroll serve --config ./config/config.yaml

SEE ALSO:
  - commands.go: Subcommands
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	dbPath     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "payroll",
		Short: "Weekly contractor payroll, bonuses and placement tracking",
		Long: `payroll turns completed contractor shifts into weekly pay periods,
awards assignment milestone bonuses and tracks placement eligibility.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides db.path)")

	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(runCmd(flags))
	rootCmd.AddCommand(processBonusesCmd(flags))
	rootCmd.AddCommand(exportCmd(flags))
	rootCmd.AddCommand(placementCmd(flags))
	rootCmd.AddCommand(importShiftsCmd(flags))

	return rootCmd
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app is everything a command needs, built from config.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *sqlite.Store
	orch   *payroll.Orchestrator
}

func openApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.dbPath != "" {
		cfg.Database.Path = flags.dbPath
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	calc, err := cfg.EarningsCalculator()
	if err != nil {
		return nil, fmt.Errorf("rates: %w", err)
	}

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	orch := payroll.NewOrchestrator(
		store,
		calc,
		payroll.NewBonusEngine(cfg.BonusRule()),
		payroll.NewPlacementTracker(cfg.EligibilityCriteria(), store),
		payroll.Options{Workers: cfg.Payroll.Workers, Logger: log},
	)
	if err := orch.LoadState(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: log, store: store, orch: orch}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	a.store.Close()
}
