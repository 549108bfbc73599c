package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/report"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
	dim      = color.New(color.Faint)
)

// =============================================================================
// SERVE
// =============================================================================

func serveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := api.NewHandler(a.store, a.orch, a.logger)
			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:      api.NewRouter(handler, a.cfg.Server.CORS.AllowOrigins),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			var scheduler *api.PayrollScheduler
			if a.cfg.Scheduler.Enabled {
				scheduler = api.NewPayrollScheduler(a.orch, a.logger)
				scheduler.CheckInterval = a.cfg.Scheduler.Interval
				scheduler.Start()
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server starting", zap.Int("port", a.cfg.Server.Port))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			a.logger.Info("shutting down")
			if scheduler != nil {
				scheduler.Stop()
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
}

// =============================================================================
// RUN / PROCESS-BONUSES
// =============================================================================

func runCmd(flags *rootFlags) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run weekly payroll for the week containing --as-of",
		Long: `Run weekly payroll for the ISO week (Monday to Sunday) containing --as-of.

Rerunning a week is safe: contractors that already have a period for the
week are reported as existing and nothing is recomputed.

Examples:
  payroll run                      # week containing today
  payroll run --as-of 2025-03-14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.orch.ProcessWeeklyPayroll(cmd.Context(), date)
			if err != nil {
				return err
			}
			printRunResult(cmd.OutOrStdout(), result)
			if n := len(result.Failed()); n > 0 {
				return fmt.Errorf("%d contractor(s) failed", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "date inside the week to run (YYYY-MM-DD, default today)")
	return cmd
}

func printRunResult(w io.Writer, result payroll.RunResult) {
	fmt.Fprintf(w, "Week %s\n\n", result.Week)

	ids := make([]string, 0, len(result.Results))
	for c := range result.Results {
		ids = append(ids, string(c))
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := result.Results[payroll.ContractorID(id)]
		if res.Err != nil {
			fmt.Fprintf(w, "%s %-20s %s\n", failMark, id, color.RedString("%s: %v", res.Stage, res.Err))
			continue
		}
		note := ""
		if res.Existing {
			note = dim.Sprint(" (existing)")
		}
		fmt.Fprintf(w, "%s %-20s %10s  bonuses %d%s\n", okMark, id, res.Period.Total, len(res.Period.Bonuses), note)
	}
	for _, err := range result.Rejected {
		fmt.Fprintf(w, "%s %-20s %s\n", failMark, "(rejected)", color.RedString("%v", err))
	}
}

func processBonusesCmd(flags *rootFlags) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "process-bonuses",
		Short: "Attach earned bonuses to the week's open pay periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.orch.ProcessBonuses(cmd.Context(), date)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Week %s\n\n", result.Week)
			for _, b := range result.Processed {
				fmt.Fprintf(w, "%s %-20s %10s  period %s\n", okMark, b.ContractorID, b.Amount, b.PeriodID)
			}
			for c, err := range result.Failures {
				fmt.Fprintf(w, "%s %-20s %s\n", failMark, c, color.RedString("%v", err))
			}
			if len(result.Processed) == 0 && len(result.Failures) == 0 {
				dim.Fprintln(w, "No earned bonuses.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "date inside the week (YYYY-MM-DD, default today)")
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func exportCmd(flags *rootFlags) *cobra.Command {
	var week, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a week's pay periods to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseAsOf(week)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			period := generic.WeekOf(date)
			periods, err := a.store.ListPeriods(cmd.Context(), payroll.PeriodFilter{WeekStart: &period.Start})
			if err != nil {
				return err
			}
			if out == "" {
				out = report.Filename(period)
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := report.WritePeriods(f, periods); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %d period(s) to %s\n", okMark, len(periods), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any date in the week (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default payroll_<week start>.xlsx)")
	return cmd
}

// =============================================================================
// PLACEMENT
// =============================================================================

func placementCmd(flags *rootFlags) *cobra.Command {
	var (
		markPlaced bool
		asOf       string
	)

	cmd := &cobra.Command{
		Use:   "placement <contractor-id>",
		Short: "Show a contractor's placement progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			c := payroll.ContractorID(args[0])
			progress := a.orch.Progress(c)
			if markPlaced {
				progress, err = a.orch.MarkPlaced(cmd.Context(), c, date)
				if err != nil {
					return err
				}
			}

			criteria := a.cfg.EligibilityCriteria()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Contractor    %s\n", c)
			fmt.Fprintf(w, "Status        %s\n", statusColor(progress.Status).Sprint(progress.Status))
			fmt.Fprintf(w, "Assignments   %d / %d\n", progress.TotalAssignments, criteria.MinAssignments)
			fmt.Fprintf(w, "Institutions  %d / %d %s\n", len(progress.UniqueInstitutions), criteria.MinInstitutions,
				dim.Sprint(progress.Institutions()))
			fmt.Fprintf(w, "Bonus counter %d / %d\n", a.orch.BonusCounter(c), a.cfg.Bonus.Threshold)
			return nil
		},
	}
	cmd.Flags().BoolVar(&markPlaced, "mark-placed", false, "record a placement (contractor must be in consideration)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "placement date (YYYY-MM-DD, default today)")
	return cmd
}

func statusColor(s payroll.PlacementStatus) *color.Color {
	switch s {
	case payroll.PlacementPlaced:
		return color.New(color.FgHiGreen)
	case payroll.PlacementInConsideration:
		return color.New(color.FgYellow)
	}
	return color.New(color.FgHiBlue)
}

// =============================================================================
// IMPORT-SHIFTS
// =============================================================================

func importShiftsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import-shifts <file.json>",
		Short: "Load a shift feed file",
		Long: `Load shifts from a JSON file shaped like the POST /api/shifts body:

  {"shifts": [{"id": "s-1", "contractor_id": "c1", "role": "Substitute Teacher",
               "date": "2025-03-10", "hours": "8", "status": "completed",
               "institution": "Lincoln Elementary"}]}

Invalid shifts are reported and skipped; the rest are saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var req api.ImportShiftsRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			saved, rejected := 0, 0
			for _, dto := range req.Shifts {
				s, err := dto.ToShift()
				if err == nil {
					err = a.store.SaveShift(cmd.Context(), s)
				}
				if err != nil {
					if !generic.IsClientError(err) {
						return err
					}
					rejected++
					fmt.Fprintf(w, "%s %-12s %s\n", failMark, dto.ID, color.RedString("%v", err))
					continue
				}
				saved++
			}
			fmt.Fprintf(w, "%s saved %d shift(s), rejected %d\n", okMark, saved, rejected)
			return nil
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func parseAsOf(s string) (generic.TimePoint, error) {
	if s == "" {
		return generic.Today(), nil
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}
