// Command finance-repair recomputes stored category and project totals from
// the ledger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"insaat-backend/internal/cache"
	"insaat-backend/internal/config"
	"insaat-backend/internal/database"
	"insaat-backend/internal/finance"
	"insaat-backend/internal/logging"

	"github.com/spf13/cobra"
)

type options struct {
	workers int
	json    bool
}

type report struct {
	Categories *finance.RepairResult `json:"categories,omitempty"`
	Projects   *finance.RepairResult `json:"projects,omitempty"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "finance-repair",
		Short:        "Recompute spent and allocated totals from the ledger",
		SilenceUsage: true,
	}
	root.PersistentFlags().IntVar(&opts.workers, "workers", 0, "concurrent project recomputes (default REPAIR_WORKERS)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print the result as JSON")

	root.AddCommand(
		&cobra.Command{
			Use:   "categories",
			Short: "Recompute every category's spent amount",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, opts, true, false)
			},
		},
		&cobra.Command{
			Use:   "projects",
			Short: "Recompute every project's spent and allocated amounts, status and alerts",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, opts, false, true)
			},
		},
		&cobra.Command{
			Use:   "all",
			Short: "Recompute categories, then projects",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, opts, true, true)
			},
		},
	)
	return root
}

func run(cmd *cobra.Command, opts *options, categories, projects bool) error {
	cfg := config.Load()
	if opts.workers > 0 {
		cfg.RepairWorkers = opts.workers
	}
	if cfg.RepairWorkers < 1 {
		return fmt.Errorf("workers must be positive, got %d", cfg.RepairWorkers)
	}

	logger := logging.New(logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Component: logging.ComponentRepair,
		Output:    os.Stderr,
	})

	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcOpts := []finance.Option{
		finance.WithLogger(logger),
		finance.WithRepairWorkers(cfg.RepairWorkers),
	}
	// summaries cached by a running server are invalidated as well
	if rdb := cache.Connect(ctx, cfg.RedisAddr); rdb != nil {
		defer rdb.Close()
		svcOpts = append(svcOpts, finance.WithSummaryCache(cache.NewSummaryCache(rdb, cfg.SummaryCacheTTL)))
	}
	svc := finance.NewService(db, svcOpts...)

	rep := repair(ctx, svc, categories, projects)
	if err := printReport(cmd.OutOrStdout(), opts.json, rep); err != nil {
		return err
	}
	if n := rep.failed(); n > 0 {
		return fmt.Errorf("%d items could not be recomputed", n)
	}
	return nil
}

func repair(ctx context.Context, svc *finance.Service, categories, projects bool) report {
	var rep report
	if categories {
		res := svc.RecalculateAllCategories(ctx)
		rep.Categories = &res
	}
	if projects {
		res := svc.RecalculateAllProjects(ctx)
		rep.Projects = &res
	}
	return rep
}

func (r report) failed() int {
	n := 0
	if r.Categories != nil {
		n += len(r.Categories.Errors)
	}
	if r.Projects != nil {
		n += len(r.Projects.Errors)
	}
	return n
}

func printReport(out io.Writer, asJSON bool, rep report) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	for _, part := range []struct {
		name string
		res  *finance.RepairResult
	}{{"categories", rep.Categories}, {"projects", rep.Projects}} {
		if part.res == nil {
			continue
		}
		fmt.Fprintf(out, "%s: %d fixed, %d errors\n", part.name, part.res.Fixed, len(part.res.Errors))
		for _, e := range part.res.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}
	return nil
}
