package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/burrow/internal/catalog"
	"github.com/dyluth/burrow/internal/events"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/resolver"
	"github.com/dyluth/burrow/internal/timespec"
	"github.com/dyluth/burrow/internal/watch"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	historyOutputFormat string
	historyLimit        int
	historySince        string
	historyUntil        string
	historyStatus       string
	historyWatch        bool
	historyWait         time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "Inspect runs recorded in the Redis ledger",
	Long: `Inspect pipeline runs recorded in the Redis run ledger.

List Mode (no RUN_ID):
  Shows recent runs, newest first, as a table or JSONL stream.

Run Mode (with RUN_ID):
  Shows one run with its steps and outputs.
  Supports short IDs (e.g., "3f2a9c" instead of the full UUID).

Live Mode (--watch):
  Streams step events as runs progress. With a RUN_ID, stops when that
  run finishes.

Examples:
  # Last 20 runs
  burrow history

  # Failed runs of the past week
  burrow history --status=failed --since=7d

  # One run by short ID
  burrow history 3f2a9c

  # Follow whatever runs next
  burrow history --watch

  # Block until a run finishes (for scripts)
  burrow history 3f2a9c --wait=10m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format: default or jsonl (list mode only)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Show runs started after time (duration, days like 7d, date or RFC3339)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Show runs started before time (duration, days like 7d, date or RFC3339)")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status: running, succeeded or failed")
	historyCmd.Flags().BoolVarP(&historyWatch, "watch", "w", false, "Stream run events as they happen")
	historyCmd.Flags().DurationVar(&historyWait, "wait", 0, "With RUN_ID, wait up to this long for the run to finish")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	url, err := ledgerURL()
	if err != nil {
		return err
	}

	// Reading clients never write, so any run id will do.
	client, err := events.NewClientFromURL(url, uuid.New().String())
	if err != nil {
		return printer.Error("invalid ledger address", err.Error(), nil)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to the run ledger at %s", url),
			nil,
			[]string{"Check that Redis is running and the address in burrow.yml or BURROW_REDIS_URL is right"},
		)
	}

	if len(args) == 0 {
		if historyWatch {
			return followAll(ctx, client, out)
		}
		return listRuns(ctx, client, out)
	}

	runID, err := resolver.ResolveRunID(ctx, client, args[0])
	if err != nil {
		return resolveError(args[0], err)
	}

	switch {
	case historyWatch:
		if err := followRun(ctx, client, runID, out); err != nil {
			return err
		}
	case historyWait > 0:
		if _, err := watch.PollForRun(ctx, client, runID, historyWait); err != nil {
			return printer.ErrorWithContext("run did not finish", err.Error(), map[string]string{"Run": runID}, nil)
		}
	}

	return showRun(ctx, client, runID, out)
}

func listRuns(ctx context.Context, client *events.Client, out io.Writer) error {
	format, err := catalog.ParseOutputFormat(historyOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", historyOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	sinceMs, untilMs, err := timespec.ParseRange(historySince, historyUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time range", err.Error(), []string{"Examples: --since=2h, --since=7d, --until=2026-10-19"})
	}

	filter := &catalog.RunFilter{SinceMs: sinceMs, UntilMs: untilMs}
	if historyStatus != "" {
		status := events.RunStatus(historyStatus)
		if err := status.Validate(); err != nil {
			return printer.Error("invalid status", err.Error(), []string{"Valid statuses: running, succeeded, failed"})
		}
		filter.Status = status
	}

	runs, err := client.RecentRuns(ctx, historyLimit)
	if err != nil {
		return printer.Error("failed to read runs", err.Error(), nil)
	}
	runs = catalog.FilterRuns(runs, filter)

	if format == catalog.OutputFormatJSONL {
		return catalog.FormatJSONL(out, runs)
	}
	catalog.FormatRuns(out, runs)
	return nil
}

func showRun(ctx context.Context, client *events.Client, runID string, out io.Writer) error {
	run, err := client.GetRun(ctx, runID)
	if err != nil {
		if events.IsNotFound(err) {
			return resolveError(runID, &resolver.NotFoundError{ShortID: runID})
		}
		return printer.Error("failed to read run", err.Error(), nil)
	}
	steps, err := client.Steps(ctx, runID)
	if err != nil {
		return printer.Error("failed to read steps", err.Error(), nil)
	}

	catalog.FormatRun(out, run, steps)
	return nil
}

// followRun streams one run's events unless it has already finished.
func followRun(ctx context.Context, client *events.Client, runID string, out io.Writer) error {
	// Subscribe before checking the status so the finish event cannot slip between.
	sub, err := client.SubscribeRunEvents(ctx)
	if err != nil {
		return printer.Error("failed to subscribe to run events", err.Error(), nil)
	}
	defer sub.Close()

	run, err := client.GetRun(ctx, runID)
	if err != nil {
		return printer.Error("failed to read run", err.Error(), nil)
	}
	if run.Status != events.RunStatusRunning {
		return nil
	}

	return watch.Follow(ctx, sub, runID, out)
}

func followAll(ctx context.Context, client *events.Client, out io.Writer) error {
	sub, err := client.SubscribeRunEvents(ctx)
	if err != nil {
		return printer.Error("failed to subscribe to run events", err.Error(), nil)
	}
	defer sub.Close()

	printer.Info("Watching for run events (Ctrl-C to stop)...\n")
	return watch.Follow(ctx, sub, "", out)
}

func resolveError(shortID string, err error) error {
	if resolver.IsNotFoundError(err) {
		return printer.Error(
			fmt.Sprintf("run with ID '%s' not found", shortID),
			"The specified run is not in the ledger.",
			[]string{"List recent runs:\n  burrow history"},
		)
	}
	if ambErr, ok := err.(*resolver.AmbiguousError); ok {
		return printer.Error(
			fmt.Sprintf("ambiguous run ID '%s'", shortID),
			resolver.FormatAmbiguousError(ambErr),
			nil,
		)
	}
	return printer.Error("invalid run ID", err.Error(), nil)
}
