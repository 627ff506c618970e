package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/events"
	"github.com/dyluth/burrow/internal/geoproc"
	"github.com/dyluth/burrow/internal/pipeline"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/reproject"
	"github.com/dyluth/burrow/internal/source"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	runNoLedger bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the container and export the summary tables",
	Long: `Run the full pipeline described by burrow.yml:

  1. Check that every input exists (nothing is touched if one is missing)
  2. Recreate the GeoPackage container
  3. Import the five shapefiles and the XY crime table
  4. Reproject every layer into the target spatial reference
  5. Turn the boundary line into a polygon
  6. Build Thiessen polygons around the crime points and clip them to the boundary
  7. Count addresses per Thiessen polygon and crimes per police beat
  8. Export both summaries as CSV, replacing any previous files

When a run ledger is configured (events.redis_url or BURROW_REDIS_URL), every
step is also recorded in Redis and can be inspected with 'burrow history'.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runNoLedger, "no-ledger", false, "Do not record this run in the Redis ledger")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	recorder, closeLedger := openLedger(ctx, cfg, runID)
	defer closeLedger()

	printer.Info("\nBurrow imports the source shapefiles into %s, reprojects them into\n", cfg.Container)
	printer.Info("%s, builds Thiessen polygons based on the crime points and counts the\n", cfg.TargetSRS)
	printer.Info("addresses in those polygons and the crimes committed in each police beat.\n")

	engine := pipeline.New(cfg, pipeline.Options{RunID: runID, Recorder: recorder})
	result, err := engine.Run(ctx)
	if err != nil {
		return runError(err, runID)
	}

	printer.Success("Run %s complete: %d layers in %s\n", result.RunID, len(result.Layers), result.Container)
	return nil
}

// openLedger connects the run ledger when one is configured.
// An unreachable ledger is reported and the run continues without it.
func openLedger(ctx context.Context, cfg *config.BurrowConfig, runID string) (pipeline.Recorder, func()) {
	nop := func() {}
	url := cfg.RedisURL()
	if runNoLedger || url == "" {
		return pipeline.NopRecorder{}, nop
	}

	client, err := events.NewClientFromURL(url, runID)
	if err != nil {
		printer.Warning("Run ledger disabled: %v\n", err)
		return pipeline.NopRecorder{}, nop
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		printer.Warning("Run ledger at %s is unreachable, continuing without it: %v\n", url, err)
		client.Close()
		return pipeline.NopRecorder{}, nop
	}

	return client, func() { client.Close() }
}

// runError turns a pipeline failure into a printed error block.
func runError(err error, runID string) error {
	details := map[string]string{"Run": runID}

	switch {
	case errors.Is(err, source.ErrMissingInput):
		return printer.ErrorWithContext(
			"missing input",
			err.Error(),
			details,
			[]string{
				"Shapefiles need their .shp, .shx, .dbf and .prj files side by side",
				"Check the paths under sources: and crime_table: in burrow.yml",
			},
		)
	case errors.Is(err, source.ErrUnknownSRS), errors.Is(err, reproject.ErrInvalidSRS):
		return printer.ErrorWithContext(
			"invalid spatial reference",
			err.Error(),
			details,
			[]string{
				"target_srs must be a definition PROJ understands, e.g. EPSG:2283",
				"Inspect an input's spatial reference:\n  burrow describe data/FburgBoundary.shp",
			},
		)
	case errors.Is(err, geoproc.ErrNoPolygons), errors.Is(err, geoproc.ErrTooFewPoints):
		return printer.ErrorWithContext(
			"geoprocessing failed",
			err.Error(),
			details,
			[]string{"Inspect the inputs:\n  burrow describe data/*.shp"},
		)
	case errors.Is(err, context.Canceled):
		return printer.ErrorWithContext("run cancelled", err.Error(), details, nil)
	}

	return printer.ErrorWithContext("run failed", fmt.Sprintf("%v", err), details, nil)
}
