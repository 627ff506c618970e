// Package catalog renders container contents and run history for the CLI.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dyluth/burrow/internal/events"
	"github.com/dyluth/burrow/internal/gpkg"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/source"
)

// OutputFormat specifies how to format list output.
type OutputFormat string

const (
	// OutputFormatDefault uses an aligned table
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs one JSON object per line
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("invalid output format %q (must be 'default' or 'jsonl')", s)
}

// FormatLayers writes the container catalog as a table.
// Returns the number of layers formatted.
func FormatLayers(w io.Writer, layers []gpkg.LayerInfo, containerPath string) int {
	if len(layers) == 0 {
		fmt.Fprintf(w, "No layers found in '%s'\n", containerPath)
		return 0
	}

	fmt.Fprintf(w, "Layers in '%s':\n\n", containerPath)

	fmt.Fprintf(w, "%-30s %-10s %-8s %-32s %s\n", "NAME", "TYPE", "ROWS", "SRS", "SOURCE")
	fmt.Fprintf(w, "%-30s %-10s %-8s %-32s %s\n",
		"------------------------------", "----------", "--------", "--------------------------------", "--------------------")

	for _, l := range layers {
		fmt.Fprintf(w, "%-30s %-10s %-8d %-32s %s\n",
			truncate(l.Name, 30),
			string(l.GeometryType),
			l.Features,
			truncate(dash(l.SRSName), 32),
			dash(l.Source),
		)
	}

	countMsg := "layer"
	if len(layers) != 1 {
		countMsg = "layers"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(layers), countMsg)

	return len(layers)
}

// FormatJSONL writes each value as a single compact JSON line.
func FormatJSONL[T any](w io.Writer, items []T) error {
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatRuns writes the ledger's recent runs as a table, newest first.
func FormatRuns(w io.Writer, runs []*events.Run) int {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return 0
	}

	fmt.Fprintf(w, "%-10s %-10s %-8s %-12s %s\n", "RUN", "STATUS", "AGE", "DURATION", "CONTAINER")
	fmt.Fprintf(w, "%-10s %-10s %-8s %-12s %s\n",
		"----------", "----------", "--------", "------------", "--------------------")

	for _, r := range runs {
		fmt.Fprintf(w, "%-10s %-10s %-8s %-12s %s\n",
			formatID(r.ID),
			string(r.Status),
			formatTimestamp(r.StartedAtMs),
			formatDuration(r.StartedAtMs, r.FinishedAtMs),
			dash(r.Container),
		)
	}

	countMsg := "run"
	if len(runs) != 1 {
		countMsg = "runs"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(runs), countMsg)
	return len(runs)
}

// FormatRun writes one run's header, its steps and its outputs.
func FormatRun(w io.Writer, run *events.Run, steps []*events.Step) {
	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(w, "  Container:  %s\n", dash(run.Container))
	fmt.Fprintf(w, "  Target SRS: %s\n", dash(run.TargetSRS))
	fmt.Fprintf(w, "  Started:    %s\n", formatClock(run.StartedAtMs))
	if run.FinishedAtMs > 0 {
		fmt.Fprintf(w, "  Duration:   %s\n", formatDuration(run.StartedAtMs, run.FinishedAtMs))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  Error:      %s\n", run.Error)
	}

	if len(steps) > 0 {
		fmt.Fprintf(w, "\n%-22s %-10s %-8s %s\n", "STEP", "STATUS", "MS", "DETAIL")
		for _, s := range steps {
			if s.Status == events.StepStarted {
				continue
			}
			detail := s.Layer
			if s.Message != "" {
				detail = s.Message
			}
			fmt.Fprintf(w, "%-22s %-10s %-8d %s\n", s.Name, string(s.Status), s.DurationMs, dash(detail))
		}
	}

	if len(run.Outputs) > 0 {
		keys := make([]string, 0, len(run.Outputs))
		for k := range run.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w, "\nOutputs:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, run.Outputs[k])
		}
	}
}

// FormatEvent renders one live ledger event as a single line.
func FormatEvent(w io.Writer, e *events.Event) {
	switch e.Type {
	case events.EventRunStarted:
		fmt.Fprintf(w, "%s started (%s)\n", formatID(e.Run.ID), e.Run.Container)
	case events.EventRunFinished:
		fmt.Fprintf(w, "%s %s in %s\n", formatID(e.Run.ID), e.Run.Status,
			formatDuration(e.Run.StartedAtMs, e.Run.FinishedAtMs))
	case events.EventStep:
		fmt.Fprintf(w, "%s %-22s %s\n", formatID(e.Step.RunID), e.Step.Name, e.Step.Status)
	}
}

// formatID truncates a run ID to its first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatTimestamp formats Unix milliseconds as relative time like "2m ago".
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}

func formatClock(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}
	return time.UnixMilli(timestampMs).UTC().Format(time.RFC3339)
}

// formatDuration renders a finished run's length; unfinished runs show "-".
func formatDuration(startMs, finishMs int64) string {
	if finishMs == 0 || finishMs < startMs {
		return "-"
	}
	d := time.Duration(finishMs-startMs) * time.Millisecond
	if d < time.Minute {
		return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
	}
	return printer.FormatElapsed(d)
}

// FormatDescription writes what `burrow describe` reports for one input file.
func FormatDescription(w io.Writer, d *source.Description) {
	fmt.Fprintf(w, "%s\n", filepath.Base(d.Path))
	fmt.Fprintf(w, "  Type:     %s\n", d.GeometryType)
	fmt.Fprintf(w, "  SRS:      %s\n", dash(d.SRS.String()))
	fmt.Fprintf(w, "  Features: %d\n", d.FeatureCount)
	if d.NullShapes > 0 {
		fmt.Fprintf(w, "  Null shapes: %d\n", d.NullShapes)
	}
	if len(d.Fields) == 0 {
		return
	}
	fmt.Fprintln(w, "  Fields:")
	for _, f := range d.Fields {
		switch {
		case f.Width > 0 && f.Precision > 0:
			fmt.Fprintf(w, "    %-20s %s(%d,%d)\n", f.Name, f.Type, f.Width, f.Precision)
		case f.Width > 0:
			fmt.Fprintf(w, "    %-20s %s(%d)\n", f.Name, f.Type, f.Width)
		default:
			fmt.Fprintf(w, "    %-20s %s\n", f.Name, f.Type)
		}
	}
}
