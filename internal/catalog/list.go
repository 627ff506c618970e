package catalog

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dyluth/burrow/internal/events"
	"github.com/dyluth/burrow/internal/gpkg"
)

// FilterCriteria narrows the layers listed. All filters are ANDed together.
type FilterCriteria struct {
	NameGlob     string // Glob pattern for the layer name, empty = no filter
	GeometryType string // Case-insensitive geometry type, empty = no filter
}

func (fc *FilterCriteria) matches(info gpkg.LayerInfo) bool {
	if fc == nil {
		return true
	}
	if fc.NameGlob != "" {
		matched, err := filepath.Match(fc.NameGlob, info.Name)
		if err != nil || !matched {
			return false
		}
	}
	if fc.GeometryType != "" && !strings.EqualFold(fc.GeometryType, string(info.GeometryType)) {
		return false
	}
	return true
}

// ListLayers opens the container at path and writes its catalog to w.
func ListLayers(ctx context.Context, path string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	c, err := gpkg.Open(path)
	if err != nil {
		return err
	}
	defer c.Close()

	infos, err := c.Layers(ctx)
	if err != nil {
		return err
	}

	filtered := make([]gpkg.LayerInfo, 0, len(infos))
	for _, info := range infos {
		if filters.matches(info) {
			filtered = append(filtered, info)
		}
	}

	switch format {
	case OutputFormatJSONL:
		return FormatJSONL(w, filtered)
	case OutputFormatDefault, "":
		FormatLayers(w, filtered, path)

		runs, err := c.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			last := runs[len(runs)-1]
			fmt.Fprintf(w, "Built by run %s at %s\n", formatID(last.ID), last.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// RunFilter narrows the runs shown by history. Zero fields do not filter.
type RunFilter struct {
	SinceMs int64 // Unix milliseconds
	UntilMs int64 // Unix milliseconds
	Status  events.RunStatus
}

func (f *RunFilter) matches(r *events.Run) bool {
	if f == nil {
		return true
	}
	if f.SinceMs > 0 && r.StartedAtMs < f.SinceMs {
		return false
	}
	if f.UntilMs > 0 && r.StartedAtMs > f.UntilMs {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// FilterRuns keeps the runs matching f, preserving order.
func FilterRuns(runs []*events.Run, f *RunFilter) []*events.Run {
	out := make([]*events.Run, 0, len(runs))
	for _, r := range runs {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}
