// Package export writes container layers out as flat tables.
package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Column names written alongside the layer's own fields.
const (
	ObjectIDColumn    = "OBJECTID"
	ShapeLengthColumn = "Shape_Length"
	ShapeAreaColumn   = "Shape_Area"
)

// Delete removes path if it exists. It reports whether a file was removed.
func Delete(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to delete %s: %w", path, err)
}

// Header returns the CSV header for a layer.
func Header(l *layer.Layer) []string {
	header := []string{ObjectIDColumn}
	for _, f := range l.Fields {
		header = append(header, f.Name)
	}
	switch l.GeometryType {
	case layer.Polyline:
		header = append(header, ShapeLengthColumn)
	case layer.Polygon:
		header = append(header, ShapeLengthColumn, ShapeAreaColumn)
	}
	return header
}

// TableToCSV writes the attribute table of l to path, replacing any existing file.
// Rows are written in FID order and geometry is reduced to its shape measures,
// so exporting the same layer twice produces identical files.
func TableToCSV(l *layer.Layer, path string) error {
	if _, err := Delete(path); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	features := make([]*layer.Feature, len(l.Features))
	copy(features, l.Features)
	sort.SliceStable(features, func(i, j int) bool { return features[i].FID < features[j].FID })

	w := csv.NewWriter(file)
	if err := w.Write(Header(l)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, f := range features {
		if err := w.Write(row(l, f)); err != nil {
			return fmt.Errorf("failed to write feature %d: %w", f.FID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func row(l *layer.Layer, f *layer.Feature) []string {
	rec := []string{strconv.FormatInt(f.FID, 10)}
	for i := range l.Fields {
		var v any
		if i < len(f.Values) {
			v = f.Values[i]
		}
		rec = append(rec, FormatValue(v))
	}
	switch l.GeometryType {
	case layer.Polyline:
		rec = append(rec, FormatValue(shapeLength(f.Geometry)))
	case layer.Polygon:
		rec = append(rec, FormatValue(shapeLength(f.Geometry)), FormatValue(shapeArea(f.Geometry)))
	}
	return rec
}

// FormatValue renders an attribute value the way it appears in exported tables.
// Nil becomes an empty cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

func shapeLength(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return planar.Length(g)
}

func shapeArea(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return math.Abs(planar.Area(g))
}
