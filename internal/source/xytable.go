package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/paulmach/orb"
)

// ErrNoCoordinateFields is returned when x/y columns are neither configured nor detectable.
var ErrNoCoordinateFields = errors.New("no coordinate fields found")

// coordinatePairs are the x/y header pairs recognised when none are configured, in priority order.
var coordinatePairs = [][2]string{
	{"X", "Y"},
	{"POINT_X", "POINT_Y"},
	{"Longitude", "Latitude"},
	{"Lon", "Lat"},
	{"Long", "Lat"},
	{"Lng", "Lat"},
	{"XCoord", "YCoord"},
}

// XYOptions controls how a coordinate table is turned into points.
type XYOptions struct {
	Name   string
	XField string
	YField string
	SRS    layer.SRS
}

// XYTable is a point layer built from a CSV table.
type XYTable struct {
	Layer  *layer.Layer
	XField string
	YField string
	// NullShapes counts rows whose coordinates were blank or not numeric.
	NullShapes int
}

// ReadXYTable reads a CSV file with a header row and makes one point per row.
// Every column is kept as an attribute, typed by inspecting its values.
func ReadXYTable(path string, opts XYOptions) (*XYTable, error) {
	if err := CheckFile(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	return readXY(f, path, opts)
}

func readXY(r io.Reader, path string, opts XYOptions) (*XYTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("table %s is empty", path)
		}
		return nil, fmt.Errorf("failed to read table header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read table rows: %w", err)
	}

	xIdx, yIdx, err := coordinateColumns(header, opts.XField, opts.YField)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	fields := make([]layer.Field, len(header))
	for i, name := range header {
		fields[i] = layer.Field{Name: strings.TrimSpace(name), Type: inferType(rows, i)}
	}
	renameReserved(fields)

	l := &layer.Layer{
		Name:         opts.Name,
		GeometryType: layer.Point,
		SRS:          opts.SRS,
		Fields:       fields,
		Source:       path,
	}

	table := &XYTable{Layer: l, XField: header[xIdx], YField: header[yIdx]}
	for _, row := range rows {
		values := make([]any, len(fields))
		for i, f := range fields {
			if i < len(row) {
				values[i] = parseValue(row[i], f.Type)
			}
		}

		var g orb.Geometry
		x, xok := coordinate(row, xIdx)
		y, yok := coordinate(row, yIdx)
		if xok && yok {
			g = orb.Point{x, y}
		} else {
			table.NullShapes++
		}
		l.Add(g, values)
	}

	return table, nil
}

// coordinateColumns resolves the x and y column indexes.
func coordinateColumns(header []string, xField, yField string) (int, int, error) {
	find := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	if xField != "" || yField != "" {
		x, y := find(xField), find(yField)
		if x < 0 {
			return 0, 0, fmt.Errorf("x field %q not in table header", xField)
		}
		if y < 0 {
			return 0, 0, fmt.Errorf("y field %q not in table header", yField)
		}
		return x, y, nil
	}

	for _, pair := range coordinatePairs {
		x, y := find(pair[0]), find(pair[1])
		if x >= 0 && y >= 0 {
			return x, y, nil
		}
	}
	return 0, 0, ErrNoCoordinateFields
}

func coordinate(row []string, idx int) (float64, bool) {
	if idx >= len(row) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// inferType picks Integer, Real or String for a column from its non-blank values.
func inferType(rows [][]string, col int) layer.FieldType {
	t := layer.Integer
	seen := false
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		s := strings.TrimSpace(row[col])
		if s == "" {
			continue
		}
		seen = true
		if t == layer.Integer {
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				continue
			}
			t = layer.Real
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return layer.String
		}
	}
	if !seen {
		return layer.String
	}
	return t
}
