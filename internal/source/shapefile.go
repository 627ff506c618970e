// Package source reads the pipeline's raw inputs, ESRI shapefiles and CSV
// tables of XY coordinates, into layer.Layer values.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

var (
	// ErrMissingInput is returned when an input file (or a shapefile sidecar) does not exist.
	ErrMissingInput = errors.New("input does not exist")

	// ErrUnknownSRS is returned when a shapefile has no .prj sidecar.
	ErrUnknownSRS = errors.New("unknown spatial reference")
)

// reservedFields are column names owned by the container or the CSV export.
var reservedFields = []string{"fid", "geom", "OBJECTID"}

// sidecar returns the path of a shapefile component with the given extension.
func sidecar(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// CheckShapefile verifies that the .shp, .shx, .dbf and .prj components exist.
func CheckShapefile(path string) error {
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		p := sidecar(path, ext)
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrMissingInput, p)
			}
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}
	return nil
}

// CheckFile verifies that a plain input file exists and is not a directory.
func CheckFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file", path)
	}
	return nil
}

// DescribeSRS reads only the .prj sidecar of a shapefile.
func DescribeSRS(path string) (layer.SRS, error) {
	data, err := os.ReadFile(sidecar(path, ".prj"))
	if err != nil {
		if os.IsNotExist(err) {
			return layer.SRS{}, fmt.Errorf("%w: %s has no .prj file", ErrUnknownSRS, filepath.Base(path))
		}
		return layer.SRS{}, fmt.Errorf("failed to read projection file: %w", err)
	}
	return ParseWKT(string(data)), nil
}

// ParseWKT builds an SRS from a WKT1 definition, taking the name from the
// outermost element and the code from a trailing EPSG authority if present.
func ParseWKT(wkt string) layer.SRS {
	wkt = strings.TrimSpace(strings.TrimPrefix(wkt, "\ufeff"))
	srs := layer.SRS{Definition: wkt}

	if open := strings.Index(wkt, `["`); open >= 0 {
		rest := wkt[open+2:]
		if end := strings.Index(rest, `"`); end >= 0 {
			srs.Name = rest[:end]
		}
	}

	const authority = `AUTHORITY["EPSG","`
	if i := strings.LastIndex(wkt, authority); i >= 0 {
		tail := wkt[i+len(authority):]
		if end := strings.Index(tail, `"`); end >= 0 && strings.TrimSpace(tail[end:]) == `"]]` {
			if code, err := strconv.Atoi(tail[:end]); err == nil {
				srs.Code = code
			}
		}
	}
	return srs
}

// ReadShapefile loads every feature and attribute of a shapefile.
func ReadShapefile(path string) (*layer.Layer, error) {
	if err := CheckShapefile(path); err != nil {
		return nil, err
	}
	srs, err := DescribeSRS(path)
	if err != nil {
		return nil, err
	}

	r, err := shp.Open(sidecar(path, ".shp"))
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer r.Close()

	gt, err := geometryType(r.GeometryType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	dbfFields := r.Fields()
	fields := make([]layer.Field, len(dbfFields))
	for i, f := range dbfFields {
		fields[i] = convertField(f)
	}
	renameReserved(fields)

	l := &layer.Layer{
		Name:         strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		GeometryType: gt,
		SRS:          srs,
		Fields:       fields,
		Source:       path,
	}

	for r.Next() {
		n, shape := r.Shape()
		g, err := convertShape(shape)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", filepath.Base(path), n, err)
		}
		values := make([]any, len(fields))
		for i, f := range fields {
			values[i] = parseValue(r.ReadAttribute(n, i), f.Type)
		}
		l.Add(g, values)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shapefile %s: %w", path, err)
	}

	return l, nil
}

func geometryType(t shp.ShapeType) (layer.GeometryType, error) {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return layer.Point, nil
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return layer.Multipoint, nil
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return layer.Polyline, nil
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return layer.Polygon, nil
	}
	return "", fmt.Errorf("unsupported shape type %d", t)
}

func convertField(f shp.Field) layer.Field {
	out := layer.Field{
		Name:      f.String(),
		Type:      layer.String,
		Width:     f.Size,
		Precision: f.Precision,
	}
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			out.Type = layer.Integer
		} else {
			out.Type = layer.Real
		}
	case 'F':
		out.Type = layer.Real
	}
	return out
}

// renameReserved suffixes field names that collide with container columns.
func renameReserved(fields []layer.Field) {
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[strings.ToLower(f.Name)] = true
	}
	for i, f := range fields {
		for _, reserved := range reservedFields {
			if !strings.EqualFold(f.Name, reserved) {
				continue
			}
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s_%d", f.Name, n)
				if !taken[strings.ToLower(candidate)] {
					fields[i].Name = candidate
					taken[strings.ToLower(candidate)] = true
					break
				}
			}
		}
	}
}

// parseValue converts a raw DBF/CSV string to the field's Go type.
// Blank or unparseable numbers become nil.
func parseValue(raw string, t layer.FieldType) any {
	s := strings.Trim(raw, " \t\r\n\x00")
	switch t {
	case layer.Integer:
		if s == "" {
			return nil
		}
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(v)
		}
		return nil
	case layer.Real:
		if s == "" {
			return nil
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
		return nil
	}
	return s
}

func convertShape(s shp.Shape) (orb.Geometry, error) {
	switch v := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{v.X, v.Y}, nil
	case *shp.PointZ:
		return orb.Point{v.X, v.Y}, nil
	case *shp.PointM:
		return orb.Point{v.X, v.Y}, nil
	case *shp.MultiPoint:
		return multiPoint(v.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(v.Points), nil
	case *shp.MultiPointM:
		return multiPoint(v.Points), nil
	case *shp.PolyLine:
		return lines(v.Parts, v.Points), nil
	case *shp.PolyLineZ:
		return lines(v.Parts, v.Points), nil
	case *shp.PolyLineM:
		return lines(v.Parts, v.Points), nil
	case *shp.Polygon:
		return polygons(v.Parts, v.Points), nil
	case *shp.PolygonZ:
		return polygons(v.Parts, v.Points), nil
	case *shp.PolygonM:
		return polygons(v.Parts, v.Points), nil
	}
	return nil, fmt.Errorf("unsupported shape %T", s)
}

func multiPoint(points []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// split cuts the flat point array into its parts.
func split(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(parts []int32, points []shp.Point) orb.Geometry {
	segs := split(parts, points)
	if len(segs) == 1 {
		return orb.LineString(segs[0])
	}
	mls := make(orb.MultiLineString, len(segs))
	for i, p := range segs {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygons groups rings into polygons: clockwise rings start a new polygon,
// counter-clockwise rings are holes of the preceding one.
func polygons(parts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range split(parts, points) {
		ring := orb.Ring(p)
		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}
