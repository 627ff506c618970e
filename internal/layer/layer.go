// Package layer holds the in-memory feature model shared by every stage of the
// pipeline: readers produce layers, the container persists them, and the
// geoprocessing operations derive new layers from existing ones.
package layer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// GeometryType is the shape type of every feature in a layer.
type GeometryType string

const (
	Point      GeometryType = "Point"
	Multipoint GeometryType = "Multipoint"
	Polyline   GeometryType = "Polyline"
	Polygon    GeometryType = "Polygon"
	// None marks an attribute-only table.
	None GeometryType = "None"
)

// ParseGeometryType converts a stored type name back to a GeometryType.
func ParseGeometryType(s string) (GeometryType, error) {
	switch GeometryType(s) {
	case Point, Multipoint, Polyline, Polygon, None:
		return GeometryType(s), nil
	}
	return "", fmt.Errorf("unknown geometry type: %q", s)
}

// FieldType is the storage type of an attribute column.
type FieldType string

const (
	String  FieldType = "String"
	Integer FieldType = "Integer"
	Real    FieldType = "Real"
)

// Field describes one attribute column.
type Field struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Width     uint8     `json:"width,omitempty"`
	Precision uint8     `json:"precision,omitempty"`
}

// SRS identifies a spatial reference system.
// Definition is anything PROJ accepts: "EPSG:2283" or a WKT string.
type SRS struct {
	Name       string
	Code       int
	Definition string
}

// EPSG returns an SRS for an EPSG code.
func EPSG(code int, name string) SRS {
	return SRS{Name: name, Code: code, Definition: fmt.Sprintf("EPSG:%d", code)}
}

// ParseSRS builds an SRS from a configured definition, picking up the code
// of "EPSG:nnnn" forms.
func ParseSRS(definition string) SRS {
	d := strings.TrimSpace(definition)
	srs := SRS{Definition: d}
	if len(d) > 5 && strings.EqualFold(d[:5], "EPSG:") {
		if code, err := strconv.Atoi(d[5:]); err == nil {
			srs.Code = code
		}
	}
	return srs
}

// IsZero reports whether the SRS is unset.
func (s SRS) IsZero() bool {
	return s.Definition == "" && s.Code == 0
}

// String returns the name when known, else the definition.
func (s SRS) String() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Code != 0 {
		return fmt.Sprintf("EPSG:%d", s.Code)
	}
	return s.Definition
}

// Feature is a single row: an optional geometry plus one value per field.
// Values hold string, int64, float64 or nil.
type Feature struct {
	FID      int64
	Geometry orb.Geometry
	Values   []any
}

// Layer is a named, typed collection of features in one spatial reference.
type Layer struct {
	Name         string
	GeometryType GeometryType
	SRS          SRS
	Fields       []Field
	Features     []*Feature
	// Source is the path or layer name this layer was derived from.
	Source string
}

// FieldIndex returns the index of the named field (case-insensitive) or -1.
func (l *Layer) FieldIndex(name string) int {
	for i, f := range l.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Value returns the named attribute of a feature, or nil when absent.
func (l *Layer) Value(f *Feature, name string) any {
	i := l.FieldIndex(name)
	if i < 0 || i >= len(f.Values) {
		return nil
	}
	return f.Values[i]
}

// Bound returns the bounding box of all non-nil geometries.
// The second result is false when the layer has no geometry.
func (l *Layer) Bound() (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

// WithName returns a copy of the layer's schema under a new name, with no features.
func (l *Layer) WithName(name string) *Layer {
	fields := make([]Field, len(l.Fields))
	copy(fields, l.Fields)
	return &Layer{
		Name:         name,
		GeometryType: l.GeometryType,
		SRS:          l.SRS,
		Fields:       fields,
		Source:       l.Name,
	}
}

// Add appends a feature, assigning the next FID (starting at 1).
func (l *Layer) Add(g orb.Geometry, values []any) *Feature {
	f := &Feature{
		FID:      int64(len(l.Features) + 1),
		Geometry: g,
		Values:   values,
	}
	l.Features = append(l.Features, f)
	return f
}

// Len returns the feature count.
func (l *Layer) Len() int {
	return len(l.Features)
}

// Validate checks that every feature carries one value per field.
func (l *Layer) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("layer name cannot be empty")
	}
	for _, f := range l.Features {
		if len(f.Values) != len(l.Fields) {
			return fmt.Errorf("layer %s: feature %d has %d values, expected %d",
				l.Name, f.FID, len(f.Values), len(l.Fields))
		}
	}
	return nil
}

// TypeOf maps an orb geometry to the layer geometry type it belongs to.
func TypeOf(g orb.Geometry) GeometryType {
	switch g.(type) {
	case orb.Point:
		return Point
	case orb.MultiPoint:
		return Multipoint
	case orb.LineString, orb.MultiLineString:
		return Polyline
	case orb.Ring, orb.Polygon, orb.MultiPolygon:
		return Polygon
	}
	return None
}
