package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dyluth/burrow/internal/layer"
)

// Description summarises an input file without keeping its features.
type Description struct {
	Path         string
	Name         string
	GeometryType layer.GeometryType
	SRS          layer.SRS
	FeatureCount int
	NullShapes   int
	Fields       []layer.Field
}

// Describe reads a shapefile or CSV coordinate table and reports its shape type,
// spatial reference, feature count and fields. CSV tables are assumed to be in srs.
func Describe(path string, srs layer.SRS) (*Description, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		l, err := ReadShapefile(path)
		if err != nil {
			return nil, err
		}
		return &Description{
			Path:         path,
			Name:         name,
			GeometryType: l.GeometryType,
			SRS:          l.SRS,
			FeatureCount: l.Len(),
			Fields:       l.Fields,
		}, nil
	case ".csv", ".txt":
		t, err := ReadXYTable(path, XYOptions{Name: name, SRS: srs})
		if err != nil {
			return nil, err
		}
		return &Description{
			Path:         path,
			Name:         name,
			GeometryType: t.Layer.GeometryType,
			SRS:          t.Layer.SRS,
			FeatureCount: t.Layer.Len(),
			NullShapes:   t.NullShapes,
			Fields:       t.Layer.Fields,
		}, nil
	}
	return nil, fmt.Errorf("unsupported input %s (expected .shp or .csv)", filepath.Base(path))
}
