package geoproc

import (
	"fmt"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"github.com/twpayne/go-geos"
)

// Summary field names added by SummarizeWithin.
const (
	PointCountField   = "Point_Count"
	LineCountField    = "Line_Count"
	SumLengthField    = "sum_Length"
	PolygonCountField = "Polygon_Count"
	SumAreaField      = "sum_Area"
)

type vertex struct {
	pt orb.Point
}

func (v vertex) Point() orb.Point { return v.pt }

// SummarizeWithin copies every polygon of polygons and appends aggregates of the
// summary features that fall inside it. Points are counted; lines and polygons are
// counted and the length or area of their overlapping part summed.
// Polygons with nothing inside are kept with zero counts.
func (p *Processor) SummarizeWithin(polygons, summary *layer.Layer, name string) (*layer.Layer, error) {
	if polygons.GeometryType != layer.Polygon {
		return nil, fmt.Errorf("layer %s: summarize-within needs polygons, got %s", polygons.Name, polygons.GeometryType)
	}

	out := polygons.WithName(name)
	var stats func(cell orb.Geometry) ([]any, error)
	var err error

	switch summary.GeometryType {
	case layer.Point, layer.Multipoint:
		out.Fields = append(out.Fields, layer.Field{Name: PointCountField, Type: layer.Integer})
		stats = p.pointStats(polygons, summary)
	case layer.Polyline:
		out.Fields = append(out.Fields,
			layer.Field{Name: LineCountField, Type: layer.Integer},
			layer.Field{Name: SumLengthField, Type: layer.Real})
		stats, err = p.overlapStats(summary, (*geos.Geom).Length)
	case layer.Polygon:
		out.Fields = append(out.Fields,
			layer.Field{Name: PolygonCountField, Type: layer.Integer},
			layer.Field{Name: SumAreaField, Type: layer.Real})
		stats, err = p.overlapStats(summary, (*geos.Geom).Area)
	default:
		return nil, fmt.Errorf("layer %s: cannot summarize %s features", summary.Name, summary.GeometryType)
	}
	if err != nil {
		return nil, err
	}

	for _, f := range polygons.Features {
		extra, err := stats(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("layer %s feature %d: %w", polygons.Name, f.FID, err)
		}
		values := make([]any, 0, len(f.Values)+len(extra))
		values = append(values, f.Values...)
		values = append(values, extra...)
		out.Add(f.Geometry, values)
	}
	return out, nil
}

// pointStats counts summary points inside each polygon using a quadtree over all vertices.
func (p *Processor) pointStats(polygons, summary *layer.Layer) func(orb.Geometry) ([]any, error) {
	extent, _ := polygons.Bound()
	if b, ok := summary.Bound(); ok {
		extent = extent.Union(b)
	}
	qt := quadtree.New(extent)
	for _, f := range summary.Features {
		switch g := f.Geometry.(type) {
		case orb.Point:
			_ = qt.Add(vertex{g})
		case orb.MultiPoint:
			for _, pt := range g {
				_ = qt.Add(vertex{pt})
			}
		}
	}

	return func(cell orb.Geometry) ([]any, error) {
		if cell == nil {
			return []any{int64(0)}, nil
		}
		var n int64
		for _, c := range qt.InBound(nil, cell.Bound()) {
			if contains(cell, c.Point()) {
				n++
			}
		}
		return []any{n}, nil
	}
}

type measured struct {
	bound orb.Bound
	geom  *geos.Geom
}

// overlapStats counts summary features overlapping each polygon and sums the
// measure (length or area) of the overlapping parts.
func (p *Processor) overlapStats(summary *layer.Layer, measure func(*geos.Geom) float64) (func(orb.Geometry) ([]any, error), error) {
	var items []measured
	for _, f := range summary.Features {
		if f.Geometry == nil {
			continue
		}
		g, err := p.toGEOS(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("layer %s feature %d: %w", summary.Name, f.FID, err)
		}
		items = append(items, measured{bound: f.Geometry.Bound(), geom: g})
	}

	return func(cell orb.Geometry) ([]any, error) {
		var n int64
		var sum float64
		if cell == nil {
			return []any{n, sum}, nil
		}
		cg, err := p.toGEOS(cell)
		if err != nil {
			return nil, err
		}
		cb := cell.Bound()
		for _, it := range items {
			if !cb.Intersects(it.bound) {
				continue
			}
			m := measure(cg.Intersection(it.geom))
			if m > 0 {
				n++
				sum += m
			}
		}
		return []any{n, sum}, nil
	}, nil
}
