package geoproc

import (
	"fmt"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

// FeatureToPolygon builds polygons from the areas enclosed by a line or polygon layer.
// All linework is noded first, so crossing lines split each other. The result carries
// no attributes and has one feature per enclosed area.
func (p *Processor) FeatureToPolygon(src *layer.Layer, name string) (*layer.Layer, error) {
	var lines orb.MultiLineString
	for _, f := range src.Features {
		lines = append(lines, linework(f.Geometry)...)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("layer %s: %w: no linework", src.Name, ErrNoPolygons)
	}

	g, err := p.toGEOS(lines)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", src.Name, err)
	}
	// UnaryUnion nodes the linework and removes duplicate segments.
	polys := p.geos.Polygonize([]*geos.Geom{g.UnaryUnion()})

	out := &layer.Layer{
		Name:         name,
		GeometryType: layer.Polygon,
		SRS:          src.SRS,
		Source:       src.Name,
	}
	for i := 0; i < polys.NumGeometries(); i++ {
		part := polys.Geometry(i)
		if part.IsEmpty() {
			continue
		}
		og, err := fromGEOS(part)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", src.Name, err)
		}
		if poly := polygonal(og); poly != nil {
			out.Add(poly, []any{})
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("layer %s: %w", src.Name, ErrNoPolygons)
	}
	return out, nil
}

// linework extracts the line and ring boundaries of a geometry.
func linework(g orb.Geometry) orb.MultiLineString {
	switch v := g.(type) {
	case orb.LineString:
		if len(v) > 1 {
			return orb.MultiLineString{v}
		}
	case orb.MultiLineString:
		var out orb.MultiLineString
		for _, ls := range v {
			out = append(out, linework(ls)...)
		}
		return out
	case orb.Ring:
		return orb.MultiLineString{orb.LineString(v)}
	case orb.Polygon:
		var out orb.MultiLineString
		for _, r := range v {
			out = append(out, linework(r)...)
		}
		return out
	case orb.MultiPolygon:
		var out orb.MultiLineString
		for _, poly := range v {
			out = append(out, linework(poly)...)
		}
		return out
	}
	return nil
}
