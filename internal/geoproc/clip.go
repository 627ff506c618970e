package geoproc

import (
	"fmt"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

// Clip keeps the parts of each polygon feature in input that fall inside the union of
// the clip layer's polygons. Attributes are kept and FIDs renumbered; features that
// fall entirely outside are dropped.
func (p *Processor) Clip(input, clipLayer *layer.Layer, name string) (*layer.Layer, error) {
	if input.GeometryType != layer.Polygon {
		return nil, fmt.Errorf("layer %s: clip supports polygon input, got %s", input.Name, input.GeometryType)
	}
	mask, err := p.union(clipLayer)
	if err != nil {
		return nil, err
	}

	out := input.WithName(name)
	for _, f := range input.Features {
		if f.Geometry == nil {
			continue
		}
		g, err := p.toGEOS(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("layer %s feature %d: %w", input.Name, f.FID, err)
		}
		part := g.Intersection(mask)
		if part.IsEmpty() {
			continue
		}
		og, err := fromGEOS(part)
		if err != nil {
			return nil, fmt.Errorf("layer %s feature %d: %w", input.Name, f.FID, err)
		}
		clipped := polygonal(og)
		if clipped == nil {
			continue
		}
		values := make([]any, len(f.Values))
		copy(values, f.Values)
		out.Add(clipped, values)
	}
	return out, nil
}

// union dissolves every polygon of l into one GEOS geometry.
func (p *Processor) union(l *layer.Layer) (*geos.Geom, error) {
	var gs []orb.Geometry
	for _, f := range l.Features {
		gs = append(gs, f.Geometry)
	}
	mp := polygonsOf(gs)
	if len(mp) == 0 {
		return nil, fmt.Errorf("layer %s: %w", l.Name, ErrNoPolygons)
	}
	g, err := p.toGEOS(mp)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", l.Name, err)
	}
	return g.UnaryUnion(), nil
}
