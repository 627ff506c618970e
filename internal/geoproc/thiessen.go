package geoproc

import (
	"fmt"
	"sort"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// InputFIDField links each Thiessen cell to the point it was built from.
const InputFIDField = "Input_FID"

// extentPadding grows the point extent on every side before tessellating.
const extentPadding = 0.1

type site struct {
	pt      orb.Point
	feature *layer.Feature
}

func (s *site) Point() orb.Point { return s.pt }

// ThiessenPolygons builds one Voronoi cell per distinct point location.
// Each cell carries Input_FID followed by every attribute of its point.
// Coincident points share one cell, owned by the lowest FID.
func (p *Processor) ThiessenPolygons(points *layer.Layer, name string) (*layer.Layer, error) {
	sites := distinctSites(points)
	if len(sites) < 2 {
		return nil, fmt.Errorf("layer %s: %w (found %d)", points.Name, ErrTooFewPoints, len(sites))
	}

	var mp orb.MultiPoint
	for _, s := range sites {
		mp = append(mp, s.pt)
	}
	extent := paddedBound(mp.Bound())

	qt := quadtree.New(extent)
	for _, s := range sites {
		if err := qt.Add(s); err != nil {
			return nil, fmt.Errorf("failed to index point %d: %w", s.feature.FID, err)
		}
	}

	g, err := p.toGEOS(mp)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", points.Name, err)
	}
	env, err := p.toGEOS(extent.ToPolygon())
	if err != nil {
		return nil, err
	}

	diagram := g.VoronoiDiagram(env, 0, false)
	cells := make(map[*site]orb.Geometry, len(sites))
	for i := 0; i < diagram.NumGeometries(); i++ {
		clipped := diagram.Geometry(i).Intersection(env)
		if clipped.IsEmpty() {
			continue
		}
		og, err := fromGEOS(clipped)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", points.Name, err)
		}
		cell := polygonal(og)
		if cell == nil {
			continue
		}
		if s := owner(qt, cell); s != nil {
			cells[s] = cell
		}
	}

	out := &layer.Layer{
		Name:         name,
		GeometryType: layer.Polygon,
		SRS:          points.SRS,
		Fields:       append([]layer.Field{{Name: InputFIDField, Type: layer.Integer}}, points.Fields...),
		Source:       points.Name,
	}
	for _, s := range sites {
		cell, ok := cells[s]
		if !ok {
			return nil, fmt.Errorf("layer %s: no cell produced for point %d", points.Name, s.feature.FID)
		}
		values := make([]any, 0, len(s.feature.Values)+1)
		values = append(values, s.feature.FID)
		values = append(values, s.feature.Values...)
		out.Add(cell, values)
	}
	return out, nil
}

// distinctSites returns one site per point location, in FID order.
func distinctSites(l *layer.Layer) []*site {
	features := make([]*layer.Feature, len(l.Features))
	copy(features, l.Features)
	sort.SliceStable(features, func(i, j int) bool { return features[i].FID < features[j].FID })

	seen := make(map[orb.Point]bool)
	var sites []*site
	for _, f := range features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok || seen[pt] {
			continue
		}
		seen[pt] = true
		sites = append(sites, &site{pt: pt, feature: f})
	}
	return sites
}

// owner finds the site lying inside a cell.
func owner(qt *quadtree.Quadtree, cell orb.Geometry) *site {
	for _, c := range qt.InBound(nil, cell.Bound()) {
		s := c.(*site)
		if contains(cell, s.pt) {
			return s
		}
	}
	return nil
}

func paddedBound(b orb.Bound) orb.Bound {
	dx := (b.Max[0] - b.Min[0]) * extentPadding
	dy := (b.Max[1] - b.Min[1]) * extentPadding
	if dx == 0 {
		dx = dy
	}
	if dy == 0 {
		dy = dx
	}
	return orb.Bound{
		Min: orb.Point{b.Min[0] - dx, b.Min[1] - dy},
		Max: orb.Point{b.Max[0] + dx, b.Max[1] + dy},
	}
}

// contains reports whether pt lies in a polygonal geometry, boundary included.
func contains(g orb.Geometry, pt orb.Point) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, pt)
	}
	return false
}
