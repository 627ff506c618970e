// Package geoproc derives new layers from existing ones: polygons from boundary
// lines, Thiessen tessellations, clips and summarize-within aggregations.
//
// Constructive operations run on GEOS; containment tests and measurements use orb.
package geoproc

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// ErrNoPolygons is returned when polygon-building operations produce nothing.
var ErrNoPolygons = errors.New("no polygons could be formed")

// ErrTooFewPoints is returned when a tessellation has fewer than two distinct sites.
var ErrTooFewPoints = errors.New("at least two distinct points are required")

// Processor runs geoprocessing operations on a private GEOS context.
type Processor struct {
	geos *geos.Context
}

// NewProcessor creates a processor with its own GEOS context.
func NewProcessor() *Processor {
	return &Processor{geos: geos.NewContext()}
}

// toGEOS converts an orb geometry to GEOS through WKB.
func (p *Processor) toGEOS(g orb.Geometry) (*geos.Geom, error) {
	b, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}
	gg, err := p.geos.NewGeomFromWKB(b)
	if err != nil {
		return nil, fmt.Errorf("failed to load geometry into GEOS: %w", err)
	}
	return gg, nil
}

// fromGEOS converts a GEOS geometry back to orb.
func fromGEOS(g *geos.Geom) (orb.Geometry, error) {
	out, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("failed to decode GEOS result: %w", err)
	}
	return out, nil
}

// polygonal keeps only the polygon parts of g.
// A single polygon is returned as orb.Polygon, several as orb.MultiPolygon.
func polygonal(g orb.Geometry) orb.Geometry {
	var mp orb.MultiPolygon
	var walk func(orb.Geometry)
	walk = func(g orb.Geometry) {
		switch v := g.(type) {
		case orb.Polygon:
			if len(v) > 0 {
				mp = append(mp, v)
			}
		case orb.MultiPolygon:
			for _, p := range v {
				walk(p)
			}
		case orb.Collection:
			for _, c := range v {
				walk(c)
			}
		}
	}
	walk(g)

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}

// polygonsOf flattens the polygonal geometries of a layer's features.
func polygonsOf(gs []orb.Geometry) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for _, g := range gs {
		switch v := polygonal(g).(type) {
		case orb.Polygon:
			mp = append(mp, v)
		case orb.MultiPolygon:
			mp = append(mp, v...)
		}
	}
	return mp
}
