// Package reproject transforms layers between spatial reference systems using PROJ.
package reproject

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/twpayne/go-proj/v10"
)

// ErrInvalidSRS is returned when PROJ cannot resolve a spatial reference definition.
var ErrInvalidSRS = errors.New("invalid spatial reference")

// Reprojector transforms layers into one fixed target SRS.
// It caches one PROJ transformation per source definition.
type Reprojector struct {
	target     layer.SRS
	transforms map[string]*proj.PJ
}

// New resolves the target definition (for example "EPSG:2283").
func New(targetDefinition string) (*Reprojector, error) {
	pj, err := proj.New(targetDefinition)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSRS, targetDefinition, err)
	}
	defer pj.Destroy()

	return &Reprojector{
		target: layer.SRS{
			Name:       pj.Info().Description,
			Code:       epsgCode(targetDefinition),
			Definition: targetDefinition,
		},
		transforms: make(map[string]*proj.PJ),
	}, nil
}

// Target returns the target spatial reference, named by PROJ.
func (r *Reprojector) Target() layer.SRS {
	return r.target
}

// Close releases the cached PROJ transformations.
func (r *Reprojector) Close() {
	for def, pj := range r.transforms {
		pj.Destroy()
		delete(r.transforms, def)
	}
}

// Layer returns a copy of src with every geometry transformed into the target SRS.
// Attributes and FIDs are preserved; nil geometries stay nil.
func (r *Reprojector) Layer(src *layer.Layer, name string) (*layer.Layer, error) {
	if src.SRS.IsZero() {
		return nil, fmt.Errorf("%w: layer %s has no spatial reference", ErrInvalidSRS, src.Name)
	}

	pj, err := r.transform(src.SRS.Definition)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", src.Name, err)
	}

	out := src.WithName(name)
	out.SRS = r.target
	out.Features = make([]*layer.Feature, 0, len(src.Features))

	for _, f := range src.Features {
		g, err := apply(pj, f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("layer %s feature %d: %w", src.Name, f.FID, err)
		}
		values := make([]any, len(f.Values))
		copy(values, f.Values)
		out.Features = append(out.Features, &layer.Feature{FID: f.FID, Geometry: g, Values: values})
	}
	return out, nil
}

func (r *Reprojector) transform(source string) (*proj.PJ, error) {
	if pj, ok := r.transforms[source]; ok {
		return pj, nil
	}

	pj, err := proj.NewCRSToCRS(source, r.target.Definition, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot transform to %s: %v", ErrInvalidSRS, r.target.Definition, err)
	}
	// Authority axis order (lat/lon for EPSG:4326) would swap our x/y.
	normalized, err := pj.NormalizeForVisualization()
	pj.Destroy()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSRS, err)
	}

	r.transforms[source] = normalized
	return normalized, nil
}

// apply transforms a clone of g, leaving the source geometry untouched.
func apply(pj *proj.PJ, g orb.Geometry) (orb.Geometry, error) {
	if g == nil {
		return nil, nil
	}

	var firstErr error
	fn := func(p orb.Point) orb.Point {
		c, err := pj.Forward(proj.NewCoord(p[0], p[1], 0, 0))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return p
		}
		return orb.Point{c[0], c[1]}
	}

	out := project.Geometry(orb.Clone(g), fn)
	if firstErr != nil {
		return nil, fmt.Errorf("coordinate transformation failed: %w", firstErr)
	}
	return out, nil
}

// epsgCode extracts the code from an "EPSG:nnnn" definition, or 0.
func epsgCode(definition string) int {
	d := strings.TrimSpace(definition)
	if !strings.HasPrefix(strings.ToUpper(d), "EPSG:") {
		return 0
	}
	code, err := strconv.Atoi(d[len("EPSG:"):])
	if err != nil {
		return 0
	}
	return code
}

// ProjectedName derives the reprojected layer name from an imported one:
// a trailing "_shp" is dropped and "_Project" appended.
func ProjectedName(imported string) string {
	return strings.TrimSuffix(imported, "_shp") + "_Project"
}
