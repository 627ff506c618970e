package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dyluth/burrow/internal/export"
	"github.com/dyluth/burrow/internal/gpkg"
	"github.com/dyluth/burrow/internal/layer"
	"github.com/dyluth/burrow/internal/reproject"
	"github.com/dyluth/burrow/internal/source"
)

// Step names, in execution order.
const (
	StepValidateInputs       = "validate-inputs"
	StepDescribeBoundary     = "describe-boundary"
	StepCreateContainer      = "create-container"
	StepImport               = "import"
	StepReproject            = "reproject"
	StepBoundaryPolygon      = "boundary-polygon"
	StepThiessen             = "thiessen"
	StepClip                 = "clip"
	StepSummarizeAddresses   = "summarize-addresses"
	StepSummarizeBeats       = "summarize-beats"
	StepSummarizeCenterlines = "summarize-centerlines"
)

// Layer names inside the container.
const (
	BoundaryLayer     = "Boundary_shp"
	CrimeLayer        = "Crime_data_shp"
	PoliceBeatsLayer  = "Police_beats_shp"
	CenterlinesLayer  = "Centerlines_shp"
	AddressLayer      = "Address_shp"
	BoundaryPolygon   = "Boundary_project_poly"
	ThiessenLayer     = "Crime_data_thiessen"
	ThiessenClipLayer = "Crime_thiessen_clip"
	AddressSummary    = "addresses_in_thiessen_clip"
	BeatsSummary      = "police_beats_table"
	CenterlineSummary = "centerlines_in_beats"
)

// importNames maps config source keys to their imported layer names.
var importNames = map[string]string{
	"boundary":     BoundaryLayer,
	"crime":        CrimeLayer,
	"police_beats": PoliceBeatsLayer,
	"centerlines":  CenterlinesLayer,
	"addresses":    AddressLayer,
}

// validateInputs checks every input and the target SRS before anything is
// deleted or written, so a bad configuration leaves old outputs untouched.
func (e *Engine) validateInputs(ctx context.Context) (string, error) {
	var errs []error
	for _, src := range e.cfg.Sources.Named() {
		if err := source.CheckShapefile(e.cfg.Resolve(src.Path)); err != nil {
			errs = append(errs, fmt.Errorf("sources.%s: %w", src.Key, err))
		}
	}
	if err := source.CheckFile(e.cfg.Resolve(e.cfg.CrimeTable.Path)); err != nil {
		errs = append(errs, fmt.Errorf("crime_table: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}

	r, err := reproject.New(e.cfg.TargetSRS)
	if err != nil {
		return "", err
	}
	e.reprojector = r
	return "", nil
}

func (e *Engine) describeBoundary(ctx context.Context) (string, error) {
	srs, err := source.DescribeSRS(e.cfg.Resolve(e.cfg.Sources.Boundary))
	if err != nil {
		return "", err
	}
	e.out.Info("\nProjection of the boundary feature is %s\n", srs)
	return "", nil
}

func (e *Engine) createContainer(ctx context.Context) (string, error) {
	c, err := gpkg.Recreate(ctx, e.containerPath)
	if err != nil {
		return "", err
	}
	e.container = c
	e.out.Info("\n---%s created via the path %s---\n", filepath.Base(e.containerPath), e.containerPath)
	return filepath.Base(e.containerPath), nil
}

// importInputs copies the five shapefiles and the XY table into the container.
func (e *Engine) importInputs(ctx context.Context) (string, error) {
	containerName := filepath.Base(e.containerPath)

	for _, src := range e.cfg.Sources.Named() {
		l, err := source.ReadShapefile(e.cfg.Resolve(src.Path))
		if err != nil {
			return "", fmt.Errorf("sources.%s: %w", src.Key, err)
		}
		l.Name = importNames[src.Key]
		if err := e.write(ctx, l); err != nil {
			return "", err
		}
		e.out.Info("\n%s extracted to %s\n", l.Name, containerName)
		e.out.Info("%s is a %s feature\n", l.Name, l.GeometryType)
	}

	tbl := e.cfg.CrimeTable
	table, err := source.ReadXYTable(e.cfg.Resolve(tbl.Path), source.XYOptions{
		Name:   tbl.Name,
		XField: tbl.XField,
		YField: tbl.YField,
		SRS:    layer.ParseSRS(tbl.SRS),
	})
	if err != nil {
		return "", fmt.Errorf("crime_table: %w", err)
	}
	if err := e.write(ctx, table.Layer); err != nil {
		return "", err
	}

	base := filepath.Base(tbl.Path)
	e.out.Info("\n%s converted to a point feature class and extracted to %s\n", base, containerName)
	e.out.Info("under the name '%s'\n", tbl.Name)
	if table.NullShapes > 0 {
		e.out.Warning("%d rows of %s have no coordinates and were imported with a null shape\n", table.NullShapes, base)
	}
	return tbl.Name, nil
}

// reprojectLayers projects every imported layer into the target SRS.
func (e *Engine) reprojectLayers(ctx context.Context) (string, error) {
	imported := make([]string, len(e.order))
	copy(imported, e.order)

	for _, name := range imported {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		projected, err := e.reprojector.Layer(e.layers[name], reproject.ProjectedName(name))
		if err != nil {
			return "", err
		}
		if err := e.write(ctx, projected); err != nil {
			return "", err
		}
	}

	e.out.Info("\n%d files projected to %s\n", len(imported), e.reprojector.Target())
	return "", nil
}

func (e *Engine) boundaryPolygon(ctx context.Context) (string, error) {
	poly, err := e.processor.FeatureToPolygon(e.layers[projected(BoundaryLayer)], BoundaryPolygon)
	if err != nil {
		return "", err
	}
	if err := e.write(ctx, poly); err != nil {
		return "", err
	}
	e.out.Info("\nPolice beats catalog path is %s\n", e.container.CatalogPath(PoliceBeatsLayer))
	return poly.Name, nil
}

func (e *Engine) thiessen(ctx context.Context) (string, error) {
	cells, err := e.processor.ThiessenPolygons(e.layers[projected(CrimeLayer)], ThiessenLayer)
	if err != nil {
		return "", err
	}
	return cells.Name, e.write(ctx, cells)
}

func (e *Engine) clip(ctx context.Context) (string, error) {
	clipped, err := e.processor.Clip(e.layers[ThiessenLayer], e.layers[BoundaryPolygon], ThiessenClipLayer)
	if err != nil {
		return "", err
	}
	if err := e.write(ctx, clipped); err != nil {
		return "", err
	}
	e.out.Info("\nThiessen polygons have been created in %s and clipped to\n", e.container.CatalogPath(clipped.Name))
	e.out.Info("the boundary polygon\n")
	return clipped.Name, nil
}

func (e *Engine) summarizeAddresses(ctx context.Context) (string, error) {
	path, err := e.summarize(ctx, e.layers[ThiessenClipLayer], e.layers[projected(AddressLayer)],
		AddressSummary, "thiessen_csv", e.cfg.Outputs.ThiessenCSV)
	if err != nil {
		return "", err
	}
	e.out.Info("\nThe table for address points within the thiessen polygons has been created and named\n")
	e.out.Info("%s\n", filepath.Base(path))
	return AddressSummary, nil
}

func (e *Engine) summarizeBeats(ctx context.Context) (string, error) {
	path, err := e.summarize(ctx, e.layers[projected(PoliceBeatsLayer)], e.layers[projected(CrimeLayer)],
		BeatsSummary, "beats_csv", e.cfg.Outputs.BeatsCSV)
	if err != nil {
		return "", err
	}
	e.out.Info("\nThe table for the number of crimes within police beats has been created and named\n")
	e.out.Info("%s\n", filepath.Base(path))
	return BeatsSummary, nil
}

func (e *Engine) summarizeCenterlines(ctx context.Context) (string, error) {
	path, err := e.summarize(ctx, e.layers[projected(PoliceBeatsLayer)], e.layers[projected(CenterlinesLayer)],
		CenterlineSummary, "centerlines_csv", e.cfg.Outputs.CenterlinesCSV)
	if err != nil {
		return "", err
	}
	e.out.Info("\nThe table for road centerline length within police beats has been created and named\n")
	e.out.Info("%s\n", filepath.Base(path))
	return CenterlineSummary, nil
}

// summarize deletes the old export, runs SummarizeWithin, stores the result and
// exports it. Returns the written CSV path.
func (e *Engine) summarize(ctx context.Context, polygons, summary *layer.Layer, name, outputKey, output string) (string, error) {
	path := e.cfg.Resolve(output)
	if _, err := export.Delete(path); err != nil {
		return "", err
	}

	table, err := e.processor.SummarizeWithin(polygons, summary, name)
	if err != nil {
		return "", err
	}
	if err := e.write(ctx, table); err != nil {
		return "", err
	}
	if err := export.TableToCSV(table, path); err != nil {
		return "", err
	}
	e.outputs[outputKey] = path
	return path, nil
}

// write stores a layer in the container and keeps it for later steps.
func (e *Engine) write(ctx context.Context, l *layer.Layer) error {
	if err := e.container.WriteLayer(ctx, l); err != nil {
		return err
	}
	e.layers[l.Name] = l
	e.order = append(e.order, l.Name)
	return nil
}

func projected(imported string) string {
	return reproject.ProjectedName(imported)
}
