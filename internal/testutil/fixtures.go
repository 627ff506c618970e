// Package testutil writes small synthetic input datasets for tests: shapefiles
// with .prj sidecars and an XY coordinate table, laid out over a 4km square
// in WGS 84.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// WGS84WKT is the ESRI flavour of the WGS 84 geographic definition.
const WGS84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Extent of the synthetic city boundary (longitude/latitude).
const (
	MinLon = -77.48
	MaxLon = -77.44
	MinLat = 38.28
	MaxLat = 38.32
	// BeatSplitLon separates the west and east police beats.
	BeatSplitLon = -77.4525
)

// Dataset holds the paths of a complete set of pipeline inputs.
type Dataset struct {
	Dir         string
	Boundary    string
	Crime       string
	PoliceBeats string
	Centerlines string
	Addresses   string
	CrimeTable  string
}

// Paths returns every input path.
func (d *Dataset) Paths() []string {
	return []string{d.Boundary, d.Crime, d.PoliceBeats, d.Centerlines, d.Addresses, d.CrimeTable}
}

// CrimePoints are the nine crime locations: a 3x3 grid, six west and three east of the beat split.
var CrimePoints = [][2]float64{
	{-77.475, 38.285}, {-77.475, 38.300}, {-77.475, 38.315},
	{-77.460, 38.285}, {-77.460, 38.300}, {-77.460, 38.315},
	{-77.445, 38.285}, {-77.445, 38.300}, {-77.445, 38.315},
}

// AddressPoints are twelve site addresses inside the boundary.
var AddressPoints = [][2]float64{
	{-77.478, 38.290}, {-77.478, 38.305}, {-77.478, 38.318},
	{-77.465, 38.290}, {-77.465, 38.305}, {-77.465, 38.318},
	{-77.455, 38.290}, {-77.455, 38.305}, {-77.455, 38.318},
	{-77.442, 38.290}, {-77.442, 38.305}, {-77.442, 38.318},
}

// CrimeTableCSV is the coordinate table; the last row has no coordinates.
const CrimeTableCSV = `ID,Offense,X,Y
1,LARCENY,-77.470,38.290
2,ASSAULT,-77.450,38.310
3,VANDALISM,-77.465,38.312
4,BURGLARY,-77.447,38.288
5,LARCENY,-77.458,38.301
6,UNKNOWN,,
`

// WriteDataset writes the full synthetic input set under dir.
func WriteDataset(t *testing.T, dir string) *Dataset {
	t.Helper()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	d := &Dataset{
		Dir:         dataDir,
		Boundary:    filepath.Join(dataDir, "FburgBoundary.shp"),
		Crime:       filepath.Join(dataDir, "FredCrimeData2.shp"),
		PoliceBeats: filepath.Join(dataDir, "PoliceBeats.shp"),
		Centerlines: filepath.Join(dataDir, "RoadCenterlines.shp"),
		Addresses:   filepath.Join(dataDir, "SiteAddresses.shp"),
		CrimeTable:  filepath.Join(dataDir, "FburgCrimeReportXY.csv"),
	}

	WriteLines(t, d.Boundary, []shp.Field{shp.StringField("NAME", 20)},
		[][][2]float64{{
			{MinLon, MinLat}, {MinLon, MaxLat}, {MaxLon, MaxLat}, {MaxLon, MinLat}, {MinLon, MinLat},
		}},
		[][]any{{"Fredericksburg"}})

	crimeAttrs := make([][]any, len(CrimePoints))
	offenses := []string{"LARCENY", "ASSAULT", "BURGLARY"}
	for i := range CrimePoints {
		crimeAttrs[i] = []any{offenses[i%len(offenses)], 1000 + i}
	}
	WritePoints(t, d.Crime, []shp.Field{shp.StringField("OFFENSE", 20), shp.NumberField("CASE_NO", 9)},
		CrimePoints, crimeAttrs)

	WritePolygons(t, d.PoliceBeats, []shp.Field{shp.StringField("BEAT", 10)},
		[][][2]float64{
			Rect(MinLon, MinLat, BeatSplitLon, MaxLat),
			Rect(BeatSplitLon, MinLat, MaxLon, MaxLat),
		},
		[][]any{{"WEST"}, {"EAST"}})

	WriteLines(t, d.Centerlines, []shp.Field{shp.StringField("ST_NAME", 30)},
		[][][2]float64{
			{{MinLon, 38.292}, {MaxLon, 38.292}},
			{{-77.47, MinLat}, {-77.47, MaxLat}},
		},
		[][]any{{"Princess Anne St"}, {"William St"}})

	addrAttrs := make([][]any, len(AddressPoints))
	for i := range AddressPoints {
		addrAttrs[i] = []any{100 + i, "Caroline St"}
	}
	WritePoints(t, d.Addresses, []shp.Field{shp.NumberField("HOUSE_NUM", 6), shp.StringField("STREET", 30)},
		AddressPoints, addrAttrs)

	require.NoError(t, os.WriteFile(d.CrimeTable, []byte(CrimeTableCSV), 0644))

	return d
}

// Rect returns a clockwise rectangle ring, the orientation shapefiles use for outer rings.
func Rect(minX, minY, maxX, maxY float64) [][2]float64 {
	return [][2]float64{{minX, minY}, {minX, maxY}, {maxX, maxY}, {maxX, minY}, {minX, minY}}
}

// WritePRJ writes the .prj sidecar for a shapefile path.
func WritePRJ(t *testing.T, path, wkt string) {
	t.Helper()
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	require.NoError(t, os.WriteFile(prj, []byte(wkt), 0644))
}

// WritePoints writes a point shapefile in WGS 84.
func WritePoints(t *testing.T, path string, fields []shp.Field, points [][2]float64, attrs [][]any) {
	t.Helper()
	shapes := make([]shp.Shape, len(points))
	for i, p := range points {
		shapes[i] = &shp.Point{X: p[0], Y: p[1]}
	}
	write(t, path, shp.POINT, fields, shapes, attrs)
}

// WriteLines writes a polyline shapefile in WGS 84, one single-part line per feature.
func WriteLines(t *testing.T, path string, fields []shp.Field, lines [][][2]float64, attrs [][]any) {
	t.Helper()
	shapes := make([]shp.Shape, len(lines))
	for i, line := range lines {
		shapes[i] = shp.NewPolyLine([][]shp.Point{toShp(line)})
	}
	write(t, path, shp.POLYLINE, fields, shapes, attrs)
}

// WritePolygons writes a polygon shapefile in WGS 84, one ring per feature.
func WritePolygons(t *testing.T, path string, fields []shp.Field, rings [][][2]float64, attrs [][]any) {
	t.Helper()
	shapes := make([]shp.Shape, len(rings))
	for i, ring := range rings {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{toShp(ring)}))
		shapes[i] = &poly
	}
	write(t, path, shp.POLYGON, fields, shapes, attrs)
}

func toShp(coords [][2]float64) []shp.Point {
	points := make([]shp.Point, len(coords))
	for i, c := range coords {
		points[i] = shp.Point{X: c[0], Y: c[1]}
	}
	return points
}

func write(t *testing.T, path string, st shp.ShapeType, fields []shp.Field, shapes []shp.Shape, attrs [][]any) {
	t.Helper()
	w, err := shp.Create(path, st)
	require.NoError(t, err)
	require.NoError(t, w.SetFields(fields))

	for i, s := range shapes {
		n := w.Write(s)
		for j, v := range attrs[i] {
			require.NoError(t, w.WriteAttribute(int(n), j, v))
		}
	}
	w.Close()

	WritePRJ(t, path, WGS84WKT)
}
