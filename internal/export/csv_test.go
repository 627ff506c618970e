package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/burrow/internal/layer"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beatsTable() *layer.Layer {
	l := &layer.Layer{
		Name:         "police_beats_table",
		GeometryType: layer.Polygon,
		Fields: []layer.Field{
			{Name: "BEAT", Type: layer.String},
			{Name: "Point_Count", Type: layer.Integer},
		},
	}
	l.Features = []*layer.Feature{
		{FID: 2, Geometry: orb.Polygon{{{0, 0}, {0, 2}, {3, 2}, {3, 0}, {0, 0}}}, Values: []any{"EAST", int64(0)}},
		{FID: 1, Geometry: orb.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}, Values: []any{"WEST, NORTH", int64(12)}},
	}
	return l
}

func TestTableToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BeatsCSV.csv")

	require.NoError(t, TableToCSV(beatsTable(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	expected := "OBJECTID,BEAT,Point_Count,Shape_Length,Shape_Area\n" +
		"1,\"WEST, NORTH\",12,40,100\n" +
		"2,EAST,0,10,6\n"
	assert.Equal(t, expected, string(data))
}

func TestTableToCSV_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ThiessenCSV.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale contents that are much longer than the new table\n"), 0644))

	require.NoError(t, TableToCSV(beatsTable(), path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(first), "stale")

	require.NoError(t, TableToCSV(beatsTable(), path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-export is byte-identical")
}

func TestTableToCSV_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "t.csv")
	require.NoError(t, TableToCSV(beatsTable(), path))
	assert.FileExists(t, path)
}

func TestHeader(t *testing.T) {
	fields := []layer.Field{{Name: "ST_NAME", Type: layer.String}}

	tests := []struct {
		name     string
		geomType layer.GeometryType
		expected []string
	}{
		{"points", layer.Point, []string{"OBJECTID", "ST_NAME"}},
		{"lines", layer.Polyline, []string{"OBJECTID", "ST_NAME", "Shape_Length"}},
		{"polygons", layer.Polygon, []string{"OBJECTID", "ST_NAME", "Shape_Length", "Shape_Area"}},
		{"table", layer.None, []string{"OBJECTID", "ST_NAME"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &layer.Layer{Name: "x", GeometryType: tt.geomType, Fields: fields}
			assert.Equal(t, tt.expected, Header(l))
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "LARCENY", FormatValue("LARCENY"))
	assert.Equal(t, "42", FormatValue(int64(42)))
	assert.Equal(t, "7", FormatValue(7))
	assert.Equal(t, "0.1", FormatValue(0.1))
	assert.Equal(t, "11785432.125", FormatValue(11785432.125))
	assert.Equal(t, "1000000000000", FormatValue(1e12))
	assert.Equal(t, "true", FormatValue(true))
}

func TestRow_NullShape(t *testing.T) {
	l := beatsTable()
	rec := row(l, &layer.Feature{FID: 9, Values: []any{nil, int64(0)}})
	assert.Equal(t, []string{"9", "", "0", "0", "0"}, rec)
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.csv")

	removed, err := Delete(path)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	removed, err = Delete(path)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, path)
}
