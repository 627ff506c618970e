package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `version: "1.0"
workspace: data
sources:
  boundary: FburgBoundary.shp
  crime: FredCrimeData2.shp
  police_beats: PoliceBeats.shp
  centerlines: RoadCenterlines.shp
  addresses: SiteAddresses.shp
crime_table:
  path: FburgCrimeReportXY.csv
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "burrow.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func validBurrowConfig() *BurrowConfig {
	return &BurrowConfig{
		Version: "1.0",
		Sources: Sources{
			Boundary:    "FburgBoundary.shp",
			Crime:       "FredCrimeData2.shp",
			PoliceBeats: "PoliceBeats.shp",
			Centerlines: "RoadCenterlines.shp",
			Addresses:   "SiteAddresses.shp",
		},
		CrimeTable: CrimeTable{Path: "FburgCrimeReportXY.csv"},
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1.0", config.Version)
	assert.Equal(t, "PoliceBeats.shp", config.Sources.PoliceBeats)
	assert.Equal(t, filepath.Dir(path), config.Dir())

	// Defaults
	assert.Equal(t, DefaultContainer, config.Container)
	assert.Equal(t, DefaultTargetSRS, config.TargetSRS)
	assert.Equal(t, DefaultTableSRS, config.CrimeTable.SRS)
	assert.Equal(t, DefaultTableName, config.CrimeTable.Name)
	assert.Equal(t, DefaultThiessenCSV, config.Outputs.ThiessenCSV)
	assert.Equal(t, DefaultBeatsCSV, config.Outputs.BeatsCSV)
	assert.Empty(t, config.Outputs.CenterlinesCSV)
	assert.Nil(t, config.Events)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, validConfig+`container: Analysis.gpkg
target_srs: "EPSG:2284"
outputs:
  thiessen_csv: out/cells.csv
  beats_csv: out/beats.csv
  centerlines_csv: out/roads.csv
events:
  redis_url: redis://localhost:6379/2
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Analysis.gpkg", config.Container)
	assert.Equal(t, "EPSG:2284", config.TargetSRS)
	assert.Equal(t, "out/roads.csv", config.Outputs.CenterlinesCSV)
	require.NotNil(t, config.Events)
	assert.Equal(t, "redis://localhost:6379/2", config.Events.RedisURL)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/burrow.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
sources:
  - this is invalid
    yaml syntax
`)

	config, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	path := writeConfig(t, `version: "1.0"`)

	config, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "sources.boundary is required")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *BurrowConfig)
		expectedErr string
	}{
		{
			name:        "unsupported version",
			mutate:      func(c *BurrowConfig) { c.Version = "2.0" },
			expectedErr: "unsupported version: 2.0",
		},
		{
			name:        "missing version",
			mutate:      func(c *BurrowConfig) { c.Version = "" },
			expectedErr: "unsupported version",
		},
		{
			name:        "missing source",
			mutate:      func(c *BurrowConfig) { c.Sources.Addresses = "" },
			expectedErr: "sources.addresses is required",
		},
		{
			name:        "source is not a shapefile",
			mutate:      func(c *BurrowConfig) { c.Sources.Crime = "crime.csv" },
			expectedErr: "sources.crime must be a .shp file",
		},
		{
			name:        "container is not a geopackage",
			mutate:      func(c *BurrowConfig) { c.Container = "Crime.gdb" },
			expectedErr: "container must be a .gpkg file",
		},
		{
			name:        "missing crime table",
			mutate:      func(c *BurrowConfig) { c.CrimeTable.Path = "" },
			expectedErr: "crime_table.path is required",
		},
		{
			name:        "half an xy pair",
			mutate:      func(c *BurrowConfig) { c.CrimeTable.XField = "X" },
			expectedErr: "x_field and y_field must be given together",
		},
		{
			name: "outputs collide",
			mutate: func(c *BurrowConfig) {
				c.Outputs.ThiessenCSV = "same.csv"
				c.Outputs.BeatsCSV = "same.csv"
			},
			expectedErr: "both write same.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validBurrowConfig()
			tt.mutate(c)

			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestValidate_UppercaseExtensions(t *testing.T) {
	c := validBurrowConfig()
	c.Sources.Boundary = "BOUNDARY.SHP"
	c.Container = "CRIME.GPKG"
	assert.NoError(t, c.Validate())
}

func TestSources_NamedOrder(t *testing.T) {
	c := validBurrowConfig()
	var keys []string
	for _, src := range c.Sources.Named() {
		keys = append(keys, src.Key)
	}
	assert.Equal(t, []string{"boundary", "crime", "police_beats", "centerlines", "addresses"}, keys)
}

func TestResolve(t *testing.T) {
	path := writeConfig(t, validConfig)
	config, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "data"), config.WorkspaceDir())
	assert.Equal(t, filepath.Join(dir, "data", "PoliceBeats.shp"), config.Resolve("PoliceBeats.shp"))
	assert.Equal(t, "/abs/file.shp", config.Resolve("/abs/file.shp"))
	assert.Equal(t, "", config.Resolve(""))

	config.Workspace = "/srv/gis"
	assert.Equal(t, "/srv/gis/Crime.gpkg", config.Resolve(config.Container))
}

func TestResolve_WithoutLoad(t *testing.T) {
	c := validBurrowConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, "Crime.gpkg", c.Resolve("Crime.gpkg"))
}

func TestRedisURL(t *testing.T) {
	c := validBurrowConfig()
	t.Setenv(RedisURLEnv, "")
	assert.Empty(t, c.RedisURL(), "ledger disabled by default")

	c.Events = &EventsConfig{RedisURL: "redis://config:6379"}
	assert.Equal(t, "redis://config:6379", c.RedisURL())

	t.Setenv(RedisURLEnv, "redis://env:6379")
	assert.Equal(t, "redis://env:6379", c.RedisURL())
}

func TestLoadEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, LoadEnv(t.TempDir()))
	})

	t.Run("sets variables", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BURROW_TEST_VALUE=from-dotenv\n"), 0644))
		t.Setenv("BURROW_TEST_VALUE", "")
		os.Unsetenv("BURROW_TEST_VALUE")

		require.NoError(t, LoadEnv(dir))
		assert.Equal(t, "from-dotenv", os.Getenv("BURROW_TEST_VALUE"))
	})
}
