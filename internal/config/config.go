package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when a field is omitted.
const (
	DefaultContainer   = "Crime.gpkg"
	DefaultTargetSRS   = "EPSG:2283"
	DefaultTableSRS    = "EPSG:4326"
	DefaultTableName   = "FburgCrimeData"
	DefaultThiessenCSV = "ThiessenCSV.csv"
	DefaultBeatsCSV    = "BeatsCSV.csv"
	RedisURLEnv        = "BURROW_REDIS_URL"
	defaultWorkspace   = "."
	supportedVersion   = "1.0"
	shapefileExtension = ".shp"
	containerExtension = ".gpkg"
)

// BurrowConfig represents the top-level burrow.yml configuration
type BurrowConfig struct {
	Version    string        `yaml:"version"`
	Workspace  string        `yaml:"workspace,omitempty"`  // Directory all relative paths resolve against
	Container  string        `yaml:"container,omitempty"`  // GeoPackage file, recreated on every run
	TargetSRS  string        `yaml:"target_srs,omitempty"` // Any definition PROJ accepts
	Sources    Sources       `yaml:"sources"`
	CrimeTable CrimeTable    `yaml:"crime_table"`
	Outputs    Outputs       `yaml:"outputs,omitempty"`
	Events     *EventsConfig `yaml:"events,omitempty"`

	// dir is the directory containing the config file.
	dir string
}

// Sources lists the input shapefiles
type Sources struct {
	Boundary    string `yaml:"boundary"`
	Crime       string `yaml:"crime"`
	PoliceBeats string `yaml:"police_beats"`
	Centerlines string `yaml:"centerlines"`
	Addresses   string `yaml:"addresses"`
}

// CrimeTable describes the XY crime report CSV
type CrimeTable struct {
	Path   string `yaml:"path"`
	XField string `yaml:"x_field,omitempty"` // Auto-detected when empty
	YField string `yaml:"y_field,omitempty"`
	SRS    string `yaml:"srs,omitempty"`
	Name   string `yaml:"name,omitempty"` // Layer name inside the container
}

// Outputs names the exported CSV files
type Outputs struct {
	ThiessenCSV    string `yaml:"thiessen_csv,omitempty"`
	BeatsCSV       string `yaml:"beats_csv,omitempty"`
	CenterlinesCSV string `yaml:"centerlines_csv,omitempty"` // Optional: centerline lengths per beat
}

// EventsConfig enables the Redis run ledger
type EventsConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"`
}

// Validate performs strict validation on the configuration and applies defaults
func (c *BurrowConfig) Validate() error {
	// Required: version
	if c.Version != supportedVersion {
		return fmt.Errorf("unsupported version: %s (expected: %s)", c.Version, supportedVersion)
	}

	if c.Workspace == "" {
		c.Workspace = defaultWorkspace
	}
	if c.Container == "" {
		c.Container = DefaultContainer
	}
	if !strings.EqualFold(filepath.Ext(c.Container), containerExtension) {
		return fmt.Errorf("container must be a %s file, got %s", containerExtension, c.Container)
	}
	if c.TargetSRS == "" {
		c.TargetSRS = DefaultTargetSRS
	}

	if err := c.Sources.Validate(); err != nil {
		return err
	}
	if err := c.CrimeTable.Validate(); err != nil {
		return err
	}

	if c.Outputs.ThiessenCSV == "" {
		c.Outputs.ThiessenCSV = DefaultThiessenCSV
	}
	if c.Outputs.BeatsCSV == "" {
		c.Outputs.BeatsCSV = DefaultBeatsCSV
	}
	seen := make(map[string]string)
	for name, path := range c.Outputs.Named() {
		if other, exists := seen[path]; exists {
			return fmt.Errorf("outputs.%s and outputs.%s both write %s", other, name, path)
		}
		seen[path] = name
	}

	return nil
}

// Validate checks that every source shapefile is named
func (s *Sources) Validate() error {
	for _, src := range s.Named() {
		if src.Path == "" {
			return fmt.Errorf("sources.%s is required", src.Key)
		}
		if !strings.EqualFold(filepath.Ext(src.Path), shapefileExtension) {
			return fmt.Errorf("sources.%s must be a %s file, got %s", src.Key, shapefileExtension, src.Path)
		}
	}
	return nil
}

// Source pairs a config key with its shapefile path
type Source struct {
	Key  string
	Path string
}

// Named returns the sources in import order
func (s *Sources) Named() []Source {
	return []Source{
		{Key: "boundary", Path: s.Boundary},
		{Key: "crime", Path: s.Crime},
		{Key: "police_beats", Path: s.PoliceBeats},
		{Key: "centerlines", Path: s.Centerlines},
		{Key: "addresses", Path: s.Addresses},
	}
}

// Validate checks the crime table and applies its defaults
func (t *CrimeTable) Validate() error {
	if t.Path == "" {
		return fmt.Errorf("crime_table.path is required")
	}
	if (t.XField == "") != (t.YField == "") {
		return fmt.Errorf("crime_table: x_field and y_field must be given together")
	}
	if t.SRS == "" {
		t.SRS = DefaultTableSRS
	}
	if t.Name == "" {
		t.Name = DefaultTableName
	}
	return nil
}

// Named maps output keys to their file names, skipping unset optional outputs
func (o *Outputs) Named() map[string]string {
	named := map[string]string{
		"thiessen_csv": o.ThiessenCSV,
		"beats_csv":    o.BeatsCSV,
	}
	if o.CenterlinesCSV != "" {
		named["centerlines_csv"] = o.CenterlinesCSV
	}
	return named
}

// Dir returns the directory the config was loaded from
func (c *BurrowConfig) Dir() string {
	if c.dir == "" {
		return "."
	}
	return c.dir
}

// WorkspaceDir returns the absolute-or-relative workspace directory
func (c *BurrowConfig) WorkspaceDir() string {
	if filepath.IsAbs(c.Workspace) {
		return c.Workspace
	}
	return filepath.Join(c.Dir(), c.Workspace)
}

// Resolve joins a relative path against the workspace directory
func (c *BurrowConfig) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.WorkspaceDir(), path)
}

// RedisURL returns the ledger address, preferring BURROW_REDIS_URL.
// Empty means the ledger is disabled.
func (c *BurrowConfig) RedisURL() string {
	if v := os.Getenv(RedisURLEnv); v != "" {
		return v
	}
	if c.Events == nil {
		return ""
	}
	return c.Events.RedisURL
}

// LoadEnv loads a .env file from dir if one exists
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads and validates burrow.yml from the specified path
func Load(path string) (*BurrowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config BurrowConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.dir = filepath.Dir(path)
	return &config, nil
}
