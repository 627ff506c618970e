package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd is the bare `burrow` command; it only prints help.
var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - crime analysis geoprocessing pipeline",
	Long: `Burrow imports a city's boundary, crime, police beat, road centerline and
address data into a GeoPackage, reprojects it into one state plane
coordinate system, builds Thiessen polygons around the crime points and
exports per-polygon and per-beat summaries as CSV tables.

Every run recreates the container and overwrites the CSV outputs.`,
	Version: version,
	// Unknown flags on the bare command must fail, e.g. "burrow --force"
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the command tree. Called once from main.
func Execute() error {
	// Errors are printed by the printer package, not by cobra
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo fills in the build metadata shown by --version
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "burrow.yml", "Path to the burrow.yml configuration")
}
