package commands

import (
	"fmt"

	"github.com/dyluth/burrow/internal/catalog"
	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/layer"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/source"
	"github.com/spf13/cobra"
)

var (
	describeSRS string
)

var describeCmd = &cobra.Command{
	Use:   "describe <shapefile|csv>...",
	Short: "Show the shape type, spatial reference and fields of input files",
	Long: `Describe one or more input files without importing them.

Shapefiles report the spatial reference from their .prj file. CSV tables
are read as XY points in the --srs reference; rows without coordinates are
counted as null shapes.

Examples:
  burrow describe data/FburgBoundary.shp
  burrow describe data/*.shp data/FburgCrimeReportXY.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDescribe,
}

func init() {
	describeCmd.Flags().StringVar(&describeSRS, "srs", config.DefaultTableSRS, "Spatial reference of CSV coordinates")
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	srs := layer.ParseSRS(describeSRS)
	out := cmd.OutOrStdout()

	for i, path := range args {
		d, err := source.Describe(path, srs)
		if err != nil {
			return printer.ErrorWithContext(
				"cannot describe input",
				err.Error(),
				map[string]string{"Path": path},
				[]string{"Shapefiles need their .shp, .shx, .dbf and .prj files side by side"},
			)
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		catalog.FormatDescription(out, d)
	}
	return nil
}

