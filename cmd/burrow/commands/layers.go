package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/burrow/internal/catalog"
	"github.com/dyluth/burrow/internal/gpkg"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/spf13/cobra"
)

var (
	layersOutputFormat string
	layersContainer    string
	layersName         string
	layersType         string
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List the layers in the container",
	Long: `List the layers of the GeoPackage built by the last run.

Output Formats:
  default - Table with name, geometry type, row count, SRS and source
  jsonl   - Line-delimited JSON, one layer per line (includes extents)

Examples:
  # List everything
  burrow layers

  # Only the reprojected layers
  burrow layers --name='*_Project'

  # Polygon layers as JSONL for piping to jq
  burrow layers --type=polygon --output=jsonl | jq .name`,
	Args: cobra.NoArgs,
	RunE: runLayers,
}

func init() {
	layersCmd.Flags().StringVarP(&layersOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	layersCmd.Flags().StringVar(&layersContainer, "container", "", "GeoPackage to list (defaults to the configured container)")
	layersCmd.Flags().StringVar(&layersName, "name", "", "Filter by layer name (glob pattern)")
	layersCmd.Flags().StringVar(&layersType, "type", "", "Filter by geometry type (point, polyline, polygon, none)")
	rootCmd.AddCommand(layersCmd)
}

func runLayers(cmd *cobra.Command, args []string) error {
	format, err := catalog.ParseOutputFormat(layersOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", layersOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	path := layersContainer
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Resolve(cfg.Container)
	}

	filters := &catalog.FilterCriteria{NameGlob: layersName, GeometryType: layersType}
	if err := catalog.ListLayers(context.Background(), path, format, filters, cmd.OutOrStdout()); err != nil {
		if errors.Is(err, gpkg.ErrContainerNotFound) {
			return printer.Error(
				"container not found",
				fmt.Sprintf("%s does not exist yet.", path),
				[]string{"Build it first:\n  burrow run"},
			)
		}
		return printer.ErrorWithContext("failed to list layers", err.Error(), map[string]string{"Container": path}, nil)
	}
	return nil
}
